package hub

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"logistrans/internal/config"
	"logistrans/internal/metrics"
)

// Conn is the part of *websocket.Conn a session uses. Read methods are only
// called from the reader and write methods only from the writer.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	Close() error
}

var _ Conn = (*websocket.Conn)(nil)

// Options are the per-connection timings and limits.
type Options struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
	ControlRate    rate.Limit
	ControlBurst   int
}

// OptionsFrom maps the hub section of the service configuration.
func OptionsFrom(c config.HubConfig) Options {
	return Options{
		WriteWait:      c.WriteWait,
		PongWait:       c.PongWait,
		PingPeriod:     c.PingPeriod,
		MaxMessageSize: c.MaxMessageSize,
		ControlRate:    rate.Limit(c.ControlRate),
		ControlBurst:   c.ControlBurst,
	}
}

// Serve runs a session over conn until the connection ends or ctx is
// cancelled. It registers the session, runs the writer in its own goroutine
// and the reader in the calling one, and returns only after the session has
// been unregistered and conn closed.
func (r *Registry) Serve(ctx context.Context, conn Conn, identity Identity, opts Options) {
	s := r.Register(identity)
	s.run(ctx, conn, opts)
}

func (s *Session) run(ctx context.Context, conn Conn, opts Options) {
	defer s.finish()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(conn, opts)
	}()

	stop := context.AfterFunc(ctx, func() { s.beginClose(ReasonShutdown) })
	defer stop()

	err := s.readLoop(conn, opts)
	switch {
	case s.State() != StateOpen:
		// Closed from our side; the writer tears the connection down.
	case isCloseFrame(err):
		s.beginClose(ReasonClientClosed)
	case isTransportError(err):
		s.registry.logger.Debug("session read failed", "session", s.id, "err", err)
		s.abort()
		_ = conn.Close()
	default:
		s.registry.logger.Warn("session protocol error", "session", s.id, "err", err)
		s.beginClose(ReasonProtocolError)
	}

	<-writerDone
	_ = conn.Close()
}

func (s *Session) readLoop(conn Conn, opts Options) error {
	conn.SetReadLimit(opts.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	})

	limiter := rate.NewLimiter(opts.ControlRate, opts.ControlBurst)
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(opts.PongWait))
		if mt != websocket.TextMessage {
			metrics.HubControlMessages.WithLabelValues("binary", "ignored").Inc()
			continue
		}
		if !limiter.Allow() {
			// dropped without a reply; clients pace their subscribes
			msg, _ := DecodeControl(data)
			metrics.HubControlMessages.WithLabelValues(controlLabel(msg.Type), "rate_limited").Inc()
			s.registry.logger.Warn("control message rate exceeded, message dropped",
				"session", s.id, "message_type", msg.Type, "key", msg.ID)
			continue
		}
		s.registry.handleControl(s.id, data)
	}
}

// handleControl applies one inbound message. Bad input never ends the session.
func (r *Registry) handleControl(id uuid.UUID, data []byte) {
	msg, err := DecodeControl(data)
	if err != nil {
		metrics.HubControlMessages.WithLabelValues(controlLabel(msg.Type), "malformed").Inc()
		r.logger.Warn("ignoring malformed control message", "session", id, "err", err)
		return
	}
	dim, ok := msg.Dimension()
	if !ok {
		metrics.HubControlMessages.WithLabelValues("unknown", "unrecognized").Inc()
		r.logger.Info("ignoring unrecognized control message", "session", id, "message_type", msg.Type)
		return
	}
	r.SetSubscription(id, dim, uuid.NullUUID{UUID: msg.ID, Valid: true})
	metrics.HubControlMessages.WithLabelValues(msg.Type, "applied").Inc()
	r.logger.Debug("subscription updated", "session", id, "dimension", dim.String(), "key", msg.ID)
}

func controlLabel(typ string) string {
	if _, ok := controlTypes[typ]; ok {
		return typ
	}
	return "unknown"
}

func (s *Session) writeLoop(conn Conn, opts Options) {
	ticker := time.NewTicker(opts.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case msg := <-s.outbound:
			_ = conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.writeFailed(conn, err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.writeFailed(conn, err)
				return
			}
		case <-s.closing:
			if s.State() == StateClosing {
				s.drain(conn, opts)
			}
			return
		}
	}
}

// drain flushes what is already queued, sends the close frame and closes the
// connection, all within one write deadline.
func (s *Session) drain(conn Conn, opts Options) {
	deadline := time.Now().Add(opts.WriteWait)
	_ = conn.SetWriteDeadline(deadline)
	defer func() { _ = conn.Close() }()
	for {
		select {
		case msg := <-s.outbound:
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		default:
			reason := s.CloseReason()
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(reason.Code, reason.Text), deadline)
			return
		}
	}
}

func (s *Session) writeFailed(conn Conn, err error) {
	s.registry.logger.Debug("session write failed", "session", s.id, "err", err)
	s.abort()
	_ = conn.Close()
}

func isCloseFrame(err error) bool {
	var ce *websocket.CloseError
	return errors.As(err, &ce)
}

func isTransportError(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed)
}
