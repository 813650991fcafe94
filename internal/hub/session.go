package hub

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// State is a session's position in its lifecycle. Sessions only move forward:
// Open, then Closing, then Closed.
type State int32

const (
	StateOpen State = iota
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Identity is the principal a connection was authenticated as before it
// reached the hub. Anonymous connections carry the zero value.
type Identity struct {
	Subject  string
	Username string
	Role     string
}

// Subscription is a session's filter, one optional key per dimension.
type Subscription [numDimensions]uuid.NullUUID

func (s Subscription) Route() uuid.NullUUID   { return s[DimRoute] }
func (s Subscription) Vehicle() uuid.NullUUID { return s[DimVehicle] }
func (s Subscription) Driver() uuid.NullUUID  { return s[DimDriver] }

// CloseReason is sent to the peer in the close frame.
type CloseReason struct {
	Code int
	Text string
}

var (
	ReasonClientClosed  = CloseReason{Code: websocket.CloseNormalClosure, Text: "client closed"}
	ReasonSlowConsumer  = CloseReason{Code: websocket.CloseTryAgainLater, Text: "slow consumer"}
	ReasonShutdown      = CloseReason{Code: websocket.CloseGoingAway, Text: "server shutdown"}
	ReasonProtocolError = CloseReason{Code: websocket.CloseProtocolError, Text: "protocol error"}
)

// Session is one live client connection as seen by the registry.
type Session struct {
	id        uuid.UUID
	identity  Identity
	createdAt time.Time
	registry  *Registry

	// guarded by registry.mu
	sub Subscription

	state    atomic.Int32
	outbound chan []byte
	closing  chan struct{}

	reasonMu sync.Mutex
	reason   CloseReason

	signalOnce sync.Once
	finishOnce sync.Once
}

func newSession(r *Registry, identity Identity, queueSize int) *Session {
	return &Session{
		id:        uuid.New(),
		identity:  identity,
		createdAt: time.Now().UTC(),
		registry:  r,
		outbound:  make(chan []byte, queueSize),
		closing:   make(chan struct{}),
	}
}

func (s *Session) ID() uuid.UUID        { return s.id }
func (s *Session) Identity() Identity   { return s.identity }
func (s *Session) CreatedAt() time.Time { return s.createdAt }
func (s *Session) State() State         { return State(s.state.Load()) }

// Queued returns the number of messages waiting for the writer.
func (s *Session) Queued() int { return len(s.outbound) }

// Done is closed once the session stops being Open.
func (s *Session) Done() <-chan struct{} { return s.closing }

// CloseReason returns the reason recorded when the session left Open.
func (s *Session) CloseReason() CloseReason {
	s.reasonMu.Lock()
	defer s.reasonMu.Unlock()
	return s.reason
}

// Close asks the session to shut down with reason. Queued messages are still
// flushed to the peer before the close frame.
func (s *Session) Close(reason CloseReason) { s.beginClose(reason) }

type enqueueResult int

const (
	enqueued enqueueResult = iota
	skipped
	queueFull
)

// enqueue never blocks. Only Open sessions accept messages.
func (s *Session) enqueue(msg []byte) enqueueResult {
	if s.State() != StateOpen {
		return skipped
	}
	select {
	case s.outbound <- msg:
		return enqueued
	default:
		return queueFull
	}
}

// beginClose moves an Open session to Closing. It reports whether this call
// made the transition.
func (s *Session) beginClose(reason CloseReason) bool {
	if !s.state.CompareAndSwap(int32(StateOpen), int32(StateClosing)) {
		return false
	}
	s.setReason(reason)
	s.signal()
	return true
}

// abort jumps straight to Closed after a transport failure. The writer sees
// the signal and exits without draining.
func (s *Session) abort() {
	if s.state.Swap(int32(StateClosed)) == int32(StateOpen) {
		s.setReason(CloseReason{Code: websocket.CloseAbnormalClosure, Text: "connection lost"})
	}
	s.signal()
}

// finish is the single exit point: the session becomes Closed and leaves the
// registry exactly once, whichever path got it here.
func (s *Session) finish() {
	s.finishOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		s.signal()
		s.registry.Unregister(s.id)
	})
}

func (s *Session) setReason(reason CloseReason) {
	s.reasonMu.Lock()
	s.reason = reason
	s.reasonMu.Unlock()
}

func (s *Session) signal() {
	s.signalOnce.Do(func() { close(s.closing) })
}
