package hub

import (
	"encoding/binary"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// fakeConn is an in-memory Conn. Frames pushed on in are read as text
// messages; closing in reads as a peer close frame; fail makes the next read
// return a transport error.
type fakeConn struct {
	in   chan []byte
	fail chan error
	gate chan struct{} // when set, text writes wait for it to close

	closed    chan struct{}
	closeOnce sync.Once

	mu         sync.Mutex
	written    [][]byte
	closeFrame []byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 16),
		fail:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data, ok := <-c.in:
		if !ok {
			return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
		}
		return websocket.TextMessage, data, nil
	case err := <-c.fail:
		return 0, nil, err
	case <-c.closed:
		return 0, nil, net.ErrClosed
	}
}

func (c *fakeConn) WriteMessage(mt int, data []byte) error {
	if c.isClosed() {
		return net.ErrClosed
	}
	if mt != websocket.TextMessage {
		return nil
	}
	if c.gate != nil {
		select {
		case <-c.gate:
		case <-c.closed:
			return net.ErrClosed
		}
	}
	c.mu.Lock()
	c.written = append(c.written, data)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) WriteControl(mt int, data []byte, _ time.Time) error {
	if c.isClosed() {
		return net.ErrClosed
	}
	if mt == websocket.CloseMessage {
		c.mu.Lock()
		c.closeFrame = data
		c.mu.Unlock()
	}
	return nil
}

func (c *fakeConn) SetReadDeadline(time.Time) error   { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetReadLimit(int64)                {}
func (c *fakeConn) SetPongHandler(func(string) error) {}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) messages() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.written...)
}

// closeCode returns the status code of the close frame, or 0 if none was sent.
func (c *fakeConn) closeCode() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.closeFrame) < 2 {
		return 0
	}
	return int(binary.BigEndian.Uint16(c.closeFrame[:2]))
}

func testOptions() Options {
	return Options{
		WriteWait:      time.Second,
		PongWait:       5 * time.Second,
		PingPeriod:     time.Hour,
		MaxMessageSize: 4096,
		ControlRate:    rate.Inf,
		ControlBurst:   1,
	}
}
