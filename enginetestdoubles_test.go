package amqp

import (
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"
)

// fakeCodec is a test-only FrameCodec. It does not implement the real
// AMQP 0-9-1 wire format -- that is explicitly out of this package's
// scope, see frame.go -- it encodes each frame as a 4-byte handle
// into a shared registry, letting a test's scripted server and the
// Connection under test exchange real AMQPFrame values over a real
// byte stream without a full binary codec.
type fakeCodec struct {
	mu     sync.Mutex
	byID   map[uint32]AMQPFrame
	nextID uint32
}

func newFakeCodec() *fakeCodec {
	return &fakeCodec{byID: make(map[uint32]AMQPFrame)}
}

func (c *fakeCodec) Encode(f AMQPFrame) ([]byte, error) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.byID[id] = f
	c.mu.Unlock()
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, id)
	return b, nil
}

func (c *fakeCodec) Decode(buf []byte) (AMQPFrame, int, error) {
	if len(buf) < 4 {
		return nil, 0, nil
	}
	id := binary.BigEndian.Uint32(buf[:4])
	c.mu.Lock()
	f, ok := c.byID[id]
	delete(c.byID, id)
	c.mu.Unlock()
	if !ok {
		return nil, 0, fmt.Errorf("fakeCodec: unknown frame handle %d", id)
	}
	return f, 4, nil
}

// pipeTransport adapts one end of a net.Pipe -- a synchronous,
// in-memory net.Conn -- to Transport's non-blocking contract by
// turning a short read/write deadline's timeout into ErrWouldBlock.
type pipeTransport struct {
	conn net.Conn
}

func (t *pipeTransport) Read(p []byte) (int, error) {
	t.conn.SetReadDeadline(time.Now().Add(10 * time.Millisecond))
	n, err := t.conn.Read(p)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return n, ErrWouldBlock
		}
		return n, err
	}
	return n, nil
}

func (t *pipeTransport) Write(p []byte) (int, error) {
	t.conn.SetWriteDeadline(time.Now().Add(10 * time.Millisecond))
	n, err := t.conn.Write(p)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return n, ErrWouldBlock
		}
		return n, err
	}
	return n, nil
}

func (t *pipeTransport) Close() error { return t.conn.Close() }

// testServer plays the broker side of a net.Pipe against a *Connection
// under test: it decodes outbound frames in arrival order and sends
// scripted replies back through the same *fakeCodec.
type testServer struct {
	t     *testing.T
	conn  net.Conn
	codec *fakeCodec
	buf   []byte
}

func newTestServer(t *testing.T, conn net.Conn, codec *fakeCodec) *testServer {
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	return &testServer{t: t, conn: conn, codec: codec}
}

// next blocks until one full frame has arrived from the connection
// under test.
func (s *testServer) next() AMQPFrame {
	s.t.Helper()
	tmp := make([]byte, 4096)
	for {
		frame, consumed, err := s.codec.Decode(s.buf)
		if err != nil {
			s.t.Fatalf("testServer decode: %v", err)
		}
		if consumed > 0 {
			s.buf = s.buf[consumed:]
			return frame
		}
		n, err := s.conn.Read(tmp)
		if err != nil {
			s.t.Fatalf("testServer read: %v", err)
		}
		s.buf = append(s.buf, tmp[:n]...)
	}
}

// nextMethodFrame awaits the next frame and requires it to be a
// *MethodFrame, returning it whole (method plus channel id).
func (s *testServer) nextMethodFrame() *MethodFrame {
	s.t.Helper()
	mf, ok := s.next().(*MethodFrame)
	if !ok {
		s.t.Fatalf("testServer: expected a MethodFrame")
	}
	return mf
}

// nextMethod is nextMethodFrame discarding the channel id, for the
// common case where the test already knows which channel to expect.
func (s *testServer) nextMethod() Method {
	s.t.Helper()
	return s.nextMethodFrame().Method
}

// expectProtocolHeader awaits and discards the initial preamble frame.
func (s *testServer) expectProtocolHeader() {
	s.t.Helper()
	if _, ok := s.next().(ProtocolHeaderFrame); !ok {
		s.t.Fatalf("testServer: expected ProtocolHeaderFrame")
	}
}

func (s *testServer) send(channelId uint16, m Method) {
	s.t.Helper()
	s.sendFrame(&MethodFrame{ChannelId: channelId, Method: m})
}

func (s *testServer) sendFrame(f AMQPFrame) {
	s.t.Helper()
	b, err := s.codec.Encode(f)
	if err != nil {
		s.t.Fatalf("testServer encode: %v", err)
	}
	if _, err := s.conn.Write(b); err != nil {
		s.t.Fatalf("testServer write: %v", err)
	}
}

// newTestConnection wires a *Connection to one end of a net.Pipe and
// returns the other end wrapped as a testServer, ready for a test to
// script a handshake against.
func newTestConnection(t *testing.T, cfg Config) (*Connection, *testServer) {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	codec := newFakeCodec()
	c := Dial(&pipeTransport{conn: clientConn}, codec, cfg, GoExecutor{}, NewLogger(nil))
	server := newTestServer(t, serverConn, codec)
	t.Cleanup(func() { _ = clientConn.Close(); _ = serverConn.Close() })
	return c, server
}
