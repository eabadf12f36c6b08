package amqp

import "sync"

// ConnectionState is the connection-level state machine.
type ConnectionState uint8

const (
	ConnectionInitial ConnectionState = iota
	ConnectionConnecting
	ConnectionConnected
	ConnectionClosing
	ConnectionClosed
	ConnectionError
)

func (s ConnectionState) String() string {
	switch s {
	case ConnectionInitial:
		return "Initial"
	case ConnectionConnecting:
		return "Connecting"
	case ConnectionConnected:
		return "Connected"
	case ConnectionClosing:
		return "Closing"
	case ConnectionClosed:
		return "Closed"
	case ConnectionError:
		return "Error"
	default:
		return "Unknown"
	}
}

// HandshakeStep names the single in-flight handshake step.
type HandshakeStep uint8

const (
	HandshakeNone HandshakeStep = iota
	HandshakeProtocolHeader
	HandshakeStartOk
	HandshakeSecureOk
	HandshakeOpen
)

func (s HandshakeStep) String() string {
	switch s {
	case HandshakeNone:
		return "None"
	case HandshakeProtocolHeader:
		return "ProtocolHeader"
	case HandshakeStartOk:
		return "StartOk"
	case HandshakeSecureOk:
		return "SecureOk"
	case HandshakeOpen:
		return "Open"
	default:
		return "Unknown"
	}
}

// ConnectionStatus is the thread-safe holder of connection-level state,
// shared (by handle, never by pointer cycle) between the Connection
// engine and every Channel so each can cheaply read the other's view
// without round-tripping through InternalRPC.
type ConnectionStatus struct {
	mu      sync.Mutex
	state   ConnectionState
	step    HandshakeStep
	vhost   string
	blocked bool
	reason  string
}

func newConnectionStatus() *ConnectionStatus {
	return &ConnectionStatus{state: ConnectionInitial, step: HandshakeNone}
}

func (s *ConnectionStatus) State() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *ConnectionStatus) setState(state ConnectionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *ConnectionStatus) Step() HandshakeStep {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}

func (s *ConnectionStatus) setStep(step HandshakeStep) {
	s.mu.Lock()
	s.step = step
	s.mu.Unlock()
}

func (s *ConnectionStatus) Vhost() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vhost
}

func (s *ConnectionStatus) setVhost(v string) {
	s.mu.Lock()
	s.vhost = v
	s.mu.Unlock()
}

// Connected reports whether the connection has completed its handshake
// and not yet begun closing.
func (s *ConnectionStatus) Connected() bool {
	return s.State() == ConnectionConnected
}

// Blocked reports the most recent Connection.Blocked/Unblocked flag;
// the core does not gate frame delivery on it.
func (s *ConnectionStatus) Blocked() (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blocked, s.reason
}

func (s *ConnectionStatus) setBlocked(active bool, reason string) {
	s.mu.Lock()
	s.blocked = active
	s.reason = reason
	s.mu.Unlock()
}
