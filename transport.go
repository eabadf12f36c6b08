package amqp

// Transport is the externally supplied full-duplex byte stream.
// Stream establishment, TLS handshake retry and URI-based dialing are
// the caller's concern; the core only reads and writes bytes and reacts
// to readiness.
type Transport interface {
	// Read behaves like io.Reader but returns ErrWouldBlock instead of
	// blocking when no data is currently available.
	Read(p []byte) (n int, err error)
	// Write behaves like io.Writer but returns ErrWouldBlock instead of
	// blocking when the stream cannot currently accept more bytes.
	Write(p []byte) (n int, err error)
	// Close releases the transport's underlying resources.
	Close() error
}

// ErrWouldBlock is returned by Transport.Read/Write when the operation
// cannot complete without blocking.
var ErrWouldBlock = errWouldBlock{}

type errWouldBlock struct{}

func (errWouldBlock) Error() string { return "amqp: transport operation would block" }

// Executor runs a unit-returning task without imposing a concurrency
// runtime on the core.
type Executor interface {
	Spawn(task func())
}

// GoExecutor is the default Executor, backed by the "go" statement. It
// is the obvious choice for a caller that has no existing worker pool;
// Dial falls back to it when given a nil Executor.
type GoExecutor struct{}

func (GoExecutor) Spawn(task func()) { go task() }
