package amqp

import "context"

// Future is the caller-facing half of a promise/resolver pair. It resolves exactly once,
// either with a value or with an error.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Resolver is the engine-facing half of a promise/resolver pair. Only
// the first call to Resolve or Reject has an effect.
type Resolver[T any] struct {
	f *Future[T]
}

// NewFuture creates a linked Future/Resolver pair.
func NewFuture[T any]() (*Future[T], Resolver[T]) {
	f := &Future[T]{done: make(chan struct{})}
	return f, Resolver[T]{f: f}
}

// Resolve fulfills the future with val. Safe to call at most once;
// subsequent calls are no-ops.
func (r Resolver[T]) Resolve(val T) {
	select {
	case <-r.f.done:
		return
	default:
	}
	r.f.val = val
	close(r.f.done)
}

// Reject fails the future with err. Safe to call at most once;
// subsequent calls are no-ops.
func (r Resolver[T]) Reject(err error) {
	select {
	case <-r.f.done:
		return
	default:
	}
	r.f.err = err
	close(r.f.done)
}

// Wait blocks the caller until the future resolves, the context is
// cancelled, or the context's deadline elapses. A cancelled wait never
// cancels the underlying protocol request; the
// entry backing this future remains pending and is discarded on
// eventual resolution.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done reports whether the future has already resolved, without
// blocking.
func (f *Future[T]) Done() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}
