package amqp

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Logger is the structured diagnostics sink threaded through the
// Connection and every Channel. It defaults to a no-op logger; callers
// that want visibility into state transitions and protocol errors pass
// a real *zap.Logger via NewLogger.
type Logger struct {
	z *zap.Logger
}

// NewLogger wraps z, falling back to zap.NewNop() when z is nil.
func NewLogger(z *zap.Logger) Logger {
	if z == nil {
		z = zap.NewNop()
	}
	return Logger{z: z}
}

func (l Logger) base() *zap.Logger {
	if l.z == nil {
		return zap.NewNop()
	}
	return l.z
}

func (l Logger) Debug(msg string, fields ...zap.Field) { l.base().Debug(msg, fields...) }
func (l Logger) Info(msg string, fields ...zap.Field)  { l.base().Info(msg, fields...) }
func (l Logger) Warn(msg string, fields ...zap.Field)  { l.base().Warn(msg, fields...) }
func (l Logger) Error(msg string, fields ...zap.Field) { l.base().Error(msg, fields...) }

// With returns a Logger that always includes the given fields, used to
// attach a connection/channel correlation id to every subsequent line.
func (l Logger) With(fields ...zap.Field) Logger {
	return Logger{z: l.base().With(fields...)}
}

// newCorrelationID mints a per-Connection/Channel identifier used only
// for cross-process log correlation, never for protocol semantics.
func newCorrelationID() string {
	return uuid.NewString()
}
