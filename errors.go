package amqp

import (
	"fmt"

	"github.com/pkg/errors"
)

// hardErrorCodes lists the reply codes that classify a protocol error as
// connection-wide (lapin's AMQPHardError) rather than channel-local
// (AMQPSoftError).
// RabbitMQ's hard-error reply codes are channel-independent: the spec
// requires closing the whole connection when one occurs.
var hardErrorCodes = map[uint16]bool{
	501: true, // FRAME-ERROR
	502: true, // SYNTAX-ERROR
	503: true, // COMMAND-INVALID
	504: true, // CHANNEL-ERROR
	505: true, // UNEXPECTED-FRAME
	506: true, // RESOURCE-ERROR
	530: true, // NOT-ALLOWED
	541: true, // INTERNAL-ERROR
}

// InvalidConnectionState reports a request requiring Connected state
// that was made while the connection was in a different state.
type InvalidConnectionState struct {
	State ConnectionState
}

func (e *InvalidConnectionState) Error() string {
	return fmt.Sprintf("invalid connection state: %s", e.State)
}

// InvalidChannelState is the per-channel counterpart of
// InvalidConnectionState.
type InvalidChannelState struct {
	ChannelId uint16
	State     ChannelState
}

func (e *InvalidChannelState) Error() string {
	return fmt.Sprintf("channel %d: invalid channel state: %s", e.ChannelId, e.State)
}

// UnexpectedReply reports that a reply arrived with no matching pending
// request, or of a different method than the one awaited.
type UnexpectedReply struct {
	ChannelId uint16
	Expected  string
	Got       string
}

func (e *UnexpectedReply) Error() string {
	return fmt.Sprintf("channel %d: expected %s, got %s", e.ChannelId, e.Expected, e.Got)
}

// ProtocolError wraps a server-sent Close/CloseOk reply code, or a
// local protocol violation the engine detected (framing, unexpected
// content) that forces a close.
type ProtocolError struct {
	ReplyCode uint16
	ReplyText string
	ClassId   uint16
	MethodId  uint16
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("AMQP protocol error %d: %s (class=%d method=%d)", e.ReplyCode, e.ReplyText, e.ClassId, e.MethodId)
}

// Hard reports whether this error must close the whole connection
// rather than just the channel it was reported on.
func (e *ProtocolError) Hard() bool {
	return hardErrorCodes[e.ReplyCode]
}

// NewProtocolError builds a ProtocolError from a Connection.Close or
// Channel.Close method's fields.
func NewProtocolError(replyCode uint16, replyText string, classId, methodId uint16) *ProtocolError {
	return &ProtocolError{ReplyCode: replyCode, ReplyText: replyText, ClassId: classId, MethodId: methodId}
}

// IOError wraps a transport failure, preserving a stack trace via
// github.com/pkg/errors for diagnostics.
type IOError struct {
	cause error
}

func (e *IOError) Error() string { return "amqp: i/o error: " + e.cause.Error() }
func (e *IOError) Unwrap() error { return e.cause }

// NewIOError wraps err as an IOError, attaching a stack trace.
func NewIOError(err error) *IOError {
	return &IOError{cause: errors.Wrap(err, "transport failure")}
}

// SerializationError wraps a FrameCodec failure.
type SerializationError struct {
	cause error
}

func (e *SerializationError) Error() string { return "amqp: serialization error: " + e.cause.Error() }
func (e *SerializationError) Unwrap() error { return e.cause }

// NewSerializationError wraps err as a SerializationError, attaching a
// stack trace.
func NewSerializationError(err error) *SerializationError {
	return &SerializationError{cause: errors.Wrap(err, "codec failure")}
}

// ChannelsLimitReached reports that channel_max is exhausted.
type ChannelsLimitReached struct{}

func (e *ChannelsLimitReached) Error() string { return "amqp: channels limit reached" }

// ErrConnectionClosed is returned by operations attempted after the
// connection has fully closed.
var ErrConnectionClosed = &InvalidConnectionState{State: ConnectionClosed}
