package amqp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFutureResolveOnce(t *testing.T) {
	fut, resolver := NewFuture[int]()
	resolver.Resolve(42)
	resolver.Resolve(43) // second call is a no-op

	val, err := fut.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, val)
	assert.True(t, fut.Done())
}

func TestFutureRejectOnce(t *testing.T) {
	fut, resolver := NewFuture[string]()
	boom := &ProtocolError{ReplyCode: 404, ReplyText: "NOT-FOUND"}
	resolver.Reject(boom)
	resolver.Resolve("never seen") // no-op, future already settled

	_, err := fut.Wait(context.Background())
	assert.Equal(t, boom, err)
}

func TestFutureWaitRespectsContextCancellation(t *testing.T) {
	fut, _ := NewFuture[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := fut.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, fut.Done())
}
