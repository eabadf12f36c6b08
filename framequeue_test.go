package amqp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameQueuePopReturnsBatchesInOrder(t *testing.T) {
	q := NewFrameQueue()
	_, r1 := NewFuture[struct{}]()
	_, r2 := NewFuture[struct{}]()

	q.PushFrame(1, &MethodFrame{ChannelId: 1, Method: channelOpen{}}, r1, nil)
	q.PushFrame(2, &MethodFrame{ChannelId: 2, Method: channelOpen{}}, r2, nil)

	ch, _, _, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, uint16(1), ch)

	ch, _, _, ok = q.Pop()
	require.True(t, ok)
	assert.Equal(t, uint16(2), ch)
}

func TestFrameQueueNextExpectedReplyIsFIFOPerChannel(t *testing.T) {
	q := NewFrameQueue()
	var order []string
	q.expected[1] = append(q.expected[1], &ExpectedReply{Describe: "first", Resolve: func(Method) error { order = append(order, "first"); return nil }})
	q.expected[1] = append(q.expected[1], &ExpectedReply{Describe: "second", Resolve: func(Method) error { order = append(order, "second"); return nil }})

	first, ok := q.NextExpectedReply(1)
	require.True(t, ok)
	require.NoError(t, first.Resolve(channelOpenOk{}))

	second, ok := q.NextExpectedReply(1)
	require.True(t, ok)
	require.NoError(t, second.Resolve(channelOpenOk{}))

	_, ok = q.NextExpectedReply(1)
	assert.False(t, ok)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestFrameQueueDropChannelOnlyAffectsThatChannel(t *testing.T) {
	q := NewFrameQueue()
	_, sentA := NewFuture[struct{}]()
	_, sentB := NewFuture[struct{}]()
	q.PushFrame(1, &MethodFrame{ChannelId: 1, Method: channelOpen{}}, sentA, nil)
	q.PushFrame(2, &MethodFrame{ChannelId: 2, Method: channelOpen{}}, sentB, nil)

	boom := &InvalidChannelState{ChannelId: 1}
	q.DropChannel(1, boom)

	ch, _, _, ok := q.Pop()
	require.True(t, ok, "channel 2's batch must survive dropping channel 1")
	assert.Equal(t, uint16(2), ch)
}

func TestFrameQueueDropPendingRejectsOutboundAndExpected(t *testing.T) {
	q := NewFrameQueue()
	fut, resolver := NewFuture[struct{}]()
	sentFut, sentResolver := NewFuture[struct{}]()
	rejected := false
	expected := &ExpectedReply{Describe: "queue.declare-ok", Reject: func(err error) { rejected = true; resolver.Reject(err) }}
	q.Push(1, []AMQPFrame{&MethodFrame{ChannelId: 1, Method: queueDeclare{Queue: "q"}}}, sentResolver, expected)

	boom := ErrConnectionClosed
	q.DropPending(boom)

	_, err := fut.Wait(context.Background())
	assert.True(t, rejected)
	assert.Equal(t, boom, err)

	_, sentErr := sentFut.Wait(context.Background())
	assert.Equal(t, boom, sentErr, "DropPending must reject the buffered outbound batch")

	_, ok := q.NextExpectedReply(1)
	assert.False(t, ok, "DropPending must clear the expected-reply FIFO too")
}
