package amqp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueuesConsumerDeliveryAssemblyHappyPath(t *testing.T) {
	q := NewQueues()
	c := newConsumer("ctag-1", ConsumeOptions{})
	q.RegisterConsumer("orders", "ctag-1", c)

	queue, ok := q.StartConsumerDelivery("ctag-1", Delivery{DeliveryTag: 1, ConsumerTag: "ctag-1"})
	require.True(t, ok)
	assert.Equal(t, "orders", queue)

	target := contentTarget{consumerTag: "ctag-1", hasConsumer: true}
	q.ApplyHeader(target, 6, BasicProperties{ContentType: "text/plain"})

	_, _, _, done := q.ApplyBody(target, []byte("hel"), false)
	assert.False(t, done)

	delivery, consumer, getResolver, done := q.ApplyBody(target, []byte("lo!"), true)
	require.True(t, done)
	assert.Nil(t, getResolver)
	assert.Same(t, c, consumer)
	assert.Equal(t, []byte("hello!"), delivery.Body)
	assert.Equal(t, "text/plain", delivery.Properties.ContentType)
}

func TestQueuesBasicGetOkAssemblesDelivery(t *testing.T) {
	q := NewQueues()
	fut, resolver := NewFuture[*Delivery]()

	q.StartBasicGetDelivery("orders", Delivery{DeliveryTag: 7}, resolver)
	target := contentTarget{hasQueue: true, queue: "orders"}
	q.ApplyHeader(target, 3, BasicProperties{})
	delivery, consumer, getResolver, done := q.ApplyBody(target, []byte("abc"), true)
	require.True(t, done)
	require.NotNil(t, getResolver)
	assert.Nil(t, consumer)
	getResolver.Resolve(&delivery)

	got, err := fut.Wait(context.Background())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, uint64(7), got.DeliveryTag)
	assert.Equal(t, []byte("abc"), got.Body)
}

func TestQueuesBasicGetEmptyResolvesNil(t *testing.T) {
	q := NewQueues()
	fut, resolver := NewFuture[*Delivery]()
	q.StartBasicGetDelivery("orders", Delivery{}, resolver)

	q.ResolveBasicGetEmpty()

	got, err := fut.Wait(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestQueuesDropPrefetchedMessagesClearsUnreadDeliveries(t *testing.T) {
	q := NewQueues()
	c := newConsumer("ctag-1", ConsumeOptions{})
	q.RegisterConsumer("orders", "ctag-1", c)
	c.push(Delivery{DeliveryTag: 1})
	c.push(Delivery{DeliveryTag: 2})

	q.DropPrefetchedMessages()

	select {
	case <-c.Deliveries():
		t.Fatal("ready queue should have been drained")
	default:
	}
}

func TestQueuesCancelConsumersClosesDeliveriesAfterDraining(t *testing.T) {
	q := NewQueues()
	c := newConsumer("ctag-1", ConsumeOptions{})
	q.RegisterConsumer("orders", "ctag-1", c)
	c.push(Delivery{DeliveryTag: 1})

	q.CancelConsumers()

	d, ok := <-c.Deliveries()
	require.True(t, ok, "already-queued delivery must still be readable after cancel")
	assert.Equal(t, uint64(1), d.DeliveryTag)

	_, ok = <-c.Deliveries()
	assert.False(t, ok, "channel must be closed once drained")
}

func TestQueuesDeregisterConsumerDropsPartialDelivery(t *testing.T) {
	q := NewQueues()
	c := newConsumer("ctag-1", ConsumeOptions{})
	q.RegisterConsumer("orders", "ctag-1", c)
	q.StartConsumerDelivery("ctag-1", Delivery{DeliveryTag: 1})

	got, ok := q.DeregisterConsumer("ctag-1")
	require.True(t, ok)
	assert.Same(t, c, got)

	target := contentTarget{consumerTag: "ctag-1", hasConsumer: true}
	_, _, _, done := q.ApplyBody(target, []byte("x"), true)
	assert.False(t, done, "a deregistered consumer's partial delivery must not resurface")
}
