package amqp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openConnectedChannel drives a full connection handshake plus a
// Channel.Open/OpenOk exchange and returns the live Channel along with
// the scripted server driving both.
func openConnectedChannel(t *testing.T) (*Connection, *Channel, *testServer) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Vhost = "/"
	cfg.SASL = []Authentication{&PlainAuth{Username: "guest", Password: "guest"}}
	c, server := newTestConnection(t, cfg)
	require.NoError(t, driveHandshake(t, c, server, false))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	chErr := make(chan error, 1)
	var ch *Channel
	go func() {
		var err error
		ch, err = c.CreateChannel(ctx)
		chErr <- err
	}()

	open := server.nextMethodFrame()
	_, ok := open.Method.(channelOpen)
	require.True(t, ok, "expected channel.open")
	server.send(open.ChannelId, channelOpenOk{})

	require.NoError(t, <-chErr)
	require.NotNil(t, ch)
	return c, ch, server
}

func TestChannelPublishConfirmMultipleAckOrdering(t *testing.T) {
	_, ch, server := openConnectedChannel(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	confirmErr := make(chan error, 1)
	go func() { confirmErr <- ch.ConfirmSelect(ctx, false) }()
	selectFrame := server.nextMethodFrame()
	_, ok := selectFrame.Method.(confirmSelect)
	require.True(t, ok, "expected confirm.select")
	server.send(selectFrame.ChannelId, confirmSelectOk{})
	require.NoError(t, <-confirmErr)

	publish := func(body []byte) PublisherConfirm {
		confirmCh := make(chan PublisherConfirm, 1)
		errCh := make(chan error, 1)
		go func() {
			confirm, err := ch.BasicPublish(ctx, "ex", "rk", PublishOptions{}, BasicProperties{}, body)
			confirmCh <- confirm
			errCh <- err
		}()
		method := server.nextMethodFrame()
		_, ok := method.Method.(basicPublish)
		require.True(t, ok, "expected basic.publish")
		header := server.next()
		_, ok = header.(*HeaderFrame)
		require.True(t, ok, "expected content header")
		require.NoError(t, <-errCh)
		return <-confirmCh
	}

	c1 := publish(nil)
	c2 := publish(nil)
	c3 := publish(nil)

	server.send(ch.Id(), basicAck{DeliveryTag: 2, Multiple: true})

	conf1, err := c1.Wait(ctx)
	require.NoError(t, err)
	assert.True(t, conf1.Acked)
	conf2, err := c2.Wait(ctx)
	require.NoError(t, err)
	assert.True(t, conf2.Acked)
	assert.False(t, c3.Done(), "multiple ack with tag=2 must not resolve tag 3")

	server.send(ch.Id(), basicAck{DeliveryTag: 3, Multiple: false})
	conf3, err := c3.Wait(ctx)
	require.NoError(t, err)
	assert.True(t, conf3.Acked)
}

func TestChannelConsumeDeliversAssembledContent(t *testing.T) {
	_, ch, server := openConnectedChannel(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	consumeErr := make(chan error, 1)
	var consumer *Consumer
	go func() {
		var err error
		consumer, err = ch.BasicConsume(ctx, "orders", "", ConsumeOptions{})
		consumeErr <- err
	}()

	consume := server.nextMethodFrame()
	_, ok := consume.Method.(basicConsume)
	require.True(t, ok, "expected basic.consume")
	server.send(consume.ChannelId, basicConsumeOk{ConsumerTag: "ctag-1"})
	require.NoError(t, <-consumeErr)
	require.NotNil(t, consumer)

	body := []byte("hello world")
	server.send(ch.Id(), basicDeliver{ConsumerTag: "ctag-1", DeliveryTag: 1, Exchange: "ex", RoutingKey: "rk"})
	server.sendFrame(&HeaderFrame{ChannelId: ch.Id(), ClassId: 60, BodySize: uint64(len(body)), Properties: BasicProperties{ContentType: "text/plain"}})
	server.sendFrame(&BodyFrame{ChannelId: ch.Id(), Body: body})

	select {
	case d := <-consumer.Deliveries():
		assert.Equal(t, uint64(1), d.DeliveryTag)
		assert.Equal(t, "rk", d.RoutingKey)
		assert.Equal(t, body, d.Body)
		assert.Equal(t, "text/plain", d.Properties.ContentType)
	case <-time.After(2 * time.Second):
		t.Fatal("delivery was not assembled and pushed in time")
	}
}

func TestChannelUnexpectedReplyTransitionsToError(t *testing.T) {
	_, ch, server := openConnectedChannel(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	declareErr := make(chan error, 1)
	go func() {
		_, err := ch.QueueDeclare(ctx, "orders", QueueDeclareOptions{})
		declareErr <- err
	}()

	declare := server.nextMethodFrame()
	_, ok := declare.Method.(queueDeclare)
	require.True(t, ok, "expected queue.declare")
	// Reply with the wrong method entirely.
	server.send(declare.ChannelId, channelFlowOk{Active: true})

	err := <-declareErr
	require.Error(t, err)
	var ur *UnexpectedReply
	require.ErrorAs(t, err, &ur)
	assert.Equal(t, "queue.declare-ok", ur.Expected)

	require.Eventually(t, func() bool {
		return ch.Status().State() == ChannelError
	}, time.Second, 5*time.Millisecond, "channel must transition to Error after an unexpected reply")
}
