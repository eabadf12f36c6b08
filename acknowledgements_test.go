package amqp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcknowledgementsSingleAck(t *testing.T) {
	a := NewAcknowledgements(NewReturnedMessages())
	c1 := a.Register(1)
	c2 := a.Register(2)

	require.NoError(t, a.Ack(1, false))

	conf, err := c1.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, conf.Acked)
	assert.False(t, c2.Done(), "delivery tag 2 must remain pending after acking only tag 1")
}

func TestAcknowledgementsMultipleWithExplicitTag(t *testing.T) {
	a := NewAcknowledgements(NewReturnedMessages())
	c1 := a.Register(1)
	c2 := a.Register(2)
	c3 := a.Register(3)

	require.NoError(t, a.Ack(2, true))

	_, err := c1.Wait(context.Background())
	require.NoError(t, err)
	_, err = c2.Wait(context.Background())
	require.NoError(t, err)
	assert.False(t, c3.Done(), "multiple ack with tag=2 must not resolve tag 3")
}

func TestAcknowledgementsMultipleWithZeroTagDrainsEverything(t *testing.T) {
	a := NewAcknowledgements(NewReturnedMessages())
	c1 := a.Register(1)
	c2 := a.Register(5)

	require.NoError(t, a.Nack(0, true, true))

	conf1, err := c1.Wait(context.Background())
	require.NoError(t, err)
	assert.False(t, conf1.Acked)
	conf2, err := c2.Wait(context.Background())
	require.NoError(t, err)
	assert.False(t, conf2.Acked)
}

func TestAcknowledgementsSingleAckUnknownTagIsPreconditionFailed(t *testing.T) {
	a := NewAcknowledgements(NewReturnedMessages())
	err := a.Ack(99, false)
	var pe *ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, uint16(406), pe.ReplyCode)
}

func TestAcknowledgementsOnChannelErrorRejectsAllPending(t *testing.T) {
	a := NewAcknowledgements(NewReturnedMessages())
	c1 := a.Register(1)

	boom := &InvalidChannelState{ChannelId: 3}
	a.OnChannelError(boom)

	_, err := c1.Wait(context.Background())
	assert.Equal(t, boom, err)
}

func TestAcknowledgementsAttachesReturnsSinceLastDrain(t *testing.T) {
	returns := NewReturnedMessages()
	a := NewAcknowledgements(returns)
	c1 := a.Register(1)

	returns.Begin(Return{ReplyCode: 312, ReplyText: "NO-ROUTE"})
	returns.ApplyBody(nil, true)

	require.NoError(t, a.Ack(1, false))
	conf, err := c1.Wait(context.Background())
	require.NoError(t, err)
	require.Len(t, conf.Returns, 1)
	assert.Equal(t, "NO-ROUTE", conf.Returns[0].ReplyText)
}
