package amqp

import (
	"context"

	"go.uber.org/zap"
)

// channelHost is the narrow handle a Channel uses to reach back into
// its owning Connection: sending a connection-wide hard error, or
// releasing the channel's id and map entry on close. It replaces a
// direct Channel->Connection pointer with the same "relation, not
// ownership" InternalRPC-handle idea the original implementation uses
// to avoid a retain cycle; in Go the cycle itself is harmless to
// the garbage collector, but routing through a narrow interface keeps
// every mutation concentrated at the Connection's driver task.
type channelHost interface {
	reportHardError(err *ProtocolError)
	removeChannel(id uint16, err error)
}

// Channel is the per-channel protocol engine: method dispatch, state
// transitions and RPC correlation.
type Channel struct {
	id            uint16
	status        *ChannelStatus
	connStatus    *ConnectionStatus
	config        *Config
	frames        *FrameQueue
	requestIds    *IdSequence
	deliveryTags  *IdSequence
	acks          *Acknowledgements
	queues        *Queues
	returns       *ReturnedMessages
	host          channelHost
	executor      Executor
	logger        Logger
	correlationID string
}

func newChannel(id uint16, config *Config, connStatus *ConnectionStatus, frames *FrameQueue, host channelHost, executor Executor, logger Logger) *Channel {
	returns := NewReturnedMessages()
	ch := &Channel{
		id:            id,
		status:        newChannelStatus(),
		connStatus:    connStatus,
		config:        config,
		frames:        frames,
		requestIds:    NewIdSequence(true),
		deliveryTags:  NewIdSequence(false),
		acks:          NewAcknowledgements(returns),
		queues:        NewQueues(),
		returns:       returns,
		host:          host,
		executor:      executor,
		correlationID: newCorrelationID(),
	}
	ch.logger = logger.With(zap.Uint16("channel_id", id), zap.String("channel_correlation_id", ch.correlationID))
	return ch
}

// Id returns the channel's 16-bit identifier.
func (ch *Channel) Id() uint16 { return ch.id }

// Status returns a read-only snapshot handle of the channel's state.
func (ch *Channel) Status() *ChannelStatus { return ch.status }

// CorrelationID returns the channel's log-correlation identifier.
func (ch *Channel) CorrelationID() string { return ch.correlationID }

// --- generic RPC plumbing ---

// rpc sends method on this channel, requiring the channel be in
// requiredState (InvalidChannelState otherwise), and awaits the single
// reply match selects from the inbound Method.
func rpc[T any](ctx context.Context, ch *Channel, requiredState ChannelState, method Method, describe string, match func(Method) (T, bool)) (T, error) {
	var zero T
	if ch.status.State() != requiredState {
		return zero, &InvalidChannelState{ChannelId: ch.id, State: ch.status.State()}
	}
	fut, resolver := NewFuture[T]()
	_, sentResolver := NewFuture[struct{}]()
	expected := &ExpectedReply{
		RequestId: ch.requestIds.Next(),
		Describe:  describe,
		Resolve: func(m Method) error {
			val, ok := match(m)
			if !ok {
				err := &UnexpectedReply{ChannelId: ch.id, Expected: describe, Got: m.MethodName()}
				resolver.Reject(err)
				ch.setError(err)
				return err
			}
			resolver.Resolve(val)
			return nil
		},
		Reject: func(err error) { resolver.Reject(err) },
	}
	ch.frames.PushFrame(ch.id, &MethodFrame{ChannelId: ch.id, Method: method}, sentResolver, expected)
	return fut.Wait(ctx)
}

// fireAndForget sends method with no expected reply (basic_publish,
// basic_ack/nack/reject, basic_recover_async).
func (ch *Channel) fireAndForget(method Method) {
	_, sentResolver := NewFuture[struct{}]()
	ch.frames.PushFrame(ch.id, &MethodFrame{ChannelId: ch.id, Method: method}, sentResolver, nil)
}

// --- channel.open / channel.close / channel.flow ---

// ChannelOpen sends Channel.Open and awaits Channel.OpenOk.
func (ch *Channel) ChannelOpen(ctx context.Context) error {
	_, err := rpc(ctx, ch, ChannelInitial, channelOpen{}, "channel.open-ok", func(m Method) (struct{}, bool) {
		if _, ok := m.(channelOpenOk); ok {
			ch.status.setState(ChannelConnected)
			return struct{}{}, true
		}
		return struct{}{}, false
	})
	return err
}

// ChannelClose sends Channel.Close and awaits Channel.CloseOk.
func (ch *Channel) ChannelClose(ctx context.Context, replyCode uint16, replyText string) error {
	_, err := rpc(ctx, ch, ChannelConnected, channelClose{ReplyCode: replyCode, ReplyText: replyText}, "channel.close-ok", func(m Method) (struct{}, bool) {
		if _, ok := m.(channelCloseOk); ok {
			return struct{}{}, true
		}
		return struct{}{}, false
	})
	ch.setClosed(NewProtocolError(replyCode, replyText, 20, 40))
	return err
}

// ChannelFlow sends Channel.Flow{active} and awaits Channel.FlowOk.
func (ch *Channel) ChannelFlow(ctx context.Context, active bool) (bool, error) {
	return rpc(ctx, ch, ChannelConnected, channelFlow{Active: active}, "channel.flow-ok", func(m Method) (bool, bool) {
		if f, ok := m.(channelFlowOk); ok {
			ch.status.setSendFlow(f.Active)
			return f.Active, true
		}
		return false, false
	})
}

// --- exchange.* ---

func (ch *Channel) ExchangeDeclare(ctx context.Context, name string, kind ExchangeKind, opts ExchangeDeclareOptions) error {
	method := exchangeDeclare{
		Exchange: name, Kind: string(kind), Passive: opts.Passive, Durable: opts.Durable,
		AutoDelete: opts.AutoDelete, Internal: opts.Internal, NoWait: opts.NoWait, Arguments: opts.Args,
	}
	_, err := rpc(ctx, ch, ChannelConnected, method, "exchange.declare-ok", func(m Method) (struct{}, bool) {
		_, ok := m.(exchangeDeclareOk)
		return struct{}{}, ok
	})
	return err
}

func (ch *Channel) ExchangeDelete(ctx context.Context, name string, ifUnused, noWait bool) error {
	_, err := rpc(ctx, ch, ChannelConnected, exchangeDelete{Exchange: name, IfUnused: ifUnused, NoWait: noWait}, "exchange.delete-ok", func(m Method) (struct{}, bool) {
		_, ok := m.(exchangeDeleteOk)
		return struct{}{}, ok
	})
	return err
}

func (ch *Channel) ExchangeBind(ctx context.Context, destination, source, routingKey string, args Table) error {
	_, err := rpc(ctx, ch, ChannelConnected, exchangeBind{Destination: destination, Source: source, RoutingKey: routingKey, Arguments: args}, "exchange.bind-ok", func(m Method) (struct{}, bool) {
		_, ok := m.(exchangeBindOk)
		return struct{}{}, ok
	})
	return err
}

func (ch *Channel) ExchangeUnbind(ctx context.Context, destination, source, routingKey string, args Table) error {
	_, err := rpc(ctx, ch, ChannelConnected, exchangeUnbind{Destination: destination, Source: source, RoutingKey: routingKey, Arguments: args}, "exchange.unbind-ok", func(m Method) (struct{}, bool) {
		_, ok := m.(exchangeUnbindOk)
		return struct{}{}, ok
	})
	return err
}

// --- queue.* ---

func (ch *Channel) QueueDeclare(ctx context.Context, name string, opts QueueDeclareOptions) (Queue, error) {
	method := queueDeclare{
		Queue: name, Passive: opts.Passive, Durable: opts.Durable, Exclusive: opts.Exclusive,
		AutoDelete: opts.AutoDelete, NoWait: opts.NoWait, Arguments: opts.Args,
	}
	return rpc(ctx, ch, ChannelConnected, method, "queue.declare-ok", func(m Method) (Queue, bool) {
		ok, matched := m.(queueDeclareOk)
		if !matched {
			return Queue{}, false
		}
		return ch.queues.Register(ok.Queue, ok.MessageCount, ok.ConsumerCount), true
	})
}

func (ch *Channel) QueueBind(ctx context.Context, queue, exchange, routingKey string, noWait bool, args Table) error {
	_, err := rpc(ctx, ch, ChannelConnected, queueBind{Queue: queue, Exchange: exchange, RoutingKey: routingKey, NoWait: noWait, Arguments: args}, "queue.bind-ok", func(m Method) (struct{}, bool) {
		_, ok := m.(queueBindOk)
		return struct{}{}, ok
	})
	return err
}

func (ch *Channel) QueueUnbind(ctx context.Context, queue, exchange, routingKey string, args Table) error {
	_, err := rpc(ctx, ch, ChannelConnected, queueUnbind{Queue: queue, Exchange: exchange, RoutingKey: routingKey, Arguments: args}, "queue.unbind-ok", func(m Method) (struct{}, bool) {
		_, ok := m.(queueUnbindOk)
		return struct{}{}, ok
	})
	return err
}

func (ch *Channel) QueuePurge(ctx context.Context, queue string, noWait bool) (uint32, error) {
	return rpc(ctx, ch, ChannelConnected, queuePurge{Queue: queue, NoWait: noWait}, "queue.purge-ok", func(m Method) (uint32, bool) {
		ok, matched := m.(queuePurgeOk)
		if !matched {
			return 0, false
		}
		return ok.MessageCount, true
	})
}

func (ch *Channel) QueueDelete(ctx context.Context, queue string, ifUnused, ifEmpty, noWait bool) (uint32, error) {
	n, err := rpc(ctx, ch, ChannelConnected, queueDelete{Queue: queue, IfUnused: ifUnused, IfEmpty: ifEmpty, NoWait: noWait}, "queue.delete-ok", func(m Method) (uint32, bool) {
		ok, matched := m.(queueDeleteOk)
		if !matched {
			return 0, false
		}
		ch.queues.Deregister(queue)
		return ok.MessageCount, true
	})
	return n, err
}

// --- basic.* ---

func (ch *Channel) BasicQos(ctx context.Context, prefetchSize uint32, prefetchCount uint16, global bool) error {
	_, err := rpc(ctx, ch, ChannelConnected, basicQos{PrefetchSize: prefetchSize, PrefetchCount: prefetchCount, Global: global}, "basic.qos-ok", func(m Method) (struct{}, bool) {
		if _, ok := m.(basicQosOk); ok {
			ch.status.setPrefetch(prefetchSize, prefetchCount, global)
			return struct{}{}, true
		}
		return struct{}{}, false
	})
	return err
}

func (ch *Channel) BasicConsume(ctx context.Context, queue, consumerTag string, opts ConsumeOptions) (*Consumer, error) {
	method := basicConsume{
		Queue: queue, ConsumerTag: consumerTag, NoLocal: opts.NoLocal, NoAck: opts.NoAck,
		Exclusive: opts.Exclusive, NoWait: opts.NoWait, Arguments: opts.Args,
	}
	return rpc(ctx, ch, ChannelConnected, method, "basic.consume-ok", func(m Method) (*Consumer, bool) {
		ok, matched := m.(basicConsumeOk)
		if !matched {
			return nil, false
		}
		c := newConsumer(ok.ConsumerTag, opts)
		ch.queues.RegisterConsumer(queue, ok.ConsumerTag, c)
		return c, true
	})
}

func (ch *Channel) BasicCancel(ctx context.Context, consumerTag string, noWait bool) error {
	_, err := rpc(ctx, ch, ChannelConnected, basicCancel{ConsumerTag: consumerTag, NoWait: noWait}, "basic.cancel-ok", func(m Method) (struct{}, bool) {
		ok, matched := m.(basicCancelOk)
		if !matched {
			return struct{}{}, false
		}
		if c, found := ch.queues.DeregisterConsumer(ok.ConsumerTag); found {
			c.cancel()
		}
		return struct{}{}, true
	})
	return err
}

// BasicPublish publishes a message and, when confirm mode is active,
// returns a PublisherConfirm the caller may await; otherwise it returns
// nil.
func (ch *Channel) BasicPublish(ctx context.Context, exchange, routingKey string, opts PublishOptions, props BasicProperties, body []byte) (PublisherConfirm, error) {
	if !ch.status.Connected() {
		return nil, &InvalidChannelState{ChannelId: ch.id, State: ch.status.State()}
	}
	frames := ch.buildContentFrames(basicPublish{Exchange: exchange, RoutingKey: routingKey, Mandatory: opts.Mandatory, Immediate: opts.Immediate}, props, body)

	var confirm PublisherConfirm
	confirmMode := ch.status.ConfirmMode()
	if confirmMode {
		tag := ch.deliveryTags.Next()
		confirm = ch.acks.Register(tag)
	}

	sentFut, sentResolver := NewFuture[struct{}]()
	ch.frames.Push(ch.id, frames, sentResolver, nil)
	if _, err := sentFut.Wait(ctx); err != nil {
		return nil, err
	}
	return confirm, nil
}

// buildContentFrames splits a content-bearing send into Method, Header
// and Body frames, chunking the body to frame_max-8 bytes.
// All three phases are returned as one slice so FrameQueue.Push treats
// them as a single atomic batch.
func (ch *Channel) buildContentFrames(method Method, props BasicProperties, body []byte) []AMQPFrame {
	chunk := maxBodyChunk(ch.config.FrameSize)
	if chunk <= 0 {
		chunk = len(body)
	}
	capacity := 2
	if chunk > 0 {
		capacity += len(body)/chunk + 1
	}
	frames := make([]AMQPFrame, 0, capacity)
	frames = append(frames, &MethodFrame{ChannelId: ch.id, Method: method})
	frames = append(frames, &HeaderFrame{ChannelId: ch.id, ClassId: 60, BodySize: uint64(len(body)), Properties: props})
	// A zero-length body completes on the header alone; no Body frame
	// follows.
	for i := 0; i < len(body); i += chunk {
		end := i + chunk
		if end > len(body) {
			end = len(body)
		}
		frames = append(frames, &BodyFrame{ChannelId: ch.id, Body: body[i:end]})
	}
	return frames
}

// BasicGet issues a one-shot Basic.Get; it returns (nil, nil) on
// Basic.GetEmpty.
func (ch *Channel) BasicGet(ctx context.Context, queue string, noAck bool) (*Delivery, error) {
	if !ch.status.Connected() {
		return nil, &InvalidChannelState{ChannelId: ch.id, State: ch.status.State()}
	}
	fut, resolver := NewFuture[*Delivery]()
	_, sentResolver := NewFuture[struct{}]()
	expected := &ExpectedReply{
		RequestId: ch.requestIds.Next(),
		Describe:  "basic.get-ok/basic.get-empty",
		Resolve: func(m Method) error {
			switch v := m.(type) {
			case basicGetOk:
				d := Delivery{
					DeliveryTag:  v.DeliveryTag,
					Exchange:     v.Exchange,
					RoutingKey:   v.RoutingKey,
					Redelivered:  v.Redelivered,
					MessageCount: v.MessageCount,
					acker:        ch,
				}
				ch.status.beginReceivingMethod(queue, "", true, false, ch.status.ConfirmMode())
				ch.queues.StartBasicGetDelivery(queue, d, resolver)
				return nil
			case basicGetEmpty:
				resolver.Resolve(nil)
				ch.queues.ResolveBasicGetEmpty()
				return nil
			default:
				err := &UnexpectedReply{ChannelId: ch.id, Expected: "basic.get-ok/basic.get-empty", Got: m.MethodName()}
				resolver.Reject(err)
				ch.setError(err)
				return err
			}
		},
		Reject: func(err error) { resolver.Reject(err) },
	}
	ch.frames.PushFrame(ch.id, &MethodFrame{ChannelId: ch.id, Method: basicGet{Queue: queue, NoAck: noAck}}, sentResolver, expected)
	return fut.Wait(ctx)
}

// --- basic.ack/nack/reject/recover (fire-and-forget) ---

func (ch *Channel) BasicAck(tag uint64, multiple bool) error {
	ch.fireAndForget(basicAck{DeliveryTag: tag, Multiple: multiple})
	return nil
}

func (ch *Channel) BasicNack(tag uint64, multiple, requeue bool) error {
	ch.fireAndForget(basicNack{DeliveryTag: tag, Multiple: multiple, Requeue: requeue})
	return nil
}

func (ch *Channel) BasicReject(tag uint64, requeue bool) error {
	ch.fireAndForget(basicReject{DeliveryTag: tag, Requeue: requeue})
	return nil
}

// Delivery.Ack/Nack/Reject route back through these so a Delivery value
// can acknowledge itself without holding a full *Channel.
func (ch *Channel) basicAckDelivery(tag uint64, multiple bool) error   { return ch.BasicAck(tag, multiple) }
func (ch *Channel) basicNackDelivery(tag uint64, multiple, requeue bool) error {
	return ch.BasicNack(tag, multiple, requeue)
}
func (ch *Channel) basicRejectDelivery(tag uint64, requeue bool) error { return ch.BasicReject(tag, requeue) }

func (ch *Channel) BasicRecoverAsync(requeue bool) error {
	ch.fireAndForget(basicRecoverAsync{Requeue: requeue})
	ch.queues.DropPrefetchedMessages()
	return nil
}

func (ch *Channel) BasicRecover(ctx context.Context, requeue bool) error {
	_, err := rpc(ctx, ch, ChannelConnected, basicRecover{Requeue: requeue}, "basic.recover-ok", func(m Method) (struct{}, bool) {
		_, ok := m.(basicRecoverOk)
		return struct{}{}, ok
	})
	return err
}

// ConfirmSelect enables publisher confirms on this channel.
func (ch *Channel) ConfirmSelect(ctx context.Context, noWait bool) error {
	_, err := rpc(ctx, ch, ChannelConnected, confirmSelect{NoWait: noWait}, "confirm.select-ok", func(m Method) (struct{}, bool) {
		if _, ok := m.(confirmSelectOk); ok {
			ch.status.setConfirmMode(true)
			return struct{}{}, true
		}
		return struct{}{}, false
	})
	return err
}

// WaitForConfirms blocks until the most recently registered publisher
// confirm on this channel has resolved (returning at once if none is
// pending), then returns the Returns collected since. Earlier confirms
// that are still pending at that point are not waited for.
func (ch *Channel) WaitForConfirms(ctx context.Context) ([]Return, error) {
	return ch.acks.WaitForConfirms(ctx)
}

// --- inbound frame dispatch (driven by the Connection engine's driver
// task; see "All state mutation ... happens on the Reader task") ---

// HandleFrame routes a decoded frame addressed to this channel.
func (ch *Channel) HandleFrame(f AMQPFrame) error {
	switch v := f.(type) {
	case *MethodFrame:
		return ch.dispatchMethod(v.Method)
	case *HeaderFrame:
		return ch.onContentHeader(v)
	case *BodyFrame:
		return ch.onContentBody(v)
	default:
		return nil
	}
}

// dispatchMethod applies an inbound method: either one of the
// asynchronous, server-originated methods, or -- for everything
// else -- the next entry in this channel's expected-reply FIFO.
func (ch *Channel) dispatchMethod(m Method) error {
	switch v := m.(type) {
	case basicDeliver:
		return ch.onBasicDeliver(v)
	case basicReturn:
		return ch.onBasicReturn(v)
	case basicAck:
		if v.DeliveryTag == 0 && v.Multiple {
			ch.queues.DropPrefetchedMessages()
		}
		if err := ch.acks.Ack(v.DeliveryTag, v.Multiple); err != nil {
			ch.setError(err)
			return err
		}
		return nil
	case basicNack:
		if v.DeliveryTag == 0 && v.Multiple {
			ch.queues.DropPrefetchedMessages()
		}
		if err := ch.acks.Nack(v.DeliveryTag, v.Multiple, v.Requeue); err != nil {
			ch.setError(err)
			return err
		}
		return nil
	case channelFlow:
		ch.status.setSendFlow(v.Active)
		ch.fireAndForget(channelFlowOk{Active: v.Active})
		return nil
	case basicCancel:
		return ch.onBasicCancel(v)
	case channelClose:
		return ch.onChannelClose(v)
	default:
		expected, ok := ch.frames.NextExpectedReply(ch.id)
		if !ok {
			err := &UnexpectedReply{ChannelId: ch.id, Expected: "<none pending>", Got: m.MethodName()}
			ch.setError(err)
			return err
		}
		return expected.Resolve(m)
	}
}

func (ch *Channel) onBasicDeliver(v basicDeliver) error {
	d := Delivery{
		DeliveryTag: v.DeliveryTag,
		ConsumerTag: v.ConsumerTag,
		Exchange:    v.Exchange,
		RoutingKey:  v.RoutingKey,
		Redelivered: v.Redelivered,
		acker:       ch,
	}
	queue, _ := ch.queues.StartConsumerDelivery(v.ConsumerTag, d)
	ch.status.beginReceivingMethod(queue, v.ConsumerTag, queue != "", true, ch.status.ConfirmMode())
	return nil
}

func (ch *Channel) onBasicReturn(v basicReturn) error {
	ch.returns.Begin(Return{ReplyCode: v.ReplyCode, ReplyText: v.ReplyText, Exchange: v.Exchange, RoutingKey: v.RoutingKey})
	ch.status.beginReceivingMethod("", "", false, false, ch.status.ConfirmMode())
	return nil
}

func (ch *Channel) onBasicCancel(v basicCancel) error {
	if c, ok := ch.queues.DeregisterConsumer(v.ConsumerTag); ok {
		c.cancel()
	}
	if v.NoWait {
		return nil
	}
	ch.fireAndForget(basicCancelOk{ConsumerTag: v.ConsumerTag})
	return nil
}

func (ch *Channel) onChannelClose(v channelClose) error {
	err := NewProtocolError(v.ReplyCode, v.ReplyText, v.ClassId, v.MethodId)
	ch.status.setState(ChannelClosing)
	ch.fireAndForget(channelCloseOk{})
	ch.setClosed(err)
	return err
}

func (ch *Channel) onContentHeader(f *HeaderFrame) error {
	cursor, complete, err := ch.status.onHeader(f.BodySize, f.Properties)
	if err != nil {
		return ch.hardError(err)
	}
	target := contentTarget{queue: cursor.queue, consumerTag: cursor.consumerTag, hasQueue: cursor.hasQueue, hasConsumer: cursor.hasConsumer}
	if target.hasConsumer || target.hasQueue {
		ch.queues.ApplyHeader(target, f.BodySize, f.Properties)
	} else {
		ch.returns.ApplyHeader(f.Properties)
	}
	if complete {
		return ch.routeBody(target, nil, true)
	}
	return nil
}

func (ch *Channel) onContentBody(f *BodyFrame) error {
	cursor, complete, err := ch.status.onBody(uint64(len(f.Body)))
	if err != nil {
		return ch.hardError(err)
	}
	target := contentTarget{queue: cursor.queue, consumerTag: cursor.consumerTag, hasQueue: cursor.hasQueue, hasConsumer: cursor.hasConsumer}
	return ch.routeBody(target, f.Body, complete)
}

func (ch *Channel) routeBody(target contentTarget, chunk []byte, complete bool) error {
	if target.hasConsumer || target.hasQueue {
		delivery, consumer, getResolver, done := ch.queues.ApplyBody(target, chunk, complete)
		if !done {
			return nil
		}
		delivery.acker = ch
		switch {
		case consumer != nil:
			consumer.push(delivery)
		case getResolver != nil:
			d := delivery
			getResolver.Resolve(&d)
		}
		return nil
	}
	ch.returns.ApplyBody(chunk, complete)
	return nil
}

// hardError reports a local protocol violation (framing, unexpected
// content) that forces a connection-wide close. onHeader and
// onBody only ever construct *ProtocolError values, so the assertion
// below cannot fail in practice.
func (ch *Channel) hardError(err error) error {
	if pe, ok := err.(*ProtocolError); ok {
		ch.host.reportHardError(pe)
	}
	return err
}

// setClosed applies the Closed-state side effects.
func (ch *Channel) setClosed(err error) {
	ch.status.setState(ChannelClosed)
	ch.acks.OnChannelError(err)
	ch.queues.CancelConsumers()
	ch.frames.DropChannel(ch.id, err)
	ch.host.removeChannel(ch.id, err)
}

// setError applies the Error-state side effects (matching
// Channel::set_error). A hard *ProtocolError additionally escalates to
// the connection, which closes every channel.
func (ch *Channel) setError(err error) {
	ch.status.setState(ChannelError)
	ch.acks.OnChannelError(err)
	ch.queues.ErrorConsumers(err)
	ch.frames.DropChannel(ch.id, err)
	ch.host.removeChannel(ch.id, err)
	if pe, ok := err.(*ProtocolError); ok && pe.Hard() {
		ch.host.reportHardError(pe)
	}
}
