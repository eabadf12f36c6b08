package amqp

import "sync"

// defaultConsumerBuffer bounds how many completed deliveries a
// Consumer holds; once it is full, push drops the oldest unread
// delivery. The bound is fixed: BasicConsume has no option to change it.
const defaultConsumerBuffer = 256

// Consumer is a per-channel subscription: a bounded queue of completed
// deliveries plus the flags it was declared with.
type Consumer struct {
	Tag       string
	NoLocal   bool
	NoAck     bool
	Exclusive bool

	mu        sync.Mutex
	ready     chan Delivery
	cancelled bool
}

func newConsumer(tag string, opts ConsumeOptions) *Consumer {
	return &Consumer{
		Tag:       tag,
		NoLocal:   opts.NoLocal,
		NoAck:     opts.NoAck,
		Exclusive: opts.Exclusive,
		ready:     make(chan Delivery, defaultConsumerBuffer),
	}
}

// Deliveries returns the channel of completed deliveries. It closes
// when the consumer is cancelled (by either side) or the channel
// errors.
func (c *Consumer) Deliveries() <-chan Delivery {
	return c.ready
}

// push enqueues a completed delivery. It never blocks indefinitely: a
// full ready queue indicates the consuming task has stalled far behind
// prefetch, which basic_qos is meant to prevent; push drops the oldest
// unread delivery rather than stalling the single driver task that
// calls it (the driver task must never block on user code).
func (c *Consumer) push(d Delivery) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelled {
		return
	}
	select {
	case c.ready <- d:
	default:
		select {
		case <-c.ready:
		default:
		}
		select {
		case c.ready <- d:
		default:
		}
	}
}

// cancel marks the consumer cancelled and closes its ready queue once
// already-completed deliveries have been drained by the reader: the
// consumer's delivery stream terminates only after every delivery
// already completed at the time of cancel has been emitted. Because
// ready is a buffered channel, closing it is safe immediately: any
// already-queued values remain readable after close, Go's channel
// semantics guarantee it.
func (c *Consumer) cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelled {
		return
	}
	c.cancelled = true
	close(c.ready)
}

// Cancelled reports whether the consumer has been cancelled, by either
// Basic.Cancel or channel teardown.
func (c *Consumer) Cancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

// dropReady discards every completed-but-unread delivery, used by
// drop_prefetched_messages on basic_recover_async and on a
// cumulative ack/nack with tag=0.
func (c *Consumer) dropReady() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		select {
		case <-c.ready:
		default:
			return
		}
	}
}
