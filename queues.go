package amqp

import "sync"

// pendingGet is an outstanding Basic.Get RPC awaiting either GetOk (and
// the content assembly it starts) or GetEmpty.
type pendingGet struct {
	queue    string
	resolver Resolver[*Delivery]
	partial  *partialDelivery
}

// Queues is the per-channel registry of queue metadata, consumers and
// in-flight deliveries. Exclusively owned by its Channel.
type Queues struct {
	mu        sync.Mutex
	queues    map[string]*queueEntry
	consumers map[string]*Consumer
	// consumerQueue records which queue a consumer was declared against,
	// for Queue.consumer_count bookkeeping and for StartConsumerDelivery's
	// returned queue name.
	consumerQueue map[string]string
	partials      map[string]*partialDelivery // keyed by consumer_tag
	get           *pendingGet                 // at most one outstanding Basic.Get per channel
}

// NewQueues constructs an empty registry.
func NewQueues() *Queues {
	return &Queues{
		queues:        make(map[string]*queueEntry),
		consumers:     make(map[string]*Consumer),
		consumerQueue: make(map[string]string),
		partials:      make(map[string]*partialDelivery),
	}
}

// Register records (or updates) a queue's metadata, applied from
// Queue.DeclareOk.
func (q *Queues) Register(name string, messageCount, consumerCount uint32) Queue {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.queues[name]
	if !ok {
		e = &queueEntry{name: name}
		q.queues[name] = e
	}
	e.messageCount = messageCount
	e.consumerCount = consumerCount
	return e.snapshot()
}

// Deregister drops a queue's registry entry, applied from
// Queue.DeleteOk.
func (q *Queues) Deregister(name string) {
	q.mu.Lock()
	delete(q.queues, name)
	q.mu.Unlock()
}

// RegisterConsumer attaches a new Consumer under queue, keyed by the
// server-confirmed consumer_tag (Basic.ConsumeOk).
func (q *Queues) RegisterConsumer(queue, tag string, c *Consumer) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.consumers[tag] = c
	q.consumerQueue[tag] = queue
	if e, ok := q.queues[queue]; ok {
		e.consumerCount++
	}
}

// DeregisterConsumer removes a consumer (Basic.CancelOk or a
// server-initiated Basic.Cancel) and drops its in-flight partial
// delivery, if any.
func (q *Queues) DeregisterConsumer(tag string) (*Consumer, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	c, ok := q.consumers[tag]
	if !ok {
		return nil, false
	}
	delete(q.consumers, tag)
	delete(q.partials, tag)
	if queue, ok := q.consumerQueue[tag]; ok {
		if e, ok := q.queues[queue]; ok && e.consumerCount > 0 {
			e.consumerCount--
		}
		delete(q.consumerQueue, tag)
	}
	return c, true
}

// Consumer looks up a registered consumer by tag.
func (q *Queues) Consumer(tag string) (*Consumer, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	c, ok := q.consumers[tag]
	return c, ok
}

// StartConsumerDelivery begins assembling a Basic.Deliver, storing the
// partial under consumerTag; it returns the queue name that consumer
// was declared against, if known.
func (q *Queues) StartConsumerDelivery(consumerTag string, d Delivery) (queue string, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.partials[consumerTag] = &partialDelivery{delivery: d}
	queue, ok = q.consumerQueue[consumerTag]
	return queue, ok
}

// StartBasicGetDelivery begins assembling a Basic.GetOk's content,
// recording the Future resolver that basic_get is blocked on.
func (q *Queues) StartBasicGetDelivery(queue string, d Delivery, resolver Resolver[*Delivery]) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.get = &pendingGet{queue: queue, resolver: resolver, partial: &partialDelivery{delivery: d}}
}

// ResolveBasicGetEmpty resolves the pending Basic.Get with "no
// message" (Basic.GetEmpty).
func (q *Queues) ResolveBasicGetEmpty() {
	q.mu.Lock()
	g := q.get
	q.get = nil
	q.mu.Unlock()
	if g != nil {
		g.resolver.Resolve(nil)
	}
}

// contentTarget names which of consumer/get/neither a content
// assembly is destined for, mirroring the ChannelStatus cursor.
type contentTarget struct {
	consumerTag string
	queue       string
	hasConsumer bool
	hasQueue    bool
}

// ApplyHeader stores the content header's properties on the partial
// identified by target. bodySize is not recorded here; the remaining
// byte count lives in ChannelStatus's content cursor.
func (q *Queues) ApplyHeader(target contentTarget, bodySize uint64, props BasicProperties) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if target.hasConsumer {
		if p, ok := q.partials[target.consumerTag]; ok {
			p.delivery.Properties = props
		}
		return
	}
	if q.get != nil {
		q.get.partial.delivery.Properties = props
	}
}

// ApplyBody appends a body chunk to the partial identified by target
// and, when the delivery is complete, removes it from the registry and
// returns it for the caller to route (push to the consumer, or resolve
// the Basic.Get future).
func (q *Queues) ApplyBody(target contentTarget, chunk []byte, complete bool) (delivery Delivery, consumer *Consumer, getResolver *Resolver[*Delivery], done bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if target.hasConsumer {
		p, ok := q.partials[target.consumerTag]
		if !ok {
			return Delivery{}, nil, nil, false
		}
		p.appendBody(chunk)
		if !complete {
			return Delivery{}, nil, nil, false
		}
		delete(q.partials, target.consumerTag)
		c := q.consumers[target.consumerTag]
		return p.delivery, c, nil, true
	}
	if q.get != nil {
		q.get.partial.appendBody(chunk)
		if !complete {
			return Delivery{}, nil, nil, false
		}
		g := q.get
		q.get = nil
		return g.partial.delivery, nil, &g.resolver, true
	}
	return Delivery{}, nil, nil, false
}

// DropPrefetchedMessages clears every completed-but-unread delivery on
// every consumer of this channel.
func (q *Queues) DropPrefetchedMessages() {
	q.mu.Lock()
	consumers := make([]*Consumer, 0, len(q.consumers))
	for _, c := range q.consumers {
		consumers = append(consumers, c)
	}
	q.mu.Unlock()
	for _, c := range consumers {
		c.dropReady()
	}
}

// CancelConsumers cancels every consumer on this channel, e.g. on
// channel close.
func (q *Queues) CancelConsumers() {
	q.mu.Lock()
	consumers := make([]*Consumer, 0, len(q.consumers))
	for _, c := range q.consumers {
		consumers = append(consumers, c)
	}
	q.mu.Unlock()
	for _, c := range consumers {
		c.cancel()
	}
}

// ErrorConsumers is an alias of CancelConsumers kept distinct to name
// the channel-error path separately from a cooperative cancel; both
// terminate the Consumer's delivery stream.
func (q *Queues) ErrorConsumers(err error) {
	q.CancelConsumers()
}
