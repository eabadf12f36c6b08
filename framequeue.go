package amqp

import "sync"

// ExpectedReply is a pending-reply descriptor: it records the method
// the client sent and is awaiting the *-Ok for, plus whatever context
// is required to apply the eventual reply (queue name,
// exchange/routing_key, consumer tag, ...). Resolve
// is supplied by the Channel engine; it type-switches on the inbound
// Method, applies side effects and resolves the caller's Future. It
// returns a non-nil error when the inbound method is not the one
// expected (UnexpectedReply), signalling the caller to transition the
// channel to Error.
type ExpectedReply struct {
	RequestId uint64
	Describe  string
	Resolve   func(Method) error
	// Reject fails the pending request's Future directly, used when the
	// channel errors or closes before a reply arrives (it never sees a
	// Method to dispatch through Resolve).
	Reject func(error)
}

type outboundBatch struct {
	channelId uint16
	frames    []AMQPFrame
	sent      Resolver[struct{}]
}

// FrameQueue is the single serialization point between many API
// callers and the one writer task. It buffers outbound
// frames (pushed atomically, batch or single) and tracks, per channel,
// the FIFO of replies the client is waiting for -- the order matches
// the order the broker is required to answer in.
type FrameQueue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	outbound []outboundBatch
	expected map[uint16][]*ExpectedReply
	closed   bool
}

// NewFrameQueue constructs an empty FrameQueue.
func NewFrameQueue() *FrameQueue {
	q := &FrameQueue{expected: make(map[uint16][]*ExpectedReply)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends a batch of frames for channelId atomically -- no other
// frame from the same channel can be interleaved between them. sent must
// come from NewFuture: it is resolved once the writer has flushed the
// batch to the transport, or rejected if the batch is dropped.
// expected, if non-nil, is enqueued on this channel's expected-reply
// FIFO so that the next inbound method on this channel is matched
// against it.
func (q *FrameQueue) Push(channelId uint16, frames []AMQPFrame, sent Resolver[struct{}], expected *ExpectedReply) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		sent.Reject(ErrConnectionClosed)
		return
	}
	q.outbound = append(q.outbound, outboundBatch{channelId: channelId, frames: frames, sent: sent})
	if expected != nil {
		q.expected[channelId] = append(q.expected[channelId], expected)
	}
	q.cond.Signal()
	q.mu.Unlock()
}

// PushFrame is a convenience for the common single-frame, method-only
// send.
func (q *FrameQueue) PushFrame(channelId uint16, frame AMQPFrame, sent Resolver[struct{}], expected *ExpectedReply) {
	q.Push(channelId, []AMQPFrame{frame}, sent, expected)
}

// Pop blocks until at least one batch is available or the queue is
// closed, then removes and returns the oldest one.
func (q *FrameQueue) Pop() (channelId uint16, frames []AMQPFrame, sent Resolver[struct{}], ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.outbound) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.outbound) == 0 {
		return 0, nil, Resolver[struct{}]{}, false
	}
	b := q.outbound[0]
	q.outbound = q.outbound[1:]
	return b.channelId, b.frames, b.sent, true
}

// NextExpectedReply pops the oldest pending reply recorded for
// channelId, in send order.
func (q *FrameQueue) NextExpectedReply(channelId uint16) (*ExpectedReply, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	list := q.expected[channelId]
	if len(list) == 0 {
		return nil, false
	}
	r := list[0]
	q.expected[channelId] = list[1:]
	return r, true
}

// DropChannel discards every buffered outbound batch and pending reply
// belonging to channelId, failing their resolvers with err. Used when
// a single channel errors or closes without tearing down the whole
// connection.
func (q *FrameQueue) DropChannel(channelId uint16, err error) {
	q.mu.Lock()
	var kept []outboundBatch
	var toReject []Resolver[struct{}]
	for _, b := range q.outbound {
		if b.channelId == channelId {
			toReject = append(toReject, b.sent)
			continue
		}
		kept = append(kept, b)
	}
	q.outbound = kept
	pending := q.expected[channelId]
	delete(q.expected, channelId)
	q.mu.Unlock()

	for _, r := range toReject {
		r.Reject(err)
	}
	for _, p := range pending {
		if p.Reject != nil {
			p.Reject(err)
		}
	}
}

// DropPending fails every buffered resolver across every channel with
// err and discards the outbound buffer.
func (q *FrameQueue) DropPending(err error) {
	q.mu.Lock()
	batches := q.outbound
	q.outbound = nil
	expected := q.expected
	q.expected = make(map[uint16][]*ExpectedReply)
	q.mu.Unlock()

	for _, b := range batches {
		b.sent.Reject(err)
	}
	for _, list := range expected {
		for _, p := range list {
			if p.Reject != nil {
				p.Reject(err)
			}
		}
	}
}

// Close permanently unblocks any task waiting in Pop and fails all
// buffered sends with ErrConnectionClosed.
func (q *FrameQueue) Close() {
	q.mu.Lock()
	q.closed = true
	batches := q.outbound
	q.outbound = nil
	q.mu.Unlock()
	for _, b := range batches {
		b.sent.Reject(ErrConnectionClosed)
	}
	q.cond.Broadcast()
}
