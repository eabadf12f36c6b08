package amqp

import (
	"context"
	"sort"
	"sync"
)

// Confirmation is the resolved value of a PublisherConfirm: whether the
// broker acked or nacked the publish, plus any Basic.Return messages
// collected since the publish that the caller may want to inspect.
type Confirmation struct {
	Acked   bool
	Returns []Return
}

// PublisherConfirm is the handle a caller awaits after basic_publish in
// confirm mode.
type PublisherConfirm = *Future[Confirmation]

const preconditionFailed = 406

// Acknowledgements is the per-channel publisher-confirm registry.
// Exclusively owned by its Channel.
type Acknowledgements struct {
	mu      sync.Mutex
	pending map[uint64]Resolver[Confirmation]
	last    *Future[Confirmation]
	returns *ReturnedMessages
}

// NewAcknowledgements constructs a registry that attaches Returns
// collected since the last drain to whichever confirm resolves next.
func NewAcknowledgements(returns *ReturnedMessages) *Acknowledgements {
	return &Acknowledgements{pending: make(map[uint64]Resolver[Confirmation]), returns: returns}
}

// Register allocates a pending confirm entry for tag, returning the
// Future the caller of basic_publish may await.
func (a *Acknowledgements) Register(tag uint64) PublisherConfirm {
	f, r := NewFuture[Confirmation]()
	a.mu.Lock()
	a.pending[tag] = r
	a.last = f
	a.mu.Unlock()
	return f
}

// Ack resolves pending confirms as specified by: if
// !multiple, only tag; if multiple and tag>0, every pending tag <= tag;
// if multiple and tag==0, every currently pending tag.
func (a *Acknowledgements) Ack(tag uint64, multiple bool) error {
	return a.resolve(tag, multiple, true)
}

// Nack is Ack's negative counterpart.
func (a *Acknowledgements) Nack(tag uint64, multiple, requeue bool) error {
	return a.resolve(tag, multiple, false)
}

func (a *Acknowledgements) resolve(tag uint64, multiple, acked bool) error {
	a.mu.Lock()
	var tags []uint64
	if !multiple {
		if _, ok := a.pending[tag]; !ok {
			a.mu.Unlock()
			return NewProtocolError(preconditionFailed, "PRECONDITION-FAILED: unknown delivery tag", 60, 80)
		}
		tags = []uint64{tag}
	} else if tag == 0 {
		for t := range a.pending {
			tags = append(tags, t)
		}
	} else {
		for t := range a.pending {
			if t <= tag {
				tags = append(tags, t)
			}
		}
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	resolvers := make([]Resolver[Confirmation], 0, len(tags))
	for _, t := range tags {
		resolvers = append(resolvers, a.pending[t])
		delete(a.pending, t)
	}
	a.mu.Unlock()

	var returns []Return
	if a.returns != nil {
		returns = a.returns.Drain()
	}
	for _, r := range resolvers {
		r.Resolve(Confirmation{Acked: acked, Returns: returns})
	}
	return nil
}

// OnChannelError resolves every still-pending confirm with err: closing a
// channel with outstanding publishes fails every pending confirm rather
// than leaving it to hang forever.
func (a *Acknowledgements) OnChannelError(err error) {
	a.mu.Lock()
	resolvers := make([]Resolver[Confirmation], 0, len(a.pending))
	for t, r := range a.pending {
		resolvers = append(resolvers, r)
		delete(a.pending, t)
	}
	a.mu.Unlock()
	for _, r := range resolvers {
		r.Reject(err)
	}
}

// WaitForConfirms awaits the most recently registered pending confirm
// (resolving immediately if none is pending) then returns every Return
// accumulated since.
func (a *Acknowledgements) WaitForConfirms(ctx context.Context) ([]Return, error) {
	a.mu.Lock()
	pending := len(a.pending)
	last := a.last
	a.mu.Unlock()

	if pending > 0 && last != nil {
		if _, err := last.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if a.returns == nil {
		return nil, nil
	}
	return a.returns.Drain(), nil
}
