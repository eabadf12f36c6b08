package amqp

import "sync"

// ChannelState is the per-channel state machine.
type ChannelState uint8

const (
	ChannelInitial ChannelState = iota
	ChannelConnected
	ChannelClosing
	ChannelClosed
	ChannelError
	ChannelSendingContent
	ChannelWillReceiveContent
	ChannelReceivingContent
)

func (s ChannelState) String() string {
	switch s {
	case ChannelInitial:
		return "Initial"
	case ChannelConnected:
		return "Connected"
	case ChannelClosing:
		return "Closing"
	case ChannelClosed:
		return "Closed"
	case ChannelError:
		return "Error"
	case ChannelSendingContent:
		return "SendingContent"
	case ChannelWillReceiveContent:
		return "WillReceiveContent"
	case ChannelReceivingContent:
		return "ReceivingContent"
	default:
		return "Unknown"
	}
}

// contentCursor tracks an in-progress content assembly, covering both
// the WillReceiveContent and ReceivingContent payload of the state
// machine.
type contentCursor struct {
	queue        string
	consumerTag  string
	confirmMode  bool
	remaining    uint64
	bodySize     uint64
	properties   BasicProperties
	hasQueue     bool
	hasConsumer  bool
}

// ChannelStatus is the thread-safe holder of a channel's state and its
// content-assembly cursor.
type ChannelStatus struct {
	mu            sync.Mutex
	state         ChannelState
	sendFlow      bool
	receiveFlow   bool
	confirmMode   bool
	prefetchSize  uint32
	prefetchCount uint16
	global        bool
	sendRemaining uint64
	cursor        *contentCursor
}

func newChannelStatus() *ChannelStatus {
	return &ChannelStatus{state: ChannelInitial, sendFlow: true, receiveFlow: true}
}

func (s *ChannelStatus) State() ChannelState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *ChannelStatus) setState(state ChannelState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *ChannelStatus) Connected() bool {
	return s.State() == ChannelConnected
}

func (s *ChannelStatus) ConfirmMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confirmMode
}

func (s *ChannelStatus) setConfirmMode(on bool) {
	s.mu.Lock()
	s.confirmMode = on
	s.mu.Unlock()
}

func (s *ChannelStatus) SendFlow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendFlow
}

func (s *ChannelStatus) setSendFlow(active bool) {
	s.mu.Lock()
	s.sendFlow = active
	s.mu.Unlock()
}

func (s *ChannelStatus) Prefetch() (size uint32, count uint16, global bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prefetchSize, s.prefetchCount, s.global
}

func (s *ChannelStatus) setPrefetch(size uint32, count uint16, global bool) {
	s.mu.Lock()
	s.prefetchSize = size
	s.prefetchCount = count
	s.global = global
	s.mu.Unlock()
}

// beginSendingContent transitions Connected -> SendingContent(n). The
// engine does not call it: BasicPublish pushes outbound content frames
// atomically as one batch, so the channel stays Connected while
// sending.
func (s *ChannelStatus) beginSendingContent(n uint64) {
	s.mu.Lock()
	s.state = ChannelSendingContent
	s.sendRemaining = n
	s.mu.Unlock()
}

func (s *ChannelStatus) endSendingContent() {
	s.mu.Lock()
	s.state = ChannelConnected
	s.sendRemaining = 0
	s.mu.Unlock()
}

// beginReceivingMethod transitions Connected -> WillReceiveContent,
// recording the routing the eventual delivery needs.
func (s *ChannelStatus) beginReceivingMethod(queue, consumerTag string, hasQueue, hasConsumer, confirmMode bool) {
	s.mu.Lock()
	s.state = ChannelWillReceiveContent
	s.cursor = &contentCursor{
		queue:       queue,
		consumerTag: consumerTag,
		hasQueue:    hasQueue,
		hasConsumer: hasConsumer,
		confirmMode: confirmMode,
	}
	s.mu.Unlock()
}

// onHeader applies an inbound content-header, moving
// WillReceiveContent -> ReceivingContent and arming the byte counter.
func (s *ChannelStatus) onHeader(bodySize uint64, props BasicProperties) (cursor *contentCursor, complete bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != ChannelWillReceiveContent || s.cursor == nil {
		return nil, false, NewProtocolError(505, "UNEXPECTED-FRAME: header without a preceding content method", 0, 0)
	}
	s.cursor.remaining = bodySize
	s.cursor.bodySize = bodySize
	s.cursor.properties = props
	if bodySize == 0 {
		cur := s.cursor
		s.cursor = nil
		s.state = ChannelConnected
		return cur, true, nil
	}
	s.state = ChannelReceivingContent
	return s.cursor, false, nil
}

// onBody applies an inbound body chunk, decrementing remaining and
// reporting whether the delivery is now complete.
func (s *ChannelStatus) onBody(n uint64) (cursor *contentCursor, complete bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != ChannelReceivingContent || s.cursor == nil || n > s.cursor.remaining {
		return nil, false, NewProtocolError(501, "FRAME-ERROR: body frame exceeds declared body_size", 0, 0)
	}
	s.cursor.remaining -= n
	if s.cursor.remaining == 0 {
		cur := s.cursor
		s.cursor = nil
		s.state = ChannelConnected
		return cur, true, nil
	}
	return s.cursor, false, nil
}
