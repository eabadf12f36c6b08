package amqp

// queueEntry is a channel-local view of a queue the channel has
// declared or bound. RabbitMQ queues are
// not channel-scoped on the broker, but the client only ever learns
// message_count/consumer_count through replies on the channel that
// asked, so the registry is kept per channel, matching lapin's design.
type queueEntry struct {
	name          string
	messageCount  uint32
	consumerCount uint32
}

func (q *queueEntry) snapshot() Queue {
	return Queue{Name: q.name, MessageCount: q.messageCount, ConsumerCount: q.consumerCount}
}
