package amqp

// Delivery is a fully assembled message, whether it arrived via
// Basic.Deliver (consumer), Basic.GetOk (one-shot get) or Basic.Return
// (unroutable publish echoed back).
type Delivery struct {
	DeliveryTag  uint64
	ConsumerTag  string
	Exchange     string
	RoutingKey   string
	Redelivered  bool
	Properties   BasicProperties
	Body         []byte
	MessageCount uint32 // set only on Basic.GetOk

	acker acknowledger
}

// acknowledger is the minimal surface a Delivery needs to Ack/Nack/
// Reject itself, implemented by *Channel. Kept as an interface so
// delivery.go never imports channel.go's internals.
type acknowledger interface {
	basicAckDelivery(tag uint64, multiple bool) error
	basicNackDelivery(tag uint64, multiple, requeue bool) error
	basicRejectDelivery(tag uint64, requeue bool) error
}

// Ack acknowledges this delivery (and, if multiple, every unacked
// delivery on this channel up to and including it).
func (d Delivery) Ack(multiple bool) error {
	if d.acker == nil {
		return nil
	}
	return d.acker.basicAckDelivery(d.DeliveryTag, multiple)
}

// Nack negatively acknowledges this delivery.
func (d Delivery) Nack(multiple, requeue bool) error {
	if d.acker == nil {
		return nil
	}
	return d.acker.basicNackDelivery(d.DeliveryTag, multiple, requeue)
}

// Reject rejects this single delivery (Basic.Reject has no multiple
// flag in AMQP 0-9-1).
func (d Delivery) Reject(requeue bool) error {
	if d.acker == nil {
		return nil
	}
	return d.acker.basicRejectDelivery(d.DeliveryTag, requeue)
}

// partialDelivery is the in-progress content assembly for a single
// Basic.Deliver/GetOk/Return; see contentCursor in channelstatus.go for
// the state-machine side of the same concept.
type partialDelivery struct {
	delivery Delivery
	received uint64
}

func (p *partialDelivery) appendBody(b []byte) {
	p.delivery.Body = append(p.delivery.Body, b...)
	p.received += uint64(len(b))
}
