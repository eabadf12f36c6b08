package amqp

import "time"

// Table holds AMQP field-table values: the core treats it as an opaque,
// unordered bag of Go values produced and consumed by the injected
// FrameCodec. Accepted value types mirror AMQP 0-9-1's field-table
// grammar: bool, int8/16/32/64, float32/64, string, []byte, time.Time,
// Decimal, Table, []interface{}, and nil.
type Table map[string]interface{}

// Decimal matches AMQP's scaled-decimal field-table type.
type Decimal struct {
	Scale uint8
	Value int32
}

// Blocking describes a connection.blocked/unblocked notification
// (RabbitMQ's TCP-backpressure extension).
type Blocking struct {
	Active bool
	Reason string
}

// ExchangeKind enumerates the well-known exchange kinds. The wire
// protocol accepts any string; these constants are a convenience
// carried over from the original implementation's ExchangeKind enum.
type ExchangeKind string

const (
	ExchangeDirect  ExchangeKind = "direct"
	ExchangeFanout  ExchangeKind = "fanout"
	ExchangeTopic   ExchangeKind = "topic"
	ExchangeHeaders ExchangeKind = "headers"
)

// BasicProperties is the content-header property set carried by every
// content-bearing method (Basic.Publish, Basic.Deliver, Basic.GetOk,
// Basic.Return). No field is a pointer, so an absent property and its
// zero value look the same; the header's property-flags word is left to
// the FrameCodec and the core exposes a flat struct.
type BasicProperties struct {
	ContentType     string
	ContentEncoding string
	Headers         Table
	DeliveryMode    uint8
	Priority        uint8
	CorrelationId   string
	ReplyTo         string
	Expiration      string
	MessageId       string
	Timestamp       time.Time
	Type            string
	UserId          string
	AppId           string
}

// PublishOptions carries the Basic.Publish method flags that are not
// part of the content itself. Mandatory and Immediate govern whether
// an unroutable message is returned to the publisher.
type PublishOptions struct {
	Mandatory bool
	Immediate bool
}

// ConsumeOptions carries the Basic.Consume method flags.
type ConsumeOptions struct {
	NoLocal   bool
	NoAck     bool
	Exclusive bool
	NoWait    bool
	Args      Table
}

// QueueDeclareOptions carries the Queue.Declare method flags.
type QueueDeclareOptions struct {
	Passive    bool
	Durable    bool
	AutoDelete bool
	Exclusive  bool
	NoWait     bool
	Args       Table
}

// ExchangeDeclareOptions carries the Exchange.Declare method flags.
type ExchangeDeclareOptions struct {
	Passive    bool
	Durable    bool
	AutoDelete bool
	Internal   bool
	NoWait     bool
	Args       Table
}

// Queue is a snapshot of a Queue.DeclareOk reply: the registry entry's
// public view.
type Queue struct {
	Name          string
	MessageCount  uint32
	ConsumerCount uint32
}

// ConnectionProperties is the client-properties table the core augments
// with capability flags and sends as part of Connection.StartOk.
// Built with a functional-options constructor mirroring
// the original implementation's ConnectionProperties builder.
type ConnectionProperties struct {
	ClientProperties Table
}

// ConnectionOption configures a ConnectionProperties value.
type ConnectionOption func(*ConnectionProperties)

// NewConnectionProperties returns the default client properties,
// augmented by any options given.
func NewConnectionProperties(opts ...ConnectionOption) ConnectionProperties {
	p := ConnectionProperties{ClientProperties: Table{}}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// WithConnectionName sets the client-provided connection name, surfaced
// by the RabbitMQ management UI.
func WithConnectionName(name string) ConnectionOption {
	return func(p *ConnectionProperties) {
		p.ClientProperties["connection_name"] = name
	}
}

// WithProduct overrides the advertised product/version/platform triad.
func WithProduct(product, version, platform string) ConnectionOption {
	return func(p *ConnectionProperties) {
		p.ClientProperties["product"] = product
		p.ClientProperties["version"] = version
		p.ClientProperties["platform"] = platform
	}
}

func (p ConnectionProperties) capabilities() Table {
	return Table{
		"publisher_confirms":           true,
		"exchange_exchange_bindings":   true,
		"basic.nack":                   true,
		"consumer_cancel_notify":       true,
		"connection.blocked":           true,
		"consumer_priorities":          true,
		"authentication_failure_close": true,
		"per_consumer_qos":             true,
		"direct_reply_to":              true,
	}
}

func (p ConnectionProperties) merged() Table {
	out := Table{
		"product":      "lapin-go",
		"version":      "0.1.0",
		"platform":     "Go",
		"capabilities": p.capabilities(),
	}
	for k, v := range p.ClientProperties {
		out[k] = v
	}
	return out
}
