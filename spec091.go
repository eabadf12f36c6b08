package amqp

// Method is the marker interface every AMQP 0-9-1 method argument
// struct implements. The wire-level class/method ids are the
// FrameCodec's concern; the engine dispatches on Go's type switch,
// the same style the teacher's connection.go uses for *connectionClose,
// *connectionBlocked, etc.
type Method interface {
	MethodName() string
}

// --- connection class (channel 0 only) ---

type connectionStart struct {
	VersionMajor     uint8
	VersionMinor     uint8
	ServerProperties Table
	Mechanisms       string
	Locales          string
}

func (connectionStart) MethodName() string { return "connection.start" }

type connectionStartOk struct {
	ClientProperties Table
	Mechanism        string
	Response         string
	Locale           string
}

func (connectionStartOk) MethodName() string { return "connection.start-ok" }

type connectionSecure struct {
	Challenge string
}

func (connectionSecure) MethodName() string { return "connection.secure" }

type connectionSecureOk struct {
	Response string
}

func (connectionSecureOk) MethodName() string { return "connection.secure-ok" }

type connectionTune struct {
	ChannelMax uint16
	FrameMax   uint32
	Heartbeat  uint16
}

func (connectionTune) MethodName() string { return "connection.tune" }

type connectionTuneOk struct {
	ChannelMax uint16
	FrameMax   uint32
	Heartbeat  uint16
}

func (connectionTuneOk) MethodName() string { return "connection.tune-ok" }

type connectionOpen struct {
	VirtualHost string
}

func (connectionOpen) MethodName() string { return "connection.open" }

type connectionOpenOk struct{}

func (connectionOpenOk) MethodName() string { return "connection.open-ok" }

type connectionClose struct {
	ReplyCode uint16
	ReplyText string
	ClassId   uint16
	MethodId  uint16
}

func (connectionClose) MethodName() string { return "connection.close" }

type connectionCloseOk struct{}

func (connectionCloseOk) MethodName() string { return "connection.close-ok" }

type connectionBlocked struct {
	Reason string
}

func (connectionBlocked) MethodName() string { return "connection.blocked" }

type connectionUnblocked struct{}

func (connectionUnblocked) MethodName() string { return "connection.unblocked" }

// --- channel class ---

type channelOpen struct{}

func (channelOpen) MethodName() string { return "channel.open" }

type channelOpenOk struct{}

func (channelOpenOk) MethodName() string { return "channel.open-ok" }

type channelFlow struct {
	Active bool
}

func (channelFlow) MethodName() string { return "channel.flow" }

type channelFlowOk struct {
	Active bool
}

func (channelFlowOk) MethodName() string { return "channel.flow-ok" }

type channelClose struct {
	ReplyCode uint16
	ReplyText string
	ClassId   uint16
	MethodId  uint16
}

func (channelClose) MethodName() string { return "channel.close" }

type channelCloseOk struct{}

func (channelCloseOk) MethodName() string { return "channel.close-ok" }

// --- exchange class ---

type exchangeDeclare struct {
	Exchange   string
	Kind       string
	Passive    bool
	Durable    bool
	AutoDelete bool
	Internal   bool
	NoWait     bool
	Arguments  Table
}

func (exchangeDeclare) MethodName() string { return "exchange.declare" }

type exchangeDeclareOk struct{}

func (exchangeDeclareOk) MethodName() string { return "exchange.declare-ok" }

type exchangeDelete struct {
	Exchange string
	IfUnused bool
	NoWait   bool
}

func (exchangeDelete) MethodName() string { return "exchange.delete" }

type exchangeDeleteOk struct{}

func (exchangeDeleteOk) MethodName() string { return "exchange.delete-ok" }

type exchangeBind struct {
	Destination string
	Source      string
	RoutingKey  string
	NoWait      bool
	Arguments   Table
}

func (exchangeBind) MethodName() string { return "exchange.bind" }

type exchangeBindOk struct{}

func (exchangeBindOk) MethodName() string { return "exchange.bind-ok" }

type exchangeUnbind struct {
	Destination string
	Source      string
	RoutingKey  string
	NoWait      bool
	Arguments   Table
}

func (exchangeUnbind) MethodName() string { return "exchange.unbind" }

type exchangeUnbindOk struct{}

func (exchangeUnbindOk) MethodName() string { return "exchange.unbind-ok" }

// --- queue class ---

type queueDeclare struct {
	Queue      string
	Passive    bool
	Durable    bool
	Exclusive  bool
	AutoDelete bool
	NoWait     bool
	Arguments  Table
}

func (queueDeclare) MethodName() string { return "queue.declare" }

type queueDeclareOk struct {
	Queue         string
	MessageCount  uint32
	ConsumerCount uint32
}

func (queueDeclareOk) MethodName() string { return "queue.declare-ok" }

type queueBind struct {
	Queue      string
	Exchange   string
	RoutingKey string
	NoWait     bool
	Arguments  Table
}

func (queueBind) MethodName() string { return "queue.bind" }

type queueBindOk struct{}

func (queueBindOk) MethodName() string { return "queue.bind-ok" }

type queueUnbind struct {
	Queue      string
	Exchange   string
	RoutingKey string
	Arguments  Table
}

func (queueUnbind) MethodName() string { return "queue.unbind" }

type queueUnbindOk struct{}

func (queueUnbindOk) MethodName() string { return "queue.unbind-ok" }

type queuePurge struct {
	Queue  string
	NoWait bool
}

func (queuePurge) MethodName() string { return "queue.purge" }

type queuePurgeOk struct {
	MessageCount uint32
}

func (queuePurgeOk) MethodName() string { return "queue.purge-ok" }

type queueDelete struct {
	Queue    string
	IfUnused bool
	IfEmpty  bool
	NoWait   bool
}

func (queueDelete) MethodName() string { return "queue.delete" }

type queueDeleteOk struct {
	MessageCount uint32
}

func (queueDeleteOk) MethodName() string { return "queue.delete-ok" }

// --- basic class ---

type basicQos struct {
	PrefetchSize  uint32
	PrefetchCount uint16
	Global        bool
}

func (basicQos) MethodName() string { return "basic.qos" }

type basicQosOk struct{}

func (basicQosOk) MethodName() string { return "basic.qos-ok" }

type basicConsume struct {
	Queue       string
	ConsumerTag string
	NoLocal     bool
	NoAck       bool
	Exclusive   bool
	NoWait      bool
	Arguments   Table
}

func (basicConsume) MethodName() string { return "basic.consume" }

type basicConsumeOk struct {
	ConsumerTag string
}

func (basicConsumeOk) MethodName() string { return "basic.consume-ok" }

type basicCancel struct {
	ConsumerTag string
	NoWait      bool
}

func (basicCancel) MethodName() string { return "basic.cancel" }

type basicCancelOk struct {
	ConsumerTag string
}

func (basicCancelOk) MethodName() string { return "basic.cancel-ok" }

type basicPublish struct {
	Exchange   string
	RoutingKey string
	Mandatory  bool
	Immediate  bool
}

func (basicPublish) MethodName() string { return "basic.publish" }

type basicReturn struct {
	ReplyCode  uint16
	ReplyText  string
	Exchange   string
	RoutingKey string
}

func (basicReturn) MethodName() string { return "basic.return" }

type basicDeliver struct {
	ConsumerTag string
	DeliveryTag uint64
	Redelivered bool
	Exchange    string
	RoutingKey  string
}

func (basicDeliver) MethodName() string { return "basic.deliver" }

type basicGet struct {
	Queue  string
	NoAck  bool
}

func (basicGet) MethodName() string { return "basic.get" }

type basicGetOk struct {
	DeliveryTag  uint64
	Redelivered  bool
	Exchange     string
	RoutingKey   string
	MessageCount uint32
}

func (basicGetOk) MethodName() string { return "basic.get-ok" }

type basicGetEmpty struct{}

func (basicGetEmpty) MethodName() string { return "basic.get-empty" }

type basicAck struct {
	DeliveryTag uint64
	Multiple    bool
}

func (basicAck) MethodName() string { return "basic.ack" }

type basicReject struct {
	DeliveryTag uint64
	Requeue     bool
}

func (basicReject) MethodName() string { return "basic.reject" }

type basicRecoverAsync struct {
	Requeue bool
}

func (basicRecoverAsync) MethodName() string { return "basic.recover-async" }

type basicRecover struct {
	Requeue bool
}

func (basicRecover) MethodName() string { return "basic.recover" }

type basicRecoverOk struct{}

func (basicRecoverOk) MethodName() string { return "basic.recover-ok" }

type basicNack struct {
	DeliveryTag uint64
	Multiple    bool
	Requeue     bool
}

func (basicNack) MethodName() string { return "basic.nack" }

// --- confirm class (RabbitMQ extension) ---

type confirmSelect struct {
	NoWait bool
}

func (confirmSelect) MethodName() string { return "confirm.select" }

type confirmSelectOk struct{}

func (confirmSelectOk) MethodName() string { return "confirm.select-ok" }
