// Copyright (c) 2012, Sean Treadway, SoundCloud Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
// Source code and contact info at http://github.com/streadway/amqp

package amqp

import (
	"context"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Connection is the connection-wide protocol engine: handshake
// orchestration, the channel registry, and the fan-out of inbound
// frames to the right Channel. It never touches a socket or a
// TLS handshake itself -- those are the Transport's job; Connection
// only turns decoded AMQPFrame values into state transitions and turns
// API calls into encoded frames pushed onto its FrameQueue.
type Connection struct {
	status    *ConnectionStatus
	config    Config
	frames    *FrameQueue
	codec     FrameCodec
	transport Transport
	executor  Executor
	rpc       *InternalRPC
	logger    Logger

	channelIds *channelIdAllocator

	mu       sync.Mutex
	channels map[uint16]*Channel

	closeErr  error
	closed    chan struct{}
	closeOnce sync.Once
}

// Dial constructs a Connection bound to transport and codec, using
// config for the handshake's client-offered tunables, and starts its
// reader/writer/internal-RPC tasks on executor. Unlike a
// conventional client this performs no DNS lookup, TCP dial or TLS
// handshake -- transport must already be an established,
// readable/writable stream; establishing one is outside this
// package's scope.
func Dial(transport Transport, codec FrameCodec, config Config, executor Executor, logger Logger) *Connection {
	if executor == nil {
		executor = GoExecutor{}
	}
	c := &Connection{
		status:     newConnectionStatus(),
		config:     config,
		frames:     NewFrameQueue(),
		codec:      codec,
		transport:  transport,
		executor:   executor,
		rpc:        NewInternalRPC(64),
		logger:     logger.With(zap.String("connection_correlation_id", newCorrelationID())),
		channelIds: newChannelIdAllocator(maxChannelMax),
		channels:   make(map[uint16]*Channel),
		closed:     make(chan struct{}),
	}
	executor.Spawn(c.rpc.Run)
	executor.Spawn(c.writerLoop)
	executor.Spawn(c.readerLoop)
	return c
}

// Open drives the Connection.Start/StartOk -> Tune/TuneOk ->
// Open/OpenOk handshake to completion. It must be
// called exactly once, right after Dial.
func (c *Connection) Open(ctx context.Context) error {
	c.status.setState(ConnectionConnecting)
	c.status.setStep(HandshakeProtocolHeader)

	start, err := awaitConnection0Frame(ctx, c, "connection.start", func(m Method) (connectionStart, bool) {
		cs, ok := m.(connectionStart)
		return cs, ok
	}, nil)
	if err != nil {
		return c.failHandshake(err)
	}

	auth, mechanismOk := pickMechanism(c.config.SASL, splitSpace(start.Mechanisms))
	if !mechanismOk {
		c.logger.Warn("no offered SASL mechanism accepted by server", zap.String("server_mechanisms", start.Mechanisms))
	}
	locale, localeOk := pickLocale(c.config.Locale, splitSpace(start.Locales))
	if !localeOk {
		c.logger.Warn("requested locale not offered by server", zap.String("requested", c.config.Locale), zap.String("server_locales", start.Locales))
	}

	c.status.setStep(HandshakeStartOk)
	var mechanismName, response string
	if auth != nil {
		mechanismName, response = auth.Mechanism(), auth.Response()
	}
	next, err := awaitAnyConnection0Method(ctx, c, "connection.tune or connection.secure", connectionStartOk{
		ClientProperties: c.config.Properties.merged(),
		Mechanism:        mechanismName,
		Response:         response,
		Locale:           locale,
	})
	if err != nil {
		return c.failHandshake(err)
	}

	// A server may challenge the chosen mechanism for further rounds
	// before tuning; PLAIN/AMQPLAIN have nothing further to compute, so
	// each SecureOk simply replays the mechanism's precomputed response.
	for {
		if _, ok := next.(connectionSecure); !ok {
			break
		}
		c.status.setStep(HandshakeSecureOk)
		next, err = awaitAnyConnection0Method(ctx, c, "connection.tune or connection.secure", connectionSecureOk{Response: response})
		if err != nil {
			return c.failHandshake(err)
		}
	}

	tune, ok := next.(connectionTune)
	if !ok {
		return c.failHandshake(&UnexpectedReply{ChannelId: 0, Expected: "connection.tune", Got: next.MethodName()})
	}

	channelMax, frameMax, heartbeat := negotiateTune(c.config, tune.ChannelMax, tune.FrameMax, tune.Heartbeat)
	c.config.Channels = channelMax
	c.config.FrameSize = frameMax
	c.config.Heartbeat = heartbeat
	c.channelIds = newChannelIdAllocator(channelMax)

	// Connection.TuneOk has no reply; send it, then immediately start the
	// Open/OpenOk exchange.
	c.pushFrame0(connectionTuneOk{ChannelMax: channelMax, FrameMax: frameMax, Heartbeat: uint16(heartbeat / time.Second)}, nil)

	if heartbeat > 0 {
		c.executor.Spawn(func() { c.heartbeatLoop(heartbeat) })
	}

	c.status.setStep(HandshakeOpen)
	_, err = awaitConnection0Frame(ctx, c, "connection.open-ok", func(m Method) (struct{}, bool) {
		_, ok := m.(connectionOpenOk)
		return struct{}{}, ok
	}, connectionOpen{VirtualHost: c.config.Vhost})
	if err != nil {
		return c.failHandshake(err)
	}

	c.status.setVhost(c.config.Vhost)
	c.status.setState(ConnectionConnected)
	c.status.setStep(HandshakeNone)
	c.logger.Info("connection opened", zap.String("vhost", c.config.Vhost), zap.Uint16("channel_max", channelMax), zap.Uint32("frame_max", frameMax))
	return nil
}

// awaitConnection0Frame sends method (unless it is nil, for the very
// first ProtocolHeaderFrame-only step) on channel 0 and waits for the
// single reply match selects, mirroring rpc[T] but for the
// connection-level handshake which precedes any Channel existing.
func awaitConnection0Frame[T any](ctx context.Context, c *Connection, describe string, match func(Method) (T, bool), method Method) (T, error) {
	var zero T
	fut, resolver := NewFuture[T]()
	expected := &ExpectedReply{
		Describe: describe,
		Resolve: func(m Method) error {
			val, ok := match(m)
			if !ok {
				err := &UnexpectedReply{ChannelId: 0, Expected: describe, Got: m.MethodName()}
				resolver.Reject(err)
				return err
			}
			resolver.Resolve(val)
			return nil
		},
		Reject: func(err error) { resolver.Reject(err) },
	}
	if method == nil {
		c.frames.Push(0, []AMQPFrame{ProtocolHeaderFrame{}}, mustSentResolver(), expected)
	} else {
		c.pushFrame0(method, expected)
	}
	val, err := fut.Wait(ctx)
	if err != nil {
		return zero, err
	}
	return val, nil
}

// awaitAnyConnection0Method sends method on channel 0 and resolves with
// whatever Method arrives next, unfiltered -- used where the server's
// next reply isn't a single fixed type (connection.secure may precede
// connection.tune for a multi-round SASL mechanism).
func awaitAnyConnection0Method(ctx context.Context, c *Connection, describe string, method Method) (Method, error) {
	fut, resolver := NewFuture[Method]()
	expected := &ExpectedReply{
		Describe: describe,
		Resolve: func(m Method) error {
			resolver.Resolve(m)
			return nil
		},
		Reject: func(err error) { resolver.Reject(err) },
	}
	c.pushFrame0(method, expected)
	return fut.Wait(ctx)
}

func mustSentResolver() Resolver[struct{}] {
	_, r := NewFuture[struct{}]()
	return r
}

func (c *Connection) failHandshake(err error) error {
	c.status.setState(ConnectionError)
	return err
}

func splitSpace(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ' ' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func (c *Connection) pushFrame0(method Method, expected *ExpectedReply) {
	_, sentResolver := NewFuture[struct{}]()
	c.frames.PushFrame(0, &MethodFrame{ChannelId: 0, Method: method}, sentResolver, expected)
}

// Status returns a read-only snapshot handle of the connection's state.
func (c *Connection) Status() *ConnectionStatus { return c.status }

// Config returns the negotiated tuning parameters. Only meaningful
// after Open has returned successfully.
func (c *Connection) Config() Config { return c.config }

// CreateChannel allocates the lowest free channel id and completes the
// Channel.Open/OpenOk handshake on it.
func (c *Connection) CreateChannel(ctx context.Context) (*Channel, error) {
	if !c.status.Connected() {
		return nil, &InvalidConnectionState{State: c.status.State()}
	}
	id, err := c.channelIds.allocate()
	if err != nil {
		return nil, err
	}
	cfg := c.config
	ch := newChannel(id, &cfg, c.status, c.frames, c, c.executor, c.logger)

	c.mu.Lock()
	c.channels[id] = ch
	c.mu.Unlock()

	if err := ch.ChannelOpen(ctx); err != nil {
		c.removeChannel(id, err)
		return nil, err
	}
	return ch, nil
}

// Close sends Connection.Close, awaits Connection.CloseOk, and tears
// down every open channel and background task.
func (c *Connection) Close(ctx context.Context, replyCode uint16, replyText string) error {
	if c.status.State() == ConnectionClosed {
		return nil
	}
	c.status.setState(ConnectionClosing)

	fut, resolver := NewFuture[struct{}]()
	expected := &ExpectedReply{
		Describe: "connection.close-ok",
		Resolve: func(m Method) error {
			if _, ok := m.(connectionCloseOk); ok {
				resolver.Resolve(struct{}{})
				return nil
			}
			err := &UnexpectedReply{ChannelId: 0, Expected: "connection.close-ok", Got: m.MethodName()}
			resolver.Reject(err)
			return err
		},
		Reject: func(err error) { resolver.Reject(err) },
	}
	c.pushFrame0(connectionClose{ReplyCode: replyCode, ReplyText: replyText}, expected)

	_, waitErr := fut.Wait(ctx)
	c.shutdown(NewProtocolError(replyCode, replyText, 10, 50))
	return waitErr
}

// shutdown tears down every channel, the frame queue and the
// background tasks exactly once; it is the common path for both a
// clean Close and a server-initiated Connection.Close/hard error.
func (c *Connection) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.closeErr = err
		c.status.setState(ConnectionClosed)

		c.mu.Lock()
		channels := make([]*Channel, 0, len(c.channels))
		for _, ch := range c.channels {
			channels = append(channels, ch)
		}
		c.channels = make(map[uint16]*Channel)
		c.mu.Unlock()

		for _, ch := range channels {
			ch.setClosed(err)
		}
		c.frames.DropPending(err)
		c.frames.Close()
		c.rpc.Stop()
		if closeErr := c.transport.Close(); closeErr != nil {
			c.logger.Warn("transport close failed during shutdown", zap.Error(multierr.Append(err, closeErr)))
		}
		close(c.closed)
	})
}

// Done returns a channel closed once the connection has fully shut
// down, mirroring the Future/context idiom used throughout the engine.
func (c *Connection) Done() <-chan struct{} { return c.closed }

// Err returns the reason the connection closed, or nil if it is still
// open.
func (c *Connection) Err() error { return c.closeErr }

// --- channelHost ---

func (c *Connection) reportHardError(err *ProtocolError) {
	c.rpc.Enqueue(func() {
		c.logger.Error("hard protocol error, closing connection", zap.Uint16("reply_code", err.ReplyCode), zap.String("reply_text", err.ReplyText))
		c.shutdown(err)
	})
}

func (c *Connection) removeChannel(id uint16, err error) {
	c.mu.Lock()
	delete(c.channels, id)
	c.mu.Unlock()
	c.channelIds.release(id)
}

// --- inbound dispatch ---

// readerLoop pulls decoded frames off the transport (via codec) and
// routes them to channel 0's connection-level handling or to the
// addressed Channel, serializing every mutation through InternalRPC.
func (c *Connection) readerLoop() {
	buf := make([]byte, 0, 4096)
	tmp := make([]byte, 4096)
	for {
		select {
		case <-c.closed:
			return
		default:
		}
		n, err := c.transport.Read(tmp)
		if err == ErrWouldBlock {
			time.Sleep(time.Millisecond)
			continue
		}
		if err != nil {
			c.shutdown(NewIOError(err))
			return
		}
		buf = append(buf, tmp[:n]...)
		for {
			frame, consumed, decodeErr := c.codec.Decode(buf)
			if decodeErr != nil {
				c.shutdown(NewSerializationError(decodeErr))
				return
			}
			if consumed == 0 {
				break
			}
			buf = buf[consumed:]
			f := frame
			c.rpc.Enqueue(func() { c.dispatch(f) })
		}
	}
}

func (c *Connection) dispatch(f AMQPFrame) {
	if f.Channel() == 0 {
		c.dispatchConnectionFrame(f)
		return
	}
	c.mu.Lock()
	ch, ok := c.channels[f.Channel()]
	c.mu.Unlock()
	if !ok {
		return
	}
	if err := ch.HandleFrame(f); err != nil {
		c.logger.Debug("channel frame handling returned error", zap.Uint16("channel_id", f.Channel()), zap.Error(err))
	}
}

func (c *Connection) dispatchConnectionFrame(f AMQPFrame) {
	mf, ok := f.(*MethodFrame)
	if !ok {
		return
	}
	switch v := mf.Method.(type) {
	case connectionClose:
		c.pushFrame0(connectionCloseOk{}, nil)
		c.shutdown(NewProtocolError(v.ReplyCode, v.ReplyText, v.ClassId, v.MethodId))
	case connectionBlocked:
		c.status.setBlocked(true, v.Reason)
	case connectionUnblocked:
		c.status.setBlocked(false, "")
	default:
		if expected, ok := c.frames.NextExpectedReply(0); ok {
			if err := expected.Resolve(mf.Method); err != nil {
				c.logger.Warn("unexpected connection-level reply", zap.Error(err))
			}
		}
	}
}

// writerLoop drains the FrameQueue and hands encoded bytes to the
// transport, resolving each batch's "sent" future once flushed.
func (c *Connection) writerLoop() {
	for {
		_, frames, sent, ok := c.frames.Pop()
		if !ok {
			return
		}
		var failed error
		for _, f := range frames {
			encoded, err := c.codec.Encode(f)
			if err != nil {
				failed = NewSerializationError(err)
				break
			}
			if werr := c.writeAll(encoded); werr != nil {
				failed = NewIOError(werr)
				break
			}
		}
		if failed != nil {
			sent.Reject(failed)
			c.shutdown(failed)
			return
		}
		sent.Resolve(struct{}{})
	}
}

func (c *Connection) writeAll(b []byte) error {
	for len(b) > 0 {
		n, err := c.transport.Write(b)
		if err == ErrWouldBlock {
			time.Sleep(time.Millisecond)
			continue
		}
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

// heartbeatLoop sends a HeartbeatFrame every interval/2 (RabbitMQ's own
// convention: a client should send twice as often as the negotiated
// interval to tolerate jitter), stopping once the connection closes.
func (c *Connection) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			_, sentResolver := NewFuture[struct{}]()
			c.frames.Push(0, []AMQPFrame{HeartbeatFrame{}}, sentResolver, nil)
		}
	}
}
