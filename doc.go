// Package amqp is a sans-I/O AMQP 0-9-1 protocol engine.
//
// It drives connection and channel lifecycles, serializes outgoing
// method/content frames, dispatches inbound frames to per-channel state
// machines, correlates requests with replies, tracks publisher confirms
// and delivers consumed messages to subscribers. It does not open
// sockets, parse AMQP URIs, encode or decode wire bytes, or run a
// reconnect loop: those are supplied by the caller through the
// Transport and Executor contracts in transport.go and the FrameCodec
// contract in frame.go.
package amqp
