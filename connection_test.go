package amqp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// driveHandshake runs c.Open against server's scripted replies,
// optionally inserting a Connection.Secure/SecureOk round before Tune,
// and returns Open's result.
func driveHandshake(t *testing.T, c *Connection, server *testServer, withSecure bool) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	openErr := make(chan error, 1)
	go func() { openErr <- c.Open(ctx) }()

	server.expectProtocolHeader()
	server.send(0, connectionStart{
		VersionMajor: 0, VersionMinor: 9,
		ServerProperties: Table{},
		Mechanisms:       "PLAIN",
		Locales:          "en_US",
	})

	startOk, ok := server.nextMethod().(connectionStartOk)
	require.True(t, ok, "expected connection.start-ok")
	assert.Equal(t, "PLAIN", startOk.Mechanism)

	if withSecure {
		server.send(0, connectionSecure{Challenge: "more please"})
		secureOk, ok := server.nextMethod().(connectionSecureOk)
		require.True(t, ok, "expected connection.secure-ok")
		assert.Equal(t, startOk.Response, secureOk.Response, "SecureOk must replay the mechanism's precomputed response")
	}

	server.send(0, connectionTune{ChannelMax: 16, FrameMax: 4096, Heartbeat: 0})

	tuneOk, ok := server.nextMethod().(connectionTuneOk)
	require.True(t, ok, "expected connection.tune-ok")
	assert.Equal(t, uint16(16), tuneOk.ChannelMax)
	assert.Equal(t, uint32(4096), tuneOk.FrameMax)

	open, ok := server.nextMethod().(connectionOpen)
	require.True(t, ok, "expected connection.open")
	assert.Equal(t, "/", open.VirtualHost)
	server.send(0, connectionOpenOk{})

	return <-openErr
}

func TestConnectionOpenHandshakeNegotiatesTuning(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Vhost = "/"
	cfg.SASL = []Authentication{&PlainAuth{Username: "guest", Password: "guest"}}
	c, server := newTestConnection(t, cfg)

	require.NoError(t, driveHandshake(t, c, server, false))

	assert.True(t, c.Status().Connected())
	assert.Equal(t, "/", c.Status().Vhost())
	assert.Equal(t, uint16(16), c.Config().Channels)
	assert.Equal(t, uint32(4096), c.Config().FrameSize)
}

func TestConnectionOpenHandshakeWithSecureRound(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Vhost = "/"
	cfg.SASL = []Authentication{&PlainAuth{Username: "guest", Password: "guest"}}
	c, server := newTestConnection(t, cfg)

	require.NoError(t, driveHandshake(t, c, server, true))

	assert.True(t, c.Status().Connected())
}

func TestConnectionOpenUnexpectedReplyFailsHandshake(t *testing.T) {
	cfg := DefaultConfig()
	c, server := newTestConnection(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	openErr := make(chan error, 1)
	go func() { openErr <- c.Open(ctx) }()

	server.expectProtocolHeader()
	// A connection.tune where connection.start is required.
	server.send(0, connectionTune{ChannelMax: 1, FrameMax: 1, Heartbeat: 0})

	err := <-openErr
	require.Error(t, err)
	var ur *UnexpectedReply
	require.ErrorAs(t, err, &ur)
	assert.Equal(t, "connection.start", ur.Expected)
	assert.Equal(t, ConnectionError, c.Status().State())
}
