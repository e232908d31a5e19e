package vless

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/un5af3/kapibara/service"
)

func TestRoundTripInboundOutbound(t *testing.T) {
	clientConn, serverConn := net.Pipe()

	id := uuid.New()
	in := NewInboundService(InboundOption{Users: []uuid.UUID{id}})
	out := NewOutboundService(OutboundOption{ID: id})

	dest := service.DomainAddress("example.test", 443)
	done := make(chan struct{})

	var gotPkt service.InboundPacket
	var inErr error
	go func() {
		defer close(done)
		_, gotPkt, inErr = in.Handshake(context.Background(), serverConn)
	}()

	outStream, err := out.Handshake(context.Background(), clientConn, service.OutboundPacket{
		Type: service.NetworkTCP,
		Dest: dest,
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("inbound handshake did not complete")
	}
	require.NoError(t, inErr)
	assert.Equal(t, dest.Domain(), gotPkt.Dest.Domain())
	assert.Equal(t, dest.Port(), gotPkt.Dest.Port())
	assert.Equal(t, id.String(), gotPkt.Detail)

	go func() { _, _ = outStream.Write([]byte("ping")) }()
	buf := make([]byte, 4)
	_, err = io.ReadFull(serverConn, buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf))
}

func TestInboundRejectsUnknownUser(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	in := NewInboundService(InboundOption{Users: []uuid.UUID{uuid.New()}})
	out := NewOutboundService(OutboundOption{ID: uuid.New()})

	errCh := make(chan error, 1)
	go func() {
		_, _, err := in.Handshake(context.Background(), serverConn)
		errCh <- err
	}()

	go func() {
		_, _ = out.Handshake(context.Background(), clientConn, service.OutboundPacket{
			Dest: service.DomainAddress("x", 1),
		})
	}()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrUnknownUser)
	case <-time.After(2 * time.Second):
		t.Fatal("handshake did not complete")
	}

	_ = clientConn.Close()
	_ = serverConn.Close()
}
