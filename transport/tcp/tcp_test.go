package tcp

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/un5af3/kapibara/transport"
)

func TestServeAndConnect(t *testing.T) {
	server, err := Listen(ServerOption{Address: "127.0.0.1:0"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	accepted := make(chan net.Conn, 1)
	go func() {
		_ = server.Serve(ctx, func(_ context.Context, conn net.Conn, _ net.Addr) {
			accepted <- conn
		})
	}()

	client := NewClient(ClientOption{Address: server.Addr().String(), DialTimeout: time.Second})
	var stream transport.Stream
	stream, err = client.Connect(ctx)
	require.NoError(t, err)
	defer stream.Close()
	assert.False(t, stream.IsEmpty())

	select {
	case peer := <-accepted:
		defer peer.Close()
		_, err := stream.Write([]byte("hi"))
		require.NoError(t, err)
		buf := make([]byte, 2)
		_, err = io.ReadFull(peer, buf)
		require.NoError(t, err)
		assert.Equal(t, "hi", string(buf))
	case <-time.After(2 * time.Second):
		t.Fatal("connection not accepted")
	}
}
