// Package transport defines the capability sets the dispatcher drives on
// the wire: a Server accepts connections and hands them to a callback, a
// Client dials an upstream and returns a Stream. Concrete transports (tcp,
// ws) and the null "empty" client live in sibling packages.
package transport

import (
	"context"
	"io"
	"net"
)

// ServerCallback is invoked by a Server for every accepted connection. addr
// is the peer address when the transport exposes one (always true for tcp
// and ws; nil is a valid value other transports may use). A Server calls cb
// synchronously from its accept loop and expects cb not to block — the
// dispatcher's callback spawns its own goroutine per connection before
// returning.
type ServerCallback func(ctx context.Context, conn net.Conn, addr net.Addr)

// Server is the capability set every inbound transport (tcp, ws, ...)
// implements. Serve blocks, accepting connections and invoking cb for each,
// until ctx is cancelled or an unrecoverable accept error occurs.
type Server interface {
	Serve(ctx context.Context, cb ServerCallback) error
	Addr() net.Addr
	Name() string
}

// Stream is what an outbound Client hands back from Connect. IsEmpty
// reports whether this is a null, not-yet-established stream (the "empty"
// client backing the direct outbound): the dispatcher uses this hint to
// decide whether to apply the idle timer before or after the outbound
// service handshake runs (see dispatch.Callback).
type Stream interface {
	io.ReadWriteCloser
	IsEmpty() bool
}

// Client is the capability set every outbound transport (tcp, ws, empty,
// ...) implements.
type Client interface {
	Connect(ctx context.Context) (Stream, error)
	Name() string
}
