package service

import (
	"context"
	"io"
)

// InboundService is the capability set every inbound protocol (socks,
// vless, ...) implements. Handshake authenticates the peer over stream,
// returning the stream wrapped for continued use (e.g. with any bytes
// already buffered during negotiation pushed back) plus the recovered
// destination.
type InboundService interface {
	Name() string
	Handshake(ctx context.Context, stream io.ReadWriter) (io.ReadWriter, InboundPacket, error)
}

// OutboundService is the capability set every outbound protocol (vless,
// direct, ...) implements. Handshake carries pkt to the upstream over
// stream and returns the stream ready for splicing. direct's stream
// argument may be a zero-value empty stream: see transport.Stream.IsEmpty.
type OutboundService interface {
	Name() string
	Handshake(ctx context.Context, stream io.ReadWriter, pkt OutboundPacket) (io.ReadWriter, error)
}
