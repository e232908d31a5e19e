// Package direct implements the "direct" outbound: instead of carrying the
// destination to an upstream proxy, it dials the destination itself. It is
// meant to be paired with transport.EmptyClient, whose null Stream it
// ignores in favor of a freshly dialed net.Conn.
package direct

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/un5af3/kapibara/service"
)

// Option configures the direct outbound's dialer.
type Option struct {
	// DialTimeout bounds each dial. Zero means net.Dialer's default.
	DialTimeout time.Duration
}

// Service is a direct service.OutboundService.
type Service struct {
	dialer net.Dialer
}

// New builds a direct outbound service from opt.
func New(opt Option) *Service {
	return &Service{dialer: net.Dialer{Timeout: opt.DialTimeout}}
}

func (s *Service) Name() string { return "direct" }

// Handshake ignores stream (expected to be transport.EmptyStream) and dials
// pkt.Dest directly. pkt.Dest must already be in socket form: the
// dispatcher resolves any domain destination before calling an outbound
// service.
func (s *Service) Handshake(ctx context.Context, _ io.ReadWriter, pkt service.OutboundPacket) (io.ReadWriter, error) {
	if pkt.Dest.IsDomain() {
		return nil, fmt.Errorf("direct: destination %s was not resolved before dialing", pkt.Dest)
	}

	network := "tcp"
	if pkt.Type == service.NetworkUDP {
		network = "udp"
	}

	conn, err := s.dialer.DialContext(ctx, network, pkt.Dest.AddrPort().String())
	if err != nil {
		return nil, fmt.Errorf("direct: dial %s: %w", pkt.Dest, err)
	}
	return conn, nil
}
