package vless

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/un5af3/kapibara/service"
)

// InboundOption configures the VLESS inbound service: Users are the set of
// client ids accepted; an unrecognized id fails the handshake.
type InboundOption struct {
	Users []uuid.UUID
}

// InboundService is a VLESS service.InboundService.
type InboundService struct {
	users map[uuid.UUID]struct{}
}

// NewInboundService builds a VLESS inbound service from opt.
func NewInboundService(opt InboundOption) *InboundService {
	users := make(map[uuid.UUID]struct{}, len(opt.Users))
	for _, id := range opt.Users {
		users[id] = struct{}{}
	}
	return &InboundService{users: users}
}

func (s *InboundService) Name() string { return "vless" }

func (s *InboundService) Handshake(_ context.Context, stream io.ReadWriter) (io.ReadWriter, service.InboundPacket, error) {
	req, err := readRequest(stream)
	if err != nil {
		return nil, service.InboundPacket{}, fmt.Errorf("vless: read request: %w", err)
	}
	if _, ok := s.users[req.id]; !ok {
		return nil, service.InboundPacket{}, ErrUnknownUser
	}

	var network service.Network
	switch req.cmd {
	case cmdTCP:
		network = service.NetworkTCP
	case cmdUDP:
		network = service.NetworkUDP
	default:
		return nil, service.InboundPacket{}, fmt.Errorf("%w: %#x", ErrUnsupportedCommand, req.cmd)
	}

	if err := writeResponse(stream); err != nil {
		return nil, service.InboundPacket{}, err
	}

	return stream, service.InboundPacket{
		Type:   network,
		Dest:   req.dest,
		Detail: req.id.String(),
	}, nil
}

// OutboundOption configures the VLESS outbound service: ID is the client
// id presented to the upstream kapibara/VLESS server.
type OutboundOption struct {
	ID uuid.UUID
}

// OutboundService is a VLESS service.OutboundService.
type OutboundService struct {
	id uuid.UUID
}

// NewOutboundService builds a VLESS outbound service from opt.
func NewOutboundService(opt OutboundOption) *OutboundService {
	return &OutboundService{id: opt.ID}
}

func (s *OutboundService) Name() string { return "vless" }

func (s *OutboundService) Handshake(_ context.Context, stream io.ReadWriter, pkt service.OutboundPacket) (io.ReadWriter, error) {
	cmd := byte(cmdTCP)
	if pkt.Type == service.NetworkUDP {
		cmd = cmdUDP
	}
	if err := writeRequest(stream, s.id, cmd, pkt.Dest); err != nil {
		return nil, fmt.Errorf("vless: write request: %w", err)
	}
	if err := readResponse(stream); err != nil {
		return nil, fmt.Errorf("vless: read response: %w", err)
	}
	return stream, nil
}
