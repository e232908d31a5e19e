package socks

import (
	"context"
	"fmt"
	"io"

	"github.com/un5af3/kapibara/service"
)

// Option configures the SOCKS5 inbound service. When Username is non-empty,
// clients must complete RFC 1929 username/password subnegotiation with a
// matching Username/Password; otherwise the no-auth method is offered and
// required.
type Option struct {
	Username string
	Password string
}

// Service is a SOCKS5 service.InboundService.
type Service struct {
	opt Option
}

// New builds a SOCKS5 inbound service from opt.
func New(opt Option) *Service {
	return &Service{opt: opt}
}

func (s *Service) Name() string { return "socks" }

func (s *Service) requireAuth() bool { return s.opt.Username != "" }

// Handshake runs RFC 1928 method negotiation, optional RFC 1929 auth, and
// a CONNECT request, replying with the standard success/failure codes.
func (s *Service) Handshake(_ context.Context, stream io.ReadWriter) (io.ReadWriter, service.InboundPacket, error) {
	methods, err := readGreeting(stream)
	if err != nil {
		return nil, service.InboundPacket{}, fmt.Errorf("socks: read greeting: %w", err)
	}

	detail, err := s.negotiateAuth(stream, methods)
	if err != nil {
		return nil, service.InboundPacket{}, err
	}

	cmd, dest, err := readRequest(stream)
	if err != nil {
		_ = writeReply(stream, replyGeneralFailure)
		return nil, service.InboundPacket{}, fmt.Errorf("socks: read request: %w", err)
	}
	if cmd != cmdConnect {
		_ = writeReply(stream, replyCommandNotSupported)
		return nil, service.InboundPacket{}, fmt.Errorf("%w: %#x", ErrUnsupportedCommand, cmd)
	}

	if err := writeReply(stream, replySucceeded); err != nil {
		return nil, service.InboundPacket{}, err
	}

	return stream, service.InboundPacket{Type: service.NetworkTCP, Dest: dest, Detail: detail}, nil
}

func (s *Service) negotiateAuth(stream io.ReadWriter, methods []byte) (detail string, err error) {
	if !s.requireAuth() {
		if !containsMethod(methods, methodNoAuth) {
			_ = writeMethodSelection(stream, methodNoAccept)
			return "", ErrAuthFailed
		}
		return "", writeMethodSelection(stream, methodNoAuth)
	}

	if !containsMethod(methods, methodUserPass) {
		_ = writeMethodSelection(stream, methodNoAccept)
		return "", ErrAuthFailed
	}
	if err := writeMethodSelection(stream, methodUserPass); err != nil {
		return "", err
	}

	user, pass, err := readUserPass(stream)
	if err != nil {
		return "", fmt.Errorf("socks: read auth: %w", err)
	}
	ok := user == s.opt.Username && pass == s.opt.Password
	if err := writeAuthResult(stream, ok); err != nil {
		return "", err
	}
	if !ok {
		return "", ErrAuthFailed
	}
	return user, nil
}
