// Package tcp implements the tcp Server and Client transports: a thin
// wrapper over net.Listen/net.Dial that satisfies transport.Server and
// transport.Client.
package tcp

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/un5af3/kapibara/transport"
)

// ServerOption configures a Server. TLSConfig is optional; when set, the
// listener terminates TLS before connections reach cb.
type ServerOption struct {
	Address   string // host:port to listen on
	TLSConfig *tls.Config
}

// Server accepts plain TCP (or, with TLSConfig set, TLS-terminated)
// connections.
type Server struct {
	ln net.Listener
}

// Listen opens a TCP listener on opt.Address.
func Listen(opt ServerOption) (*Server, error) {
	var ln net.Listener
	var err error
	if opt.TLSConfig != nil {
		ln, err = tls.Listen("tcp", opt.Address, opt.TLSConfig)
	} else {
		ln, err = net.Listen("tcp", opt.Address)
	}
	if err != nil {
		return nil, fmt.Errorf("tcp: listen %s: %w", opt.Address, err)
	}
	return &Server{ln: ln}, nil
}

func (s *Server) Name() string    { return "tcp" }
func (s *Server) Addr() net.Addr  { return s.ln.Addr() }

// Serve accepts connections until ctx is cancelled or the listener is
// closed, invoking cb for each.
func (s *Server) Serve(ctx context.Context, cb transport.ServerCallback) error {
	go func() {
		<-ctx.Done()
		_ = s.ln.Close()
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("tcp: accept: %w", err)
		}
		cb(ctx, conn, conn.RemoteAddr())
	}
}

// ClientOption configures a Client. TLSConfig is optional; when set, the
// dial establishes TLS over the TCP connection before returning.
type ClientOption struct {
	Address     string // host:port to dial
	DialTimeout time.Duration
	TLSConfig   *tls.Config
}

// Client dials plain TCP (or, with TLSConfig set, TLS) connections.
type Client struct {
	opt ClientOption
}

// NewClient builds a Client from opt.
func NewClient(opt ClientOption) *Client {
	return &Client{opt: opt}
}

func (c *Client) Name() string { return "tcp" }

func (c *Client) Connect(ctx context.Context) (transport.Stream, error) {
	dialer := net.Dialer{Timeout: c.opt.DialTimeout}
	if c.opt.TLSConfig != nil {
		conn, err := (&tls.Dialer{NetDialer: &dialer, Config: c.opt.TLSConfig}).DialContext(ctx, "tcp", c.opt.Address)
		if err != nil {
			return nil, fmt.Errorf("tcp: tls dial %s: %w", c.opt.Address, err)
		}
		return stream{conn}, nil
	}

	conn, err := dialer.DialContext(ctx, "tcp", c.opt.Address)
	if err != nil {
		return nil, fmt.Errorf("tcp: dial %s: %w", c.opt.Address, err)
	}
	return stream{conn}, nil
}

// stream adapts a net.Conn to transport.Stream (IsEmpty always false: a
// dialed TCP connection is always a real socket).
type stream struct {
	net.Conn
}

func (stream) IsEmpty() bool { return false }
