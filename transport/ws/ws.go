// Package ws implements the WebSocket Server and Client transports: traffic
// is carried as binary WebSocket messages over an HTTP upgrade, wrapped to
// expose the plain net.Conn shape the dispatcher and protocol services
// expect.
package ws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/un5af3/kapibara/transport"
)

// ServerOption configures a Server.
type ServerOption struct {
	Address string
	Path    string // HTTP path the upgrade is served on; defaults to "/".
}

// Server accepts WebSocket connections over HTTP.
type Server struct {
	opt      ServerOption
	ln       net.Listener
	upgrader websocket.Upgrader
}

// Listen opens the underlying TCP listener for a Server.
func Listen(opt ServerOption) (*Server, error) {
	if opt.Path == "" {
		opt.Path = "/"
	}
	ln, err := net.Listen("tcp", opt.Address)
	if err != nil {
		return nil, fmt.Errorf("ws: listen %s: %w", opt.Address, err)
	}
	return &Server{
		opt: opt,
		ln:  ln,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}, nil
}

func (s *Server) Name() string   { return "ws" }
func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// Serve upgrades every request on opt.Path to a WebSocket connection and
// hands it to cb, until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, cb transport.ServerCallback) error {
	mux := http.NewServeMux()
	mux.HandleFunc(s.opt.Path, func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		cb(ctx, wrapConn(conn), conn.RemoteAddr())
	})

	httpServer := &http.Server{Handler: mux}
	go func() {
		<-ctx.Done()
		_ = httpServer.Close()
	}()

	err := httpServer.Serve(s.ln)
	if ctx.Err() != nil || errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("ws: serve: %w", err)
}

// ClientOption configures a Client.
type ClientOption struct {
	URL             string // e.g. ws://host:port/path
	HandshakeTimeout time.Duration
}

// Client dials WebSocket connections.
type Client struct {
	opt ClientOption
}

// NewClient builds a Client from opt.
func NewClient(opt ClientOption) *Client {
	return &Client{opt: opt}
}

func (c *Client) Name() string { return "ws" }

func (c *Client) Connect(ctx context.Context) (transport.Stream, error) {
	dialer := websocket.Dialer{HandshakeTimeout: c.opt.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.opt.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("ws: dial %s: %w", c.opt.URL, err)
	}
	return wrapConn(conn), nil
}

// wsConn adapts a *websocket.Conn's message framing to a continuous byte
// stream: a read that exhausts one message's reader transparently moves to
// the next, so callers never see message boundaries.
type wsConn struct {
	*websocket.Conn
	reader io.Reader
}

func wrapConn(c *websocket.Conn) *wsConn {
	return &wsConn{Conn: c}
}

func (c *wsConn) Read(p []byte) (int, error) {
	for {
		if c.reader == nil {
			_, r, err := c.Conn.NextReader()
			if err != nil {
				return 0, err
			}
			c.reader = r
		}
		n, err := c.reader.Read(p)
		if errors.Is(err, io.EOF) {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *wsConn) Write(p []byte) (int, error) {
	if err := c.Conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) Close() error { return c.Conn.Close() }

func (c *wsConn) IsEmpty() bool { return false }

// SetDeadline fills in the last net.Conn method gorilla's websocket.Conn
// does not itself expose (it has SetReadDeadline/SetWriteDeadline; Read and
// Write are supplied above).
func (c *wsConn) SetDeadline(t time.Time) error {
	if err := c.Conn.SetReadDeadline(t); err != nil {
		return err
	}
	return c.Conn.SetWriteDeadline(t)
}
