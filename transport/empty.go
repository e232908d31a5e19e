package transport

import "context"

// EmptyStream is the null Stream backing the default direct-outbound
// client: it carries no real socket (Read/Write/Close are no-ops) and
// reports IsEmpty() == true so the dispatcher runs the outbound service's
// handshake before applying an idle timer, since for a direct outbound the
// handshake is what produces the real connection.
type EmptyStream struct{}

func (EmptyStream) Read([]byte) (int, error)  { return 0, nil }
func (EmptyStream) Write(p []byte) (int, error) { return len(p), nil }
func (EmptyStream) Close() error              { return nil }
func (EmptyStream) IsEmpty() bool             { return true }

// EmptyClient always hands back an EmptyStream: used by the direct outbound,
// whose OutboundService dials the real connection itself during Handshake.
type EmptyClient struct{}

func (EmptyClient) Connect(context.Context) (Stream, error) { return EmptyStream{}, nil }
func (EmptyClient) Name() string                            { return "empty" }
