package socks

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clientConn struct {
	toServer   bytes.Buffer
	fromServer bytes.Buffer
}

func connectRequest(atyp byte, addr []byte, port uint16) []byte {
	req := []byte{version5, cmdConnect, 0x00, atyp}
	req = append(req, addr...)
	req = append(req, byte(port>>8), byte(port))
	return req
}

func TestHandshakeNoAuthConnectDomain(t *testing.T) {
	var wire bytes.Buffer
	wire.Write([]byte{version5, 1, methodNoAuth})                           // greeting
	wire.Write(connectRequest(atypDomain, append([]byte{11}, "example.com"...), 80))

	svc := New(Option{})
	stream := &loopStream{in: wire.Bytes()}

	out, pkt, err := svc.Handshake(context.Background(), stream)
	require.NoError(t, err)
	assert.Same(t, stream, out)
	assert.True(t, pkt.Dest.IsDomain())
	assert.Equal(t, "example.com", pkt.Dest.Domain())
	assert.EqualValues(t, 80, pkt.Dest.Port())

	resp := stream.out.Bytes()
	require.Len(t, resp, 2+10)
	assert.Equal(t, []byte{version5, methodNoAuth}, resp[:2])
	assert.Equal(t, byte(replySucceeded), resp[3])
}

func TestHandshakeUserPassSuccess(t *testing.T) {
	var wire bytes.Buffer
	wire.Write([]byte{version5, 1, methodUserPass})
	wire.Write([]byte{authVersion1, 4})
	wire.WriteString("user")
	wire.Write([]byte{4})
	wire.WriteString("pass")
	wire.Write(connectRequest(atypIPv4, []byte{1, 2, 3, 4}, 443))

	svc := New(Option{Username: "user", Password: "pass"})
	stream := &loopStream{in: wire.Bytes()}

	_, pkt, err := svc.Handshake(context.Background(), stream)
	require.NoError(t, err)
	assert.Equal(t, "user", pkt.Detail)
	assert.False(t, pkt.Dest.IsDomain())
}

func TestHandshakeUserPassWrongCredentials(t *testing.T) {
	var wire bytes.Buffer
	wire.Write([]byte{version5, 1, methodUserPass})
	wire.Write([]byte{authVersion1, 4})
	wire.WriteString("user")
	wire.Write([]byte{5})
	wire.WriteString("wrong")

	svc := New(Option{Username: "user", Password: "pass"})
	stream := &loopStream{in: wire.Bytes()}

	_, _, err := svc.Handshake(context.Background(), stream)
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestHandshakeRejectsBind(t *testing.T) {
	var wire bytes.Buffer
	wire.Write([]byte{version5, 1, methodNoAuth})
	wire.Write([]byte{version5, 0x02, 0x00, atypIPv4, 1, 2, 3, 4, 0, 80})

	svc := New(Option{})
	stream := &loopStream{in: wire.Bytes()}

	_, _, err := svc.Handshake(context.Background(), stream)
	assert.ErrorIs(t, err, ErrUnsupportedCommand)

	resp := stream.out.Bytes()
	assert.Equal(t, byte(replyCommandNotSupported), resp[3])
}

// loopStream is an io.ReadWriter fed by a fixed input buffer, recording
// everything written to it.
type loopStream struct {
	in  []byte
	out bytes.Buffer
}

func (s *loopStream) Read(p []byte) (int, error) {
	if len(s.in) == 0 {
		return 0, io.EOF
	}
	n := copy(p, s.in)
	s.in = s.in[n:]
	return n, nil
}

func (s *loopStream) Write(p []byte) (int, error) {
	return s.out.Write(p)
}
