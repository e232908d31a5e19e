// Package socks implements a SOCKS5 inbound service: RFC 1928 method
// negotiation, optional RFC 1929 username/password subnegotiation, and
// CONNECT requests only (BIND and UDP ASSOCIATE are rejected).
package socks

import (
	"encoding/binary"
	"errors"
	"io"
	"net/netip"

	"github.com/un5af3/kapibara/service"
)

const version5 = 0x05

const (
	methodNoAuth   = 0x00
	methodUserPass = 0x02
	methodNoAccept = 0xFF
)

const (
	cmdConnect      = 0x01
	cmdUDPAssociate = 0x03
)

const (
	atypIPv4   = 0x01
	atypDomain = 0x03
	atypIPv6   = 0x04
)

const (
	replySucceeded           = 0x00
	replyGeneralFailure      = 0x01
	replyCommandNotSupported = 0x07
	replyAddressNotSupported = 0x08
)

const (
	authVersion1 = 0x01
	authSuccess  = 0x00
	authFailure  = 0x01
)

var (
	ErrUnsupportedVersion     = errors.New("socks: unsupported protocol version")
	ErrUnsupportedCommand     = errors.New("socks: unsupported command")
	ErrUnsupportedAddressType = errors.New("socks: unsupported address type")
	ErrAuthFailed             = errors.New("socks: authentication failed")
)

// readGreeting reads the client's version + method list (RFC 1928 §3).
func readGreeting(r io.Reader) ([]byte, error) {
	hdr := make([]byte, 2)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, err
	}
	if hdr[0] != version5 {
		return nil, ErrUnsupportedVersion
	}
	methods := make([]byte, hdr[1])
	if _, err := io.ReadFull(r, methods); err != nil {
		return nil, err
	}
	return methods, nil
}

func writeMethodSelection(w io.Writer, method byte) error {
	_, err := w.Write([]byte{version5, method})
	return err
}

func containsMethod(methods []byte, m byte) bool {
	for _, v := range methods {
		if v == m {
			return true
		}
	}
	return false
}

// readUserPass reads a RFC 1929 username/password subnegotiation request.
func readUserPass(r io.Reader) (user, pass string, err error) {
	hdr := make([]byte, 2)
	if _, err = io.ReadFull(r, hdr); err != nil {
		return "", "", err
	}
	if hdr[0] != authVersion1 {
		return "", "", ErrUnsupportedVersion
	}

	ubuf := make([]byte, hdr[1])
	if _, err = io.ReadFull(r, ubuf); err != nil {
		return "", "", err
	}

	var plen [1]byte
	if _, err = io.ReadFull(r, plen[:]); err != nil {
		return "", "", err
	}
	pbuf := make([]byte, plen[0])
	if _, err = io.ReadFull(r, pbuf); err != nil {
		return "", "", err
	}

	return string(ubuf), string(pbuf), nil
}

func writeAuthResult(w io.Writer, ok bool) error {
	status := byte(authSuccess)
	if !ok {
		status = authFailure
	}
	_, err := w.Write([]byte{authVersion1, status})
	return err
}

// readRequest reads a RFC 1928 §4 request: CMD, ATYP, and the destination
// address in whichever of the three forms ATYP selects.
func readRequest(r io.Reader) (cmd byte, dest service.Address, err error) {
	hdr := make([]byte, 4)
	if _, err = io.ReadFull(r, hdr); err != nil {
		return 0, service.Address{}, err
	}
	if hdr[0] != version5 {
		return 0, service.Address{}, ErrUnsupportedVersion
	}
	cmd = hdr[1]
	atyp := hdr[3]

	switch atyp {
	case atypIPv4:
		var b [4]byte
		if _, err = io.ReadFull(r, b[:]); err != nil {
			return 0, service.Address{}, err
		}
		port, err := readPort(r)
		if err != nil {
			return 0, service.Address{}, err
		}
		return cmd, service.SocketAddress(netip.AddrFrom4(b), port), nil

	case atypIPv6:
		var b [16]byte
		if _, err = io.ReadFull(r, b[:]); err != nil {
			return 0, service.Address{}, err
		}
		port, err := readPort(r)
		if err != nil {
			return 0, service.Address{}, err
		}
		return cmd, service.SocketAddress(netip.AddrFrom16(b), port), nil

	case atypDomain:
		var nlen [1]byte
		if _, err = io.ReadFull(r, nlen[:]); err != nil {
			return 0, service.Address{}, err
		}
		name := make([]byte, nlen[0])
		if _, err = io.ReadFull(r, name); err != nil {
			return 0, service.Address{}, err
		}
		port, err := readPort(r)
		if err != nil {
			return 0, service.Address{}, err
		}
		return cmd, service.DomainAddress(string(name), port), nil

	default:
		return 0, service.Address{}, ErrUnsupportedAddressType
	}
}

func readPort(r io.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

// writeReply writes a RFC 1928 §6 reply. BND.ADDR/BND.PORT are purely
// informational for CONNECT replies and are reported as 0.0.0.0:0.
func writeReply(w io.Writer, rep byte) error {
	msg := []byte{version5, rep, 0x00, atypIPv4, 0, 0, 0, 0, 0, 0}
	_, err := w.Write(msg)
	return err
}
