// Package vless implements a simplified VLESS service: a UUID-authenticated
// framed protocol carrying a single CONNECT-style request per connection.
// It deliberately omits Vision, XTLS, REALITY and Mux.
package vless

import (
	"encoding/binary"
	"errors"
	"io"
	"net/netip"

	"github.com/google/uuid"

	"github.com/un5af3/kapibara/service"
)

const protocolVersion = 0

const (
	cmdTCP = 0x01
	cmdUDP = 0x02
)

const (
	atypIPv4   = 0x01
	atypDomain = 0x02
	atypIPv6   = 0x03
)

var (
	ErrUnsupportedVersion = errors.New("vless: unsupported protocol version")
	ErrUnknownUser        = errors.New("vless: unknown user id")
	ErrUnsupportedCommand = errors.New("vless: unsupported command")
)

// request is the fixed-layout VLESS request header: version, user id,
// addon length (always 0 in this simplified protocol, but still framed so
// a future addon could be added without breaking the wire format), command,
// port, address.
type request struct {
	id   uuid.UUID
	cmd  byte
	dest service.Address
}

func readRequest(r io.Reader) (request, error) {
	hdr := make([]byte, 1+16+1)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return request{}, err
	}
	if hdr[0] != protocolVersion {
		return request{}, ErrUnsupportedVersion
	}
	id, err := uuid.FromBytes(hdr[1:17])
	if err != nil {
		return request{}, err
	}
	addonLen := hdr[17]
	if addonLen > 0 {
		if _, err := io.CopyN(io.Discard, r, int64(addonLen)); err != nil {
			return request{}, err
		}
	}

	var cmdPort [3]byte
	if _, err := io.ReadFull(r, cmdPort[:]); err != nil {
		return request{}, err
	}
	cmd := cmdPort[0]
	port := binary.BigEndian.Uint16(cmdPort[1:3])

	var atyp [1]byte
	if _, err := io.ReadFull(r, atyp[:]); err != nil {
		return request{}, err
	}

	dest, err := readAddress(r, atyp[0], port)
	if err != nil {
		return request{}, err
	}

	return request{id: id, cmd: cmd, dest: dest}, nil
}

func writeRequest(w io.Writer, id uuid.UUID, cmd byte, dest service.Address) error {
	buf := make([]byte, 0, 1+16+1+3)
	buf = append(buf, protocolVersion)
	idBytes, _ := id.MarshalBinary()
	buf = append(buf, idBytes...)
	buf = append(buf, 0) // addon length
	buf = append(buf, cmd)
	buf = binary.BigEndian.AppendUint16(buf, dest.Port())

	addrBytes, err := encodeAddress(dest)
	if err != nil {
		return err
	}
	buf = append(buf, addrBytes...)

	_, err = w.Write(buf)
	return err
}

func readAddress(r io.Reader, atyp byte, port uint16) (service.Address, error) {
	switch atyp {
	case atypIPv4:
		var b [4]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return service.Address{}, err
		}
		return service.SocketAddress(netip.AddrFrom4(b), port), nil
	case atypIPv6:
		var b [16]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return service.Address{}, err
		}
		return service.SocketAddress(netip.AddrFrom16(b), port), nil
	case atypDomain:
		var nlen [1]byte
		if _, err := io.ReadFull(r, nlen[:]); err != nil {
			return service.Address{}, err
		}
		name := make([]byte, nlen[0])
		if _, err := io.ReadFull(r, name); err != nil {
			return service.Address{}, err
		}
		return service.DomainAddress(string(name), port), nil
	default:
		return service.Address{}, errors.New("vless: unsupported address type")
	}
}

func encodeAddress(addr service.Address) ([]byte, error) {
	if addr.IsDomain() {
		name := addr.Domain()
		if len(name) > 255 {
			return nil, errors.New("vless: domain too long")
		}
		return append([]byte{atypDomain, byte(len(name))}, name...), nil
	}
	ip := addr.IP()
	switch {
	case ip.Is4():
		b := ip.As4()
		return append([]byte{atypIPv4}, b[:]...), nil
	case ip.Is6():
		b := ip.As16()
		return append([]byte{atypIPv6}, b[:]...), nil
	default:
		return nil, errors.New("vless: invalid destination address")
	}
}

func writeResponse(w io.Writer) error {
	_, err := w.Write([]byte{protocolVersion, 0})
	return err
}

func readResponse(r io.Reader) error {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return err
	}
	if hdr[0] != protocolVersion {
		return ErrUnsupportedVersion
	}
	if hdr[1] > 0 {
		if _, err := io.CopyN(io.Discard, r, int64(hdr[1])); err != nil {
			return err
		}
	}
	return nil
}
