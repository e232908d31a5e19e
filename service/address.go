// Package service defines the capability sets that the dispatcher drives on
// either side of a connection: an InboundService authenticates a client and
// recovers its intended destination, an OutboundService carries that
// destination to an upstream. Concrete protocols (socks, vless, direct) live
// in sibling packages and only need to satisfy these two interfaces.
package service

import (
	"fmt"
	"net/netip"
)

// Network is the transport-level network a packet was exchanged over. It is
// informational only: the core never branches its splice behavior on it.
type Network int

const (
	NetworkUnknown Network = iota
	NetworkTCP
	NetworkUDP
)

func (n Network) String() string {
	switch n {
	case NetworkTCP:
		return "tcp"
	case NetworkUDP:
		return "udp"
	default:
		return "unknown"
	}
}

// Address is a tagged union: either a literal socket endpoint or an opaque
// domain+port pair. The core never parses the domain form; only a DNS
// resolver (see package resolver) turns it into a socket endpoint.
type Address struct {
	domain string
	ip     netip.Addr
	port   uint16
}

// DomainAddress builds a domain-form Address. The domain is kept opaque.
func DomainAddress(domain string, port uint16) Address {
	return Address{domain: domain, port: port}
}

// SocketAddress builds a literal socket-endpoint Address.
func SocketAddress(ip netip.Addr, port uint16) Address {
	return Address{ip: ip, port: port}
}

// IsDomain reports whether this Address carries an unresolved domain name.
func (a Address) IsDomain() bool {
	return a.domain != ""
}

// Domain returns the domain name. Only valid when IsDomain is true.
func (a Address) Domain() string {
	return a.domain
}

// IP returns the literal IP. Only valid when IsDomain is false.
func (a Address) IP() netip.Addr {
	return a.ip
}

// Port returns the destination port, valid regardless of address form.
func (a Address) Port() uint16 {
	return a.port
}

// AddrPort returns the net.AddrPort equivalent. Only valid when IsDomain is
// false.
func (a Address) AddrPort() netip.AddrPort {
	return netip.AddrPortFrom(a.ip, a.port)
}

func (a Address) String() string {
	if a.IsDomain() {
		return fmt.Sprintf("%s:%d", a.domain, a.port)
	}
	return a.AddrPort().String()
}

// InboundPacket is produced once by an inbound service handshake: the
// negotiated destination, the (informational) network type, and free-form
// detail text describing the authenticated user, used only for logging.
type InboundPacket struct {
	Type   Network
	Dest   Address
	Detail string
}

// OutboundPacket is built by the dispatcher Callback from an InboundPacket:
// same network type, destination possibly rewritten to socket form by DNS.
type OutboundPacket struct {
	Type Network
	Dest Address
}
