// Package resolver is the DNS facade the dispatcher uses to turn a domain
// Address into a socket Address before an outbound handshake runs. It
// speaks the DNS wire protocol directly against configured name servers
// (via github.com/miekg/dns) rather than going through the OS resolver, so
// behavior does not depend on /etc/resolv.conf or nsswitch.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/miekg/dns"
)

// Strategy selects which address families to query and in what order.
type Strategy int

const (
	Ipv4Only Strategy = iota
	Ipv6Only
	Ipv4ThenIPv6
	Ipv6ThenIPv4
)

func (s Strategy) String() string {
	switch s {
	case Ipv4Only:
		return "ipv4_only"
	case Ipv6Only:
		return "ipv6_only"
	case Ipv4ThenIPv6:
		return "ipv4_then_ipv6"
	case Ipv6ThenIPv4:
		return "ipv6_then_ipv4"
	default:
		return "unknown"
	}
}

// ParseStrategy maps a config string to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "ipv4_only":
		return Ipv4Only, nil
	case "ipv6_only":
		return Ipv6Only, nil
	case "ipv4_then_ipv6", "":
		return Ipv4ThenIPv6, nil
	case "ipv6_then_ipv4":
		return Ipv6ThenIPv4, nil
	default:
		return 0, fmt.Errorf("resolver: unknown strategy %q", s)
	}
}

const defaultTimeout = 5 * time.Second
const defaultDNSPort = "53"

// Option configures a Resolver. NameServers are tried in order, each as
// "host" or "host:port" (port defaults to 53).
type Option struct {
	Strategy    Strategy
	Timeout     time.Duration
	NameServers []string
}

// Resolver answers forward lookups for the strategy and name servers it was
// built with. Construction performs no I/O; only Resolve touches the
// network.
type Resolver struct {
	opt    Option
	client *dns.Client
}

// New validates opt and builds a Resolver. It does not contact any name
// server.
func New(opt Option) (*Resolver, error) {
	if len(opt.NameServers) == 0 {
		return nil, errors.New("resolver: at least one name server is required")
	}
	if opt.Timeout <= 0 {
		opt.Timeout = defaultTimeout
	}

	servers := make([]string, len(opt.NameServers))
	for i, ns := range opt.NameServers {
		servers[i] = withDefaultPort(ns)
	}
	opt.NameServers = servers

	return &Resolver{
		opt:    opt,
		client: &dns.Client{Timeout: opt.Timeout},
	}, nil
}

func withDefaultPort(ns string) string {
	if _, _, err := net.SplitHostPort(ns); err == nil {
		return ns
	}
	return net.JoinHostPort(ns, defaultDNSPort)
}

// Resolve looks up domain according to the Resolver's strategy, returning
// the matching addresses from the first configured name server that answers
// with any, each as a socket endpoint carrying port. Callers take the first endpoint (see
// dispatch.Callback's destination-rewriting step).
func (r *Resolver) Resolve(ctx context.Context, domain string, port uint16) ([]netip.AddrPort, error) {
	addrs, err := r.lookup(ctx, domain)
	if err != nil {
		return nil, err
	}
	endpoints := make([]netip.AddrPort, len(addrs))
	for i, addr := range addrs {
		endpoints[i] = netip.AddrPortFrom(addr, port)
	}
	return endpoints, nil
}

func (r *Resolver) lookup(ctx context.Context, host string) ([]netip.Addr, error) {
	switch r.opt.Strategy {
	case Ipv4Only:
		return r.query(ctx, host, dns.TypeA)
	case Ipv6Only:
		return r.query(ctx, host, dns.TypeAAAA)
	case Ipv6ThenIPv4:
		if addrs, err := r.query(ctx, host, dns.TypeAAAA); err == nil {
			return addrs, nil
		}
		return r.query(ctx, host, dns.TypeA)
	case Ipv4ThenIPv6:
		fallthrough
	default:
		if addrs, err := r.query(ctx, host, dns.TypeA); err == nil {
			return addrs, nil
		}
		return r.query(ctx, host, dns.TypeAAAA)
	}
}

func (r *Resolver) query(ctx context.Context, host string, qtype uint16) ([]netip.Addr, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(host), qtype)
	msg.RecursionDesired = true

	var lastErr error
	for _, ns := range r.opt.NameServers {
		resp, _, err := r.client.ExchangeContext(ctx, msg, ns)
		if err != nil {
			lastErr = fmt.Errorf("resolver: query %s via %s: %w", host, ns, err)
			continue
		}
		if resp.Rcode != dns.RcodeSuccess {
			lastErr = fmt.Errorf("resolver: %s answered %s for %s", ns, dns.RcodeToString[resp.Rcode], host)
			continue
		}

		var addrs []netip.Addr
		for _, rr := range resp.Answer {
			switch rec := rr.(type) {
			case *dns.A:
				if addr, ok := netip.AddrFromSlice(rec.A.To4()); ok {
					addrs = append(addrs, addr)
				}
			case *dns.AAAA:
				if addr, ok := netip.AddrFromSlice(rec.AAAA.To16()); ok {
					addrs = append(addrs, addr)
				}
			}
		}
		if len(addrs) > 0 {
			return addrs, nil
		}
		lastErr = fmt.Errorf("resolver: no matching records for %s from %s", host, ns)
	}

	if lastErr == nil {
		lastErr = errors.New("resolver: no name servers configured")
	}
	return nil, lastErr
}
