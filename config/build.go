package config

import (
	"crypto/tls"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/un5af3/kapibara/dispatch"
	"github.com/un5af3/kapibara/resolver"
	"github.com/un5af3/kapibara/service"
	"github.com/un5af3/kapibara/service/direct"
	"github.com/un5af3/kapibara/service/socks"
	"github.com/un5af3/kapibara/service/vless"
	"github.com/un5af3/kapibara/transport"
	"github.com/un5af3/kapibara/transport/tcp"
	"github.com/un5af3/kapibara/transport/tlsconf"
	"github.com/un5af3/kapibara/transport/ws"
)

// Build wires a dispatch.Config from cfg: it constructs the concrete
// transport.Server/Client and service.InboundService/OutboundService each
// entry names and hands them to the dispatcher uninitialized.
func Build(cfg *Config) (dispatch.Config, error) {
	out := dispatch.Config{}

	if len(cfg.DNS.NameServers) > 0 {
		strategy, err := resolver.ParseStrategy(cfg.DNS.Strategy)
		if err != nil {
			return dispatch.Config{}, err
		}
		out.DNS = &resolver.Option{
			Strategy:    strategy,
			Timeout:     cfg.DNS.Timeout.Duration(),
			NameServers: cfg.DNS.NameServers,
		}
	}

	for _, rule := range cfg.Route.Rules {
		out.Route = append(out.Route, dispatch.RouteRuleOption{
			InboundTags: rule.Inbound,
			OutboundTag: rule.Outbound,
			DNS:         rule.DNS,
		})
	}

	for _, in := range cfg.Inbound {
		opt, err := buildInbound(in)
		if err != nil {
			return dispatch.Config{}, fmt.Errorf("config: inbound %q: %w", in.Tag, err)
		}
		out.Inbounds = append(out.Inbounds, opt)
	}

	for _, o := range cfg.Outbound {
		opt, err := buildOutbound(o)
		if err != nil {
			return dispatch.Config{}, fmt.Errorf("config: outbound %q: %w", o.Tag, err)
		}
		out.Outbounds = append(out.Outbounds, opt)
	}

	return out, nil
}

func buildInbound(in Inbound) (dispatch.InboundOption, error) {
	server, err := buildInboundTransport(in)
	if err != nil {
		return dispatch.InboundOption{}, err
	}

	var svc service.InboundService
	switch in.Service {
	case "socks":
		svc = socks.New(socks.Option{Username: in.Username, Password: in.Password})
	case "vless":
		users := make([]uuid.UUID, 0, len(in.Users))
		for _, s := range in.Users {
			id, err := uuid.Parse(s)
			if err != nil {
				return dispatch.InboundOption{}, dispatch.WrapError(dispatch.KindOption, in.Tag, fmt.Errorf("parse user %q: %w", s, err))
			}
			users = append(users, id)
		}
		svc = vless.NewInboundService(vless.InboundOption{Users: users})
	default:
		return dispatch.InboundOption{}, dispatch.WrapError(dispatch.KindOption, in.Tag, fmt.Errorf("unknown inbound service %q", in.Service))
	}

	return dispatch.InboundOption{Tag: in.Tag, Server: server, Service: svc}, nil
}

func buildInboundTransport(in Inbound) (transport.Server, error) {
	var tlsCfg *tls.Config
	if in.TLS != nil {
		cfg, err := serverTLSConfig(*in.TLS)
		if err != nil {
			return nil, err
		}
		tlsCfg = cfg
	}

	switch in.Transport {
	case "tcp", "":
		return tcp.Listen(tcp.ServerOption{Address: in.Address, TLSConfig: tlsCfg})
	case "ws":
		return ws.Listen(ws.ServerOption{Address: in.Address, Path: in.Path})
	default:
		return nil, dispatch.WrapError(dispatch.KindOption, in.Tag, fmt.Errorf("unknown inbound transport %q", in.Transport))
	}
}

func buildOutbound(o Outbound) (dispatch.OutboundOption, error) {
	client, err := buildOutboundTransport(o)
	if err != nil {
		return dispatch.OutboundOption{}, err
	}

	var svc service.OutboundService
	switch o.Service {
	case "direct":
		svc = direct.New(direct.Option{})
	case "vless":
		id, err := uuid.Parse(o.User)
		if err != nil {
			return dispatch.OutboundOption{}, dispatch.WrapError(dispatch.KindOption, o.Tag, fmt.Errorf("parse user %q: %w", o.User, err))
		}
		svc = vless.NewOutboundService(vless.OutboundOption{ID: id})
	default:
		return dispatch.OutboundOption{}, dispatch.WrapError(dispatch.KindOption, o.Tag, fmt.Errorf("unknown outbound service %q", o.Service))
	}

	return dispatch.OutboundOption{
		Tag:         o.Tag,
		Client:      client,
		Service:     svc,
		IdleTimeout: o.IdleTimeout.Duration(),
	}, nil
}

func buildOutboundTransport(o Outbound) (transport.Client, error) {
	switch o.Transport {
	case "":
		return transport.EmptyClient{}, nil
	case "tcp":
		opt := tcp.ClientOption{Address: o.Address, DialTimeout: 10 * time.Second}
		if o.TLS != nil {
			opt.TLSConfig = tlsconf.ClientConfig(tlsconf.ClientOption{InsecureSkipVerify: o.TLS.Insecure})
		}
		return tcp.NewClient(opt), nil
	case "ws":
		return ws.NewClient(ws.ClientOption{URL: o.Address, HandshakeTimeout: 10 * time.Second}), nil
	default:
		return nil, dispatch.WrapError(dispatch.KindOption, o.Tag, fmt.Errorf("unknown outbound transport %q", o.Transport))
	}
}

// serverTLSConfig generates a self-signed certificate for opt.Domains when
// no CertFile/KeyFile is configured, or loads the configured pair.
func serverTLSConfig(opt TLS) (*tls.Config, error) {
	if opt.CertFile != "" && opt.KeyFile != "" {
		certPEM, err := os.ReadFile(opt.CertFile)
		if err != nil {
			return nil, fmt.Errorf("read cert file: %w", err)
		}
		keyPEM, err := os.ReadFile(opt.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("read key file: %w", err)
		}
		return tlsconf.ServerConfig(tlsconf.ServerOption{CertPEM: certPEM, KeyPEM: keyPEM})
	}

	certPEM, keyPEM, err := tlsconf.GenerateSelfSigned(opt.Domains, 0)
	if err != nil {
		return nil, err
	}
	return tlsconf.ServerConfig(tlsconf.ServerOption{CertPEM: certPEM, KeyPEM: keyPEM})
}
