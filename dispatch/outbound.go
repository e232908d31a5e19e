package dispatch

import (
	"time"

	"github.com/un5af3/kapibara/service"
	"github.com/un5af3/kapibara/transport"
)

// DefaultIdleTimeout applies to any outbound that does not set one
// explicitly.
const DefaultIdleTimeout = 30 * time.Second

// OutboundOption declares one outbound entry: a tag the route table sends
// traffic to, the transport client used to reach the upstream, the protocol
// service that carries the destination, and the idle timeout applied to the
// resulting stream.
type OutboundOption struct {
	Tag         string
	Client      transport.Client
	Service     service.OutboundService
	IdleTimeout time.Duration
}

type outbound struct {
	tag         string
	client      transport.Client
	service     service.OutboundService
	idleTimeout time.Duration
}
