package dispatch

import (
	"github.com/un5af3/kapibara/service"
	"github.com/un5af3/kapibara/transport"
)

// InboundOption declares one inbound entry: a tag the route table refers to,
// the transport server it listens on, and the protocol service that
// authenticates each accepted connection.
type InboundOption struct {
	Tag     string
	Server  transport.Server
	Service service.InboundService
}

type inbound struct {
	tag     string
	server  transport.Server
	service service.InboundService
}
