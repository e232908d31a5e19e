// Package dispatch is the core of kapibara: it owns the route table and the
// inbound/outbound registries, drives each inbound's accept loop, and runs
// the per-connection pipeline (Callback) that authenticates a client,
// resolves its destination, dials the routed outbound, and splices the two
// streams together.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/un5af3/kapibara/resolver"
)

// ServerRetry bounds how many times an inbound's Serve loop is restarted
// after it returns a non-nil, non-context error. Exhausting the budget is
// treated as a fatal misconfiguration (e.g. a listener that can never bind)
// and panics rather than silently running with a dead inbound.
const ServerRetry = 30

// serverRetryDelay is the pause between successive restarts of a failed
// inbound Serve loop.
const serverRetryDelay = time.Second

// Config is everything Dispatcher.Init needs to stand up the core: a DNS
// resolver configuration, the route table, and the inbound/outbound
// registries. Concrete transports and protocol services are constructed by
// the caller (see cmd and config) and handed in already wired. DNS is nil
// when the config carries no dns section at all: the dispatcher then runs
// with no resolver, and every route rule's dns flag is effectively
// ignored (domain destinations pass through unresolved, see callback.go).
type Config struct {
	DNS       *resolver.Option
	Route     []RouteRuleOption
	Inbounds  []InboundOption
	Outbounds []OutboundOption
}

// Dispatcher is kapibara's core: Init validates and builds the collaborator
// set, Start launches one accept loop per inbound, and Close aborts every
// in-flight connection and accept loop, idempotently.
type Dispatcher struct {
	log *logrus.Logger

	resolver  *resolver.Resolver
	route     *RouteTable
	inbounds  map[string]*inbound
	outbounds map[string]*outbound

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}
}

// New builds an uninitialized Dispatcher. A nil logger falls back to
// logrus's standard logger.
func New(log *logrus.Logger) *Dispatcher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Dispatcher{
		log:   log,
		conns: make(map[net.Conn]struct{}),
	}
}

// Init builds the resolver, route table, and inbound/outbound registries
// from cfg. It must be called exactly once, before Start. Init performs no
// I/O beyond what building the resolver requires (none: resolver.New
// defers all network access to Resolve).
//
// Init only validates what can be checked without seeing the whole config
// at once: tag uniqueness within each namespace (inbound tags, outbound
// tags, route-rule inbound tags). Whether a route rule's tags actually
// refer to a declared inbound or outbound is referential integrity across
// the full config, and is checked in Start instead (see Start's doc
// comment and spec scenario S5).
func (d *Dispatcher) Init(cfg Config) error {
	var res *resolver.Resolver
	if cfg.DNS != nil {
		var err error
		res, err = resolver.New(*cfg.DNS)
		if err != nil {
			return wrapErr(KindDNSInit, "", err)
		}
	}

	inbounds := make(map[string]*inbound, len(cfg.Inbounds))
	for _, opt := range cfg.Inbounds {
		if _, exists := inbounds[opt.Tag]; exists {
			return errDuplicateTag(opt.Tag)
		}
		inbounds[opt.Tag] = &inbound{tag: opt.Tag, server: opt.Server, service: opt.Service}
	}

	outbounds := make(map[string]*outbound, len(cfg.Outbounds))
	for _, opt := range cfg.Outbounds {
		if _, exists := outbounds[opt.Tag]; exists {
			return errDuplicateTag(opt.Tag)
		}
		timeout := opt.IdleTimeout
		if timeout == 0 {
			timeout = DefaultIdleTimeout
		}
		outbounds[opt.Tag] = &outbound{
			tag:         opt.Tag,
			client:      opt.Client,
			service:     opt.Service,
			idleTimeout: timeout,
		}
	}

	route, err := newRouteTable(cfg.Route)
	if err != nil {
		return err
	}

	d.resolver = res
	d.route = route
	d.inbounds = inbounds
	d.outbounds = outbounds
	return nil
}

// Start checks the route table's referential integrity against the
// inbound/outbound registries built by Init, then launches one accept loop
// per inbound and returns immediately; the loops, and every connection they
// spawn, run until Close is called. If any route rule names an unknown
// inbound or outbound tag, Start returns an error and spawns nothing.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return errors.New("dispatch: Start called on a closed Dispatcher")
	}

	for tag := range d.route.rules {
		if _, ok := d.inbounds[tag]; !ok {
			d.mu.Unlock()
			return errUnknownTag(tag)
		}
	}
	for _, tag := range d.route.OutboundTags() {
		if _, ok := d.outbounds[tag]; !ok {
			d.mu.Unlock()
			return errUnknownTag(tag)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.mu.Unlock()

	for _, in := range d.inbounds {
		in := in
		d.log.WithField("inbound", in.tag).WithField("addr", in.server.Addr()).Info("inbound starting")
		d.wg.Add(1)
		go d.runInbound(runCtx, in)
	}
	return nil
}

func (d *Dispatcher) runInbound(ctx context.Context, in *inbound) {
	defer d.wg.Done()

	retries := 0
	for {
		err := in.server.Serve(ctx, func(cbCtx context.Context, conn net.Conn, _ net.Addr) {
			d.wg.Add(1)
			go func() {
				defer d.wg.Done()
				d.handleConn(cbCtx, in, conn)
			}()
		})
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			return
		}

		retries++
		d.log.WithError(wrapErr(KindServer, in.tag, err)).WithField("inbound", in.tag).Error("inbound server stopped, restarting")
		if retries >= ServerRetry {
			panic(fmt.Sprintf("dispatch: inbound %q exhausted %d restarts: %v", in.tag, ServerRetry, err))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(serverRetryDelay):
		}
	}
}

// Close aborts every accept loop and in-flight connection, then waits for
// them to unwind. It is idempotent: calling it more than once is a no-op.
// Calling it before Start marks the Dispatcher closed, so a later Start
// returns an error.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	cancel := d.cancel
	d.mu.Unlock()

	if cancel != nil {
		cancel()
		for _, in := range d.inbounds {
			d.log.WithField("inbound", in.tag).Info("inbound closing")
		}
	}

	d.connsMu.Lock()
	for c := range d.conns {
		_ = c.Close()
	}
	d.connsMu.Unlock()

	d.wg.Wait()
	return nil
}

func (d *Dispatcher) trackConn(c net.Conn) {
	d.connsMu.Lock()
	d.conns[c] = struct{}{}
	d.connsMu.Unlock()
}

func (d *Dispatcher) untrackConn(c net.Conn) {
	d.connsMu.Lock()
	delete(d.conns, c)
	d.connsMu.Unlock()
}
