package dispatch

import (
	"context"
	"io"
	"net"

	"github.com/sirupsen/logrus"

	"github.com/un5af3/kapibara/common/streamio"
	"github.com/un5af3/kapibara/service"
)

// handleConn runs the per-connection pipeline for one accepted inbound
// connection:
//
//  1. Inbound handshake: authenticate the peer and recover its destination.
//  2. Route lookup: find which outbound this inbound's traffic goes to.
//  3. Log the dispatch line: both tags, both service names, handshake
//     detail, peer address, and typ://dest.
//  4. DNS resolution: turn a domain destination into a socket destination.
//  5. Outbound dial: connect the routed outbound's transport client.
//  6/7. Outbound handshake and idle-timer placement (see below).
//  8. Splice: copy bytes in both directions until either side is done.
//
// Steps 6 and 7 run in one of two orders depending on whether the dialed
// outbound stream IsEmpty (the direct outbound's null stream, which stands
// in for "no real socket yet" while the outbound service dials one itself):
// an empty stream runs its handshake first, since the handshake is what
// produces the real connection to apply a timeout to; a non-empty stream is
// wrapped in the idle timer before its handshake runs, so the handshake
// itself is subject to the same idle timeout as the data that follows it.
func (d *Dispatcher) handleConn(ctx context.Context, in *inbound, conn net.Conn) {
	d.trackConn(conn)
	defer d.untrackConn(conn)
	defer conn.Close()

	log := d.log.WithField("inbound", in.tag).WithField("remote", conn.RemoteAddr())

	stream, pkt, err := in.service.Handshake(ctx, conn)
	if err != nil {
		log.WithError(wrapErr(KindService, in.tag, err)).Error("inbound handshake failed")
		return
	}

	rule, ok := d.route.Lookup(in.tag)
	if !ok {
		log.Warn("no route for inbound")
		return
	}
	out, ok := d.outbounds[rule.OutboundTag]
	if !ok {
		log.WithField("outbound", rule.OutboundTag).Error("route points at unknown outbound")
		return
	}
	log = log.WithField("outbound", rule.OutboundTag)

	log.WithFields(logrus.Fields{
		"inbound_service":  in.service.Name(),
		"outbound_service": out.service.Name(),
		"detail":           pkt.Detail,
	}).Infof("[dispatch] [%s(%s) -> %s(%s)] (<%s>%s) %s://%s",
		in.tag, in.service.Name(), rule.OutboundTag, out.service.Name(),
		conn.RemoteAddr(), pkt.Detail, pkt.Type, pkt.Dest)

	dest := pkt.Dest
	if d.resolver != nil && rule.DNS && dest.IsDomain() {
		endpoints, err := d.resolver.Resolve(ctx, dest.Domain(), dest.Port())
		if err != nil {
			log.WithError(wrapErr(KindDNSResolve, dest.Domain(), err)).WithField("domain", dest.Domain()).Warn("dns resolve failed")
			return
		}
		if len(endpoints) == 0 {
			log.WithField("domain", dest.Domain()).Warn("dns resolve returned no endpoints")
			return
		}
		dest = service.SocketAddress(endpoints[0].Addr(), endpoints[0].Port())
	}
	outPkt := service.OutboundPacket{Type: pkt.Type, Dest: dest}

	outStream, err := out.client.Connect(ctx)
	if err != nil {
		log.WithError(wrapErr(KindClient, rule.OutboundTag, err)).Debug("outbound connect failed")
		return
	}

	upstream, err := d.handshakeOutbound(ctx, out, outStream, outPkt)
	if err != nil {
		log.WithError(wrapErr(KindService, rule.OutboundTag, err)).Warn("outbound handshake failed")
		_ = outStream.Close()
		return
	}
	defer upstream.Close()

	if _, _, err := streamio.Copy(stream, upstream); err != nil {
		log.WithError(err).Debug("splice ended")
	}
}

// handshakeOutbound implements the IsEmpty-driven ordering documented on
// handleConn, returning a closer that owns whatever the handshake produced.
func (d *Dispatcher) handshakeOutbound(ctx context.Context, out *outbound, outStream streamCloser, pkt service.OutboundPacket) (io.ReadWriteCloser, error) {
	if outStream.IsEmpty() {
		rw, err := out.service.Handshake(ctx, outStream, pkt)
		if err != nil {
			return nil, err
		}
		return streamio.NewIdleTimer(asReadWriteCloser(rw), out.idleTimeout), nil
	}

	timed := streamio.NewIdleTimer(outStream, out.idleTimeout)
	rw, err := out.service.Handshake(ctx, timed, pkt)
	if err != nil {
		return nil, err
	}
	return asReadWriteCloser(rw), nil
}

// streamCloser is the subset of transport.Stream handshakeOutbound needs;
// defined locally to avoid an import cycle concern should transport ever
// depend on dispatch (it does not today, but the pipeline only ever needs
// these four methods).
type streamCloser interface {
	io.ReadWriteCloser
	IsEmpty() bool
}

func asReadWriteCloser(rw io.ReadWriter) io.ReadWriteCloser {
	if rwc, ok := rw.(io.ReadWriteCloser); ok {
		return rwc
	}
	return nopCloseReadWriter{rw}
}

type nopCloseReadWriter struct {
	io.ReadWriter
}

func (nopCloseReadWriter) Close() error { return nil }
