package dispatch

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/un5af3/kapibara/resolver"
	"github.com/un5af3/kapibara/service"
	"github.com/un5af3/kapibara/transport"
)

// startStubDNSServer runs an in-process DNS server over loopback UDP that
// answers every A query for "localhost." with 127.0.0.1 (other queries get
// no answer records), returning the name-server address to pass to
// resolver.Option.
func startStubDNSServer(t *testing.T) string {
	t.Helper()

	mux := dns.NewServeMux()
	mux.HandleFunc("localhost.", func(w dns.ResponseWriter, req *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(req)
		if req.Question[0].Qtype == dns.TypeA {
			rr, _ := dns.NewRR("localhost. 60 IN A 127.0.0.1")
			m.Answer = append(m.Answer, rr)
		}
		_ = w.WriteMsg(m)
	})

	pc, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)

	server := &dns.Server{PacketConn: pc, Handler: mux}
	go func() { _ = server.ActivateAndServe() }()
	t.Cleanup(func() { _ = server.Shutdown() })

	return pc.LocalAddr().String()
}

// capturingOutboundService records the OutboundPacket it was handed, so
// tests can assert on the (possibly DNS-rewritten) destination the outbound
// service actually observes.
type capturingOutboundService struct {
	mu  sync.Mutex
	got *service.OutboundPacket
}

func (c *capturingOutboundService) Name() string { return "capturing-outbound" }
func (c *capturingOutboundService) Handshake(_ context.Context, stream io.ReadWriter, pkt service.OutboundPacket) (io.ReadWriter, error) {
	c.mu.Lock()
	c.got = &pkt
	c.mu.Unlock()
	return stream, nil
}
func (c *capturingOutboundService) packet() *service.OutboundPacket {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.got
}

// fakeServer hands every conn sent on incoming to the dispatcher's
// callback, until ctx is cancelled.
type fakeServer struct {
	incoming chan net.Conn
	failOnce bool
	failed   bool
}

func (s *fakeServer) Serve(ctx context.Context, cb transport.ServerCallback) error {
	if s.failOnce && !s.failed {
		s.failed = true
		return errors.New("simulated accept failure")
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case conn := <-s.incoming:
			cb(ctx, conn, conn.RemoteAddr())
		}
	}
}

func (s *fakeServer) Addr() net.Addr { return &net.TCPAddr{Port: 1} }
func (s *fakeServer) Name() string   { return "fake-server" }

type fakeInboundService struct {
	pkt service.InboundPacket
}

func (f *fakeInboundService) Name() string { return "fake-inbound" }
func (f *fakeInboundService) Handshake(_ context.Context, stream io.ReadWriter) (io.ReadWriter, service.InboundPacket, error) {
	return stream, f.pkt, nil
}

type passthroughOutboundService struct{}

func (passthroughOutboundService) Name() string { return "fake-outbound" }
func (passthroughOutboundService) Handshake(_ context.Context, stream io.ReadWriter, _ service.OutboundPacket) (io.ReadWriter, error) {
	return stream, nil
}

type fakeStream struct {
	net.Conn
	empty bool
}

func (s fakeStream) IsEmpty() bool { return s.empty }

type fakeClient struct {
	stream transport.Stream
	err    error
}

func (c *fakeClient) Connect(_ context.Context) (transport.Stream, error) {
	return c.stream, c.err
}
func (c *fakeClient) Name() string { return "fake-client" }

func testResolverOption() *resolver.Option {
	return &resolver.Option{NameServers: []string{"127.0.0.1:1"}}
}

func TestDispatcherEndToEndSplice(t *testing.T) {
	clientSide, inboundSide := net.Pipe()
	upstreamSide, outboundSide := net.Pipe()

	incoming := make(chan net.Conn, 1)
	incoming <- inboundSide

	d := New(nil)
	err := d.Init(Config{
		DNS: testResolverOption(),
		Inbounds: []InboundOption{{
			Tag:     "in",
			Server:  &fakeServer{incoming: incoming},
			Service: &fakeInboundService{pkt: service.InboundPacket{Dest: service.DomainAddress("example.test", 80)}},
		}},
		Outbounds: []OutboundOption{{
			Tag:         "out",
			Client:      &fakeClient{stream: fakeStream{Conn: outboundSide, empty: false}},
			Service:     passthroughOutboundService{},
			IdleTimeout: time.Second,
		}},
		Route: []RouteRuleOption{{InboundTags: []string{"in"}, OutboundTag: "out"}},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, d.Start(ctx))
	defer d.Close()

	go func() {
		_, _ = clientSide.Write([]byte("hello"))
	}()

	buf := make([]byte, 5)
	_ = upstreamSide.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := io.ReadFull(upstreamSide, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))

	go func() {
		_, _ = upstreamSide.Write([]byte("world"))
	}()
	_ = clientSide.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err = io.ReadFull(clientSide, buf)
	require.NoError(t, err)
	assert.Equal(t, "world", string(buf[:n]))
}

func TestDispatcherDNSRewrite(t *testing.T) {
	nsAddr := startStubDNSServer(t)

	clientSide, inboundSide := net.Pipe()
	_, outboundSide := net.Pipe()

	incoming := make(chan net.Conn, 1)
	incoming <- inboundSide

	outSvc := &capturingOutboundService{}
	d := New(nil)
	err := d.Init(Config{
		DNS: &resolver.Option{Strategy: resolver.Ipv4Only, NameServers: []string{nsAddr}, Timeout: 2 * time.Second},
		Inbounds: []InboundOption{{
			Tag:     "in",
			Server:  &fakeServer{incoming: incoming},
			Service: &fakeInboundService{pkt: service.InboundPacket{Dest: service.DomainAddress("localhost", 80)}},
		}},
		Outbounds: []OutboundOption{{
			Tag:         "out",
			Client:      &fakeClient{stream: fakeStream{Conn: outboundSide, empty: false}},
			Service:     outSvc,
			IdleTimeout: time.Second,
		}},
		Route: []RouteRuleOption{{InboundTags: []string{"in"}, OutboundTag: "out", DNS: true}},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, d.Start(ctx))
	defer d.Close()

	clientSide.Close()

	require.Eventually(t, func() bool { return outSvc.packet() != nil }, 2*time.Second, 10*time.Millisecond)
	got := outSvc.packet()
	assert.False(t, got.Dest.IsDomain())
	assert.Equal(t, "127.0.0.1", got.Dest.IP().String())
	assert.Equal(t, uint16(80), got.Dest.Port())
}

func TestDispatcherDNSBypass(t *testing.T) {
	clientSide, inboundSide := net.Pipe()
	_, outboundSide := net.Pipe()

	incoming := make(chan net.Conn, 1)
	incoming <- inboundSide

	outSvc := &capturingOutboundService{}
	d := New(nil)
	err := d.Init(Config{
		DNS: testResolverOption(),
		Inbounds: []InboundOption{{
			Tag:     "in",
			Server:  &fakeServer{incoming: incoming},
			Service: &fakeInboundService{pkt: service.InboundPacket{Dest: service.DomainAddress("localhost", 80)}},
		}},
		Outbounds: []OutboundOption{{
			Tag:         "out",
			Client:      &fakeClient{stream: fakeStream{Conn: outboundSide, empty: false}},
			Service:     outSvc,
			IdleTimeout: time.Second,
		}},
		Route: []RouteRuleOption{{InboundTags: []string{"in"}, OutboundTag: "out", DNS: false}},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, d.Start(ctx))
	defer d.Close()

	clientSide.Close()

	require.Eventually(t, func() bool { return outSvc.packet() != nil }, 2*time.Second, 10*time.Millisecond)
	got := outSvc.packet()
	assert.True(t, got.Dest.IsDomain())
	assert.Equal(t, "localhost", got.Dest.Domain())
}

func TestDispatcherInitDuplicateInboundTag(t *testing.T) {
	d := New(nil)
	err := d.Init(Config{
		DNS: testResolverOption(),
		Inbounds: []InboundOption{
			{Tag: "dup", Server: &fakeServer{}, Service: &fakeInboundService{}},
			{Tag: "dup", Server: &fakeServer{}, Service: &fakeInboundService{}},
		},
	})
	var derr *Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, KindDuplicateTag, derr.Kind)
}

func TestDispatcherStartUnknownRouteOutbound(t *testing.T) {
	d := New(nil)
	require.NoError(t, d.Init(Config{
		DNS: testResolverOption(),
		Inbounds: []InboundOption{
			{Tag: "in", Server: &fakeServer{}, Service: &fakeInboundService{}},
		},
		Route: []RouteRuleOption{{InboundTags: []string{"in"}, OutboundTag: "missing"}},
	}))

	err := d.Start(context.Background())
	var derr *Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, KindUnknownTag, derr.Kind)
}

func TestDispatcherStartUnknownRouteInbound(t *testing.T) {
	d := New(nil)
	require.NoError(t, d.Init(Config{
		DNS: testResolverOption(),
		Outbounds: []OutboundOption{
			{Tag: "out", Client: &fakeClient{}, Service: passthroughOutboundService{}},
		},
		Route: []RouteRuleOption{{InboundTags: []string{"ghost"}, OutboundTag: "out"}},
	}))

	err := d.Start(context.Background())
	var derr *Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, KindUnknownTag, derr.Kind)
}

func TestDispatcherCloseIdempotent(t *testing.T) {
	d := New(nil)
	require.NoError(t, d.Init(Config{DNS: testResolverOption()}))
	require.NoError(t, d.Start(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, d.Close())
		}()
	}
	wg.Wait()
}

func TestDispatcherRestartsFailedInboundOnce(t *testing.T) {
	incoming := make(chan net.Conn)
	server := &fakeServer{incoming: incoming, failOnce: true}

	d := New(nil)
	require.NoError(t, d.Init(Config{
		DNS: testResolverOption(),
		Inbounds: []InboundOption{{
			Tag:     "in",
			Server:  server,
			Service: &fakeInboundService{},
		}},
	}))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, d.Start(ctx))

	time.Sleep(serverRetryDelay + 500*time.Millisecond)
	assert.True(t, server.failed)

	cancel()
	assert.NoError(t, d.Close())
}
