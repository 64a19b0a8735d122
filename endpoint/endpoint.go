// Package endpoint binds an H-UDP transport to a UDP socket and hosts the
// per-peer SendEngine/ReceiveEngine pairs that do the actual protocol
// work, per spec §4.5.
package endpoint

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"

	"hudp/config"
	"hudp/engine"
	"hudp/logger"
	"hudp/stats"
	"hudp/wire"
)

// Endpoint owns one UDP socket. A client Endpoint has exactly one remote
// peer, fixed at construction. A server Endpoint accepts datagrams from
// any source address, creating a Peer for each on first contact.
type Endpoint struct {
	conn  net.PacketConn
	cfg   config.Config
	clock engine.Clock
	sink  engine.EventSink
	recv  engine.RecvFunc

	isServer bool

	mu     sync.Mutex
	peers  map[string]*Peer
	closed bool
	stopCh chan struct{}

	wg sync.WaitGroup
}

// Option configures an Endpoint at construction.
type Option func(*Endpoint)

// WithEventSink routes every engine.Event through sink.
func WithEventSink(sink engine.EventSink) Option {
	return func(e *Endpoint) { e.sink = sink }
}

// WithClock overrides the default wall-clock Clock, primarily for tests.
func WithClock(c engine.Clock) Option {
	return func(e *Endpoint) { e.clock = c }
}

// NewServer binds laddr (e.g. ":9000") and accepts traffic from any peer.
func NewServer(laddr string, cfg config.Config, recv engine.RecvFunc, opts ...Option) (*Endpoint, error) {
	addr, err := net.ResolveUDPAddr("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("hudp: resolve listen addr %q: %w", laddr, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("hudp: listen udp %q: %w", laddr, err)
	}
	ep := newEndpoint(conn, cfg, recv, true, opts...)
	applySocketBuffers(conn, cfg)
	ep.start()
	return ep, nil
}

// NewClient binds an ephemeral local port and targets raddr as its sole
// peer.
func NewClient(raddr string, cfg config.Config, recv engine.RecvFunc, opts ...Option) (*Endpoint, error) {
	remote, err := net.ResolveUDPAddr("udp", raddr)
	if err != nil {
		return nil, fmt.Errorf("hudp: resolve remote addr %q: %w", raddr, err)
	}
	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return nil, fmt.Errorf("hudp: listen udp: %w", err)
	}
	ep := newEndpoint(conn, cfg, recv, false, opts...)
	applySocketBuffers(conn, cfg)

	ep.mu.Lock()
	ep.peers[remote.String()] = newPeer(ep.conn, remote, ep.cfg, ep.sink, ep.clock, ep.recv)
	ep.mu.Unlock()

	ep.start()
	return ep, nil
}

func newEndpoint(conn net.PacketConn, cfg config.Config, recv engine.RecvFunc, isServer bool, opts ...Option) *Endpoint {
	ep := &Endpoint{
		conn:     conn,
		cfg:      cfg,
		clock:    engine.NewSystemClock(),
		sink:     engine.NoopSink,
		recv:     recv,
		isServer: isServer,
		peers:    make(map[string]*Peer),
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(ep)
	}
	return ep
}

func (e *Endpoint) start() {
	e.wg.Add(1)
	go e.readLoop()
	if e.isServer {
		e.wg.Add(1)
		go e.cleanupLoop()
	}
}

func applySocketBuffers(conn *net.UDPConn, cfg config.Config) {
	if err := conn.SetReadBuffer(cfg.SocketRecvBuffer); err != nil {
		logger.Warn("set socket read buffer: %v", err)
	}
	if err := conn.SetWriteBuffer(cfg.SocketSendBuffer); err != nil {
		logger.Warn("set socket write buffer: %v", err)
	}
}

func (e *Endpoint) readLoop() {
	defer e.wg.Done()
	buf := make([]byte, e.cfg.MTU)
	for {
		n, addr, err := e.conn.ReadFrom(buf)
		if err != nil {
			e.mu.Lock()
			closed := e.closed
			e.mu.Unlock()
			if closed {
				return
			}
			e.sink.OnEvent(engine.Event{Kind: engine.EventError, Err: err})
			continue
		}

		pkt, ok := wire.Decode(buf[:n])
		if !ok {
			continue
		}

		peer := e.peerFor(addr)
		if peer == nil {
			continue
		}
		peer.touch()

		switch {
		case pkt.Channel == wire.Reliable && pkt.Flags.Has(wire.FlagACK):
			peer.Send.HandleACK(pkt.Seq, e.clock.NowMs())
		case pkt.Channel == wire.Reliable:
			peer.Recv.HandleReliable(pkt.Seq, pkt.TsMs, pkt.Payload)
		default:
			peer.Recv.HandleUnreliable(pkt.Seq, pkt.TsMs, pkt.Payload)
		}
	}
}

func (e *Endpoint) peerFor(addr net.Addr) *Peer {
	key := addr.String()

	e.mu.Lock()
	defer e.mu.Unlock()

	if p, ok := e.peers[key]; ok {
		return p
	}
	if !e.isServer || e.closed {
		return nil
	}

	p := newPeer(e.conn, addr, e.cfg, e.sink, e.clock, e.recv)
	e.peers[key] = p
	logger.InfoCyan("peer %s connected (%d total)", key, len(e.peers))
	return p
}

func (e *Endpoint) cleanupLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.reapIdlePeers()
		}
	}
}

func (e *Endpoint) reapIdlePeers() {
	e.mu.Lock()
	var stale []*Peer
	for key, p := range e.peers {
		if p.idleSince() > e.cfg.PeerIdleTimeout {
			stale = append(stale, p)
			delete(e.peers, key)
		}
	}
	e.mu.Unlock()

	for _, p := range stale {
		p.Close()
		logger.InfoCyan("peer %s idle-timed-out after %s", p.Addr.String(), e.cfg.PeerIdleTimeout)
	}
}

// singlePeer returns the one configured peer in client mode.
func (e *Endpoint) singlePeer() (*Peer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.isServer {
		return nil, fmt.Errorf("hudp: server endpoint requires a target peer; use Peers()/BroadcastUnreliable")
	}
	for _, p := range e.peers {
		return p, nil
	}
	return nil, fmt.Errorf("hudp: endpoint has no configured peer")
}

// Stats returns the sole peer's statistics. Client-mode only.
func (e *Endpoint) Stats() (*stats.Stats, error) {
	p, err := e.singlePeer()
	if err != nil {
		return nil, err
	}
	return p.Stats, nil
}

// SendReliable sends payload reliably to the endpoint's sole peer.
// Client-mode only; spec §1 scopes reliable traffic to client-to-server.
func (e *Endpoint) SendReliable(payload []byte) error {
	p, err := e.singlePeer()
	if err != nil {
		return err
	}
	return p.Send.SendReliable(payload)
}

// SendUnreliable sends payload best-effort to the endpoint's sole peer.
func (e *Endpoint) SendUnreliable(payload []byte) error {
	p, err := e.singlePeer()
	if err != nil {
		return err
	}
	return p.Send.SendUnreliable(payload)
}

// Peers returns a snapshot of currently known peers. Server-mode only.
func (e *Endpoint) Peers() []*Peer {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Peer, 0, len(e.peers))
	for _, p := range e.peers {
		out = append(out, p)
	}
	return out
}

// BroadcastUnreliable sends payload best-effort to every known peer.
func (e *Endpoint) BroadcastUnreliable(payload []byte) {
	for _, p := range e.Peers() {
		if err := p.Send.SendUnreliable(payload); err != nil {
			e.sink.OnEvent(engine.Event{Kind: engine.EventError, Peer: p.Addr.String(), Err: err})
		}
	}
}

// LocalAddr returns the bound socket's local address.
func (e *Endpoint) LocalAddr() net.Addr { return e.conn.LocalAddr() }

// multiGatherer fans Gather() out across every current peer's private
// Prometheus registry, since each Peer keeps its own (see stats.New) to
// avoid cross-peer metric collisions.
type multiGatherer struct{ ep *Endpoint }

func (g multiGatherer) Gather() ([]*dto.MetricFamily, error) {
	gatherers := make(prometheus.Gatherers, 0, 1)
	for _, p := range g.ep.Peers() {
		gatherers = append(gatherers, p.Stats.Registry())
	}
	return gatherers.Gather()
}

// MetricsHandler returns an http.Handler exposing every connected peer's
// metrics in the Prometheus text exposition format.
func (e *Endpoint) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(multiGatherer{ep: e}, promhttp.HandlerOpts{})
}

// Close stops the read and cleanup loops, closes every peer's timers, and
// releases the socket. Safe to call more than once.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	close(e.stopCh)
	peers := make([]*Peer, 0, len(e.peers))
	for _, p := range e.peers {
		peers = append(peers, p)
	}
	e.mu.Unlock()

	for _, p := range peers {
		p.Close()
	}
	err := e.conn.Close()
	e.wg.Wait()
	return err
}

// RunUntilShutdown blocks until ctx is canceled or the process receives
// SIGINT/SIGTERM, then closes the endpoint.
func (e *Endpoint) RunUntilShutdown(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-ctx.Done():
	case sig := <-sigCh:
		logger.Warn("received signal: %v", sig)
	}
	return e.Close()
}
