package endpoint

import (
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"hudp/config"
	"hudp/engine"
	"hudp/stats"
	"hudp/wire"
)

// Peer holds one remote address's reliability state: its own SendEngine,
// ReceiveEngine, and Stats, isolated from every other peer on the same
// Endpoint. Server mode creates one Peer per distinct source address it
// hears from (spec §4.5); client mode has exactly one.
type Peer struct {
	ID    uuid.UUID
	Addr  net.Addr
	Send  *engine.SendEngine
	Recv  *engine.ReceiveEngine
	Stats *stats.Stats

	mu           sync.Mutex
	lastActivity time.Time
}

func newPeer(conn net.PacketConn, addr net.Addr, cfg config.Config, sink engine.EventSink, clock engine.Clock, recv engine.RecvFunc) *Peer {
	st := stats.New()
	p := &Peer{
		ID:           uuid.New(),
		Addr:         addr,
		Stats:        st,
		lastActivity: time.Now(),
	}
	p.Send = engine.NewSendEngine(conn, addr, cfg, st, sink, clock)
	p.Recv = engine.NewReceiveEngine(cfg, st, sink, clock, recv, func(seq uint16) {
		ack := wire.MakeACK(seq, clock.NowMs())
		if _, err := conn.WriteTo(ack, addr); err != nil {
			sink.OnEvent(engine.Event{Kind: engine.EventError, Peer: addr.String(), Err: err})
			return
		}
		sink.OnEvent(engine.Event{Kind: engine.EventAckTx, Channel: engine.ChannelReliable, Seq: seq, Peer: addr.String()})
	})
	return p
}

func (p *Peer) touch() {
	p.mu.Lock()
	p.lastActivity = time.Now()
	p.mu.Unlock()
}

func (p *Peer) idleSince() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Since(p.lastActivity)
}

// Close releases the peer's timers. Stats remain readable afterward.
func (p *Peer) Close() {
	p.Send.Close()
	p.Recv.Close()
}
