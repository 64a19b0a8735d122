package engine

import (
	"net"
	"sync"
	"time"

	"hudp/config"
	"hudp/stats"
	"hudp/wire"
)

type sendEntry struct {
	payload     []byte
	firstSentMs uint32
	lastSentMs  uint32
	retxCount   int
	timer       *time.Timer
}

// SendEngine allocates sequence numbers per channel, enforces the send
// window on the reliable channel, drives per-packet retransmission timers,
// and processes ACKs, all as described in spec §4.3. One SendEngine talks
// to exactly one remote address — the client side of the transport, since
// reliable server-to-client traffic is out of scope (spec §1).
type SendEngine struct {
	conn   net.PacketConn
	remote net.Addr
	cfg    config.Config
	clock  Clock
	stats  *stats.Stats
	sink   EventSink

	mu     sync.Mutex
	cond   *sync.Cond
	closed bool

	relSeq     uint16
	unrelSeq   uint16
	sendBuffer map[uint16]*sendEntry
}

// NewSendEngine constructs a SendEngine bound to remote over conn.
func NewSendEngine(conn net.PacketConn, remote net.Addr, cfg config.Config, st *stats.Stats, sink EventSink, clock Clock) *SendEngine {
	if sink == nil {
		sink = NoopSink
	}
	se := &SendEngine{
		conn:       conn,
		remote:     remote,
		cfg:        cfg,
		clock:      clock,
		stats:      st,
		sink:       sink,
		sendBuffer: make(map[uint16]*sendEntry),
	}
	se.cond = sync.NewCond(&se.mu)
	return se
}

// SendUnreliable transmits payload on the unreliable channel immediately.
// It never blocks.
func (se *SendEngine) SendUnreliable(payload []byte) error {
	if len(payload)+wire.HeaderSize > se.cfg.MTU {
		return &PayloadTooLargeError{PayloadSize: len(payload), MTU: se.cfg.MTU}
	}

	se.mu.Lock()
	seq := se.unrelSeq
	se.unrelSeq++
	se.mu.Unlock()

	now := se.clock.NowMs()
	datagram := wire.Encode(wire.Unreliable, 0, seq, now, payload)
	if _, err := se.conn.WriteTo(datagram, se.remote); err != nil {
		se.sink.OnEvent(Event{Kind: EventError, Err: err})
		return nil
	}
	se.stats.TxUnreliable()
	se.sink.OnEvent(Event{Kind: EventTxData, Channel: ChannelUnreliable, Seq: seq})
	return nil
}

// SendReliable suspends until the send window has room, then transmits
// payload on the reliable channel and arms its retransmission timer. It
// returns once the initial transmission has been handed to the socket. If
// the engine is closed while waiting for window space, it returns nil
// without transmitting, per spec §5's cancellation contract.
func (se *SendEngine) SendReliable(payload []byte) error {
	if len(payload)+wire.HeaderSize > se.cfg.MTU {
		return &PayloadTooLargeError{PayloadSize: len(payload), MTU: se.cfg.MTU}
	}

	se.mu.Lock()
	for !se.closed && len(se.sendBuffer) >= se.cfg.SendWindowSize {
		se.cond.Wait()
	}
	if se.closed {
		se.mu.Unlock()
		return nil
	}

	seq := se.relSeq
	se.relSeq++
	now := se.clock.NowMs()
	entry := &sendEntry{payload: payload, firstSentMs: now, lastSentMs: now}
	se.sendBuffer[seq] = entry
	entry.timer = time.AfterFunc(se.cfg.RetxTimeout, func() { se.onRetxTimer(seq) })
	se.mu.Unlock()

	datagram := wire.Encode(wire.Reliable, 0, seq, now, payload)
	if _, err := se.conn.WriteTo(datagram, se.remote); err != nil {
		se.sink.OnEvent(Event{Kind: EventError, Err: err})
		return nil
	}
	se.stats.TxReliable()
	se.sink.OnEvent(Event{Kind: EventTxData, Channel: ChannelReliable, Seq: seq})
	return nil
}

// onRetxTimer fires when a reliable seq's retransmission timer expires.
func (se *SendEngine) onRetxTimer(seq uint16) {
	se.mu.Lock()
	entry, ok := se.sendBuffer[seq]
	if !ok {
		se.mu.Unlock()
		return // ACK raced the timer
	}

	if entry.retxCount >= se.cfg.MaxRetx {
		delete(se.sendBuffer, seq)
		se.mu.Unlock()
		se.sink.OnEvent(Event{Kind: EventDropMaxRetx, Channel: ChannelReliable, Seq: seq, RetxN: entry.retxCount})
		se.cond.Broadcast()
		return
	}

	entry.retxCount++
	now := se.clock.NowMs()
	entry.lastSentMs = now
	payload := entry.payload
	retxN := entry.retxCount
	entry.timer = time.AfterFunc(se.cfg.RetxTimeout, func() { se.onRetxTimer(seq) })
	se.mu.Unlock()

	datagram := wire.Encode(wire.Reliable, wire.FlagRETX, seq, now, payload)
	if _, err := se.conn.WriteTo(datagram, se.remote); err != nil {
		se.sink.OnEvent(Event{Kind: EventError, Err: err})
		return
	}
	se.stats.Retx()
	se.sink.OnEvent(Event{Kind: EventRetx, Channel: ChannelReliable, Seq: seq, RetxN: retxN})
}

// HandleACK processes an inbound ACK for the reliable channel seq s.
// Unknown seqs (stray ACKs) are ignored.
func (se *SendEngine) HandleACK(s uint16, nowMs uint32) {
	se.mu.Lock()
	entry, ok := se.sendBuffer[s]
	if !ok {
		se.mu.Unlock()
		return
	}
	delete(se.sendBuffer, s)
	if entry.timer != nil {
		entry.timer.Stop()
	}
	se.mu.Unlock()
	se.cond.Broadcast()

	rtt := float64(uint32(nowMs - entry.firstSentMs))
	se.stats.ObserveRTT(rtt)
	se.sink.OnEvent(Event{Kind: EventAckRx, Channel: ChannelReliable, Seq: s})
}

// PendingCount returns the current number of unacked reliable entries, for
// tests asserting the send-window invariant.
func (se *SendEngine) PendingCount() int {
	se.mu.Lock()
	defer se.mu.Unlock()
	return len(se.sendBuffer)
}

// Close cancels all outstanding retransmission timers and wakes any
// SendReliable waiter.
func (se *SendEngine) Close() {
	se.mu.Lock()
	if se.closed {
		se.mu.Unlock()
		return
	}
	se.closed = true
	for _, entry := range se.sendBuffer {
		if entry.timer != nil {
			entry.timer.Stop()
		}
	}
	se.sendBuffer = make(map[uint16]*sendEntry)
	se.mu.Unlock()
	se.cond.Broadcast()
}
