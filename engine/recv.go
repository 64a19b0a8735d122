package engine

import (
	"sync"
	"time"

	"hudp/config"
	"hudp/seqnum"
	"hudp/stats"
)

type recvEntry struct {
	payload []byte
	tsMs    uint32
}

// ReceiveEngine implements the reorder buffer, ACK generation, and
// gap-skip policy of spec §4.4 for the reliable channel, and the simple
// stale-drop filter for the unreliable channel.
type ReceiveEngine struct {
	cfg   config.Config
	clock Clock
	stats *stats.Stats
	sink  EventSink
	recv  RecvFunc
	ackFn func(seq uint16)

	mu          sync.Mutex
	expectedRel uint16
	relBuffer   map[uint16]recvEntry
	gapTimer    *time.Timer
	gapArmed    bool

	haveUnrelSeq bool
	lastUnrelSeq uint16
}

// NewReceiveEngine constructs a ReceiveEngine. ackFn is invoked (outside
// the engine's lock) to transmit an ACK for a given reliable seq.
func NewReceiveEngine(cfg config.Config, st *stats.Stats, sink EventSink, clock Clock, recv RecvFunc, ackFn func(seq uint16)) *ReceiveEngine {
	if sink == nil {
		sink = NoopSink
	}
	return &ReceiveEngine{
		cfg:       cfg,
		clock:     clock,
		stats:     st,
		sink:      sink,
		recv:      recv,
		ackFn:     ackFn,
		relBuffer: make(map[uint16]recvEntry),
	}
}

// HandleReliable processes an inbound reliable-channel packet: it ACKs the
// seq unconditionally (duplicates included, since the sender only clears a
// retransmission timer on ACK receipt), buffers the payload if it is new,
// and delivers whatever contiguous run is now available starting from the
// next expected seq.
func (re *ReceiveEngine) HandleReliable(seq uint16, tsMs uint32, payload []byte) {
	re.mu.Lock()

	if re.ackFn != nil {
		seqCopy := seq
		defer func() { re.ackFn(seqCopy) }()
	}

	switch {
	case seqnum.Less(seq, re.expectedRel):
		// Already delivered; the sender is still retransmitting a stale
		// entry because our earlier ACK was lost in flight.
		re.mu.Unlock()
		return
	case seq == re.expectedRel:
		if _, dup := re.relBuffer[seq]; !dup {
			payloadCopy := append([]byte(nil), payload...)
			re.relBuffer[seq] = recvEntry{payload: payloadCopy, tsMs: tsMs}
			re.stats.RxReliable()
		}
	case seqnum.InWindow(seq, re.expectedRel, re.cfg.RecvWindowSize):
		if _, dup := re.relBuffer[seq]; !dup {
			payloadCopy := append([]byte(nil), payload...)
			re.relBuffer[seq] = recvEntry{payload: payloadCopy, tsMs: tsMs}
			re.stats.RxReliable()
		}
	default:
		// Outside the receive window; drop but still ack so the sender's
		// timer clears rather than spinning forever on an unreachable seq.
		re.mu.Unlock()
		return
	}

	re.drainContiguousLocked()
	re.mu.Unlock()
}

// drainContiguousLocked delivers every buffered entry starting at
// expectedRel for as long as the run stays contiguous, arming or
// disarming the gap-skip timer as the buffer's shape requires. Caller
// must hold re.mu.
func (re *ReceiveEngine) drainContiguousLocked() {
	delivered := false
	for {
		entry, ok := re.relBuffer[re.expectedRel]
		if !ok {
			break
		}
		delete(re.relBuffer, re.expectedRel)
		re.deliverLocked(re.expectedRel, entry.tsMs, entry.payload, false)
		re.expectedRel++
		delivered = true
	}

	if len(re.relBuffer) == 0 {
		re.disarmGapTimerLocked()
		return
	}
	if delivered || !re.gapArmed {
		re.armGapTimerLocked()
	}
}

func (re *ReceiveEngine) armGapTimerLocked() {
	re.disarmGapTimerLocked()
	re.gapArmed = true
	re.gapTimer = time.AfterFunc(re.cfg.GapSkipTimeout, re.onGapTimeout)
}

func (re *ReceiveEngine) disarmGapTimerLocked() {
	if re.gapTimer != nil {
		re.gapTimer.Stop()
		re.gapTimer = nil
	}
	re.gapArmed = false
}

// onGapTimeout fires when expectedRel has been missing for GapSkipTimeout
// with at least one later seq already buffered. It skips expectedRel ahead
// to the earliest buffered seq and resumes contiguous delivery from there,
// trading completeness for bounded latency: delivery stays in seq order,
// and the skipped seqs are never delivered (spec §4.4/§9).
func (re *ReceiveEngine) onGapTimeout() {
	re.mu.Lock()
	defer re.mu.Unlock()

	re.gapArmed = false
	if _, ok := re.relBuffer[re.expectedRel]; ok || len(re.relBuffer) == 0 {
		return
	}

	next, found := re.earliestBufferedLocked()
	if !found {
		return
	}

	skippedFrom := re.expectedRel
	re.stats.Skip()
	re.sink.OnEvent(Event{Kind: EventSkipGap, Channel: ChannelReliable, Seq: skippedFrom})

	entry := re.relBuffer[next]
	delete(re.relBuffer, next)
	re.expectedRel = next
	re.deliverLocked(next, entry.tsMs, entry.payload, true)
	re.expectedRel++

	re.drainContiguousLocked()
}

// earliestBufferedLocked returns the buffered seq nearest to expectedRel
// in sequence-number order, honoring 16-bit wraparound.
func (re *ReceiveEngine) earliestBufferedLocked() (uint16, bool) {
	var best uint16
	found := false
	for s := range re.relBuffer {
		if !found || seqnum.Less(s, best) {
			best = s
			found = true
		}
	}
	return best, found
}

func (re *ReceiveEngine) deliverLocked(seq uint16, tsMs uint32, payload []byte, skipped bool) {
	re.sink.OnEvent(Event{Kind: EventDeliver, Channel: ChannelReliable, Seq: seq})
	if re.recv == nil {
		return
	}
	re.recv(PacketRecord{
		Channel: ChannelReliable,
		Seq:     seq,
		TsMs:    tsMs,
		Payload: payload,
		Skipped: skipped,
	})
}

// HandleUnreliable delivers an unreliable-channel packet immediately,
// dropping it if its seq is older than the most recent one already seen
// (stale, reordered in flight). There is no buffering on this channel.
func (re *ReceiveEngine) HandleUnreliable(seq uint16, tsMs uint32, payload []byte) {
	re.mu.Lock()
	if re.haveUnrelSeq && seqnum.Less(seq, re.lastUnrelSeq) {
		re.mu.Unlock()
		return
	}
	re.lastUnrelSeq = seq
	re.haveUnrelSeq = true
	re.mu.Unlock()

	re.stats.RxUnreliable()
	now := re.clock.NowMs()
	re.stats.ObserveUnreliableTransit(float64(uint32(now - tsMs)))
	re.sink.OnEvent(Event{Kind: EventDeliver, Channel: ChannelUnreliable, Seq: seq})
	if re.recv != nil {
		re.recv(PacketRecord{
			Channel: ChannelUnreliable,
			Seq:     seq,
			TsMs:    tsMs,
			Payload: append([]byte(nil), payload...),
		})
	}
}

// PendingReliableCount reports the current reorder buffer depth, for tests
// asserting the gap-skip and window behaviors.
func (re *ReceiveEngine) PendingReliableCount() int {
	re.mu.Lock()
	defer re.mu.Unlock()
	return len(re.relBuffer)
}

// Close disarms the gap-skip timer. Safe to call multiple times.
func (re *ReceiveEngine) Close() {
	re.mu.Lock()
	defer re.mu.Unlock()
	re.disarmGapTimerLocked()
}
