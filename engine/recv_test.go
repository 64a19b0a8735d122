package engine

import (
	"sync"
	"testing"
	"time"

	"hudp/config"
	"hudp/stats"
)

type recvCollector struct {
	mu      sync.Mutex
	records []PacketRecord
}

func (c *recvCollector) collect(r PacketRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, r)
}

func (c *recvCollector) seqs() []uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]uint16, len(c.records))
	for i, r := range c.records {
		out[i] = r.Seq
	}
	return out
}

func newTestReceiveEngine(cfg config.Config) (*ReceiveEngine, *recvCollector, *ackCollector) {
	rc := &recvCollector{}
	ac := &ackCollector{}
	re := NewReceiveEngine(cfg, stats.New(), NoopSink, &fakeClock{}, rc.collect, ac.collect)
	return re, rc, ac
}

type ackCollector struct {
	mu   sync.Mutex
	acks []uint16
}

func (a *ackCollector) collect(seq uint16) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks = append(a.acks, seq)
}

func (a *ackCollector) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.acks)
}

func eqSeqs(t *testing.T, got, want []uint16) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestHandleReliableInOrderDeliversImmediately(t *testing.T) {
	re, rc, ac := newTestReceiveEngine(config.Default())

	re.HandleReliable(0, 0, []byte("a"))
	re.HandleReliable(1, 0, []byte("b"))
	re.HandleReliable(2, 0, []byte("c"))

	eqSeqs(t, rc.seqs(), []uint16{0, 1, 2})
	if ac.count() != 3 {
		t.Fatalf("expected 3 acks, got %d", ac.count())
	}
}

func TestHandleReliableBuffersOutOfOrderThenDrains(t *testing.T) {
	re, rc, _ := newTestReceiveEngine(config.Default())

	re.HandleReliable(2, 0, []byte("c"))
	re.HandleReliable(1, 0, []byte("b"))
	if len(rc.seqs()) != 0 {
		t.Fatalf("expected no delivery before seq 0 arrives, got %v", rc.seqs())
	}
	if re.PendingReliableCount() != 2 {
		t.Fatalf("expected 2 buffered entries, got %d", re.PendingReliableCount())
	}

	re.HandleReliable(0, 0, []byte("a"))
	eqSeqs(t, rc.seqs(), []uint16{0, 1, 2})
	if re.PendingReliableCount() != 0 {
		t.Fatalf("expected buffer drained, got %d", re.PendingReliableCount())
	}
}

func TestHandleReliableDropsDuplicateAlreadyDelivered(t *testing.T) {
	re, rc, ac := newTestReceiveEngine(config.Default())

	re.HandleReliable(0, 0, []byte("a"))
	re.HandleReliable(0, 0, []byte("a-again"))

	eqSeqs(t, rc.seqs(), []uint16{0})
	if ac.count() != 2 {
		t.Fatalf("duplicate should still be acked, got %d acks", ac.count())
	}
}

func TestGapSkipAdvancesPastMissingSeqAfterTimeout(t *testing.T) {
	cfg := config.Apply(config.WithGapSkipTimeout(30 * time.Millisecond))
	re, rc, _ := newTestReceiveEngine(cfg)

	re.HandleReliable(1, 0, []byte("b")) // seq 0 never arrives

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(rc.seqs()) == 0 {
		time.Sleep(10 * time.Millisecond)
	}

	seqs := rc.seqs()
	if len(seqs) != 1 || seqs[0] != 1 {
		t.Fatalf("expected gap-skip to deliver seq 1, got %v", seqs)
	}

	re.mu.Lock()
	skippedMarker := re.expectedRel
	re.mu.Unlock()
	if skippedMarker != 2 {
		t.Fatalf("expected expectedRel advanced to 2 after skip, got %d", skippedMarker)
	}
}

func TestHandleUnreliableDropsStaleOutOfOrderPacket(t *testing.T) {
	re, rc, _ := newTestReceiveEngine(config.Default())

	re.HandleUnreliable(5, 0, []byte("newer"))
	re.HandleUnreliable(3, 0, []byte("stale"))
	re.HandleUnreliable(6, 0, []byte("newest"))

	eqSeqs(t, rc.seqs(), []uint16{5, 6})
}
