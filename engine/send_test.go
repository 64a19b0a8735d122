package engine

import (
	"net"
	"sync"
	"testing"
	"time"

	"hudp/config"
	"hudp/stats"
	"hudp/wire"
)

// fakeAddr is a minimal net.Addr for tests that never touch a real socket.
type fakeAddr string

func (fakeAddr) Network() string  { return "fake" }
func (a fakeAddr) String() string { return string(a) }

// fakeConn records every WriteTo call instead of touching the network.
type fakeConn struct {
	mu   sync.Mutex
	sent [][]byte
}

func (c *fakeConn) WriteTo(b []byte, _ net.Addr) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := append([]byte(nil), b...)
	c.sent = append(c.sent, cp)
	return len(b), nil
}
func (c *fakeConn) ReadFrom(b []byte) (int, net.Addr, error) { select {} }
func (c *fakeConn) Close() error                             { return nil }
func (c *fakeConn) LocalAddr() net.Addr                      { return fakeAddr("local") }
func (c *fakeConn) SetDeadline(time.Time) error              { return nil }
func (c *fakeConn) SetReadDeadline(time.Time) error          { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error         { return nil }

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func (c *fakeConn) last() wire.Packet {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, _ := wire.Decode(c.sent[len(c.sent)-1])
	return p
}

// fakeClock returns a manually advanced, monotonically nondecreasing value.
type fakeClock struct {
	mu  sync.Mutex
	now uint32
}

func (c *fakeClock) NowMs() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(ms uint32) {
	c.mu.Lock()
	c.now += ms
	c.mu.Unlock()
}

func newTestSendEngine(t *testing.T, cfg config.Config) (*SendEngine, *fakeConn, *fakeClock) {
	t.Helper()
	conn := &fakeConn{}
	clk := &fakeClock{}
	se := NewSendEngine(conn, fakeAddr("remote"), cfg, stats.New(), NoopSink, clk)
	return se, conn, clk
}

func TestSendUnreliableEncodesAndIncrementsSeq(t *testing.T) {
	cfg := config.Default()
	se, conn, _ := newTestSendEngine(t, cfg)

	if err := se.SendUnreliable([]byte("a")); err != nil {
		t.Fatalf("SendUnreliable: %v", err)
	}
	if err := se.SendUnreliable([]byte("b")); err != nil {
		t.Fatalf("SendUnreliable: %v", err)
	}
	if conn.count() != 2 {
		t.Fatalf("expected 2 datagrams sent, got %d", conn.count())
	}
	p1, _ := wire.Decode(conn.sent[0])
	p2, _ := wire.Decode(conn.sent[1])
	if p1.Seq != 0 || p2.Seq != 1 {
		t.Fatalf("expected sequential seqs 0,1, got %d,%d", p1.Seq, p2.Seq)
	}
	if p1.Channel != wire.Unreliable {
		t.Fatalf("expected Unreliable channel, got %v", p1.Channel)
	}
}

func TestSendUnreliableRejectsOversizedPayload(t *testing.T) {
	cfg := config.Apply(config.WithMTU(16))
	se, _, _ := newTestSendEngine(t, cfg)

	err := se.SendUnreliable(make([]byte, 64))
	if err == nil {
		t.Fatal("expected PayloadTooLargeError, got nil")
	}
	if _, ok := err.(*PayloadTooLargeError); !ok {
		t.Fatalf("expected *PayloadTooLargeError, got %T", err)
	}
}

func TestSendReliableTransmitsAndTracksPending(t *testing.T) {
	cfg := config.Default()
	se, conn, _ := newTestSendEngine(t, cfg)

	if err := se.SendReliable([]byte("hello")); err != nil {
		t.Fatalf("SendReliable: %v", err)
	}
	if conn.count() != 1 {
		t.Fatalf("expected 1 datagram sent, got %d", conn.count())
	}
	if se.PendingCount() != 1 {
		t.Fatalf("expected 1 pending entry, got %d", se.PendingCount())
	}
	p := conn.last()
	if p.Channel != wire.Reliable || p.Flags.Has(wire.FlagRETX) {
		t.Fatalf("unexpected initial packet: %+v", p)
	}
}

func TestSendReliableBlocksUntilWindowOpensAndCondWakesOnAck(t *testing.T) {
	cfg := config.Apply(config.WithSendWindowSize(1), config.WithRetxTimeout(time.Hour))
	se, _, clk := newTestSendEngine(t, cfg)

	if err := se.SendReliable([]byte("first")); err != nil {
		t.Fatalf("SendReliable: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- se.SendReliable([]byte("second")) }()

	select {
	case <-done:
		t.Fatal("SendReliable should have blocked with a full send window")
	case <-time.After(50 * time.Millisecond):
	}

	se.HandleACK(0, clk.NowMs())

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("SendReliable: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("SendReliable did not unblock after ACK freed window space")
	}
}

func TestCloseWakesBlockedSendReliableWithoutError(t *testing.T) {
	cfg := config.Apply(config.WithSendWindowSize(1), config.WithRetxTimeout(time.Hour))
	se, _, _ := newTestSendEngine(t, cfg)

	if err := se.SendReliable([]byte("first")); err != nil {
		t.Fatalf("SendReliable: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- se.SendReliable([]byte("second")) }()

	time.Sleep(20 * time.Millisecond)
	se.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil error on close-while-waiting, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not wake the blocked SendReliable waiter")
	}
}

func TestHandleAckRemovesEntryAndIgnoresUnknownSeq(t *testing.T) {
	cfg := config.Apply(config.WithRetxTimeout(time.Hour))
	se, _, clk := newTestSendEngine(t, cfg)

	_ = se.SendReliable([]byte("x"))
	if se.PendingCount() != 1 {
		t.Fatalf("expected 1 pending entry, got %d", se.PendingCount())
	}

	se.HandleACK(999, clk.NowMs()) // stray ack, ignored
	if se.PendingCount() != 1 {
		t.Fatalf("stray ack should not affect pending count, got %d", se.PendingCount())
	}

	se.HandleACK(0, clk.NowMs())
	if se.PendingCount() != 0 {
		t.Fatalf("expected 0 pending entries after ack, got %d", se.PendingCount())
	}
}

func TestRetxTimerRetransmitsUpToMaxThenDrops(t *testing.T) {
	cfg := config.Apply(
		config.WithRetxTimeout(10*time.Millisecond),
		config.WithMaxRetx(2),
	)
	se, conn, _ := newTestSendEngine(t, cfg)

	var mu sync.Mutex
	var drops int
	se.sink = EventSinkFunc(func(e Event) {
		if e.Kind == EventDropMaxRetx {
			mu.Lock()
			drops++
			mu.Unlock()
		}
	})

	if err := se.SendReliable([]byte("x")); err != nil {
		t.Fatalf("SendReliable: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		d := drops
		mu.Unlock()
		if d > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	d := drops
	mu.Unlock()
	if d != 1 {
		t.Fatalf("expected exactly 1 drop event, got %d", d)
	}
	if se.PendingCount() != 0 {
		t.Fatalf("expected entry removed after max retx, got pending=%d", se.PendingCount())
	}
	// initial + 2 retransmissions = 3 datagrams for this seq.
	if conn.count() != 3 {
		t.Fatalf("expected 3 datagrams (1 initial + 2 retx), got %d", conn.count())
	}
}
