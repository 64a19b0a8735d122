// Package stats implements the transport's counters, RTT/jitter samples,
// and the Prometheus metrics surface built on top of them.
package stats

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"hudp/internal/ring"
)

const sampleRingCapacity = 100

// Stats holds the counters and sample rings described by the spec's
// Statistics & Telemetry component, plus a private Prometheus registry so
// multiple independent Stats instances (e.g. one per test) never collide on
// global metric names.
type Stats struct {
	mu sync.Mutex

	txTotal      uint64
	txReliable   uint64
	txUnreliable uint64
	rxTotal      uint64
	rxReliable   uint64
	rxUnreliable uint64
	retxCount    uint64
	skipCount    uint64

	rtt     *ring.Samples
	transit *ring.Samples

	lastRTT     float64
	lastTransit float64
	haveLastRTT bool
	haveLastTr  bool
	rttJitter   float64
	transitJit  float64

	registry   *prometheus.Registry
	mTxTotal   prometheus.Counter
	mRxTotal   prometheus.Counter
	mRetx      prometheus.Counter
	mSkip      prometheus.Counter
	mRTTHist   prometheus.Histogram
	mTransitHi prometheus.Histogram
}

// New creates a Stats instance with its own Prometheus registry.
func New() *Stats {
	s := &Stats{
		rtt:      ring.New(sampleRingCapacity),
		transit:  ring.New(sampleRingCapacity),
		registry: prometheus.NewRegistry(),
	}

	s.mTxTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hudp_tx_total", Help: "Total datagrams transmitted.",
	})
	s.mRxTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hudp_rx_total", Help: "Total datagrams received.",
	})
	s.mRetx = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hudp_retx_total", Help: "Total reliable retransmissions.",
	})
	s.mSkip = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hudp_skip_total", Help: "Total gap-skip advances.",
	})
	s.mRTTHist = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "hudp_rtt_ms", Help: "Observed round-trip time in milliseconds.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 14),
	})
	s.mTransitHi = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "hudp_unreliable_transit_ms", Help: "Observed one-way unreliable transit time in milliseconds.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 14),
	})

	s.registry.MustRegister(s.mTxTotal, s.mRxTotal, s.mRetx, s.mSkip, s.mRTTHist, s.mTransitHi)
	return s
}

// Registry exposes the private Prometheus registry for an HTTP handler to
// serve (e.g. via promhttp.HandlerFor), per component (application glue,
// out of scope for the engine itself).
func (s *Stats) Registry() *prometheus.Registry { return s.registry }

func (s *Stats) TxReliable() {
	s.mu.Lock()
	s.txTotal++
	s.txReliable++
	s.mu.Unlock()
	s.mTxTotal.Inc()
}

func (s *Stats) TxUnreliable() {
	s.mu.Lock()
	s.txTotal++
	s.txUnreliable++
	s.mu.Unlock()
	s.mTxTotal.Inc()
}

func (s *Stats) RxReliable() {
	s.mu.Lock()
	s.rxTotal++
	s.rxReliable++
	s.mu.Unlock()
	s.mRxTotal.Inc()
}

func (s *Stats) RxUnreliable() {
	s.mu.Lock()
	s.rxTotal++
	s.rxUnreliable++
	s.mu.Unlock()
	s.mRxTotal.Inc()
}

func (s *Stats) Retx() {
	s.mu.Lock()
	s.retxCount++
	s.mu.Unlock()
	s.mRetx.Inc()
}

func (s *Stats) Skip() {
	s.mu.Lock()
	s.skipCount++
	s.mu.Unlock()
	s.mSkip.Inc()
}

// jitterStep applies the RFC 3550 recurrence J <- J + (|D| - J) / 16.
func jitterStep(j, d float64) float64 {
	if d < 0 {
		d = -d
	}
	return j + (d-j)/16
}

// ObserveRTT records an RTT sample (milliseconds) and updates RTT jitter.
func (s *Stats) ObserveRTT(rttMs float64) {
	s.mu.Lock()
	s.rtt.Push(rttMs)
	if s.haveLastRTT {
		s.rttJitter = jitterStep(s.rttJitter, rttMs-s.lastRTT)
	}
	s.lastRTT = rttMs
	s.haveLastRTT = true
	s.mu.Unlock()
	s.mRTTHist.Observe(rttMs)
}

// ObserveUnreliableTransit records a one-way unreliable transit sample
// (milliseconds) and updates its jitter.
func (s *Stats) ObserveUnreliableTransit(transitMs float64) {
	s.mu.Lock()
	s.transit.Push(transitMs)
	if s.haveLastTr {
		s.transitJit = jitterStep(s.transitJit, transitMs-s.lastTransit)
	}
	s.lastTransit = transitMs
	s.haveLastTr = true
	s.mu.Unlock()
	s.mTransitHi.Observe(transitMs)
}

// Snapshot is a point-in-time copy of every counter and derived statistic.
type Snapshot struct {
	TxTotal, TxReliable, TxUnreliable uint64
	RxTotal, RxReliable, RxUnreliable uint64
	RetxCount, SkipCount              uint64
	RTTJitterMs, TransitJitterMs      float64
	LastRTTMs, LastTransitMs          float64
}

func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		TxTotal:          s.txTotal,
		TxReliable:       s.txReliable,
		TxUnreliable:     s.txUnreliable,
		RxTotal:          s.rxTotal,
		RxReliable:       s.rxReliable,
		RxUnreliable:     s.rxUnreliable,
		RetxCount:        s.retxCount,
		SkipCount:        s.skipCount,
		RTTJitterMs:      s.rttJitter,
		TransitJitterMs:  s.transitJit,
		LastRTTMs:        s.lastRTT,
		LastTransitMs:    s.lastTransit,
	}
}
