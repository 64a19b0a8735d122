package engine

import "time"

// Clock supplies sender-monotonic milliseconds, wrapping modulo 2^32 as
// spec §3 requires. It is an external collaborator (spec §1) so tests can
// supply a fake for deterministic timing assertions.
type Clock interface {
	NowMs() uint32
}

// SystemClock is the default Clock, measuring elapsed time since its own
// construction so the returned values start near zero instead of near the
// full range of uint32(time.Now().UnixMilli()).
type SystemClock struct {
	start time.Time
}

// NewSystemClock returns a Clock anchored to the current wall-clock time.
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

func (c *SystemClock) NowMs() uint32 {
	return uint32(time.Since(c.start).Milliseconds())
}
