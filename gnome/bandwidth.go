package gnome

import (
	"time"

	"golang.org/x/time/rate"
)

const bandwidthHistoryDepth = 16

// BandwidthMonitor tracks recent token usage in a 16-slot rolling ring
// buffer, grounded directly on original_source/src/band_mon.rs. A "token"
// is whatever unit the caller chooses to count (bytes, messages); the
// monitor itself is unit-agnostic.
//
// It doubles as the bandwidth-adaptive pacing loop spec.md §1 and §4.7
// describe: Allow feeds the rolling average into a token-bucket limiter
// so bursts of discovery/multicast-setup traffic back off automatically
// as recent usage climbs.
type BandwidthMonitor struct {
	history      [bandwidthHistoryDepth]uint64
	index        int
	currentUsage uint64
	periodStart  time.Time
	periodLength time.Duration
	now          func() time.Time

	limiter *rate.Limiter
}

// NewBandwidthMonitor starts a monitor that rolls its current period into
// history every periodLength.
func NewBandwidthMonitor(periodLength time.Duration) *BandwidthMonitor {
	return newBandwidthMonitorWithClock(periodLength, time.Now)
}

func newBandwidthMonitorWithClock(periodLength time.Duration, now func() time.Time) *BandwidthMonitor {
	return &BandwidthMonitor{
		periodLength: periodLength,
		periodStart:  now(),
		now:          now,
		limiter:      rate.NewLimiter(rate.Every(periodLength), 1),
	}
}

// Average returns the mean tokens-per-period across the last 16 periods
// (sum >> 4, matching the source exactly rather than an integer divide,
// since 16 is fixed at compile time).
func (m *BandwidthMonitor) Average() uint64 {
	var sum uint64
	for _, v := range m.history {
		sum += v
	}
	return sum >> 4
}

// Update records usedTokens against the current period, rolling it into
// history and advancing to a fresh period once periodLength has elapsed.
func (m *BandwidthMonitor) Update(usedTokens uint64) {
	now := m.now()
	m.currentUsage += usedTokens
	if now.Sub(m.periodStart) >= m.periodLength {
		m.history[m.index] = m.currentUsage
		m.currentUsage = 0
		m.periodStart = now
		m.index++
		if m.index >= bandwidthHistoryDepth {
			m.index = 0
		}
	}
}

// bandwidthPacingCeiling caps how many periods' worth of delay a single
// heavy-usage average can impose, so a brief spike doesn't starve
// discovery indefinitely.
const bandwidthPacingCeiling = 8

// Allow reports whether a bandwidth-sensitive action (a discovery probe,
// a specialized multicast setup send) may proceed right now. The
// underlying token-bucket's rate is re-derived from the rolling average
// on every call: the heavier recent usage has been, the longer this
// gnome waits between such sends — one period when idle, plus one period
// per token of average usage, up to 1+bandwidthPacingCeiling periods.
func (m *BandwidthMonitor) Allow() bool {
	level := m.Average()
	if level > bandwidthPacingCeiling {
		level = bandwidthPacingCeiling
	}
	interval := m.periodLength * time.Duration(1+level)
	now := m.now()
	m.limiter.SetLimitAt(now, rate.Every(interval))
	return m.limiter.AllowN(now, 1)
}
