package bot

import (
	"net/http"
	"sync/atomic"
	"time"

	"discord-invite-tracker/internal/commands"
)

// PerformanceMonitor tracks gateway and REST activity for /stats.
type PerformanceMonitor struct {
	commandCount atomic.Uint64

	eventCount   atomic.Uint64
	eventLatency atomic.Int64 // nanoseconds

	restCallCount atomic.Uint64
	restLatency   atomic.Int64 // nanoseconds

	wsLatency atomic.Int64 // milliseconds

	startTime time.Time
}

func NewPerformanceMonitor() *PerformanceMonitor {
	return &PerformanceMonitor{
		startTime: time.Now(),
	}
}

func (pm *PerformanceMonitor) TrackCommand() {
	pm.commandCount.Add(1)
}

// TrackEvent records how long a gateway event took to handle.
func (pm *PerformanceMonitor) TrackEvent(duration time.Duration) {
	pm.eventCount.Add(1)
	pm.eventLatency.Store(duration.Nanoseconds())
}

// TrackREST records REST API call time
func (pm *PerformanceMonitor) TrackREST(duration time.Duration) {
	pm.restCallCount.Add(1)
	pm.restLatency.Store(duration.Nanoseconds())
}

func (pm *PerformanceMonitor) UpdateWSLatency(latency time.Duration) {
	pm.wsLatency.Store(latency.Milliseconds())
}

func (pm *PerformanceMonitor) WSLatency() time.Duration {
	return time.Duration(pm.wsLatency.Load()) * time.Millisecond
}

// Snapshot fills the counters of a stats view. Guild count and pending writes
// come from the bot.
func (pm *PerformanceMonitor) Snapshot() commands.RuntimeStats {
	return commands.RuntimeStats{
		StartTime:     pm.startTime,
		EventsHandled: pm.eventCount.Load(),
		RESTCalls:     pm.restCallCount.Load(),
		RESTLatency:   time.Duration(pm.restLatency.Load()),
	}
}

// PerfTransport wraps http.RoundTripper to track REST latency
type PerfTransport struct {
	Base    http.RoundTripper
	Monitor *PerformanceMonitor
}

func (t *PerfTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.Base.RoundTrip(req)
	t.Monitor.TrackREST(time.Since(start))
	return resp, err
}
