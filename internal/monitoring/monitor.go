package monitoring

import (
	"context"
	"sync"
	"time"

	"discord-invite-tracker/internal/invites"

	"go.uber.org/zap"
)

const (
	DefaultJoinThreshold = 15
	DefaultAltThreshold  = 8
	DefaultSweepInterval = 5 * time.Minute
)

// Config holds the window thresholds. Zero values fall back to defaults.
type Config struct {
	JoinThreshold int           `json:"join_threshold" yaml:"join_threshold"`
	AltThreshold  int           `json:"alt_threshold" yaml:"alt_threshold"`
	JoinWindow    time.Duration `json:"-" yaml:"-"`
	AltWindow     time.Duration `json:"-" yaml:"-"`
}

func (c Config) withDefaults() Config {
	if c.JoinThreshold <= 0 {
		c.JoinThreshold = DefaultJoinThreshold
	}
	if c.AltThreshold <= 0 {
		c.AltThreshold = DefaultAltThreshold
	}
	if c.JoinWindow <= 0 {
		c.JoinWindow = time.Minute
	}
	if c.AltWindow <= 0 {
		c.AltWindow = time.Hour
	}
	return c
}

// Alert reports which thresholds a recorded join crossed.
type Alert struct {
	Raid     bool
	AltSurge bool
}

// window is a timestamp list trimmed from the front on every read.
type window struct {
	events    []time.Time
	quietTill time.Time
}

func (w *window) add(at time.Time) {
	w.events = append(w.events, at)
}

func (w *window) trim(cutoff time.Time) {
	i := 0
	for i < len(w.events) && w.events[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		w.events = append(w.events[:0], w.events[i:]...)
	}
}

type guildWindows struct {
	joins window
	alts  window
}

// Monitor keeps per-guild join and alt rates and warns when they spike. It
// only observes; nothing it does feeds back into join handling.
type Monitor struct {
	mu      sync.Mutex
	cfg     Config
	guilds  map[string]*guildWindows
	metrics *Metrics
	logger  *zap.Logger
}

func NewMonitor(cfg Config, metrics *Metrics, logger *zap.Logger) *Monitor {
	return &Monitor{
		cfg:     cfg.withDefaults(),
		guilds:  make(map[string]*guildWindows),
		metrics: metrics,
		logger:  logger.Named("monitoring"),
	}
}

// Observe records one join and returns the thresholds it crossed. Each
// warning fires at most once per window.
func (m *Monitor) Observe(guildID string, alt bool, at time.Time) Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.guilds[guildID]
	if !ok {
		g = &guildWindows{}
		m.guilds[guildID] = g
	}

	var alert Alert
	g.joins.add(at)
	g.joins.trim(at.Add(-m.cfg.JoinWindow))
	joins := len(g.joins.events)
	if joins >= m.cfg.JoinThreshold && !at.Before(g.joins.quietTill) {
		g.joins.quietTill = at.Add(m.cfg.JoinWindow)
		alert.Raid = true
		m.logger.Warn("Possible raid",
			zap.String("guild_id", guildID),
			zap.Int("joins_last_minute", joins),
			zap.Int("threshold", m.cfg.JoinThreshold))
	}

	if alt {
		g.alts.add(at)
	}
	g.alts.trim(at.Add(-m.cfg.AltWindow))
	alts := len(g.alts.events)
	if alt && alts >= m.cfg.AltThreshold && !at.Before(g.alts.quietTill) {
		g.alts.quietTill = at.Add(m.cfg.AltWindow)
		alert.AltSurge = true
		m.logger.Warn("High alt rate",
			zap.String("guild_id", guildID),
			zap.Int("alts_last_hour", alts),
			zap.Int("threshold", m.cfg.AltThreshold))
	}

	if m.metrics != nil {
		m.metrics.joinsLastMinute.WithLabelValues(guildID).Set(float64(joins))
		m.metrics.altsLastHour.WithLabelValues(guildID).Set(float64(alts))
	}
	return alert
}

// RecordJoin feeds a handled join into the windows and metrics. Duplicate,
// bot and self-invite outcomes are not member joins and only hit the
// outcome counter.
func (m *Monitor) RecordJoin(guildID string, outcome invites.Outcome, score int, at time.Time) {
	if m.metrics != nil {
		m.metrics.joins.WithLabelValues(outcome.String()).Inc()
	}
	switch outcome {
	case invites.OutcomeAlt, invites.OutcomeRegular:
		if m.metrics != nil {
			m.metrics.scores.Observe(float64(score))
		}
	case invites.OutcomeVanity, invites.OutcomeRejoin:
	default:
		return
	}
	m.Observe(guildID, outcome == invites.OutcomeAlt, at)
}

func (m *Monitor) RecordLeave(string) {
	if m.metrics != nil {
		m.metrics.leaves.Inc()
	}
}

// Counts returns the current window sizes for a guild.
func (m *Monitor) Counts(guildID string, now time.Time) (joins, alts int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.guilds[guildID]
	if !ok {
		return 0, 0
	}
	for _, t := range g.joins.events {
		if !t.Before(now.Add(-m.cfg.JoinWindow)) {
			joins++
		}
	}
	for _, t := range g.alts.events {
		if !t.Before(now.Add(-m.cfg.AltWindow)) {
			alts++
		}
	}
	return joins, alts
}

// Sweep drops expired timestamps and forgets idle guilds. It returns the
// number of guilds removed.
func (m *Monitor) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, g := range m.guilds {
		g.joins.trim(now.Add(-m.cfg.JoinWindow))
		g.alts.trim(now.Add(-m.cfg.AltWindow))
		if len(g.joins.events) == 0 && len(g.alts.events) == 0 {
			delete(m.guilds, id)
			removed++
			if m.metrics != nil {
				m.metrics.joinsLastMinute.DeleteLabelValues(id)
				m.metrics.altsLastHour.DeleteLabelValues(id)
			}
			continue
		}
		if m.metrics != nil {
			m.metrics.joinsLastMinute.WithLabelValues(id).Set(float64(len(g.joins.events)))
			m.metrics.altsLastHour.WithLabelValues(id).Set(float64(len(g.alts.events)))
		}
	}
	return removed
}

// Run sweeps every interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = DefaultSweepInterval
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := m.Sweep(now); n > 0 {
				m.logger.Debug("Swept idle guild windows", zap.Int("removed", n))
			}
		}
	}
}
