package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"discord-invite-tracker/internal/cache"
	"discord-invite-tracker/internal/config"
	"discord-invite-tracker/internal/database"
	"discord-invite-tracker/internal/invites"
	"discord-invite-tracker/internal/monitoring"
	"discord-invite-tracker/internal/redis"
	"discord-invite-tracker/internal/scoring"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	eventTimeout     = 30 * time.Second
	shutdownTimeout  = 10 * time.Second
	flushInterval    = 30 * time.Second
	presenceCacheTTL = 15 * time.Minute
)

type Bot struct {
	Session     *discordgo.Session
	Config      *config.Config
	DB          *database.Database
	Redis       *redis.Client
	Ledger      *invites.Ledger
	Tracker     *invites.Tracker
	Handler     *invites.Handler
	Scorer      *scoring.Scorer
	Monitor     *monitoring.Monitor
	Metrics     *monitoring.Metrics
	Leaderboard *redis.Leaderboard
	Profiles    *cache.Cache[*scoring.Profile]
	Presences   *cache.Cache[*scoring.Presence]
	Locker      *invites.FallbackLocker
	StartTime   time.Time
	Logger      *zap.Logger
	PerfMonitor *PerformanceMonitor

	ctx    context.Context
	cancel context.CancelFunc
	server *http.Server

	guildsMu sync.RWMutex
	guilds   map[string]struct{}
}

func New(cfg *config.Config, db *database.Database, rdb *redis.Client, logger *zap.Logger) (*Bot, error) {
	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("session error: %w", err)
	}

	tr := &http.Transport{
		MaxIdleConns:          200,
		MaxIdleConnsPerHost:   100,
		IdleConnTimeout:       120 * time.Second,
		ForceAttemptHTTP2:     true,
		ResponseHeaderTimeout: 10 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	// Presences are needed for scoring; GuildMembers for join and leave events.
	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildInvites |
		discordgo.IntentsGuildPresences

	perfMonitor := NewPerformanceMonitor()
	s.Client = &http.Client{
		Transport: &PerfTransport{
			Base:    tr,
			Monitor: perfMonitor,
		},
		Timeout: 15 * time.Second,
	}

	// Presences and profiles are cached by the bot itself.
	s.StateEnabled = false
	s.ShouldReconnectOnError = true
	s.ShouldRetryOnRateLimit = true
	s.MaxRestRetries = 3

	profiles, err := cache.New[*scoring.Profile](rdb, cache.Config{
		Prefix:     "profile:",
		L1MaxItems: 20000,
		TTL:        cfg.Invites.ProfileCacheTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("profile cache: %w", err)
	}
	presences, err := cache.New[*scoring.Presence](nil, cache.Config{
		L1MaxItems: 100000,
		TTL:        presenceCacheTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("presence cache: %w", err)
	}

	metrics := monitoring.NewMetrics()
	monitor := monitoring.NewMonitor(cfg.MonitorConfig(), metrics, logger)
	leaderboard := redis.NewLeaderboard(rdb)
	ledger := invites.NewLedger(db, leaderboard, cfg.Invites.LeaveWeight, logger)
	tracker := invites.NewTracker(sessionInviteSource{rest: s}, cfg.ResolveOptions(), logger)
	scorer := scoring.NewScorer(NewProfileFetcher(s, profiles, logger), logger)
	locker := invites.NewFallbackLocker(redis.NewLocker(rdb), logger)
	notifier := NewChannelNotifier(s, cfg.Invites.AnnounceChannelID, cfg.Invites.WelcomeChannelIDs,
		cfg.Invites.WelcomeDeleteAfter, logger)

	handler := invites.NewHandler(invites.HandlerDeps{
		Tracker:    tracker,
		Ledger:     ledger,
		Scorer:     scorer,
		Notifier:   notifier,
		Locker:     locker,
		Recorder:   monitor,
		Affiliates: db,
	}, cfg.HandlerConfig(), logger)

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bot{
		Session:     s,
		Config:      cfg,
		DB:          db,
		Redis:       rdb,
		Ledger:      ledger,
		Tracker:     tracker,
		Handler:     handler,
		Scorer:      scorer,
		Monitor:     monitor,
		Metrics:     metrics,
		Leaderboard: leaderboard,
		Profiles:    profiles,
		Presences:   presences,
		Locker:      locker,
		StartTime:   time.Now(),
		Logger:      logger,
		PerfMonitor: perfMonitor,
		ctx:         ctx,
		cancel:      cancel,
		guilds:      make(map[string]struct{}),
	}

	s.AddHandler(b.Ready)
	s.AddHandler(b.GuildCreate)
	s.AddHandler(b.GuildDelete)
	s.AddHandler(b.GuildMemberAdd)
	s.AddHandler(b.GuildMemberRemove)
	s.AddHandler(b.InviteCreate)
	s.AddHandler(b.InviteDelete)
	s.AddHandler(b.PresenceUpdate)
	s.AddHandler(b.InteractionCreate)

	return b, nil
}

func (b *Bot) Start() error {
	log.Println("Loading invite ledger...")
	if err := b.Ledger.Load(b.ctx); err != nil {
		return fmt.Errorf("failed to load ledger: %w", err)
	}
	if err := b.rebuildLeaderboards(b.ctx); err != nil {
		// Ranks fall back to the in-memory ledger until the next update.
		b.Logger.Warn("Leaderboard rebuild incomplete", zap.Error(err))
	}

	log.Println("Connecting to Discord Gateway...")
	if err := b.Session.Open(); err != nil {
		log.Printf("Failed to connect to Discord Gateway: %v", err)
		log.Println("   Common causes:")
		log.Println("   • Invalid bot token in config")
		log.Println("   • Privileged intents (members, presences) not enabled")
		log.Println("   • Network connectivity issues")
		return fmt.Errorf("gateway connection failed: %w", err)
	}
	log.Println("Connected to Discord Gateway")

	// State is disabled, so the bot user has to be fetched once.
	if b.Session.State.User == nil {
		u, err := b.Session.User("@me")
		if err != nil {
			return fmt.Errorf("failed to get bot user: %w", err)
		}
		b.Session.State.User = u
	}

	b.DB.StartPreparedStatementRefresher(b.ctx)
	go b.Monitor.Run(b.ctx, b.Config.Monitoring.SweepInterval)
	go b.monitorHeartbeat()
	go b.flushLoop()
	b.startHTTP()

	log.Println("Bot is running!")

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc

	return b.Close()
}

func (b *Bot) Close() error {
	log.Println("Shutting down...")
	b.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if b.server != nil {
		if err := b.server.Shutdown(ctx); err != nil {
			b.Logger.Warn("HTTP listener shutdown failed", zap.Error(err))
		}
	}
	if err := b.Ledger.Flush(ctx); err != nil {
		b.Logger.Error("Ledger writes lost on shutdown",
			zap.Int("pending", b.Ledger.Pending()),
			zap.Error(err))
	}

	b.Profiles.Close()
	b.Presences.Close()
	b.DB.Close()
	b.Redis.Close()
	b.Logger.Sync()
	return b.Session.Close()
}

// rebuildLeaderboards replaces every Redis leaderboard with ledger totals.
func (b *Bot) rebuildLeaderboards(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for guildID, totals := range b.Ledger.Totals() {
		guildID, totals := guildID, totals
		g.Go(func() error {
			return b.Leaderboard.Rebuild(ctx, guildID, totals)
		})
	}
	return g.Wait()
}

// flushLoop retries ledger writes that failed while handling events and
// drops expired local join locks.
func (b *Bot) flushLoop() {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			b.Locker.Sweep()
			if b.Ledger.Pending() == 0 {
				continue
			}
			if err := b.Ledger.Flush(b.ctx); err != nil {
				b.Logger.Warn("Ledger flush failed",
					zap.Int("pending", b.Ledger.Pending()),
					zap.Error(err))
			}
		}
	}
}

func (b *Bot) startHTTP() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", b.Metrics.Handler())
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	b.server = &http.Server{
		Addr:              b.Config.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("Serving metrics and pprof on %s", b.Config.MetricsAddr)
		if err := b.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			b.Logger.Error("HTTP listener stopped", zap.Error(err))
		}
	}()
}

// monitorHeartbeat logs WebSocket heartbeat latency
func (b *Bot) monitorHeartbeat() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
		}

		latency := b.Session.HeartbeatLatency()
		b.PerfMonitor.UpdateWSLatency(latency)

		switch ms := latency.Milliseconds(); {
		case ms < 100:
			b.Logger.Debug("Gateway heartbeat", zap.Int64("latency_ms", ms))
		case ms < 500:
			b.Logger.Info("Gateway heartbeat slow", zap.Int64("latency_ms", ms))
		default:
			b.Logger.Warn("Gateway heartbeat critical", zap.Int64("latency_ms", ms))
		}
	}
}

func (b *Bot) eventContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(b.ctx, eventTimeout)
}

func (b *Bot) guildCount() int {
	b.guildsMu.RLock()
	defer b.guildsMu.RUnlock()
	return len(b.guilds)
}
