package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/hearth-social/warden/automod/audit"
	"github.com/hearth-social/warden/automod/cachestore"
	"github.com/hearth-social/warden/automod/config"
	"github.com/hearth-social/warden/automod/discord"
	"github.com/hearth-social/warden/automod/engine"
	"github.com/hearth-social/warden/automod/enforce"
	"github.com/hearth-social/warden/automod/quarantine"
	"github.com/hearth-social/warden/automod/rolebackup"
	"github.com/hearth-social/warden/automod/rules"
	"github.com/hearth-social/warden/automod/setstore"
	"github.com/hearth-social/warden/automod/strikes"
	"github.com/hearth-social/warden/automod/visual"
	"github.com/hearth-social/warden/automod/window"
	"github.com/hearth-social/warden/util"

	"github.com/bwmarrin/discordgo"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type Server struct {
	logger  *slog.Logger
	engine  *engine.Engine
	gateway *discord.Gateway
	admin   *AdminServer
	nc      *nats.Conn

	sweepInterval time.Duration
}

type Config struct {
	Logger            *slog.Logger
	DiscordToken      string
	RedisURL          string
	ConfigDir         string
	SetsFileJSON      string
	SlackWebhookURL   string
	NatsURL           string
	NatsSubjectPrefix string
	AuditNotifyLimit  int
	HiveAPIToken      string
	HiveEndpoint      string
	HiveRateLimit     float64
	DisableClassifier bool
	AdminBind         string
	AdminToken        string
	Workers           int
	MaxQueue          int
	SweepInterval     time.Duration
}

func NewServer(db *gorm.DB, cfg Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}
	platform := discord.NewPlatform(session, logger)

	sets := setstore.NewMemSetStore()
	if cfg.SetsFileJSON != "" {
		if err := sets.LoadFromFileJSON(cfg.SetsFileJSON); err != nil {
			return nil, fmt.Errorf("initializing in-process setstore: %v", err)
		} else {
			logger.Info("loaded set config from JSON", "path", cfg.SetsFileJSON, "phishing_domains", sets.Size(setstore.SetPhishingDomains))
		}
	}

	var windows window.WindowStore
	var cache cachestore.CacheStore
	if cfg.RedisURL != "" {
		ws, err := window.NewRedisWindowStore(cfg.RedisURL, 2*time.Hour)
		if err != nil {
			return nil, fmt.Errorf("initializing redis window store: %v", err)
		}
		windows = ws

		csh, err := cachestore.NewRedisCacheStore(cfg.RedisURL, 10*time.Minute)
		if err != nil {
			return nil, fmt.Errorf("initializing redis cachestore: %v", err)
		}
		cache = csh
	} else {
		windows = window.NewMemWindowStore()
		cache = cachestore.NewMemCacheStore(5_000, 10*time.Minute)
	}

	var docs config.Store
	if cfg.ConfigDir != "" {
		fstore, err := config.NewFileStore(cfg.ConfigDir)
		if err != nil {
			return nil, fmt.Errorf("initializing config directory: %v", err)
		}
		logger.Info("moderation configs stored as files", "dir", cfg.ConfigDir)
		docs = fstore
	} else {
		gs, err := config.NewGormStore(db)
		if err != nil {
			return nil, fmt.Errorf("initializing config table: %v", err)
		}
		docs = gs
	}
	configs := config.NewRegistry(&config.CachedStore{Inner: docs, Cache: cache}, logger)

	strikeStore, err := strikes.NewGormStore(db)
	if err != nil {
		return nil, fmt.Errorf("initializing strikes table: %v", err)
	}
	backupStore, err := rolebackup.NewGormStore(db)
	if err != nil {
		return nil, fmt.Errorf("initializing role backup table: %v", err)
	}

	var nc *nats.Conn
	if cfg.NatsURL != "" {
		nc, err = nats.Connect(cfg.NatsURL, nats.Name("warden"))
		if err != nil {
			return nil, fmt.Errorf("connecting to nats: %v", err)
		}
	}
	sink := auditSinks(cfg, logger, platform, configs, nc)

	var classifier visual.Classifier
	if !cfg.DisableClassifier {
		logger.Info("configuring Hive AI image classifier")
		classifier = visual.NewHiveAIClient(visual.HiveAIConfig{
			ApiToken:  cfg.HiveAPIToken,
			Endpoint:  cfg.HiveEndpoint,
			RateLimit: cfg.HiveRateLimit,
		})
	}

	eng := &engine.Engine{
		Logger:     logger,
		Rules:      rules.DefaultRules(),
		Windows:    windows,
		Sets:       sets,
		Configs:    configs,
		Executor:   enforce.NewExecutor(platform, sink, logger),
		Strikes:    strikes.NewLedger(strikeStore, logger),
		Backups:    rolebackup.NewService(backupStore, platform, logger),
		Quarantine: quarantine.NewService(platform, logger),
		Slowmode:   engine.NewSlowmodeTracker(),
		Classifier: classifier,
	}

	s := &Server{
		logger: logger,
		engine: eng,
		gateway: discord.NewGateway(session, eng, logger, discord.GatewayConfig{
			Workers:  cfg.Workers,
			MaxQueue: cfg.MaxQueue,
		}),
		nc:            nc,
		sweepInterval: cfg.SweepInterval,
	}
	if s.sweepInterval <= 0 {
		s.sweepInterval = 30 * time.Second
	}
	if cfg.AdminToken != "" {
		s.admin = NewAdminServer(eng, cfg.AdminBind, cfg.AdminToken, logger)
	} else {
		logger.Warn("admin token not configured, admin API disabled")
	}
	return s, nil
}

// Everything is written to the structured log and (when configured) NATS; human-facing destinations are rate limited per community.
func auditSinks(cfg Config, logger *slog.Logger, platform *discord.Platform, configs *config.Registry, nc *nats.Conn) audit.Sink {
	limit := int64(cfg.AuditNotifyLimit)
	if limit <= 0 {
		limit = 30
	}
	sinks := audit.MultiSink{
		&audit.LogSink{Logger: logger.With("component", "audit")},
		audit.NewLimitedSink(&audit.ChannelSink{
			Sender: platform,
			ChannelFor: func(ctx context.Context, communityID string) string {
				c, err := configs.Get(ctx, communityID)
				if err != nil {
					return ""
				}
				return c.Logs.ChannelID
			},
		}, time.Minute, limit),
	}
	if cfg.SlackWebhookURL != "" {
		sinks = append(sinks, audit.NewLimitedSink(&audit.SlackSink{
			WebhookURL: cfg.SlackWebhookURL,
			Client:     util.RobustHTTPClient(),
		}, time.Minute, limit))
	}
	if nc != nil {
		sinks = append(sinks, &audit.NatsSink{Conn: nc, SubjectPrefix: cfg.NatsSubjectPrefix})
	}
	return sinks
}

func (s *Server) RunMetrics(listen string) error {
	http.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(listen, nil)
}

// Runs the gateway consumer and background sweepers until ctx is cancelled or one of them fails.
func (s *Server) Run(ctx context.Context) error {
	defer func() {
		if s.nc != nil {
			s.nc.Close()
		}
	}()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.gateway.Run(ctx)
	})
	g.Go(func() error {
		s.engine.RunSweeps(ctx, s.sweepInterval)
		return nil
	})
	g.Go(func() error {
		s.engine.Quarantine.Run(ctx, s.sweepInterval)
		return nil
	})
	if s.admin != nil {
		g.Go(func() error {
			return s.admin.Run(ctx)
		})
	}
	return g.Wait()
}
