package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hearth-social/warden/automod/config"
	"github.com/hearth-social/warden/util/cliutil"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "warden",
		Usage:   "community trust-and-safety daemon",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity level (eg: warn, info, debug)",
			EnvVars: []string{"WARDEN_LOG_LEVEL", "LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "log output format (text or json)",
			EnvVars: []string{"WARDEN_LOG_FMT", "LOG_FMT"},
		},
		&cli.IntFlag{
			Name:    "max-db-connections",
			EnvVars: []string{"MAX_DB_CONNECTIONS"},
			Value:   40,
		},
	}

	app.Commands = []*cli.Command{
		runCmd,
		validateConfigCmd,
	}

	return app.Run(args)
}

func setupLogger(cctx *cli.Context) (*slog.Logger, error) {
	return cliutil.SetupSlog(cliutil.LogOptions{
		LogLevel:  cctx.String("log-level"),
		LogFormat: cctx.String("log-format"),
	})
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "run the service",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "discord-token",
			Usage:   "bot token for the Discord gateway and REST API",
			EnvVars: []string{"WARDEN_DISCORD_TOKEN", "DISCORD_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "database-url",
			Value:   "sqlite://data/warden/warden.db",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis connection URL, for shared rate windows and config caching",
			EnvVars: []string{"WARDEN_REDIS_URL"},
		},
		&cli.StringFlag{
			Name:    "config-dir",
			Usage:   "directory of per-community YAML moderation configs; when unset configs are kept in the database",
			EnvVars: []string{"WARDEN_CONFIG_DIR"},
		},
		&cli.StringFlag{
			Name:    "sets-json-path",
			Usage:   "file path of JSON file containing static sets (eg, phishing domains)",
			EnvVars: []string{"WARDEN_SETS_JSON_PATH"},
		},
		&cli.StringFlag{
			Name:    "slack-webhook-url",
			Usage:   "full URL of slack webhook",
			EnvVars: []string{"SLACK_WEBHOOK_URL"},
		},
		&cli.StringFlag{
			Name:    "nats-url",
			Usage:   "NATS server URL; audit records are published when set",
			EnvVars: []string{"WARDEN_NATS_URL"},
		},
		&cli.StringFlag{
			Name:    "nats-subject-prefix",
			Value:   "warden.audit",
			EnvVars: []string{"WARDEN_NATS_SUBJECT_PREFIX"},
		},
		&cli.IntFlag{
			Name:    "audit-notify-limit",
			Usage:   "max audit notifications per community per minute, for the log channel and slack",
			Value:   30,
			EnvVars: []string{"WARDEN_AUDIT_NOTIFY_LIMIT"},
		},
		&cli.StringFlag{
			Name:    "hiveai-api-token",
			Usage:   "default API token for Hive image classification; communities may set their own",
			EnvVars: []string{"HIVEAI_API_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "hiveai-endpoint",
			EnvVars: []string{"HIVEAI_ENDPOINT"},
		},
		&cli.Float64Flag{
			Name:    "hiveai-rate-limit",
			Usage:   "max image classification requests per second",
			Value:   10,
			EnvVars: []string{"HIVEAI_RATE_LIMIT"},
		},
		&cli.BoolFlag{
			Name:    "disable-classifier",
			Usage:   "never call the image classifier (NSFW detection produces no verdicts)",
			EnvVars: []string{"WARDEN_DISABLE_CLASSIFIER"},
		},
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "IP or address, and port, to listen on for the admin HTTP API",
			Value:   ":3999",
			EnvVars: []string{"WARDEN_BIND"},
		},
		&cli.StringFlag{
			Name:    "admin-token",
			Usage:   "bearer token for the admin HTTP API; the API is not served when unset",
			EnvVars: []string{"WARDEN_ADMIN_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":3998",
			EnvVars: []string{"WARDEN_METRICS_LISTEN"},
		},
		&cli.IntFlag{
			Name:    "workers",
			Usage:   "parallel event workers (events of one community are always sequential)",
			Value:   32,
			EnvVars: []string{"WARDEN_WORKERS"},
		},
		&cli.IntFlag{
			Name:    "max-queue",
			Usage:   "per-community event backlog before events are dropped",
			Value:   1000,
			EnvVars: []string{"WARDEN_MAX_QUEUE"},
		},
		&cli.DurationFlag{
			Name:    "sweep-interval",
			Value:   30 * time.Second,
			EnvVars: []string{"WARDEN_SWEEP_INTERVAL"},
		},
	},
	Action: func(cctx *cli.Context) error {
		logger, err := setupLogger(cctx)
		if err != nil {
			return err
		}

		shutdownTracing := configOTEL("warden")
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdownTracing(ctx)
		}()

		if cctx.String("discord-token") == "" {
			return fmt.Errorf("discord token is required")
		}

		db, err := cliutil.SetupDatabase(cctx.String("database-url"), cctx.Int("max-db-connections"))
		if err != nil {
			return err
		}

		srv, err := NewServer(
			db,
			Config{
				Logger:            logger,
				DiscordToken:      cctx.String("discord-token"),
				RedisURL:          cctx.String("redis-url"),
				ConfigDir:         cctx.String("config-dir"),
				SetsFileJSON:      cctx.String("sets-json-path"),
				SlackWebhookURL:   cctx.String("slack-webhook-url"),
				NatsURL:           cctx.String("nats-url"),
				NatsSubjectPrefix: cctx.String("nats-subject-prefix"),
				AuditNotifyLimit:  cctx.Int("audit-notify-limit"),
				HiveAPIToken:      cctx.String("hiveai-api-token"),
				HiveEndpoint:      cctx.String("hiveai-endpoint"),
				HiveRateLimit:     cctx.Float64("hiveai-rate-limit"),
				DisableClassifier: cctx.Bool("disable-classifier"),
				AdminBind:         cctx.String("bind"),
				AdminToken:        cctx.String("admin-token"),
				Workers:           cctx.Int("workers"),
				MaxQueue:          cctx.Int("max-queue"),
				SweepInterval:     cctx.Duration("sweep-interval"),
			},
		)
		if err != nil {
			return err
		}

		go func() {
			if err := srv.RunMetrics(cctx.String("metrics-listen")); err != nil {
				slog.Error("failed to start metrics endpoint", "error", err)
				panic(fmt.Errorf("failed to start metrics endpoint: %w", err))
			}
		}()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("failed to run moderation service: %w", err)
		}
		return nil
	},
}

var validateConfigCmd = &cli.Command{
	Name:      "validate-config",
	Usage:     "check moderation config YAML files, printing the effective document",
	ArgsUsage: "<file.yaml>...",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "quiet",
			Usage: "only report errors",
		},
	},
	Action: func(cctx *cli.Context) error {
		if cctx.Args().Len() == 0 {
			return fmt.Errorf("need at least one config file")
		}
		failed := 0
		for _, p := range cctx.Args().Slice() {
			b, err := os.ReadFile(p)
			if err != nil {
				return err
			}
			communityID := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
			c, err := config.DecodeYAML(communityID, b)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", p, err)
				failed++
				continue
			}
			if cctx.Bool("quiet") {
				continue
			}
			out, err := yaml.Marshal(c)
			if err != nil {
				return err
			}
			fmt.Printf("# %s\n%s\n", p, out)
		}
		if failed > 0 {
			return fmt.Errorf("%d invalid config file(s)", failed)
		}
		return nil
	},
}
