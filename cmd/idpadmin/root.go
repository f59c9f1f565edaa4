package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/MrEthical07/idpcore"
	"github.com/MrEthical07/idpcore/internal/logging"
	"github.com/MrEthical07/idpcore/notify"
	"github.com/MrEthical07/idpcore/store/memory"
	"github.com/MrEthical07/idpcore/store/postgres"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "idpadmin",
		Short: "Run and administer the identity provider decision engine.",
		Long: `idpadmin hosts the authentication decision engine and its admin API.

Configuration is read from a YAML file (--config) and then overridden by
IDP_* environment variables.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv("IDP_CONFIG"), "path to YAML config file")

	root.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newHashPasswordCmd(opts),
		newAssignableRolesCmd(opts),
	)
	return root
}

// runtime holds everything a command needs to talk to the engine.
type runtime struct {
	cfg    idpcore.Config
	slog   *slog.Logger
	log    logging.Logger
	engine *idpcore.Engine
	store  any

	closers []func() error
}

func (rt *runtime) Close() {
	if rt.engine != nil {
		rt.engine.Close()
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		_ = rt.closers[i]()
	}
}

func loadConfig(opts *rootOptions) (idpcore.Config, error) {
	cfg, err := idpcore.LoadConfigFile(opts.configPath)
	if err != nil {
		return idpcore.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg idpcore.Config, w io.Writer) *slog.Logger {
	h := &slog.HandlerOptions{Level: logging.ParseLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, h))
	}
	return slog.New(slog.NewTextHandler(w, h))
}

// openRuntime wires stores, Redis and the notifier from cfg and builds the
// engine. Without a database DSN the engine runs on the in-memory store.
func openRuntime(ctx context.Context, cfg idpcore.Config, stderr io.Writer) (*runtime, error) {
	sl := newLogger(cfg, stderr)
	rt := &runtime{cfg: cfg, slog: sl, log: logging.NewSlogLogger(sl)}

	b := idpcore.New().WithConfig(cfg).WithLogger(rt.log)

	if cfg.Database.DSN != "" {
		db, err := postgres.Open(ctx, cfg.Database.DSN, postgres.Options{
			MaxConnections:  cfg.Database.MaxConnections,
			MinConnections:  cfg.Database.MinConnections,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, db.Close)
		if cfg.Database.MigrateOnStart {
			if err := postgres.Migrate(ctx, db); err != nil {
				rt.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		rt.store = postgres.New(db)
	} else {
		rt.log.Warn(ctx, "no database configured, using in-memory store")
		rt.store = memory.New()
	}
	b.WithStore(rt.store)

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			rt.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		rt.closers = append(rt.closers, rdb.Close)
		b.WithRedis(rdb)
	}

	if cfg.Notify.Enabled {
		client, err := notify.New(notify.Config{
			BaseURL:       cfg.Notify.BaseURL,
			APIKey:        cfg.Notify.APIKey,
			Timeout:       cfg.Notify.Timeout,
			RatePerSecond: cfg.Notify.RatePerSecond,
			Burst:         cfg.Notify.Burst,
		})
		if err != nil {
			rt.Close()
			return nil, err
		}
		b.WithNotifier(client)
	}

	if cfg.Audit.Enabled {
		b.WithAuditSink(idpcore.NewSlogSink(sl.With("stream", "audit")))
	}

	engine, err := b.Build()
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("build engine: %w", err)
	}
	rt.engine = engine
	return rt, nil
}

func openDatabase(ctx context.Context, cfg idpcore.Config) (*sql.DB, error) {
	if cfg.Database.DSN == "" {
		return nil, errors.New("database DSN is not configured (IDP_DATABASE_DSN)")
	}
	return postgres.Open(ctx, cfg.Database.DSN, postgres.Options{
		MaxConnections:  cfg.Database.MaxConnections,
		MinConnections:  cfg.Database.MinConnections,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
}
