// Command care-sink is the durable sink the CareSync nodes post events and
// heartbeats to. It stores the log and serves it back to the dashboard.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/sweeney/caresync/internal/backend/api"
	"github.com/sweeney/caresync/internal/backend/storage/memory"
	"github.com/sweeney/caresync/internal/backend/storage/postgres"
	"github.com/sweeney/caresync/internal/backend/stream"
	"github.com/sweeney/caresync/internal/config"
	"github.com/sweeney/caresync/internal/logger"
)

func main() {
	cfg := config.LoadSink()
	cfg.RegisterFlags(flag.CommandLine)
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Sink) error {
	zl, err := logger.New(cfg.Log.Level, cfg.Log.Format, "care-sink")
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer zl.Sync()

	store, closeStore, err := openStore(ctx, cfg, zl)
	if err != nil {
		return err
	}
	defer closeStore()

	var opts []api.Option
	if cfg.RedisAddr != "" {
		rdb, err := stream.Dial(ctx, cfg.RedisAddr, cfg.RedisPass)
		if err != nil {
			return err
		}
		defer rdb.Close()
		opts = append(opts, api.WithStreamer(stream.NewPublisher(rdb)))
		zl.Info("live stream enabled", zap.String("redis", cfg.RedisAddr))
	}

	srv := api.NewServer(api.Config{Addr: cfg.Addr}, store, zl, opts...)
	zl.Info("started", zap.String("store", cfg.Store), zap.String("addr", cfg.Addr))
	return srv.Run(ctx)
}

func openStore(ctx context.Context, cfg *config.Sink, zl *zap.Logger) (api.Store, func(), error) {
	if cfg.Store != "postgres" {
		return memory.NewStore(), func() {}, nil
	}

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	store := postgres.NewStore(db, zl)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return store, func() { db.Close() }, nil
}
