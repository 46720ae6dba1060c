package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dattmumas/lnked-realtime/internal/api"
	"github.com/dattmumas/lnked-realtime/internal/auth"
	"github.com/dattmumas/lnked-realtime/internal/clock"
	"github.com/dattmumas/lnked-realtime/internal/config"
	"github.com/dattmumas/lnked-realtime/internal/engine"
	"github.com/dattmumas/lnked-realtime/internal/logger"
	"github.com/dattmumas/lnked-realtime/internal/metrics"
	"github.com/dattmumas/lnked-realtime/internal/store"
	"github.com/dattmumas/lnked-realtime/internal/tap"
	"github.com/dattmumas/lnked-realtime/internal/transport"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}
	zlog, err := logger.New(logger.Config{Development: cfg.App.Env != "production"})
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	var validator *auth.JWTValidator
	if cfg.JWT.Algorithm == "RS256" {
		validator, err = auth.NewValidatorRS256(cfg.JWT.PublicKeyPath)
	} else {
		validator, err = auth.NewValidatorHS256(cfg.JWT.HSSecret)
	}
	if err != nil {
		zlog.Fatalw("jwt validator init failed", "err", err)
	}

	tr, err := transport.NewNATS(cfg.NATS.URL, zlog)
	if err != nil {
		zlog.Fatalw("nats connect failed", "url", cfg.NATS.URL, "err", err)
	}
	defer func() { _ = tr.Close() }()

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 15*time.Second)
	mongoClient, err := mongo.Connect(bootCtx, options.Client().ApplyURI(cfg.Mongo.URI))
	bootCancel()
	if err != nil {
		zlog.Fatalw("mongo connect failed", "err", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mongoClient.Disconnect(ctx)
	}()
	history := store.NewMongoHistory(mongoClient.Database(cfg.Mongo.DB))

	var summaries *store.SummaryCache
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()
		summaries = store.NewSummaryCache(rdb, cfg.Redis.Prefix, cfg.SummaryTTL)
	}

	var tapper *tap.Producer
	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.TopicMessages != "" {
		tapper = tap.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicMessages, zlog)
		defer func() { _ = tapper.Close() }()
	}

	registry := engine.NewRegistry(func(ctx context.Context, userID string) (*engine.Engine, error) {
		ecfg := engine.Config{
			Transport: tr,
			History:   history,
			Summaries: summaries,
			Identity:  auth.StaticIdentity(userID),
			Clock:     clock.NewSystem(),
			Logger:    zlog.With("user_id", userID),
			PageSize:  int64(cfg.Sync.PageSize),
		}
		if tapper != nil {
			ecfg.Tap = tapper
		}
		return engine.New(ctx, ecfg)
	})

	app := api.NewServer(validator, registry, zlog)

	// metrics on its own listener so the scrape path skips auth
	metricsSrv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.App.Port+1), Handler: metrics.Handler()}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Errorw("metrics server stopped", "err", err)
		}
	}()

	errs := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.App.Port)
		zlog.Infow("starting chat sync daemon", "addr", addr, "env", cfg.App.Env)
		errs <- app.Listen(addr)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errs:
		zlog.Errorw("server error", "err", err)
	case s := <-sig:
		zlog.Infow("signal received, shutting down", "signal", s.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	registry.Close(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
	if err := app.Shutdown(); err != nil {
		zlog.Warnw("fiber shutdown", "err", err)
	}
	zlog.Infow("shutdown complete")
}
