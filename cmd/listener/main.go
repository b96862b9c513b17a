package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cryptows/orderbook-listener/internal/adapter/cache"
	"github.com/cryptows/orderbook-listener/internal/adapter/exchange"
	"github.com/cryptows/orderbook-listener/internal/adapter/exchange/binance"
	"github.com/cryptows/orderbook-listener/internal/adapter/exchange/cryptocom"
	"github.com/cryptows/orderbook-listener/internal/adapter/in_memory"
	"github.com/cryptows/orderbook-listener/internal/adapter/pg"
	api "github.com/cryptows/orderbook-listener/internal/api/http"
	"github.com/cryptows/orderbook-listener/internal/config"
	"github.com/cryptows/orderbook-listener/internal/core"
	"github.com/cryptows/orderbook-listener/internal/port"
)

func main() {
	configFile := flag.String("config", "", "path to a config file layered on top of the config dir")
	configDir := flag.String("config-dir", "config", "directory holding default.yml and environment overlays")
	flag.Parse()

	logger := logrus.New()

	cfg, err := config.Load(*configDir, *configFile)
	if err != nil {
		logger.WithError(err).Fatal("load config")
	}
	configureLogger(logger, cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	historyTTL := time.Duration(cfg.Persistence.HistoryTTLSeconds) * time.Second
	latestTTL := time.Duration(cfg.Persistence.LatestTTLSeconds) * time.Second

	var store port.SnapshotStore
	if cfg.Redis.Enabled {
		redisStore := cache.NewRedisStore(cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB, historyTTL, latestTTL)
		if err := redisStore.Ping(ctx); err != nil {
			logger.WithError(err).Warn("redis unreachable, running without persistence")
		} else {
			store = redisStore
			defer redisStore.Close()
		}
	} else {
		logger.Info("redis disabled, keeping snapshots in memory")
		store = in_memory.NewStore(historyTTL, latestTTL)
	}

	var archive port.Archive
	if cfg.Archive.Enabled {
		pgArchive, err := pg.NewArchive(ctx, cfg.Archive.DSN)
		if err != nil {
			logger.WithError(err).Warn("archive unreachable, running without archive")
		} else {
			archive = pgArchive
			defer pgArchive.Close()
		}
	}

	symbols := cfg.EnabledSymbols()
	names := make([]string, 0, len(symbols))
	instruments := make([]string, 0, len(symbols))
	depth := symbols[0].Depth
	for _, s := range symbols {
		names = append(names, s.Symbol)
		instruments = append(instruments, s.Instrument)
	}

	listener := core.NewListener(cfg.Exchange, names, depth)
	writer := core.NewWriter(store, archive, listener, logger, core.WriterConfig{
		QueueSize: cfg.Persistence.QueueSize,
		Interval:  time.Duration(cfg.Persistence.IntervalSeconds) * time.Second,
		TopLevels: cfg.Persistence.TopLevels,
	})
	go writer.Run(ctx)

	var proto exchange.Protocol
	switch cfg.Exchange {
	case binance.Name:
		proto = binance.NewProtocol(cfg.Connection.Endpoint, names, depth)
	case cryptocom.Name:
		proto = cryptocom.NewProtocol(cfg.Connection.Endpoint, instruments, depth)
	default:
		logger.Fatalf("unsupported exchange: %s", cfg.Exchange)
	}
	endpoint, err := proto.Endpoint()
	if err != nil {
		logger.WithError(err).Fatal("resolve endpoint")
	}

	manager := exchange.NewManager(exchange.ManagerConfig{
		Protocol:       proto,
		Listener:       listener,
		Writer:         writer,
		Logger:         logger,
		ConnectTimeout: time.Duration(cfg.Connection.ConnectTimeoutSeconds) * time.Second,
		IdleTimeout:    time.Duration(cfg.Connection.IdleTimeoutSeconds) * time.Second,
		Backoff: exchange.Backoff{
			Min:    time.Duration(cfg.Connection.BackoffMinMS) * time.Millisecond,
			Max:    time.Duration(cfg.Connection.BackoffMaxMS) * time.Millisecond,
			Factor: 2.0,
			Jitter: 0.2,
		},
	})
	go manager.Run(ctx)

	server := api.NewHTTPServer(listener, writer, logger, endpoint, names, depth, cfg.Persistence.TopLevels)
	httpSrv := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: server.Router(),
	}
	go func() {
		logger.WithField("addr", httpSrv.Addr).Info("http server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("http server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("http shutdown")
	}

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelDrain()
	if err := writer.Close(drainCtx); err != nil {
		logger.WithError(err).Warn("writer drain")
	}
}

func configureLogger(logger *logrus.Logger, cfg config.LoggingConfig) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	logger.SetOutput(os.Stdout)
}
