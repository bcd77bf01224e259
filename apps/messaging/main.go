package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/mahaj/chat-session/pkg/bus"
	"github.com/mahaj/chat-session/pkg/config"
	"github.com/mahaj/chat-session/pkg/db"
	"github.com/mahaj/chat-session/pkg/logging"
)

func main() {
	cfg, err := config.LoadMessaging()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logFile, err := logging.Setup(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up logging")
	}
	defer logFile.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Schema creation belongs to scripts/migrate; doing it here too keeps a
	// fresh local stack usable.
	if err := db.EnsureKeyspace(ctx, cfg.Hosts, cfg.Keyspace, log.Logger); err != nil {
		log.Fatal().Err(err).Msg("failed to create keyspace")
	}
	session, err := db.NewSession(cfg.Hosts, cfg.Keyspace, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to ScyllaDB")
	}
	defer session.Close()
	if err := db.Migrate(ctx, session); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate schema")
	}

	reg := prometheus.NewRegistry()
	persister := NewPersister(db.NewStore(session), log.Logger, reg)

	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	defer metricsSrv.Close()

	consumer := bus.NewConsumer(bus.ConsumerConfig{
		Brokers: cfg.Brokers,
		Topic:   cfg.Topic,
		GroupID: cfg.GroupID,
	}, log.Logger)
	defer consumer.Close()

	log.Info().Strs("brokers", cfg.Brokers).Str("topic", cfg.Topic).Msg("starting Kafka consumer")
	if err := consumer.Run(ctx, persister.Handle); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("consumer stopped")
	}
}
