package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/mahaj/chat-session/pkg/auth"
	"github.com/mahaj/chat-session/pkg/bus"
	"github.com/mahaj/chat-session/pkg/config"
	"github.com/mahaj/chat-session/pkg/logging"
	"github.com/mahaj/chat-session/pkg/presence"
	"github.com/mahaj/chat-session/pkg/snowflake"
)

func main() {
	cfg, err := config.LoadGateway()
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

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := newMetrics(reg)

	node, err := snowflake.NewNode(cfg.SnowflakeNode)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize snowflake node")
	}

	store := presence.New(cfg.RedisAddr)
	defer store.Close()

	producer := bus.NewProducer(cfg.Brokers, cfg.Topic)
	defer producer.Close()

	hub := NewHub(log.Logger, m)
	go hub.Run(ctx)

	// Every gateway needs every record, so each one gets its own group.
	consumer := bus.NewConsumer(bus.ConsumerConfig{
		Brokers: cfg.Brokers,
		Topic:   cfg.Topic,
		GroupID: "gateway-group-" + uuid.NewString(),
		Latest:  true,
	}, log.Logger)
	defer consumer.Close()
	go func() {
		if err := consumer.Run(ctx, func(ctx context.Context, env bus.Envelope) error {
			return hub.Publish(ctx, env)
		}); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("fanout consumer stopped")
		}
	}()

	gw := &Gateway{
		hub:       hub,
		issuer:    auth.NewIssuer(cfg.JWTSecret, auth.DefaultTokenTTL),
		publisher: producer,
		presence:  store,
		ids:       node,
		now:       time.Now,
		log:       log.Logger.With().Str("component", "gateway").Logger(),
		metrics:   m,
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", gw)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", cfg.ListenAddr).Msg("gateway service starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("gateway stopped")
	}
}
