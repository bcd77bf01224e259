package main

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/mahaj/chat-session/pkg/config"
	"github.com/mahaj/chat-session/pkg/db"
	"github.com/mahaj/chat-session/pkg/logging"
)

func main() {
	var cfg struct {
		config.Common
		config.Scylla
	}
	if err := config.ParseEnv(&cfg); err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if _, err := logging.Setup(cfg.LogLevel, cfg.LogFile); err != nil {
		log.Fatal().Err(err).Msg("failed to set up logging")
	}

	ctx := context.Background()
	if err := db.EnsureKeyspace(ctx, cfg.Hosts, cfg.Keyspace, log.Logger); err != nil {
		log.Fatal().Err(err).Msg("failed to create keyspace")
	}

	session, err := db.NewSession(cfg.Hosts, cfg.Keyspace, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to ScyllaDB")
	}
	defer session.Close()

	if err := db.Migrate(ctx, session); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}
	log.Info().Str("keyspace", cfg.Keyspace).Msg("schema is up to date")
}
