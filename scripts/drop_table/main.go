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

	session, err := db.NewSession(cfg.Hosts, cfg.Keyspace, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to ScyllaDB")
	}
	defer session.Close()

	log.Info().Msg("dropping table messages...")
	if err := db.Drop(context.Background(), session); err != nil {
		log.Fatal().Err(err).Msg("failed to drop table")
	}
	log.Info().Msg("table dropped")
}
