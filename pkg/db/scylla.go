package db

import (
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/rs/zerolog"
)

type Session struct {
	*gocql.Session
}

func NewSession(hosts []string, keyspace string, logger zerolog.Logger) (*Session, error) {
	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.Quorum
	cluster.Timeout = 5 * time.Second
	cluster.ConnectTimeout = 5 * time.Second

	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		NumRetries: 3,
		Min:        100 * time.Millisecond,
		Max:        1 * time.Second,
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("connect scylla %v: %w", hosts, err)
	}

	logger.Info().Strs("hosts", hosts).Str("keyspace", keyspace).Msg("connected to ScyllaDB cluster")
	return &Session{Session: session}, nil
}
