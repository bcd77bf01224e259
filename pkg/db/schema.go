package db

import (
	"context"
	"fmt"
	"regexp"

	"github.com/rs/zerolog"
)

var keyspaceName = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]{0,47}$`)

const messagesTable = `CREATE TABLE IF NOT EXISTS messages (
	room_id text,
	id bigint,
	client_id text,
	sender_id text,
	content text,
	created_at timestamp,
	read_by set<text>,
	delivered_to set<text>,
	PRIMARY KEY (room_id, id)
) WITH CLUSTERING ORDER BY (id DESC)`

// EnsureKeyspace creates keyspace with single-replica SimpleStrategy. It
// connects through the system keyspace since the target may not exist yet.
func EnsureKeyspace(ctx context.Context, hosts []string, keyspace string, logger zerolog.Logger) error {
	if !keyspaceName.MatchString(keyspace) {
		return fmt.Errorf("invalid keyspace name %q", keyspace)
	}

	sys, err := NewSession(hosts, "system", logger)
	if err != nil {
		return err
	}
	defer sys.Close()

	stmt := fmt.Sprintf(`CREATE KEYSPACE IF NOT EXISTS %s WITH REPLICATION = { 'class' : 'SimpleStrategy', 'replication_factor' : 1 }`, keyspace)
	if err := sys.Query(stmt).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("create keyspace %s: %w", keyspace, err)
	}
	return nil
}

// Migrate creates the tables the chat services use.
func Migrate(ctx context.Context, s *Session) error {
	if err := s.Query(messagesTable).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("create messages table: %w", err)
	}
	return nil
}

func Drop(ctx context.Context, s *Session) error {
	if err := s.Query(`DROP TABLE IF EXISTS messages`).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("drop messages table: %w", err)
	}
	return nil
}
