// Package presence keeps room membership and online users in Redis sets.
package presence

import (
	"context"
	"fmt"
	"slices"

	"github.com/redis/go-redis/v9"
)

const onlineKey = "presence:online"

func roomKey(room string) string  { return "room:" + room + ":users" }
func connsKey(user string) string { return "presence:user:" + user + ":conns" }

type Store struct {
	rdb *redis.Client
}

func New(addr string) *Store {
	return NewFromClient(redis.NewClient(&redis.Options{Addr: addr}))
}

func NewFromClient(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error { return s.rdb.Close() }

// SetOnline counts one more connection for user. first reports whether this
// is the user's only connection, i.e. the user just came online.
func (s *Store) SetOnline(ctx context.Context, user string) (first bool, err error) {
	var incr *redis.IntCmd
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, connsKey(user))
		p.SAdd(ctx, onlineKey, user)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("set %s online: %w", user, err)
	}
	return incr.Val() == 1, nil
}

// SetOffline drops one connection for user. last reports whether the user
// has no connections left.
func (s *Store) SetOffline(ctx context.Context, user string) (last bool, err error) {
	n, err := s.rdb.Decr(ctx, connsKey(user)).Result()
	if err != nil {
		return false, fmt.Errorf("set %s offline: %w", user, err)
	}
	if n > 0 {
		return false, nil
	}

	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, connsKey(user))
		p.SRem(ctx, onlineKey, user)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("set %s offline: %w", user, err)
	}
	return true, nil
}

func (s *Store) Online(ctx context.Context) ([]string, error) {
	return s.members(ctx, onlineKey)
}

// IsOnline reports whether user has at least one live connection.
func (s *Store) IsOnline(ctx context.Context, user string) (bool, error) {
	ok, err := s.rdb.SIsMember(ctx, onlineKey, user).Result()
	if err != nil {
		return false, fmt.Errorf("read %s status: %w", user, err)
	}
	return ok, nil
}

func (s *Store) JoinRoom(ctx context.Context, room, user string) error {
	if err := s.rdb.SAdd(ctx, roomKey(room), user).Err(); err != nil {
		return fmt.Errorf("join %s to %s: %w", user, room, err)
	}
	return nil
}

func (s *Store) LeaveRoom(ctx context.Context, room, user string) error {
	if err := s.rdb.SRem(ctx, roomKey(room), user).Err(); err != nil {
		return fmt.Errorf("remove %s from %s: %w", user, room, err)
	}
	return nil
}

// RoomMembers lists the users currently subscribed to room, sorted.
func (s *Store) RoomMembers(ctx context.Context, room string) ([]string, error) {
	return s.members(ctx, roomKey(room))
}

func (s *Store) members(ctx context.Context, key string) ([]string, error) {
	users, err := s.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	slices.Sort(users)
	return users, nil
}
