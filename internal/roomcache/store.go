// Package roomcache mirrors live room snapshots and queue depth into Redis for
// out-of-process readers. The in-memory registry stays authoritative.
package roomcache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/park285/chess-rooms/pkg/roomdto"
)

const defaultTTL = 24 * time.Hour

type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Store{rdb: rdb, ttl: ttl}
}

// Open connects to redisURL (redis:// or rediss://) and pings it.
func Open(ctx context.Context, redisURL string, ttl time.Duration) (*Store, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for room mirror")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewStore(rdb, ttl), nil
}

func (s *Store) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func keyRoom(roomID string) string { return "rooms:room:" + strings.TrimSpace(roomID) }
func keyIndex() string             { return "rooms:index" }
func keyQueue() string             { return "rooms:queue" }

// SaveSnapshot stores snap under its room id and indexes the room.
func (s *Store) SaveSnapshot(ctx context.Context, snap *roomdto.Snapshot) error {
	if snap == nil || strings.TrimSpace(snap.RoomID) == "" {
		return nil
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, keyRoom(snap.RoomID), raw, s.ttl)
	pipe.SAdd(ctx, keyIndex(), snap.RoomID)
	pipe.Expire(ctx, keyIndex(), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save snapshot %s: %w", snap.RoomID, err)
	}
	return nil
}

// LoadSnapshot returns nil, nil when the room is not mirrored.
func (s *Store) LoadSnapshot(ctx context.Context, roomID string) (*roomdto.Snapshot, error) {
	raw, err := s.rdb.Get(ctx, keyRoom(roomID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap roomdto.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *Store) Delete(ctx context.Context, roomID string) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, keyRoom(roomID))
	pipe.SRem(ctx, keyIndex(), roomID)
	_, err := pipe.Exec(ctx)
	return err
}

// List returns mirrored rooms sorted by id, pruning index entries whose snapshot expired.
func (s *Store) List(ctx context.Context) ([]*roomdto.Snapshot, error) {
	ids, err := s.rdb.SMembers(ctx, keyIndex()).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	out := make([]*roomdto.Snapshot, 0, len(ids))
	for _, id := range ids {
		snap, err := s.LoadSnapshot(ctx, id)
		if err != nil {
			return nil, err
		}
		if snap == nil {
			_ = s.rdb.SRem(ctx, keyIndex(), id).Err()
			continue
		}
		out = append(out, snap)
	}
	return out, nil
}

// SaveQueue mirrors the matchmaking waiting line.
func (s *Store) SaveQueue(ctx context.Context, entries []roomdto.QueueEntry) error {
	if entries == nil {
		entries = []roomdto.QueueEntry{}
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, keyQueue(), raw, s.ttl).Err()
}

func (s *Store) LoadQueue(ctx context.Context) ([]roomdto.QueueEntry, error) {
	raw, err := s.rdb.Get(ctx, keyQueue()).Bytes()
	if err == redis.Nil {
		return []roomdto.QueueEntry{}, nil
	}
	if err != nil {
		return nil, err
	}
	var out []roomdto.QueueEntry
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
