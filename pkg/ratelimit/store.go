package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store persists the rate limit state.
// Load returns (nil, nil) when nothing has been stored yet.
type Store interface {
	Load(ctx context.Context) (*State, error)
	Save(ctx context.Context, state *State) error
}

// MemoryStore keeps the state in process. It is the default store.
type MemoryStore struct {
	mu    sync.Mutex
	state *State
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(_ context.Context) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return nil, nil
	}
	s := *m.state
	return &s, nil
}

func (m *MemoryStore) Save(_ context.Context, state *State) error {
	if state == nil {
		return fmt.Errorf("rate limit state cannot be nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s := *state
	m.state = &s
	return nil
}

// RedisStore shares the state across dashboard replicas.
type RedisStore struct {
	redis *redis.Client
}

// NewRedisStore creates a store backed by Redis.
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{redis: redisClient}
}

// Load reads the state. Timestamps are stored as Unix milliseconds.
func (r *RedisStore) Load(ctx context.Context) (*State, error) {
	keys := []string{RedisKeyRemaining, RedisKeyResetTimestamp, RedisKeyBlockedUntil, RedisKeyLastUpdate}
	vals, err := r.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}
	if vals[0] == nil {
		return nil, nil
	}

	ints := make([]int64, len(vals))
	for i, v := range vals {
		if v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected redis value type %T", v)
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", keys[i], err)
		}
		ints[i] = n
	}

	state := &State{
		Remaining:    int(ints[0]),
		ResetAt:      fromMillis(ints[1]),
		BlockedUntil: fromMillis(ints[2]),
		LastUpdate:   fromMillis(ints[3]),
	}
	state.UpdateHealth()
	return state, nil
}

// Save writes the state atomically.
func (r *RedisStore) Save(ctx context.Context, state *State) error {
	if state == nil {
		return errors.New("rate limit state cannot be nil")
	}

	pipe := r.redis.TxPipeline()
	pipe.Set(ctx, RedisKeyRemaining, state.Remaining, 0)
	pipe.Set(ctx, RedisKeyResetTimestamp, toMillis(state.ResetAt), 0)
	pipe.Set(ctx, RedisKeyBlockedUntil, toMillis(state.BlockedUntil), 0)
	pipe.Set(ctx, RedisKeyLastUpdate, toMillis(state.LastUpdate), 0)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store rate limit state in redis: %w", err)
	}
	return nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
