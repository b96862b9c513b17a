package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cryptows/orderbook-listener/internal/domain"
	"github.com/cryptows/orderbook-listener/internal/port"
)

// RedisStore persists snapshots under two keys per write: a timestamped
// historical record with a long TTL and a "latest" record whose short
// TTL is refreshed on every write.
type RedisStore struct {
	client     *redis.Client
	historyTTL time.Duration
	latestTTL  time.Duration
}

var _ port.SnapshotStore = (*RedisStore)(nil)

func NewRedisStore(addr, password string, db int, historyTTL, latestTTL time.Duration) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisStore{
		client:     rdb,
		historyTTL: historyTTL,
		latestTTL:  latestTTL,
	}
}

func historyKey(exchange, symbol string, ts int64) string {
	return "orderbook:" + exchange + ":" + symbol + ":" + strconv.FormatInt(ts, 10)
}

func latestKey(exchange, symbol string) string {
	return "orderbook:" + exchange + ":" + symbol + ":latest"
}

func (s *RedisStore) SaveSnapshot(ctx context.Context, snap *domain.PersistedSnapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	ts := snap.Timestamp
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}
	key := historyKey(snap.Exchange, snap.Symbol, ts)
	if err := s.client.Set(ctx, key, b, s.historyTTL).Err(); err != nil {
		return &domain.PersistenceError{Key: key, Err: err}
	}
	key = latestKey(snap.Exchange, snap.Symbol)
	if err := s.client.Set(ctx, key, b, s.latestTTL).Err(); err != nil {
		return &domain.PersistenceError{Key: key, Err: err}
	}
	return nil
}

func (s *RedisStore) LatestSnapshot(ctx context.Context, exchange, symbol string) (*domain.PersistedSnapshot, error) {
	b, err := s.client.Get(ctx, latestKey(exchange, symbol)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, &domain.PersistenceError{Key: latestKey(exchange, symbol), Err: err}
	}
	var snap domain.PersistedSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
