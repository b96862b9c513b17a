package in_memory

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/cryptows/orderbook-listener/internal/domain"
	"github.com/cryptows/orderbook-listener/internal/port"
)

// Store is a TTL-aware in-memory snapshot store. It backs local runs
// without Redis and the store tests.
type Store struct {
	mu         sync.Mutex
	records    map[string]record
	historyTTL time.Duration
	latestTTL  time.Duration
	now        func() time.Time
}

type record struct {
	snap      domain.PersistedSnapshot
	expiresAt time.Time
}

var _ port.SnapshotStore = (*Store)(nil)

func NewStore(historyTTL, latestTTL time.Duration) *Store {
	return &Store{
		records:    make(map[string]record),
		historyTTL: historyTTL,
		latestTTL:  latestTTL,
		now:        time.Now,
	}
}

func (s *Store) SaveSnapshot(ctx context.Context, snap *domain.PersistedSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.sweepLocked(now)
	ts := snap.Timestamp
	if ts == 0 {
		ts = now.UnixMilli()
	}
	prefix := "orderbook:" + snap.Exchange + ":" + snap.Symbol + ":"
	s.records[prefix+strconv.FormatInt(ts, 10)] = record{snap: *snap, expiresAt: now.Add(s.historyTTL)}
	s.records[prefix+"latest"] = record{snap: *snap, expiresAt: now.Add(s.latestTTL)}
	return nil
}

// sweepLocked reclaims expired records so long-running degraded mode
// stays bounded by the TTL window instead of growing forever.
func (s *Store) sweepLocked(now time.Time) {
	for key, rec := range s.records {
		if now.After(rec.expiresAt) {
			delete(s.records, key)
		}
	}
}

func (s *Store) LatestSnapshot(ctx context.Context, exchange, symbol string) (*domain.PersistedSnapshot, error) {
	return s.Get(ctx, "orderbook:"+exchange+":"+symbol+":latest")
}

// Get returns the live record under key, or nil once its TTL elapsed.
func (s *Store) Get(ctx context.Context, key string) (*domain.PersistedSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		return nil, nil
	}
	if s.now().After(rec.expiresAt) {
		delete(s.records, key)
		return nil, nil
	}
	snap := rec.snap
	return &snap, nil
}

// TTL reports the remaining lifetime of a key; ok is false when the key
// is absent or expired.
func (s *Store) TTL(key string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		return 0, false
	}
	remaining := rec.expiresAt.Sub(s.now())
	if remaining <= 0 {
		return 0, false
	}
	return remaining, true
}
