package port

import (
	"context"

	"github.com/cryptows/orderbook-listener/internal/domain"
)

// SnapshotStore persists book snapshots into a TTL-based key-value
// store. One SaveSnapshot call writes the timestamped historical record
// and refreshes the "latest" record.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap *domain.PersistedSnapshot) error
	LatestSnapshot(ctx context.Context, exchange, symbol string) (*domain.PersistedSnapshot, error)
}

// Archive is an optional long-term sink for snapshots, written best
// effort alongside the SnapshotStore.
type Archive interface {
	ArchiveSnapshot(ctx context.Context, snap *domain.PersistedSnapshot) error
}
