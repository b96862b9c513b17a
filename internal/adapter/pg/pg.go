package pg

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cryptows/orderbook-listener/internal/domain"
	"github.com/cryptows/orderbook-listener/internal/port"
)

// Archive writes persisted snapshots into Postgres for long-term
// retention beyond the cache TTL window.
type Archive struct {
	pool *pgxpool.Pool
}

var _ port.Archive = (*Archive)(nil)

func NewArchive(ctx context.Context, dsn string) (*Archive, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect archive: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping archive: %w", err)
	}
	return &Archive{pool: pool}, nil
}

func (a *Archive) ArchiveSnapshot(ctx context.Context, snap *domain.PersistedSnapshot) error {
	bids, err := json.Marshal(snap.Bids)
	if err != nil {
		return fmt.Errorf("marshal bids: %w", err)
	}
	asks, err := json.Marshal(snap.Asks)
	if err != nil {
		return fmt.Errorf("marshal asks: %w", err)
	}
	_, err = a.pool.Exec(ctx, `
		INSERT INTO orderbook_snapshots
			(exchange, symbol, subscription, ts, best_bid, best_ask, bid_count, ask_count, bids, asks, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, to_timestamp($11))
		ON CONFLICT (exchange, symbol, ts) DO NOTHING`,
		snap.Exchange, snap.Symbol, snap.Subscription, snap.Timestamp,
		levelOrNil(snap.BestBid), levelOrNil(snap.BestAsk),
		snap.BidCount, snap.AskCount, bids, asks, snap.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

func levelOrNil(level []string) any {
	if len(level) == 0 {
		return nil
	}
	b, _ := json.Marshal(level)
	return b
}

func (a *Archive) Close() {
	a.pool.Close()
}
