package core

import (
	"sort"
	"sync"
	"time"

	"github.com/cryptows/orderbook-listener/internal/domain"
)

const defaultMaxPending = 256

// ApplyResult reports what a single update did to the book.
type ApplyResult struct {
	Applied    bool
	Buffered   bool
	TopChanged bool
	Ready      bool
	Crossed    bool
	Desync     bool
}

// Book holds one symbol's ladder. It is mutated by exactly one writer
// (the connection's read loop); readers take deep copies via Snapshot.
// The mutex only guards the copy against a concurrent apply.
type Book struct {
	mu sync.Mutex

	exchange     string
	symbol       string
	subscription string
	depth        int

	bids []domain.PriceLevel
	asks []domain.PriceLevel

	ready      bool
	lastSeq    uint64
	lastTs     int64
	updatedAt  time.Time
	pending    []*domain.CanonicalUpdate
	maxPending int
}

func NewBook(exchange, symbol string, depth int) *Book {
	if depth <= 0 {
		depth = 1
	}
	return &Book{
		exchange:   exchange,
		symbol:     symbol,
		depth:      depth,
		maxPending: defaultMaxPending,
	}
}

func (b *Book) Symbol() string { return b.symbol }

// Apply folds one canonical update into the book.
func (b *Book) Apply(u *domain.CanonicalUpdate) ApplyResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	prevBid, prevBidOK := bestOf(b.bids)
	prevAsk, prevAskOK := bestOf(b.asks)

	var res ApplyResult
	switch u.Kind {
	case domain.KindSnapshot:
		b.applySnapshotLocked(u)
		res.Applied = true
	case domain.KindDelta:
		if !b.ready {
			res = b.bufferDeltaLocked(u)
			res.Ready = b.ready
			return res
		}
		if u.Sequence != 0 && u.Sequence == b.lastSeq {
			// exact duplicate by venue sequence
			res.Ready = true
			return res
		}
		b.applyDeltaLocked(u)
		res.Applied = true
	default:
		res.Ready = b.ready
		return res
	}

	res.Ready = b.ready
	res.Crossed = b.crossedLocked()
	res.TopChanged = topChanged(prevBid, prevBidOK, b.bids) ||
		topChanged(prevAsk, prevAskOK, b.asks)
	return res
}

// Snapshot returns a deep copy of the current book state.
func (b *Book) Snapshot() domain.BookSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return domain.BookSnapshot{
		Exchange:     b.exchange,
		Symbol:       b.symbol,
		Subscription: b.subscription,
		Bids:         copyLevels(b.bids),
		Asks:         copyLevels(b.asks),
		Sequence:     b.lastSeq,
		Timestamp:    b.lastTs,
		Ready:        b.ready,
		UpdatedAt:    b.updatedAt,
	}
}

// Reset marks the book not ready and clears its state. Used on
// disconnect and on desync; the next snapshot repopulates it.
func (b *Book) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bids = nil
	b.asks = nil
	b.ready = false
	b.lastSeq = 0
	b.lastTs = 0
	b.pending = nil
}

func (b *Book) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ready
}

func (b *Book) applySnapshotLocked(u *domain.CanonicalUpdate) {
	if u.Bids != nil {
		b.bids = copyLevels(u.Bids)
	}
	if u.Asks != nil {
		b.asks = copyLevels(u.Asks)
	}
	sortLevels(b.bids, b.asks)
	b.truncateLocked()
	b.ready = true
	b.advanceLocked(u)

	// replay deltas buffered while waiting for this snapshot; deltas the
	// snapshot already covers (by sequence) are skipped
	pending := b.pending
	b.pending = nil
	for _, d := range pending {
		if d.Sequence != 0 && u.Sequence != 0 && d.Sequence <= u.Sequence {
			continue
		}
		b.applyDeltaLocked(d)
	}
}

func (b *Book) applyDeltaLocked(u *domain.CanonicalUpdate) {
	b.bids = upsertLevels(b.bids, u.Bids)
	b.asks = upsertLevels(b.asks, u.Asks)
	sortLevels(b.bids, b.asks)
	b.truncateLocked()
	b.advanceLocked(u)
}

func (b *Book) bufferDeltaLocked(u *domain.CanonicalUpdate) ApplyResult {
	res := ApplyResult{Buffered: true}
	if len(b.pending) >= b.maxPending {
		b.pending = b.pending[1:]
		res.Desync = true
	}
	b.pending = append(b.pending, u)
	return res
}

func (b *Book) truncateLocked() {
	if len(b.bids) > b.depth {
		b.bids = b.bids[:b.depth]
	}
	if len(b.asks) > b.depth {
		b.asks = b.asks[:b.depth]
	}
}

func (b *Book) advanceLocked(u *domain.CanonicalUpdate) {
	if u.Sequence > b.lastSeq {
		b.lastSeq = u.Sequence
	}
	if u.Timestamp > b.lastTs {
		b.lastTs = u.Timestamp
	}
	if u.Subscription != "" {
		b.subscription = u.Subscription
	}
	b.updatedAt = time.Now()
}

func (b *Book) crossedLocked() bool {
	if len(b.bids) == 0 || len(b.asks) == 0 {
		return false
	}
	return b.bids[0].Price.GreaterThanOrEqual(b.asks[0].Price)
}

// upsertLevels applies delta rows to one side: zero quantity removes the
// price, nonzero sets it (last write wins).
func upsertLevels(side []domain.PriceLevel, rows []domain.PriceLevel) []domain.PriceLevel {
	for _, row := range rows {
		idx := -1
		for i := range side {
			if side[i].Price.Equal(row.Price) {
				idx = i
				break
			}
		}
		if row.Quantity.IsZero() {
			if idx >= 0 {
				side = append(side[:idx], side[idx+1:]...)
			}
			continue
		}
		if idx >= 0 {
			side[idx] = row
		} else {
			side = append(side, row)
		}
	}
	return side
}

func sortLevels(bids, asks []domain.PriceLevel) {
	sort.Slice(bids, func(i, j int) bool {
		return bids[i].Price.GreaterThan(bids[j].Price)
	})
	sort.Slice(asks, func(i, j int) bool {
		return asks[i].Price.LessThan(asks[j].Price)
	})
}

func copyLevels(levels []domain.PriceLevel) []domain.PriceLevel {
	out := make([]domain.PriceLevel, len(levels))
	copy(out, levels)
	return out
}

func bestOf(side []domain.PriceLevel) (domain.PriceLevel, bool) {
	if len(side) == 0 {
		return domain.PriceLevel{}, false
	}
	return side[0], true
}

func topChanged(prev domain.PriceLevel, prevOK bool, side []domain.PriceLevel) bool {
	cur, curOK := bestOf(side)
	if prevOK != curOK {
		return true
	}
	if !curOK {
		return false
	}
	return !prev.Price.Equal(cur.Price) || !prev.Quantity.Equal(cur.Quantity)
}
