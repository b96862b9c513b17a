package domain

import (
	"strconv"
	"time"
)

// BookSnapshot is a point-in-time deep copy of one symbol's book.
// Bids are sorted descending by price, asks ascending.
type BookSnapshot struct {
	Exchange     string
	Symbol       string
	Subscription string
	Bids         []PriceLevel
	Asks         []PriceLevel
	Sequence     uint64
	Timestamp    int64
	Ready        bool
	UpdatedAt    time.Time
}

func (s *BookSnapshot) BestBid() (PriceLevel, bool) {
	if len(s.Bids) == 0 {
		return PriceLevel{}, false
	}
	return s.Bids[0], true
}

func (s *BookSnapshot) BestAsk() (PriceLevel, bool) {
	if len(s.Asks) == 0 {
		return PriceLevel{}, false
	}
	return s.Asks[0], true
}

// PersistedSnapshot is the externally durable projection of a book,
// serialized as-is into the store.
type PersistedSnapshot struct {
	Exchange     string     `json:"exchange"`
	Symbol       string     `json:"symbol"`
	Subscription string     `json:"subscription"`
	Timestamp    int64      `json:"timestamp"`
	BestBid      []string   `json:"best_bid"`
	BestAsk      []string   `json:"best_ask"`
	BidCount     int        `json:"bid_count"`
	AskCount     int        `json:"ask_count"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
	ReceivedAt   float64    `json:"received_at"`
}

// NewPersistedSnapshot projects a book view onto the wire document,
// keeping at most topK levels per side.
func NewPersistedSnapshot(view BookSnapshot, topK int, receivedAt time.Time) *PersistedSnapshot {
	snap := &PersistedSnapshot{
		Exchange:     view.Exchange,
		Symbol:       view.Symbol,
		Subscription: view.Subscription,
		Timestamp:    view.Timestamp,
		BidCount:     len(view.Bids),
		AskCount:     len(view.Asks),
		Bids:         encodeLevels(view.Bids, topK),
		Asks:         encodeLevels(view.Asks, topK),
		ReceivedAt:   float64(receivedAt.UnixNano()) / float64(time.Second),
	}
	if best, ok := view.BestBid(); ok {
		snap.BestBid = encodeLevel(best)
	}
	if best, ok := view.BestAsk(); ok {
		snap.BestAsk = encodeLevel(best)
	}
	return snap
}

func encodeLevels(levels []PriceLevel, topK int) [][]string {
	if topK > 0 && len(levels) > topK {
		levels = levels[:topK]
	}
	out := make([][]string, len(levels))
	for i, lvl := range levels {
		out[i] = encodeLevel(lvl)
	}
	return out
}

func encodeLevel(lvl PriceLevel) []string {
	row := []string{lvl.Price.String(), lvl.Quantity.String()}
	if lvl.OrderCount > 0 {
		row = append(row, strconv.FormatInt(lvl.OrderCount, 10))
	}
	return row
}
