package domain

import (
	"github.com/shopspring/decimal"
)

type UpdateKind string

const (
	KindSnapshot UpdateKind = "SNAPSHOT"
	KindDelta    UpdateKind = "DELTA"
)

// PriceLevel is one rung of the ladder. OrderCount is zero for venues
// that do not report it.
type PriceLevel struct {
	Price      decimal.Decimal
	Quantity   decimal.Decimal
	OrderCount int64
}

// CanonicalUpdate is one exchange frame translated into venue-neutral
// form. A Snapshot replaces each present side's ladder wholesale; a
// Delta upserts the listed levels, zero quantity meaning removal.
type CanonicalUpdate struct {
	Kind         UpdateKind
	Exchange     string
	Symbol       string
	Subscription string
	Bids         []PriceLevel
	Asks         []PriceLevel

	// Sequence is the venue's monotonic ordering key, 0 when the venue
	// provides none. Timestamp is the venue event time in milliseconds.
	Sequence  uint64
	Timestamp int64
}
