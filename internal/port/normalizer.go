package port

import (
	"github.com/cryptows/orderbook-listener/internal/domain"
)

// Normalizer translates one raw exchange frame into a canonical update.
// Implementations are pure and safe for concurrent use. A (nil, nil)
// return means the frame is valid but carries no book data (acks,
// control messages) and should be skipped.
type Normalizer interface {
	Exchange() string
	Normalize(raw []byte) (*domain.CanonicalUpdate, error)
}
