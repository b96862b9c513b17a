package exchange

import (
	"time"

	"github.com/cryptows/orderbook-listener/internal/port"
)

// Protocol captures one venue's wire conventions: where to connect, what
// to send after connecting, how control frames are answered, and how
// data frames normalize. Implementations live in the per-exchange
// subpackages.
type Protocol interface {
	port.Normalizer

	// Endpoint returns the full dial URL, including any stream paths
	// the venue encodes into it.
	Endpoint() (string, error)

	// SubscribePayloads returns one subscription message per configured
	// (symbol, depth) pair. Empty when the dial URL already subscribes.
	SubscribePayloads() ([][]byte, error)

	// SettleDelay is waited between handshake and the first subscribe
	// message, for venues that rate-limit early traffic.
	SettleDelay() time.Duration

	// Control inspects a frame for protocol-level traffic (heartbeats,
	// subscription acks). handled=true means the frame carries no book
	// data; reply, when non-nil, is written back to the socket; err
	// reports a per-subscription rejection without closing the
	// connection.
	Control(raw []byte) (reply []byte, handled bool, err error)
}
