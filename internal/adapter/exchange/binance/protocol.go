// Package binance adapts Binance partial and diff book depth streams.
//
// Binance subscribes through the dial URL: a single stream connects to
// {endpoint}/{stream}, multiple streams to the combined endpoint
// {endpoint→/stream}?streams=a/b/c, in which case frames arrive wrapped
// in a {"stream":...,"data":...} envelope.
package binance

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cryptows/orderbook-listener/internal/domain"
)

const Name = "binance"

type Protocol struct {
	endpoint string
	streams  []string
	// stream name → exchange-local symbol, e.g. "btcusdt@depth10" → "btcusdt"
	symbols map[string]string
}

// NewProtocol builds the adapter for the configured (symbol, depth)
// pairs. Depth selects the partial book stream (5, 10 or 20 levels).
func NewProtocol(endpoint string, symbols []string, depth int) *Protocol {
	p := &Protocol{
		endpoint: endpoint,
		symbols:  make(map[string]string, len(symbols)),
	}
	for _, s := range symbols {
		s = strings.ToLower(s)
		stream := s + "@depth" + strconv.Itoa(depth)
		p.streams = append(p.streams, stream)
		p.symbols[stream] = s
	}
	return p
}

func (p *Protocol) Exchange() string { return Name }

func (p *Protocol) Endpoint() (string, error) {
	if len(p.streams) == 0 {
		return "", domain.NewProtocolError("streams", "no streams configured")
	}
	if len(p.streams) == 1 {
		return p.endpoint + "/" + p.streams[0], nil
	}
	combined := strings.Replace(p.endpoint, "/ws", "/stream", 1)
	return combined + "?streams=" + strings.Join(p.streams, "/"), nil
}

// SubscribePayloads is empty: the dial URL already subscribes.
func (p *Protocol) SubscribePayloads() ([][]byte, error) { return nil, nil }

func (p *Protocol) SettleDelay() time.Duration { return 0 }

// Control swallows SUBSCRIBE acks ({"result":null,"id":n}) from the
// combined endpoint.
func (p *Protocol) Control(raw []byte) ([]byte, bool, error) {
	if bytes.Contains(raw, []byte(`"result"`)) && bytes.Contains(raw, []byte(`"id"`)) {
		return nil, true, nil
	}
	return nil, false, nil
}

type envelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type depthFrame struct {
	Event        string     `json:"e"`
	EventTime    int64      `json:"E"`
	Symbol       string     `json:"s"`
	FirstID      uint64     `json:"U"`
	FinalID      uint64     `json:"u"`
	LastUpdateID uint64     `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
	DiffBids     [][]string `json:"b"`
	DiffAsks     [][]string `json:"a"`
}

// Normalize maps a partial book frame (lastUpdateId + bids/asks) to a
// Snapshot and a diff frame ("e":"depthUpdate") to a Delta. Unknown
// frames are skipped.
func (p *Protocol) Normalize(raw []byte) (*domain.CanonicalUpdate, error) {
	stream := ""
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, domain.NewProtocolError("", "not a JSON object")
	}
	if env.Stream != "" && env.Data != nil {
		stream = env.Stream
		raw = env.Data
	}

	var frame depthFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, domain.NewProtocolError("data", "malformed depth payload")
	}

	switch {
	case frame.Event == "depthUpdate":
		return p.normalizeDiff(&frame, stream)
	case frame.LastUpdateID != 0:
		return p.normalizePartial(&frame, stream)
	default:
		return nil, nil
	}
}

func (p *Protocol) normalizePartial(frame *depthFrame, stream string) (*domain.CanonicalUpdate, error) {
	symbol, ok := p.symbolFor(stream)
	if !ok {
		return nil, domain.NewProtocolError("stream", "unknown stream "+stream)
	}
	bids, err := parseLevels(frame.Bids, "bids")
	if err != nil {
		return nil, err
	}
	asks, err := parseLevels(frame.Asks, "asks")
	if err != nil {
		return nil, err
	}
	return &domain.CanonicalUpdate{
		Kind:         domain.KindSnapshot,
		Exchange:     Name,
		Symbol:       symbol,
		Subscription: p.subscriptionFor(symbol, stream),
		Bids:         bids,
		Asks:         asks,
		Sequence:     frame.LastUpdateID,
	}, nil
}

func (p *Protocol) normalizeDiff(frame *depthFrame, stream string) (*domain.CanonicalUpdate, error) {
	if frame.Symbol == "" {
		return nil, domain.NewProtocolError("s", "missing symbol")
	}
	if frame.FinalID == 0 {
		return nil, domain.NewProtocolError("u", "missing final update id")
	}
	bids, err := parseLevels(frame.DiffBids, "b")
	if err != nil {
		return nil, err
	}
	asks, err := parseLevels(frame.DiffAsks, "a")
	if err != nil {
		return nil, err
	}
	symbol := strings.ToLower(frame.Symbol)
	return &domain.CanonicalUpdate{
		Kind:         domain.KindDelta,
		Exchange:     Name,
		Symbol:       symbol,
		Subscription: p.subscriptionFor(symbol, stream),
		Bids:         bids,
		Asks:         asks,
		Sequence:     frame.FinalID,
		Timestamp:    frame.EventTime,
	}, nil
}

// symbolFor resolves the frame's symbol from its stream name; single
// stream connections carry no envelope, so the lone configured stream
// applies.
func (p *Protocol) symbolFor(stream string) (string, bool) {
	if stream == "" {
		if len(p.streams) == 1 {
			return p.symbols[p.streams[0]], true
		}
		return "", false
	}
	symbol, ok := p.symbols[stream]
	return symbol, ok
}

func (p *Protocol) subscriptionFor(symbol, stream string) string {
	if stream != "" {
		return stream
	}
	if len(p.streams) == 1 {
		return p.streams[0]
	}
	return symbol
}

func parseLevels(rows [][]string, field string) ([]domain.PriceLevel, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	levels := make([]domain.PriceLevel, 0, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			return nil, domain.NewProtocolError(field, "level row needs price and quantity")
		}
		price, err := decimal.NewFromString(row[0])
		if err != nil {
			return nil, domain.NewProtocolError(field, "bad price "+row[0])
		}
		qty, err := decimal.NewFromString(row[1])
		if err != nil {
			return nil, domain.NewProtocolError(field, "bad quantity "+row[1])
		}
		levels = append(levels, domain.PriceLevel{Price: price, Quantity: qty})
	}
	return levels, nil
}
