// Package cryptocom adapts the Crypto.com Exchange v2 market WebSocket.
//
// Subscriptions are explicit: one subscribe request per book channel
// (`book.{instrument}.{depth}`). The venue expects heartbeat frames to
// be answered and rate-limits traffic in the first second after the
// handshake.
package cryptocom

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cryptows/orderbook-listener/internal/domain"
)

const Name = "cryptocom"

// settleDelay avoids pro-rated rate limits right after connect.
const settleDelay = time.Second

type Protocol struct {
	endpoint string
	channels []string
}

func NewProtocol(endpoint string, instruments []string, depth int) *Protocol {
	p := &Protocol{endpoint: endpoint}
	for _, inst := range instruments {
		p.channels = append(p.channels, "book."+inst+"."+strconv.Itoa(depth))
	}
	return p
}

func (p *Protocol) Exchange() string { return Name }

func (p *Protocol) Endpoint() (string, error) {
	if len(p.channels) == 0 {
		return "", domain.NewProtocolError("channels", "no channels configured")
	}
	return p.endpoint, nil
}

func (p *Protocol) SettleDelay() time.Duration { return settleDelay }

type request struct {
	ID     int            `json:"id"`
	Method string         `json:"method"`
	Params map[string]any `json:"params,omitempty"`
}

func (p *Protocol) SubscribePayloads() ([][]byte, error) {
	payloads := make([][]byte, 0, len(p.channels))
	for i, ch := range p.channels {
		payload, err := json.Marshal(request{
			ID:     i + 1,
			Method: "subscribe",
			Params: map[string]any{
				"channels": []string{ch},
				"nonce":    time.Now().UnixMilli(),
			},
		})
		if err != nil {
			return nil, err
		}
		payloads = append(payloads, payload)
	}
	return payloads, nil
}

type frame struct {
	ID     int             `json:"id"`
	Method string          `json:"method"`
	Code   int             `json:"code"`
	Result json.RawMessage `json:"result"`
}

type bookResult struct {
	Channel      string     `json:"channel"`
	Subscription string     `json:"subscription"`
	Data         []bookData `json:"data"`
}

type bookData struct {
	Bids [][]json.Number `json:"bids"`
	Asks [][]json.Number `json:"asks"`
	T    int64           `json:"t"`
	U    uint64          `json:"u"`
}

// Control answers heartbeats and reports rejected subscriptions.
func (p *Protocol) Control(raw []byte) ([]byte, bool, error) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, false, nil
	}
	switch f.Method {
	case "public/heartbeat":
		reply, err := json.Marshal(request{ID: f.ID, Method: "public/respond-heartbeat"})
		if err != nil {
			return nil, true, nil
		}
		return reply, true, nil
	case "subscribe":
		if f.Code != 0 {
			return nil, true, domain.NewProtocolError("code", "subscription rejected with code "+strconv.Itoa(f.Code))
		}
		// acks carry an empty result; data frames carry the book
		if len(f.Result) == 0 || string(f.Result) == "null" {
			return nil, true, nil
		}
	}
	return nil, false, nil
}

// Normalize maps book channel frames to Snapshots and book.update
// frames to Deltas. The instrument name is the second segment of the
// subscription, e.g. "book.SOL_USDT.150" → "SOL_USDT".
func (p *Protocol) Normalize(raw []byte) (*domain.CanonicalUpdate, error) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, domain.NewProtocolError("", "not a JSON object")
	}
	if f.Method != "subscribe" || len(f.Result) == 0 {
		return nil, nil
	}

	var result bookResult
	if err := json.Unmarshal(f.Result, &result); err != nil {
		return nil, domain.NewProtocolError("result", "malformed result payload")
	}
	if !strings.HasPrefix(result.Subscription, "book.") {
		return nil, nil
	}
	if len(result.Data) == 0 {
		return nil, nil
	}

	parts := strings.Split(result.Subscription, ".")
	if len(parts) < 2 || parts[1] == "" {
		return nil, domain.NewProtocolError("subscription", "missing instrument in "+result.Subscription)
	}
	symbol := parts[1]

	kind := domain.KindSnapshot
	if result.Channel == "book.update" {
		kind = domain.KindDelta
	}

	book := result.Data[len(result.Data)-1]
	bids, err := parseLevels(book.Bids, "bids")
	if err != nil {
		return nil, err
	}
	asks, err := parseLevels(book.Asks, "asks")
	if err != nil {
		return nil, err
	}

	return &domain.CanonicalUpdate{
		Kind:         kind,
		Exchange:     Name,
		Symbol:       symbol,
		Subscription: result.Subscription,
		Bids:         bids,
		Asks:         asks,
		Sequence:     book.U,
		Timestamp:    book.T,
	}, nil
}

func parseLevels(rows [][]json.Number, field string) ([]domain.PriceLevel, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	levels := make([]domain.PriceLevel, 0, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			return nil, domain.NewProtocolError(field, "level row needs price and quantity")
		}
		price, err := decimal.NewFromString(row[0].String())
		if err != nil {
			return nil, domain.NewProtocolError(field, "bad price "+row[0].String())
		}
		qty, err := decimal.NewFromString(row[1].String())
		if err != nil {
			return nil, domain.NewProtocolError(field, "bad quantity "+row[1].String())
		}
		lvl := domain.PriceLevel{Price: price, Quantity: qty}
		if len(row) > 2 {
			if count, err := row[2].Int64(); err == nil {
				lvl.OrderCount = count
			}
		}
		levels = append(levels, lvl)
	}
	return levels, nil
}
