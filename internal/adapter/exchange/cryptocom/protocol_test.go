package cryptocom

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptows/orderbook-listener/internal/domain"
)

func TestSubscribePayloadsOnePerChannel(t *testing.T) {
	p := NewProtocol("wss://stream.crypto.com/v2/market", []string{"BTC_USDT", "ETH_USDT"}, 10)

	payloads, err := p.SubscribePayloads()
	require.NoError(t, err)
	require.Len(t, payloads, 2)

	var req struct {
		ID     int    `json:"id"`
		Method string `json:"method"`
		Params struct {
			Channels []string `json:"channels"`
			Nonce    int64    `json:"nonce"`
		} `json:"params"`
	}
	require.NoError(t, json.Unmarshal(payloads[0], &req))
	assert.Equal(t, "subscribe", req.Method)
	assert.Equal(t, []string{"book.BTC_USDT.10"}, req.Params.Channels)
	assert.NotZero(t, req.Params.Nonce)
}

func TestControlAnswersHeartbeat(t *testing.T) {
	p := NewProtocol("wss://stream.crypto.com/v2/market", []string{"BTC_USDT"}, 10)

	reply, handled, err := p.Control([]byte(`{"id":42,"method":"public/heartbeat"}`))
	require.NoError(t, err)
	require.True(t, handled)

	var resp struct {
		ID     int    `json:"id"`
		Method string `json:"method"`
	}
	require.NoError(t, json.Unmarshal(reply, &resp))
	assert.Equal(t, 42, resp.ID)
	assert.Equal(t, "public/respond-heartbeat", resp.Method)
}

func TestControlRejectedSubscription(t *testing.T) {
	p := NewProtocol("wss://stream.crypto.com/v2/market", []string{"BTC_USDT"}, 10)

	_, handled, err := p.Control([]byte(`{"id":1,"method":"subscribe","code":10004}`))
	assert.True(t, handled)
	require.Error(t, err)
}

func TestControlSubscribeAckSwallowed(t *testing.T) {
	p := NewProtocol("wss://stream.crypto.com/v2/market", []string{"BTC_USDT"}, 10)

	_, handled, err := p.Control([]byte(`{"id":1,"method":"subscribe","code":0}`))
	require.NoError(t, err)
	assert.True(t, handled)
}

func TestControlPassesDataFrames(t *testing.T) {
	p := NewProtocol("wss://stream.crypto.com/v2/market", []string{"BTC_USDT"}, 10)

	raw := []byte(`{"method":"subscribe","result":{"channel":"book","subscription":"book.BTC_USDT.10","data":[{"bids":[],"asks":[],"t":1,"u":1}]}}`)
	_, handled, err := p.Control(raw)
	require.NoError(t, err)
	assert.False(t, handled)
}

func TestNormalizeBookSnapshot(t *testing.T) {
	p := NewProtocol("wss://stream.crypto.com/v2/market", []string{"BTC_USDT"}, 10)

	raw := []byte(`{"method":"subscribe","result":{"channel":"book","subscription":"book.BTC_USDT.10","data":[{"bids":[["30000.5","2","4"],["30000.0","1","1"]],"asks":[["30001.0","3","2"]],"t":1690000000000,"u":77}]}}`)
	u, err := p.Normalize(raw)
	require.NoError(t, err)
	require.NotNil(t, u)

	assert.Equal(t, domain.KindSnapshot, u.Kind)
	assert.Equal(t, "BTC_USDT", u.Symbol)
	assert.Equal(t, "book.BTC_USDT.10", u.Subscription)
	assert.Equal(t, uint64(77), u.Sequence)
	require.Len(t, u.Bids, 2)
	assert.Equal(t, int64(4), u.Bids[0].OrderCount)
}

func TestNormalizeBookUpdateDelta(t *testing.T) {
	p := NewProtocol("wss://stream.crypto.com/v2/market", []string{"BTC_USDT"}, 10)

	raw := []byte(`{"method":"subscribe","result":{"channel":"book.update","subscription":"book.BTC_USDT.10","data":[{"bids":[["30000.5","0"]],"asks":[],"t":1690000000001,"u":78}]}}`)
	u, err := p.Normalize(raw)
	require.NoError(t, err)
	require.NotNil(t, u)

	assert.Equal(t, domain.KindDelta, u.Kind)
	require.Len(t, u.Bids, 1)
	assert.True(t, u.Bids[0].Quantity.IsZero())
}

func TestNormalizeUsesLastDataElement(t *testing.T) {
	p := NewProtocol("wss://stream.crypto.com/v2/market", []string{"BTC_USDT"}, 10)

	raw := []byte(`{"method":"subscribe","result":{"channel":"book","subscription":"book.BTC_USDT.10","data":[{"bids":[["1","1"]],"asks":[],"t":1,"u":1},{"bids":[["2","2"]],"asks":[],"t":2,"u":2}]}}`)
	u, err := p.Normalize(raw)
	require.NoError(t, err)
	require.NotNil(t, u)

	assert.Equal(t, uint64(2), u.Sequence)
	assert.Equal(t, "2", u.Bids[0].Price.String())
}

func TestNormalizeSkipsNonBookFrames(t *testing.T) {
	p := NewProtocol("wss://stream.crypto.com/v2/market", []string{"BTC_USDT"}, 10)

	u, err := p.Normalize([]byte(`{"method":"subscribe","result":{"channel":"ticker","subscription":"ticker.BTC_USDT","data":[{}]}}`))
	require.NoError(t, err)
	assert.Nil(t, u)

	u, err = p.Normalize([]byte(`{"id":1,"method":"public/heartbeat"}`))
	require.NoError(t, err)
	assert.Nil(t, u)
}
