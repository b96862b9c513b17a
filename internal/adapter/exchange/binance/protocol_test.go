package binance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptows/orderbook-listener/internal/domain"
)

func TestEndpointSingleStream(t *testing.T) {
	p := NewProtocol("wss://stream.binance.com:9443/ws", []string{"btcusdt"}, 10)

	url, err := p.Endpoint()
	require.NoError(t, err)
	assert.Equal(t, "wss://stream.binance.com:9443/ws/btcusdt@depth10", url)
}

func TestEndpointCombinedStreams(t *testing.T) {
	p := NewProtocol("wss://stream.binance.com:9443/ws", []string{"BTCUSDT", "ethusdt"}, 20)

	url, err := p.Endpoint()
	require.NoError(t, err)
	assert.Equal(t, "wss://stream.binance.com:9443/stream?streams=btcusdt@depth20/ethusdt@depth20", url)
}

func TestEndpointNoStreams(t *testing.T) {
	p := NewProtocol("wss://stream.binance.com:9443/ws", nil, 10)
	_, err := p.Endpoint()
	require.Error(t, err)
}

func TestNormalizePartialBook(t *testing.T) {
	p := NewProtocol("wss://stream.binance.com:9443/ws", []string{"btcusdt"}, 10)

	raw := []byte(`{"lastUpdateId":160,"bids":[["100.50","5"],["100.00","3"]],"asks":[["101.00","2"]]}`)
	u, err := p.Normalize(raw)
	require.NoError(t, err)
	require.NotNil(t, u)

	assert.Equal(t, domain.KindSnapshot, u.Kind)
	assert.Equal(t, "btcusdt", u.Symbol)
	assert.Equal(t, uint64(160), u.Sequence)
	require.Len(t, u.Bids, 2)
	assert.Equal(t, "100.5", u.Bids[0].Price.String())
	require.Len(t, u.Asks, 1)
}

func TestNormalizeDiffUpdate(t *testing.T) {
	p := NewProtocol("wss://stream.binance.com:9443/ws", []string{"btcusdt"}, 10)

	raw := []byte(`{"e":"depthUpdate","E":1690000000000,"s":"BTCUSDT","U":157,"u":160,"b":[["100.50","0"]],"a":[["101.00","7"]]}`)
	u, err := p.Normalize(raw)
	require.NoError(t, err)
	require.NotNil(t, u)

	assert.Equal(t, domain.KindDelta, u.Kind)
	assert.Equal(t, "btcusdt", u.Symbol)
	assert.Equal(t, uint64(160), u.Sequence)
	assert.Equal(t, int64(1690000000000), u.Timestamp)
	require.Len(t, u.Bids, 1)
	assert.True(t, u.Bids[0].Quantity.IsZero())
}

func TestNormalizeCombinedEnvelope(t *testing.T) {
	p := NewProtocol("wss://stream.binance.com:9443/ws", []string{"btcusdt", "ethusdt"}, 10)

	raw := []byte(`{"stream":"ethusdt@depth10","data":{"lastUpdateId":9,"bids":[["2000","1"]],"asks":[["2001","1"]]}}`)
	u, err := p.Normalize(raw)
	require.NoError(t, err)
	require.NotNil(t, u)

	assert.Equal(t, "ethusdt", u.Symbol)
	assert.Equal(t, "ethusdt@depth10", u.Subscription)
}

func TestNormalizeUnknownStreamRejected(t *testing.T) {
	p := NewProtocol("wss://stream.binance.com:9443/ws", []string{"btcusdt", "ethusdt"}, 10)

	raw := []byte(`{"stream":"solusdt@depth10","data":{"lastUpdateId":9,"bids":[],"asks":[]}}`)
	_, err := p.Normalize(raw)
	var perr *domain.ProtocolError
	require.ErrorAs(t, err, &perr)
}

func TestNormalizeMalformedLevel(t *testing.T) {
	p := NewProtocol("wss://stream.binance.com:9443/ws", []string{"btcusdt"}, 10)

	raw := []byte(`{"lastUpdateId":9,"bids":[["not-a-price","1"]],"asks":[]}`)
	_, err := p.Normalize(raw)
	require.Error(t, err)
}

func TestNormalizeUnknownFrameSkipped(t *testing.T) {
	p := NewProtocol("wss://stream.binance.com:9443/ws", []string{"btcusdt"}, 10)

	u, err := p.Normalize([]byte(`{"e":"trade","s":"BTCUSDT","p":"100"}`))
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestControlSwallowsSubscribeAck(t *testing.T) {
	p := NewProtocol("wss://stream.binance.com:9443/ws", []string{"btcusdt"}, 10)

	reply, handled, err := p.Control([]byte(`{"result":null,"id":1}`))
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Nil(t, reply)

	_, handled, _ = p.Control([]byte(`{"lastUpdateId":9,"bids":[],"asks":[]}`))
	assert.False(t, handled)
}
