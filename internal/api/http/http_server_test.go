package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptows/orderbook-listener/internal/api/dto"
	"github.com/cryptows/orderbook-listener/internal/core"
	"github.com/cryptows/orderbook-listener/internal/domain"
)

func testServer(listener *core.Listener) *HTTPServer {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	writer := core.NewWriter(nil, nil, listener, logger, core.WriterConfig{})
	return NewHTTPServer(listener, writer, logger, "wss://example/ws", []string{"btcusdt"}, 20, 5)
}

func level(price, qty string) domain.PriceLevel {
	return domain.PriceLevel{
		Price:    decimal.RequireFromString(price),
		Quantity: decimal.RequireFromString(qty),
	}
}

func applySnapshot(listener *core.Listener, symbol string) {
	listener.Apply(&domain.CanonicalUpdate{
		Kind:     domain.KindSnapshot,
		Exchange: "binance",
		Symbol:   symbol,
		Bids:     []domain.PriceLevel{level("100", "5"), level("99", "3")},
		Asks:     []domain.PriceLevel{level("101", "2")},
		Sequence: 7,
	})
}

func doRequest(t *testing.T, s *HTTPServer, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthUnhealthyWhenDisconnected(t *testing.T) {
	listener := core.NewListener("binance", []string{"btcusdt"}, 20)
	s := testServer(listener)

	rec := doRequest(t, s, "/health")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp dto.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "unhealthy", resp.Status)
	assert.Equal(t, "disconnected", resp.WebSocket.State)
	assert.False(t, resp.WebSocket.Healthy)
	assert.Nil(t, resp.WebSocket.LastMessageAgeSeconds)
	assert.Equal(t, "binance", resp.Exchange)
	assert.NotEmpty(t, resp.InstanceID)
}

func TestHealthHealthyWhileStreaming(t *testing.T) {
	listener := core.NewListener("binance", []string{"btcusdt"}, 20)
	listener.SetState(core.StateStreaming)
	listener.MessageReceived()
	s := testServer(listener)

	rec := doRequest(t, s, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp dto.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.True(t, resp.WebSocket.Healthy)
	assert.Equal(t, uint64(1), resp.WebSocket.MessageCount)
	require.NotNil(t, resp.WebSocket.LastMessageAgeSeconds)
	assert.Equal(t, []string{"btcusdt"}, resp.Configuration.Symbols)
}

func TestMarketNoDataYet(t *testing.T) {
	listener := core.NewListener("binance", []string{"btcusdt"}, 20)
	s := testServer(listener)

	rec := doRequest(t, s, "/market")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp dto.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error, "no market data")
}

func TestMarketServesLatestBook(t *testing.T) {
	listener := core.NewListener("binance", []string{"btcusdt"}, 20)
	applySnapshot(listener, "btcusdt")
	s := testServer(listener)

	rec := doRequest(t, s, "/market")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp dto.MarketResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "btcusdt", resp.Symbol)
	assert.Equal(t, uint64(7), resp.Sequence)
	assert.Equal(t, []string{"100", "5"}, resp.BestBid)
	assert.Equal(t, []string{"101", "2"}, resp.BestAsk)
	require.Len(t, resp.Bids, 2)
	assert.GreaterOrEqual(t, resp.DataAgeSeconds, 0.0)
}

func TestMarketSymbolUnknown(t *testing.T) {
	listener := core.NewListener("binance", []string{"btcusdt"}, 20)
	s := testServer(listener)

	rec := doRequest(t, s, "/market/dogeusdt")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMarketSymbolNotReady(t *testing.T) {
	listener := core.NewListener("binance", []string{"btcusdt"}, 20)
	s := testServer(listener)

	rec := doRequest(t, s, "/market/btcusdt")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp dto.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error, "not ready")
}

func TestMarketSymbolServesBook(t *testing.T) {
	listener := core.NewListener("binance", []string{"btcusdt"}, 20)
	applySnapshot(listener, "btcusdt")
	s := testServer(listener)

	rec := doRequest(t, s, "/market/btcusdt")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestMarketStaleData(t *testing.T) {
	listener := core.NewListener("binance", []string{"btcusdt"}, 20)
	applySnapshot(listener, "btcusdt")

	view, ok := listener.SnapshotFor("btcusdt")
	require.True(t, ok)
	require.True(t, view.Ready)

	// age the book past the staleness cutoff
	stale := view
	stale.UpdatedAt = stale.UpdatedAt.Add(-2 * dataStaleAfter)

	s := testServer(listener)
	rec := httptest.NewRecorder()
	ginCtx, _ := gin.CreateTestContext(rec)
	ginCtx.Request = httptest.NewRequest(http.MethodGet, "/market/btcusdt", nil)
	s.serveBook(ginCtx, stale)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp dto.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.DataAgeSeconds)
	assert.Greater(t, *resp.DataAgeSeconds, dataStaleAfter.Seconds())
}
