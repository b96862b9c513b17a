package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/cryptows/orderbook-listener/internal/api/dto"
	"github.com/cryptows/orderbook-listener/internal/core"
	"github.com/cryptows/orderbook-listener/internal/domain"
	"github.com/cryptows/orderbook-listener/internal/middleware"
)

const (
	// A connection with no traffic for this long is reported unhealthy
	// even while the socket is still open.
	wsStaleAfter = 30 * time.Second
	// Market data older than this is refused rather than served.
	dataStaleAfter = 60 * time.Second
)

type HTTPServer struct {
	listener  *core.Listener
	writer    *core.Writer
	logger    *logrus.Logger
	endpoint  string
	symbols   []string
	depth     int
	topLevels int
}

func NewHTTPServer(listener *core.Listener, writer *core.Writer, logger *logrus.Logger, endpoint string, symbols []string, depth, topLevels int) *HTTPServer {
	return &HTTPServer{
		listener:  listener,
		writer:    writer,
		logger:    logger,
		endpoint:  endpoint,
		symbols:   symbols,
		depth:     depth,
		topLevels: topLevels,
	}
}

func (s *HTTPServer) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	rl := middleware.NewRequestLogger(s.logger)
	r.Use(rl.Middleware())

	r.GET("/health", s.health)
	r.GET("/market", s.market)
	r.GET("/market/:symbol", s.marketSymbol)

	return r
}

func (s *HTTPServer) health(c *gin.Context) {
	now := time.Now()
	st := s.listener.Status()

	ws := dto.WebSocketStatus{
		Connected:    st.Connected,
		State:        string(st.State),
		MessageCount: st.Messages,
		ErrorCount:   st.Errors,
		CrossedBooks: st.CrossedBooks,
		Desyncs:      st.Desyncs,
	}
	if !st.LastMessageAt.IsZero() {
		age := now.Sub(st.LastMessageAt).Seconds()
		ws.LastMessageAgeSeconds = &age
	}
	if st.LastError != "" {
		lastErr := st.LastError
		ws.LastError = &lastErr
	}
	ws.Healthy = st.Connected &&
		!st.LastMessageAt.IsZero() &&
		now.Sub(st.LastMessageAt) < wsStaleAfter

	stats := s.writer.Stats()
	resp := dto.HealthResponse{
		Status:        "healthy",
		Exchange:      s.listener.Exchange(),
		InstanceID:    s.listener.InstanceID(),
		Timestamp:     float64(now.UnixMilli()) / 1000.0,
		UptimeSeconds: s.listener.Uptime(now).Seconds(),
		WebSocket:     ws,
		Persistence: dto.PersistenceStatus{
			Enabled:     s.writer.Enabled(),
			Writes:      stats.Writes,
			WriteErrors: stats.WriteErrors,
			Dropped:     stats.Dropped,
		},
		Configuration: dto.Configuration{
			Endpoint: s.endpoint,
			Symbols:  s.symbols,
			Depth:    s.depth,
		},
	}

	code := http.StatusOK
	if !ws.Healthy {
		resp.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, resp)
}

func (s *HTTPServer) market(c *gin.Context) {
	view, ok := s.listener.LatestSnapshot()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{Error: "no market data received yet"})
		return
	}
	s.serveBook(c, view)
}

func (s *HTTPServer) marketSymbol(c *gin.Context) {
	symbol := c.Param("symbol")
	view, ok := s.listener.SnapshotFor(symbol)
	if !ok {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "unknown symbol: " + symbol})
		return
	}
	if !view.Ready {
		c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{Error: "order book not ready for " + symbol})
		return
	}
	s.serveBook(c, view)
}

func (s *HTTPServer) serveBook(c *gin.Context, view domain.BookSnapshot) {
	age := time.Since(view.UpdatedAt)
	if age > dataStaleAfter {
		seconds := age.Seconds()
		c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{
			Error:          "market data is stale",
			DataAgeSeconds: &seconds,
		})
		return
	}

	snap := domain.NewPersistedSnapshot(view, s.topLevels, time.Now())
	c.JSON(http.StatusOK, dto.MarketResponse{
		Exchange:       snap.Exchange,
		Symbol:         snap.Symbol,
		Timestamp:      snap.Timestamp,
		Sequence:       view.Sequence,
		BestBid:        snap.BestBid,
		BestAsk:        snap.BestAsk,
		Bids:           snap.Bids,
		Asks:           snap.Asks,
		DataAgeSeconds: age.Seconds(),
	})
}
