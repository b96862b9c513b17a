package dto

type WebSocketStatus struct {
	Connected             bool     `json:"connected"`
	State                 string   `json:"state"`
	Healthy               bool     `json:"healthy"`
	LastMessageAgeSeconds *float64 `json:"last_message_age_seconds"`
	MessageCount          uint64   `json:"message_count"`
	ErrorCount            uint64   `json:"error_count"`
	LastError             *string  `json:"last_error,omitempty"`
	CrossedBooks          uint64   `json:"crossed_books"`
	Desyncs               uint64   `json:"desyncs"`
}

type PersistenceStatus struct {
	Enabled     bool   `json:"enabled"`
	Writes      uint64 `json:"writes"`
	WriteErrors uint64 `json:"write_errors"`
	Dropped     uint64 `json:"dropped"`
}

type Configuration struct {
	Endpoint string   `json:"endpoint"`
	Symbols  []string `json:"symbols"`
	Depth    int      `json:"depth"`
}

type HealthResponse struct {
	Status        string            `json:"status"`
	Exchange      string            `json:"exchange"`
	InstanceID    string            `json:"instance_id"`
	Timestamp     float64           `json:"timestamp"`
	UptimeSeconds float64           `json:"uptime_seconds"`
	WebSocket     WebSocketStatus   `json:"websocket"`
	Persistence   PersistenceStatus `json:"persistence"`
	Configuration Configuration     `json:"configuration"`
}

type MarketResponse struct {
	Exchange       string     `json:"exchange"`
	Symbol         string     `json:"symbol"`
	Timestamp      int64      `json:"timestamp"`
	Sequence       uint64     `json:"sequence"`
	BestBid        []string   `json:"best_bid"`
	BestAsk        []string   `json:"best_ask"`
	Bids           [][]string `json:"bids"`
	Asks           [][]string `json:"asks"`
	DataAgeSeconds float64    `json:"data_age_seconds"`
}

type ErrorResponse struct {
	Error          string   `json:"error"`
	DataAgeSeconds *float64 `json:"data_age_seconds,omitempty"`
}
