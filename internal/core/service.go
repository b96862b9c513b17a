package core

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cryptows/orderbook-listener/internal/domain"
)

// ConnState names the connection manager's current phase.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateSubscribing  ConnState = "subscribing"
	StateStreaming    ConnState = "streaming"
)

// Status is a copy of the connection-level counters for the health view.
type Status struct {
	Connected     bool
	State         ConnState
	LastMessageAt time.Time
	Messages      uint64
	Errors        uint64
	LastError     string
	CrossedBooks  uint64
	Desyncs       uint64
}

// Listener aggregates per-symbol books and connection status for one
// exchange. Books are mutated only through Apply, which the connection's
// read loop calls; everything else reads copies.
type Listener struct {
	exchange   string
	instanceID string
	depth      int
	startedAt  time.Time

	mu    sync.RWMutex
	books map[string]*Book

	statusMu sync.Mutex
	status   Status
}

func NewListener(exchange string, symbols []string, depth int) *Listener {
	l := &Listener{
		exchange:   exchange,
		instanceID: uuid.NewString(),
		depth:      depth,
		startedAt:  time.Now(),
		books:      make(map[string]*Book, len(symbols)),
		status:     Status{State: StateDisconnected},
	}
	for _, s := range symbols {
		l.books[s] = NewBook(exchange, s, depth)
	}
	return l
}

func (l *Listener) Exchange() string   { return l.exchange }
func (l *Listener) InstanceID() string { return l.instanceID }

func (l *Listener) Uptime(now time.Time) time.Duration {
	return now.Sub(l.startedAt)
}

// Book returns the book for a symbol, creating it on first subscription.
func (l *Listener) Book(symbol string) *Book {
	l.mu.RLock()
	b, ok := l.books[symbol]
	l.mu.RUnlock()
	if ok {
		return b
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok = l.books[symbol]; ok {
		return b
	}
	b = NewBook(l.exchange, symbol, l.depth)
	l.books[symbol] = b
	return b
}

// Apply routes an update to its book and folds the result into the
// listener counters.
func (l *Listener) Apply(u *domain.CanonicalUpdate) ApplyResult {
	res := l.Book(u.Symbol).Apply(u)

	l.statusMu.Lock()
	if res.Crossed {
		l.status.CrossedBooks++
	}
	if res.Desync {
		l.status.Desyncs++
	}
	l.statusMu.Unlock()
	return res
}

// ResetBooks marks every book not ready. Called on disconnect so each
// symbol waits for a fresh snapshot after resubscribe.
func (l *Listener) ResetBooks() {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, b := range l.books {
		b.Reset()
	}
}

// Snapshots returns a copy of every book, ordered by symbol.
func (l *Listener) Snapshots() []domain.BookSnapshot {
	l.mu.RLock()
	books := make([]*Book, 0, len(l.books))
	for _, b := range l.books {
		books = append(books, b)
	}
	l.mu.RUnlock()

	out := make([]domain.BookSnapshot, 0, len(books))
	for _, b := range books {
		out = append(out, b.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// SnapshotFor returns one symbol's book copy.
func (l *Listener) SnapshotFor(symbol string) (domain.BookSnapshot, bool) {
	l.mu.RLock()
	b, ok := l.books[symbol]
	l.mu.RUnlock()
	if !ok {
		return domain.BookSnapshot{}, false
	}
	return b.Snapshot(), true
}

// LatestSnapshot returns the most recently updated ready book.
func (l *Listener) LatestSnapshot() (domain.BookSnapshot, bool) {
	var latest domain.BookSnapshot
	found := false
	for _, snap := range l.Snapshots() {
		if !snap.Ready {
			continue
		}
		if !found || snap.UpdatedAt.After(latest.UpdatedAt) {
			latest = snap
			found = true
		}
	}
	return latest, found
}

func (l *Listener) SetState(state ConnState) {
	l.statusMu.Lock()
	defer l.statusMu.Unlock()
	l.status.State = state
	l.status.Connected = state == StateStreaming
}

func (l *Listener) MessageReceived() {
	l.statusMu.Lock()
	defer l.statusMu.Unlock()
	l.status.Messages++
	l.status.LastMessageAt = time.Now()
}

func (l *Listener) RecordError(err error) {
	if err == nil {
		return
	}
	l.statusMu.Lock()
	defer l.statusMu.Unlock()
	l.status.Errors++
	l.status.LastError = err.Error()
}

func (l *Listener) Status() Status {
	l.statusMu.Lock()
	defer l.statusMu.Unlock()
	return l.status
}
