package core

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cryptows/orderbook-listener/internal/domain"
	"github.com/cryptows/orderbook-listener/internal/port"
)

// WriterConfig controls the persistence writer's queueing and schedule.
type WriterConfig struct {
	QueueSize int
	Interval  time.Duration
	TopLevels int
}

// WriterStats is a copy of the writer counters for the health view.
type WriterStats struct {
	Writes      uint64
	WriteErrors uint64
	Dropped     uint64
}

// Writer serializes book snapshots to the store on its own schedule,
// decoupled from ingestion. Queues are bounded per symbol; when a queue
// is full the oldest pending write for that symbol is dropped (latest
// wins, staleness over backpressure). Store failures are logged and
// counted, never raised to the caller.
type Writer struct {
	store    port.SnapshotStore
	archive  port.Archive
	listener *Listener
	logger   *logrus.Entry
	cfg      WriterConfig

	mu      sync.Mutex
	queues  map[string][]domain.BookSnapshot
	pending []string
	closed  bool

	wake chan struct{}

	writes      atomic.Uint64
	writeErrors atomic.Uint64
	dropped     atomic.Uint64
}

func NewWriter(store port.SnapshotStore, archive port.Archive, listener *Listener, logger *logrus.Logger, cfg WriterConfig) *Writer {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 8
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.TopLevels <= 0 {
		cfg.TopLevels = 5
	}
	return &Writer{
		store:    store,
		archive:  archive,
		listener: listener,
		logger:   logger.WithField("component", "persistence_writer"),
		cfg:      cfg,
		queues:   make(map[string][]domain.BookSnapshot),
		wake:     make(chan struct{}, 1),
	}
}

// Enabled reports whether any sink is configured.
func (w *Writer) Enabled() bool {
	return w.store != nil || w.archive != nil
}

// Run drains queues until ctx is cancelled, writing periodic snapshots
// for every ready book regardless of activity.
func (w *Writer) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.enqueuePeriodic()
			w.Flush(ctx)
		case <-w.wake:
			w.Flush(ctx)
		}
	}
}

// Enqueue schedules one snapshot write. Never blocks.
func (w *Writer) Enqueue(view domain.BookSnapshot) {
	if !w.Enabled() {
		return
	}
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	q := w.queues[view.Symbol]
	if len(q) >= w.cfg.QueueSize {
		q = q[1:]
		w.dropped.Add(1)
	}
	if len(q) == 0 {
		w.pending = append(w.pending, view.Symbol)
	}
	w.queues[view.Symbol] = append(q, view)
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Flush writes every queued snapshot. Each unique queue slot reaches
// the store exactly once per flush; failures are counted and skipped.
// Cancellation is checked before dequeuing so no snapshot is taken off
// a queue and then discarded unwritten.
func (w *Writer) Flush(ctx context.Context) {
	for ctx.Err() == nil {
		view, ok := w.dequeue()
		if !ok {
			return
		}
		w.write(ctx, view)
	}
}

// Close stops intake and drains in-flight writes until the grace
// context lapses.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	w.Flush(ctx)
	return ctx.Err()
}

func (w *Writer) Stats() WriterStats {
	return WriterStats{
		Writes:      w.writes.Load(),
		WriteErrors: w.writeErrors.Load(),
		Dropped:     w.dropped.Load(),
	}
}

func (w *Writer) enqueuePeriodic() {
	if w.listener == nil {
		return
	}
	for _, snap := range w.listener.Snapshots() {
		if snap.Ready {
			w.Enqueue(snap)
		}
	}
}

// dequeue pops the next snapshot round-robin across symbols.
func (w *Writer) dequeue() (domain.BookSnapshot, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for len(w.pending) > 0 {
		symbol := w.pending[0]
		w.pending = w.pending[1:]
		q := w.queues[symbol]
		if len(q) == 0 {
			delete(w.queues, symbol)
			continue
		}
		view := q[0]
		q = q[1:]
		if len(q) == 0 {
			delete(w.queues, symbol)
		} else {
			w.queues[symbol] = q
			w.pending = append(w.pending, symbol)
		}
		return view, true
	}
	return domain.BookSnapshot{}, false
}

func (w *Writer) write(ctx context.Context, view domain.BookSnapshot) {
	snap := domain.NewPersistedSnapshot(view, w.cfg.TopLevels, time.Now())
	if w.store != nil {
		if err := w.store.SaveSnapshot(ctx, snap); err != nil {
			w.writeErrors.Add(1)
			w.logger.WithError(err).WithField("symbol", view.Symbol).Warn("snapshot write failed")
		} else {
			w.writes.Add(1)
		}
	}
	if w.archive != nil {
		if err := w.archive.ArchiveSnapshot(ctx, snap); err != nil {
			w.writeErrors.Add(1)
			w.logger.WithError(err).WithField("symbol", view.Symbol).Warn("snapshot archive failed")
		}
	}
}
