package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/casino-client/pkg/events"
)

// Config configures a Writer.
type Config struct {
	BatchSize       int
	FlushInterval   time.Duration
	IncludeMessages bool // record every inbound packet, not just lifecycle events
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     100,
		FlushInterval: time.Second,
	}
}

// Stats holds writer counters.
type Stats struct {
	Inserts int64
	Flushes int64
	Errors  int64
	Dropped int64 // events received after Stop
	Queue   QueueStats
}

// Writer batches bus events into a Store.
type Writer struct {
	cfg     Config
	store   Store
	session uuid.UUID
	logger  *slog.Logger

	queue *Queue[Row]

	batch   []Row
	batchMu sync.Mutex

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup // flushLoop
	consumers sync.WaitGroup // consumeLoop

	listeners map[events.Kind]events.ListenerID
	sub       events.Subscriber

	stats Stats
}

// NewWriter creates a Writer for the given session.
func NewWriter(cfg Config, store Store, session uuid.UUID, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.BatchSize < 1 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}

	return &Writer{
		cfg:       cfg,
		store:     store,
		session:   session,
		logger:    logger.With("component", "telemetry"),
		queue:     NewQueue[Row](),
		batch:     make([]Row, 0, cfg.BatchSize),
		listeners: make(map[events.Kind]events.ListenerID),
	}
}

// Attach subscribes the writer to sub. Message events are skipped unless
// IncludeMessages is set.
func (w *Writer) Attach(sub events.Subscriber) {
	w.sub = sub
	for _, kind := range events.Kinds() {
		if kind == events.KindMessage && !w.cfg.IncludeMessages {
			continue
		}
		w.listeners[kind] = sub.On(kind, w.record)
	}
}

// record is the bus listener. It must not block.
func (w *Writer) record(ev events.Event) {
	if !w.queue.Push(NewRow(w.session, ev)) {
		w.batchMu.Lock()
		w.stats.Dropped++
		w.batchMu.Unlock()
	}
}

// Start begins consuming events and writing to the store.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.consumers.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("telemetry writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop detaches from the bus, drains queued rows and flushes them.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping telemetry writer")

	if w.sub != nil {
		for kind, id := range w.listeners {
			w.sub.Off(kind, id)
		}
	}
	// Closing the queue lets consumeLoop drain what is left and exit.
	w.queue.Close()
	w.wait(ctx, &w.consumers)

	if w.cancel != nil {
		w.cancel()
	}
	w.wait(ctx, &w.wg)

	// Final flush
	for _, r := range w.queue.Drain(0) {
		w.add(r)
	}
	w.flush(ctx)

	s := w.Stats()
	w.logger.Info("telemetry writer stopped",
		"inserts", s.Inserts,
		"errors", s.Errors,
		"dropped", s.Dropped,
		"queue_peak", s.Queue.Peak,
	)
	return nil
}

// wait blocks until wg is done or ctx ends.
func (w *Writer) wait(ctx context.Context, wg *sync.WaitGroup) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("telemetry writer stop timed out")
	}
}

// Stats returns current counters.
func (w *Writer) Stats() Stats {
	w.batchMu.Lock()
	s := w.stats
	w.batchMu.Unlock()
	s.Queue = w.queue.Stats()
	return s
}

// consumeLoop moves rows from the queue into the batch. Once the writer's
// context ends, full batches are left for the final flush in Stop.
func (w *Writer) consumeLoop() {
	defer w.consumers.Done()

	for {
		r, ok := w.queue.Pop()
		if !ok {
			return
		}
		if w.add(r) && w.ctx.Err() == nil {
			w.flush(w.ctx)
		}
	}
}

// flushLoop periodically flushes the batch.
func (w *Writer) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flush(w.ctx)
		}
	}
}

// add appends r and reports whether the batch is full.
func (w *Writer) add(r Row) bool {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	w.batch = append(w.batch, r)
	return len(w.batch) >= w.cfg.BatchSize
}

// flush writes the current batch to the store.
func (w *Writer) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]Row, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	if err := w.store.Insert(ctx, batch); err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.stats.Errors++
		// Cancelled mid-insert: keep the rows for the flush in Stop.
		if ctx.Err() != nil && ctx == w.ctx {
			w.batch = append(batch, w.batch...)
		}
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.stats.Inserts += int64(len(batch))
	w.stats.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed connection events",
		"count", len(batch),
		"duration", time.Since(start),
	)
}
