package usage

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const defaultBufferSize = 1024

// Recorder accepts usage records from the request path and writes them
// to the store on a background goroutine. Recording never blocks: when
// the buffer is full the record is dropped and counted.
type Recorder struct {
	store  *Store
	logger *slog.Logger

	records chan *Record
	dropped atomic.Int64
	wg      sync.WaitGroup

	closeOnce sync.Once
}

// NewRecorder creates a recorder and starts its writer goroutine.
// bufferSize <= 0 selects the default.
func NewRecorder(store *Store, bufferSize int, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}

	r := &Recorder{
		store:   store,
		logger:  logger,
		records: make(chan *Record, bufferSize),
	}
	r.wg.Add(1)
	go r.run()
	return r
}

// Record queues a usage record for writing. It never blocks the caller.
func (r *Recorder) Record(rec *Record) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	select {
	case r.records <- rec:
	default:
		if r.dropped.Add(1)%100 == 1 {
			r.logger.Warn("usage buffer full, dropping records", "dropped", r.dropped.Load())
		}
	}
}

// Dropped returns how many records were discarded due to a full buffer.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for rec := range r.records {
		// Each write gets its own budget so one slow insert cannot wedge
		// the writer forever.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := r.store.Insert(ctx, rec); err != nil {
			r.logger.Error("failed to write usage record", "id", rec.ID, "error", err)
		}
		cancel()
	}
}

// Close stops accepting records, flushes the buffer, and waits for the
// writer to finish. The store itself is not closed.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		close(r.records)
	})
	r.wg.Wait()
}
