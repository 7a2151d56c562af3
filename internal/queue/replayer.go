package queue

import (
	"context"
	"sync"
	"time"

	"Mansoor88-6/site-analytics/internal/models"

	"go.uber.org/zap"
)

const replayBatchSize = 100

// Appender is the write side of the event log
type Appender interface {
	Append(ctx context.Context, records ...models.LogRecord) error
}

// Replayer periodically moves spooled records into the event log
type Replayer struct {
	queue    *EventQueue
	target   Appender
	interval time.Duration
	maxAge   time.Duration
	logger   *zap.Logger

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewReplayer creates a replayer. Records older than maxAge that exhausted
// their retries are dropped on each cleanup pass.
func NewReplayer(queue *EventQueue, target Appender, interval, maxAge time.Duration, logger *zap.Logger) *Replayer {
	return &Replayer{
		queue:    queue,
		target:   target,
		interval: interval,
		maxAge:   maxAge,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start runs the replay loop in the background
func (r *Replayer) Start() {
	r.wg.Add(1)
	go r.loop()
	r.logger.Info("Spool replayer started", zap.Duration("interval", r.interval))
}

// Stop runs one final replay pass and waits for the loop to exit
func (r *Replayer) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopChan)
	})
	r.wg.Wait()
}

func (r *Replayer) loop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.ProcessQueue(context.Background())
			r.cleanup()
		case <-r.stopChan:
			r.ProcessQueue(context.Background())
			return
		}
	}
}

// ProcessQueue replays spooled records until the spool is empty or an append
// fails. It returns the number of records replayed.
func (r *Replayer) ProcessQueue(ctx context.Context) int {
	replayed := 0
	for {
		records, ids, err := r.queue.Dequeue(ctx, replayBatchSize)
		if err != nil {
			r.logger.Error("Failed to dequeue spooled records", zap.Error(err))
			return replayed
		}
		if len(records) == 0 {
			return replayed
		}

		if err := r.target.Append(ctx, records...); err != nil {
			r.logger.Warn("Failed to replay spooled records",
				zap.Error(err),
				zap.Int("event_count", len(records)),
			)
			if retryErr := r.queue.IncrementRetry(ctx, ids); retryErr != nil {
				r.logger.Error("Failed to increment retry count", zap.Error(retryErr))
			}
			return replayed
		}

		if err := r.queue.Remove(ctx, ids); err != nil {
			// The next pass appends these again; the log ignores known ids
			r.logger.Error("Failed to remove replayed records from spool", zap.Error(err))
			return replayed
		}

		replayed += len(records)
		r.logger.Info("Replayed spooled records", zap.Int("event_count", len(records)))

		if len(records) < replayBatchSize {
			return replayed
		}
	}
}

func (r *Replayer) cleanup() {
	if r.maxAge <= 0 {
		return
	}
	if err := r.queue.CleanupOldEvents(context.Background(), r.maxAge); err != nil {
		r.logger.Error("Failed to cleanup old spooled records", zap.Error(err))
	}
}
