package collector

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// EventCollector buffers items and hands them over in batches, either when
// the batch size is reached or when the flush interval elapses
type EventCollector[T any] struct {
	items         []T
	batchSize     int
	flushInterval time.Duration
	onBatchReady  func([]T)
	logger        *zap.Logger
	mu            sync.Mutex
	stopChan      chan struct{}
	stopped       bool
	wg            sync.WaitGroup
}

// NewEventCollector creates a new collector
func NewEventCollector[T any](batchSize int, flushInterval time.Duration, logger *zap.Logger) *EventCollector[T] {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &EventCollector[T]{
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        logger,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the auto-flush loop. onBatchReady is called without any lock held.
func (ec *EventCollector[T]) Start(onBatchReady func([]T)) {
	ec.onBatchReady = onBatchReady

	if ec.flushInterval > 0 {
		ec.wg.Add(1)
		go ec.autoFlushLoop()
	}

	ec.logger.Info("Event collector started",
		zap.Int("batch_size", ec.batchSize),
		zap.Duration("flush_interval", ec.flushInterval),
	)
}

// Stop stops the flush loop and hands over whatever is still buffered
func (ec *EventCollector[T]) Stop() {
	ec.mu.Lock()
	if ec.stopped {
		ec.mu.Unlock()
		return
	}
	ec.stopped = true
	close(ec.stopChan)
	ec.mu.Unlock()

	ec.wg.Wait()
	ec.Flush()

	ec.logger.Info("Event collector stopped")
}

// Add buffers items, flushing synchronously when the batch is full
func (ec *EventCollector[T]) Add(items ...T) {
	ec.mu.Lock()
	ec.items = append(ec.items, items...)
	var batch []T
	if len(ec.items) >= ec.batchSize {
		batch = ec.drainLocked()
	}
	ec.mu.Unlock()

	if batch != nil {
		ec.logger.Debug("Batch size reached, flushing", zap.Int("count", len(batch)))
		ec.deliver(batch)
	}
}

// Flush hands over all pending items
func (ec *EventCollector[T]) Flush() {
	ec.mu.Lock()
	batch := ec.drainLocked()
	ec.mu.Unlock()

	if batch != nil {
		ec.deliver(batch)
	}
}

// PendingCount returns the number of buffered items
func (ec *EventCollector[T]) PendingCount() int {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return len(ec.items)
}

func (ec *EventCollector[T]) drainLocked() []T {
	if len(ec.items) == 0 {
		return nil
	}
	batch := make([]T, len(ec.items))
	copy(batch, ec.items)
	ec.items = ec.items[:0]
	return batch
}

func (ec *EventCollector[T]) deliver(batch []T) {
	if ec.onBatchReady != nil {
		ec.onBatchReady(batch)
	}
}

func (ec *EventCollector[T]) autoFlushLoop() {
	defer ec.wg.Done()

	ticker := time.NewTicker(ec.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ec.Flush()
		case <-ec.stopChan:
			return
		}
	}
}
