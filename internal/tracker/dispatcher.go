package tracker

import (
	"context"
	"sync"
	"time"

	"Mansoor88-6/site-analytics/internal/models"

	"go.uber.org/zap"
)

// Sender delivers tracker submissions to the ingestion boundary
type Sender interface {
	TrackPageView(ctx context.Context, req models.TrackPageViewRequest) error
	TrackInteraction(ctx context.Context, req models.TrackInteractionRequest) error
}

// Dispatcher runs every submission as a detached task. Nothing is awaited
// or retried and failures are only logged.
type Dispatcher struct {
	sender  Sender
	timeout time.Duration
	logger  *zap.Logger
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher. Each task gets its own timeout.
func NewDispatcher(sender Sender, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		sender:  sender,
		timeout: timeout,
		logger:  logger,
	}
}

// PageView sends a page view or a duration update
func (d *Dispatcher) PageView(req models.TrackPageViewRequest) {
	d.dispatch("page_view", func(ctx context.Context) error {
		return d.sender.TrackPageView(ctx, req)
	}, zap.String("path", req.Path))
}

// Interaction sends an interaction
func (d *Dispatcher) Interaction(req models.TrackInteractionRequest) {
	d.dispatch("interaction", func(ctx context.Context) error {
		return d.sender.TrackInteraction(ctx, req)
	}, zap.String("path", req.Path), zap.String("type", req.Type))
}

// Wait blocks until every dispatched task has finished. The tracker never
// calls it; it exists for shutdown and tests.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) dispatch(kind string, send func(ctx context.Context) error, fields ...zap.Field) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx := context.Background()
		if d.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d.timeout)
			defer cancel()
		}

		if err := send(ctx); err != nil {
			d.logger.Warn("Failed to send tracking event",
				append(fields, zap.String("kind", kind), zap.Error(err))...,
			)
		}
	}()
}
