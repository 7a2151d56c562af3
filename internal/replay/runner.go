package replay

import (
	"context"
	"sync"
	"time"

	"Mansoor88-6/site-analytics/internal/models"
	"Mansoor88-6/site-analytics/internal/platform"
	"Mansoor88-6/site-analytics/internal/tracker"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SenderFactory builds the sender a tab submits through. Each tab gets its
// own so it can carry its own user agent.
type SenderFactory func(userAgent string) tracker.Sender

// Runner replays a scenario
type Runner struct {
	scenario  *Scenario
	newSender SenderFactory
	logger    *zap.Logger
}

func NewRunner(scenario *Scenario, newSender SenderFactory, logger *zap.Logger) *Runner {
	return &Runner{
		scenario:  scenario,
		newSender: newSender,
		logger:    logger,
	}
}

// Run replays every tab concurrently and waits until all their submissions
// have been sent
func (r *Runner) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i, tab := range r.scenario.Tabs {
		i, tab := i, tab
		g.Go(func() error {
			return r.runTab(gctx, i, tab)
		})
	}
	return g.Wait()
}

func (r *Runner) runTab(ctx context.Context, index int, tab Tab) error {
	logger := r.logger.With(zap.Int("tab", index))
	clock := newClock(time.Now())
	dispatcher := tracker.NewDispatcher(r.newSender(tab.UserAgent), r.scenario.Timeout, logger)
	defer dispatcher.Wait()

	page := platform.NewPage(tab.StartPath, tab.Referrer)
	t := tracker.NewTracker(page, dispatcher, logger, clock.Now)
	t.Start()

	for _, step := range tab.Steps {
		logger.Debug("Replaying step", zap.String("action", step.Action), zap.String("path", step.Path))

		switch step.Action {
		case ActionWait:
			if err := r.wait(ctx, clock, step.Duration); err != nil {
				page.Unload()
				return err
			}
		case ActionPush:
			page.PushState(step.Path)
		case ActionReplace:
			page.ReplaceState(step.Path)
		case ActionBack:
			page.Back()
		case ActionForward:
			page.Forward()
		case ActionHide:
			page.SetVisible(false)
		case ActionShow:
			page.SetVisible(true)
		case ActionReload:
			page.Reload()
			t = tracker.NewTracker(page, dispatcher, logger, clock.Now)
			t.Start()
		case ActionInteraction:
			t.TrackInteraction(models.InteractionType(step.Type), step.Element, step.Value, step.Metadata)
		case ActionClose:
			page.Close()
			return nil
		}
	}

	page.Unload()
	return nil
}

func (r *Runner) wait(ctx context.Context, c *clock, d time.Duration) error {
	if !r.scenario.Realtime {
		c.Advance(d)
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		c.Advance(d)
		return nil
	}
}

// clock is a per-tab clock moved forward by wait steps
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(start time.Time) *clock {
	return &clock{now: start}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
