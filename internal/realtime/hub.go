package realtime

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"Mansoor88-6/site-analytics/internal/metrics"
	"Mansoor88-6/site-analytics/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Aggregator computes aggregates on request of a dashboard client
type Aggregator interface {
	Comprehensive(ctx context.Context, q models.AnalyticsQuery) (*models.AnalyticsAggregate, error)
}

// HubConfig sizes the hub
type HubConfig struct {
	ActivityBuffer   int
	SubscriberBuffer int
	PruneInterval    time.Duration
	RequestTimeout   time.Duration
}

// Hub owns the live activity ring, the presence window and the set of
// connected dashboard clients. One mutex guards the ring, the client set
// and every enqueue, so each subscriber receives messages in publish order.
// Publishing never blocks: a subscriber whose queue is full is dropped.
type Hub struct {
	cfg        HubConfig
	presence   Presence
	aggregator Aggregator
	metrics    *metrics.Metrics
	logger     *zap.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	ring    *activityRing
	count   int
	stopped bool

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type client struct {
	id         string
	transport  Transport
	send       chan []byte
	subscribed bool // guarded by Hub.mu
	closed     bool // guarded by Hub.mu
}

func NewHub(cfg HubConfig, presence Presence, aggregator Aggregator, m *metrics.Metrics, logger *zap.Logger) *Hub {
	if cfg.ActivityBuffer <= 0 {
		cfg.ActivityBuffer = 50
	}
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = 64
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	return &Hub{
		cfg:        cfg,
		presence:   presence,
		aggregator: aggregator,
		metrics:    m,
		logger:     logger,
		clients:    make(map[*client]struct{}),
		ring:       newActivityRing(cfg.ActivityBuffer),
		stopChan:   make(chan struct{}),
	}
}

// Start runs the presence prune loop
func (h *Hub) Start() {
	if h.cfg.PruneInterval <= 0 {
		return
	}
	h.wg.Add(1)
	go h.pruneLoop()
	h.logger.Info("Realtime hub started", zap.Duration("prune_interval", h.cfg.PruneInterval))
}

// Stop ends the prune loop, waits for in-flight aggregate requests and
// disconnects every client
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		h.mu.Lock()
		h.stopped = true
		h.mu.Unlock()
		close(h.stopChan)
	})
	h.wg.Wait()

	h.mu.Lock()
	for c := range h.clients {
		h.removeLocked(c)
	}
	h.mu.Unlock()

	h.logger.Info("Realtime hub stopped")
}

// Touch marks a session active and reports whether it already was.
// Presence errors are logged and reported as not present.
func (h *Hub) Touch(ctx context.Context, sessionID string) bool {
	wasPresent, err := h.presence.Touch(ctx, sessionID)
	if err != nil {
		h.logger.Warn("Failed to touch presence window", zap.Error(err), zap.String("session_id", sessionID))
		return false
	}
	if !wasPresent {
		h.refreshCount(ctx)
	}
	return wasPresent
}

// Publish records an activity and forwards it to every subscriber
func (h *Hub) Publish(activity models.LiveActivity) {
	data, err := EncodeOutbound(VisitorActivity{Activity: activity})
	if err != nil {
		h.logger.Error("Failed to encode visitor activity", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.ring.push(activity)
	h.broadcastLocked(data)
}

// Snapshot returns the live count and recent activity
func (h *Hub) Snapshot(ctx context.Context) models.LiveSnapshot {
	count, err := h.presence.Count(ctx)

	h.mu.Lock()
	defer h.mu.Unlock()

	if err != nil {
		h.logger.Warn("Failed to count presence window", zap.Error(err))
		count = h.count
	}
	return models.LiveSnapshot{Count: count, Recent: h.ring.snapshot()}
}

// Subscribers returns the number of subscribed clients
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.subscribersLocked()
}

// Serve handles one connection until it closes. It blocks.
func (h *Hub) Serve(ctx context.Context, transport Transport) {
	c := &client{
		id:        uuid.NewString(),
		transport: transport,
		send:      make(chan []byte, h.cfg.SubscriberBuffer),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.logger.Info("Dashboard client connected", zap.String("client_id", c.id))

	var writer sync.WaitGroup
	writer.Add(1)
	go func() {
		defer writer.Done()
		h.writeLoop(c)
	}()

	h.readLoop(ctx, c)

	h.mu.Lock()
	h.removeLocked(c)
	h.mu.Unlock()

	writer.Wait()
	h.logger.Info("Dashboard client disconnected", zap.String("client_id", c.id))
}

func (h *Hub) readLoop(ctx context.Context, c *client) {
	for {
		data, err := c.transport.Read()
		if err != nil {
			if !isClosed(err) {
				h.logger.Debug("Dashboard connection read failed", zap.Error(err), zap.String("client_id", c.id))
			}
			return
		}

		msg, err := DecodeInbound(data)
		if err != nil {
			h.logger.Debug("Ignoring malformed dashboard message", zap.Error(err), zap.String("client_id", c.id))
			h.sendTo(c, AnalyticsError{Message: err.Error()})
			continue
		}

		switch m := msg.(type) {
		case SubscribeToAnalytics:
			h.subscribe(c)
		case UnsubscribeFromAnalytics:
			h.unsubscribe(c)
		case RequestAnalyticsUpdate:
			h.requestUpdate(ctx, c, m.Query)
		}
	}
}

// writeLoop is the only writer of c.transport
func (h *Hub) writeLoop(c *client) {
	defer c.transport.Close()

	for data := range c.send {
		if err := c.transport.Write(data); err != nil {
			h.logger.Debug("Dashboard connection write failed", zap.Error(err), zap.String("client_id", c.id))
			h.mu.Lock()
			h.removeLocked(c)
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) subscribe(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c.closed {
		return
	}
	c.subscribed = true

	data, err := EncodeOutbound(Subscribed{Recent: h.ring.snapshot(), Count: h.count})
	if err != nil {
		h.logger.Error("Failed to encode subscription ack", zap.Error(err))
		return
	}
	h.enqueueLocked(c, data)
	h.metrics.SetSubscribers(h.subscribersLocked())
}

func (h *Hub) unsubscribe(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c.subscribed = false
	h.metrics.SetSubscribers(h.subscribersLocked())
}

// requestUpdate computes the aggregate off the read loop. Responses to
// overlapping requests may arrive in any order; each carries its period.
func (h *Hub) requestUpdate(ctx context.Context, c *client, q models.AnalyticsQuery) {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.wg.Add(1)
	h.mu.Unlock()

	go func() {
		defer h.wg.Done()

		reqCtx, cancel := context.WithTimeout(ctx, h.cfg.RequestTimeout)
		defer cancel()

		agg, err := h.aggregator.Comprehensive(reqCtx, q)
		if err != nil {
			h.logger.Warn("Failed to compute aggregate for dashboard",
				zap.Error(err),
				zap.String("client_id", c.id),
				zap.String("period", q.Period),
			)
			h.sendTo(c, AnalyticsError{Message: err.Error()})
			return
		}
		h.sendTo(c, AnalyticsUpdate{Aggregate: agg})
	}()
}

func (h *Hub) sendTo(c *client, msg Outbound) {
	data, err := EncodeOutbound(msg)
	if err != nil {
		h.logger.Error("Failed to encode message", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.enqueueLocked(c, data)
}

func (h *Hub) pruneLoop() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.cfg.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), h.cfg.PruneInterval)
			count, err := h.presence.Prune(ctx)
			cancel()
			if err != nil {
				h.logger.Warn("Failed to prune presence window", zap.Error(err))
				continue
			}
			h.setCount(count)
		case <-h.stopChan:
			return
		}
	}
}

func (h *Hub) refreshCount(ctx context.Context) {
	count, err := h.presence.Count(ctx)
	if err != nil {
		h.logger.Warn("Failed to count presence window", zap.Error(err))
		return
	}
	h.setCount(count)
}

// setCount broadcasts the live count when it changed
func (h *Hub) setCount(count int) {
	h.metrics.SetLiveVisitors(count)

	h.mu.Lock()
	defer h.mu.Unlock()

	if count == h.count {
		return
	}
	h.count = count

	data, err := EncodeOutbound(LiveVisitorCount{Count: count})
	if err != nil {
		h.logger.Error("Failed to encode live visitor count", zap.Error(err))
		return
	}
	h.broadcastLocked(data)
}

func (h *Hub) broadcastLocked(data []byte) {
	for c := range h.clients {
		if c.subscribed {
			h.enqueueLocked(c, data)
		}
	}
}

func (h *Hub) enqueueLocked(c *client, data []byte) {
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		h.logger.Warn("Dashboard client too slow, disconnecting", zap.String("client_id", c.id))
		h.metrics.IncSubscriberDrops()
		h.removeLocked(c)
		go c.transport.Close()
	}
}

// removeLocked closes the client's queue; its writer then closes the transport
func (h *Hub) removeLocked(c *client) {
	if c.closed {
		return
	}
	c.closed = true
	c.subscribed = false
	close(c.send)
	delete(h.clients, c)
	h.metrics.SetSubscribers(h.subscribersLocked())
}

func (h *Hub) subscribersLocked() int {
	n := 0
	for c := range h.clients {
		if c.subscribed {
			n++
		}
	}
	return n
}

func isClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}

// activityRing keeps the most recent activities, oldest first
type activityRing struct {
	items []models.LiveActivity
	start int
	size  int
}

func newActivityRing(capacity int) *activityRing {
	return &activityRing{items: make([]models.LiveActivity, capacity)}
}

func (r *activityRing) push(a models.LiveActivity) {
	if r.size < len(r.items) {
		r.items[(r.start+r.size)%len(r.items)] = a
		r.size++
		return
	}
	r.items[r.start] = a
	r.start = (r.start + 1) % len(r.items)
}

func (r *activityRing) snapshot() []models.LiveActivity {
	out := make([]models.LiveActivity, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.items[(r.start+i)%len(r.items)]
	}
	return out
}
