// Package dashboard is the operator-side consumer of the real-time channel.
// It keeps the latest aggregate, the live visitor count and the most recent
// activity, and polls the REST API while the websocket is down.
package dashboard

import (
	"context"
	"errors"
	"math/rand"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"Mansoor88-6/site-analytics/internal/auth"
	"Mansoor88-6/site-analytics/internal/models"
	"Mansoor88-6/site-analytics/internal/realtime"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Poller is the REST fallback
type Poller interface {
	Comprehensive(ctx context.Context, q models.AnalyticsQuery) (*models.AnalyticsAggregate, error)
	Live(ctx context.Context) (*models.LiveSnapshot, error)
}

// State is what the dashboard shows. Recent is newest first.
type State struct {
	Connected bool
	Aggregate *models.AnalyticsAggregate
	LiveCount int
	Recent    []models.LiveActivity
	LastError string
	UpdatedAt time.Time
}

// Client keeps dashboard state current over the websocket and falls back to
// REST polling, reconnecting with exponential backoff and jitter
type Client struct {
	config   Config
	poller   Poller
	onChange func(State)
	logger   *zap.Logger

	mu          sync.Mutex
	rng         *rand.Rand // protected by mu
	conn        *websocket.Conn
	isConnected bool
	state       State

	// reconnectCount tracks consecutive reconnection attempts (atomic)
	reconnectCount int64
}

// NewClient creates a dashboard client. onChange may be nil.
func NewClient(config Config, poller Poller, onChange func(State), logger *zap.Logger) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.RecentLimit <= 0 {
		config.RecentLimit = RecentLimit
	}
	return &Client{
		config:   config,
		poller:   poller,
		onChange: onChange,
		logger:   logger,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Run keeps the client connected until ctx is cancelled
func (c *Client) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			c.close()
			return ctx.Err()
		default:
		}

		if err := c.connect(ctx); err != nil {
			attempt := atomic.AddInt64(&c.reconnectCount, 1)
			c.logger.Warn("Dashboard connection failed, polling REST API",
				zap.Error(err),
				zap.Int64("attempt", attempt),
			)

			if err := c.pollUntil(ctx, c.computeBackoff()); err != nil {
				return err
			}
			continue
		}

		atomic.StoreInt64(&c.reconnectCount, 0)
		c.readLoop(ctx)

		if ctx.Err() == nil {
			c.Poll(ctx)
		}
	}
}

// State returns a copy of the current dashboard state
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// IsConnected returns whether the websocket is up
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isConnected
}

// RequestUpdate asks the server for a fresh aggregate over the websocket, or
// polls when disconnected
func (c *Client) RequestUpdate(ctx context.Context) error {
	if c.IsConnected() {
		return c.send(realtime.RequestAnalyticsUpdate{Query: c.config.Query})
	}
	c.Poll(ctx)
	return nil
}

// Poll fetches the aggregate and the live snapshot over REST
func (c *Client) Poll(ctx context.Context) {
	agg, err := c.poller.Comprehensive(ctx, c.config.Query)
	if err != nil {
		c.logger.Warn("Failed to poll analytics", zap.Error(err))
		c.update(func(s *State) { s.LastError = err.Error() })
		return
	}

	snapshot, err := c.poller.Live(ctx)
	if err != nil {
		c.logger.Debug("Failed to poll live snapshot", zap.Error(err))
	}

	c.update(func(s *State) {
		s.Aggregate = agg
		s.LastError = ""
		if snapshot != nil {
			s.LiveCount = snapshot.Count
			s.Recent = newestFirst(snapshot.Recent, c.config.RecentLimit)
		}
	})
}

func (c *Client) pollUntil(ctx context.Context, delay time.Duration) error {
	c.Poll(ctx)

	deadline := time.NewTimer(delay)
	defer deadline.Stop()
	ticker := time.NewTicker(c.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return nil
		case <-ticker.C:
			c.Poll(ctx)
		}
	}
}

func (c *Client) connect(ctx context.Context) error {
	target, err := c.dialURL()
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.isConnected = true
	c.mu.Unlock()

	if err := c.send(realtime.SubscribeToAnalytics{}); err != nil {
		c.close()
		return err
	}
	if err := c.send(realtime.RequestAnalyticsUpdate{Query: c.config.Query}); err != nil {
		c.close()
		return err
	}

	c.update(func(s *State) { s.Connected = true })
	c.logger.Info("Dashboard connected", zap.String("url", c.config.URL))
	return nil
}

func (c *Client) dialURL() (string, error) {
	if c.config.Token == "" {
		return c.config.URL, nil
	}
	u, err := url.Parse(c.config.URL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(auth.TokenQueryParam, c.config.Token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) readLoop(ctx context.Context) {
	stop := context.AfterFunc(ctx, c.close)
	defer stop()

	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		_, payload, err := conn.ReadMessage()
		if err != nil {
			c.logger.Warn("Dashboard connection closed", zap.Error(err))
			c.close()
			return
		}

		msg, err := realtime.DecodeOutbound(payload)
		if err != nil {
			c.logger.Debug("Ignoring undecodable message", zap.Error(err))
			continue
		}
		c.apply(msg)
	}
}

func (c *Client) apply(msg realtime.Outbound) {
	switch m := msg.(type) {
	case realtime.Subscribed:
		c.update(func(s *State) {
			s.LiveCount = m.Count
			s.Recent = newestFirst(m.Recent, c.config.RecentLimit)
		})
	case realtime.AnalyticsUpdate:
		c.update(func(s *State) {
			s.Aggregate = m.Aggregate
			s.LastError = ""
		})
	case realtime.VisitorActivity:
		c.update(func(s *State) {
			s.Recent = prepend(s.Recent, m.Activity, c.config.RecentLimit)
		})
	case realtime.LiveVisitorCount:
		c.update(func(s *State) { s.LiveCount = m.Count })
	case realtime.AnalyticsError:
		c.logger.Warn("Server failed to compute analytics", zap.String("message", m.Message))
		c.update(func(s *State) { s.LastError = m.Message })
	}
}

func (c *Client) send(msg realtime.Inbound) error {
	data, err := realtime.EncodeInbound(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return errors.New("dashboard: not connected")
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) close() {
	c.mu.Lock()
	wasConnected := c.isConnected
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.isConnected = false
	c.state.Connected = false
	state := c.snapshotLocked()
	c.mu.Unlock()

	if wasConnected && c.onChange != nil {
		c.onChange(state)
	}
}

func (c *Client) update(fn func(*State)) {
	c.mu.Lock()
	fn(&c.state)
	c.state.UpdatedAt = time.Now()
	state := c.snapshotLocked()
	c.mu.Unlock()

	if c.onChange != nil {
		c.onChange(state)
	}
}

func (c *Client) snapshotLocked() State {
	s := c.state
	s.Recent = append([]models.LiveActivity(nil), c.state.Recent...)
	return s
}

// computeBackoff calculates the next reconnection delay with exponential backoff and jitter.
func (c *Client) computeBackoff() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Cap the shift at 30 to prevent overflow
	shift := uint(atomic.LoadInt64(&c.reconnectCount))
	if shift > 0 {
		shift--
	}
	if shift > 30 {
		shift = 30
	}
	backoff := float64(c.config.BaseDelay) * float64(uint64(1)<<shift)

	if backoff > float64(c.config.MaxDelay) {
		backoff = float64(c.config.MaxDelay)
	}

	// Range of [delay*(1-jitter/2), delay*(1+jitter/2)]
	if c.config.JitterFactor > 0 {
		jitter := (c.rng.Float64() - 0.5) * c.config.JitterFactor
		backoff = backoff * (1 + jitter)
	}

	return time.Duration(backoff)
}

// prepend adds a to the front of recent and caps the length at limit
func prepend(recent []models.LiveActivity, a models.LiveActivity, limit int) []models.LiveActivity {
	out := make([]models.LiveActivity, 0, min(len(recent)+1, limit))
	out = append(out, a)
	for _, r := range recent {
		if len(out) == limit {
			break
		}
		out = append(out, r)
	}
	return out
}

// newestFirst reverses an oldest-first list and keeps the newest limit items
func newestFirst(oldestFirst []models.LiveActivity, limit int) []models.LiveActivity {
	out := make([]models.LiveActivity, 0, min(len(oldestFirst), limit))
	for i := len(oldestFirst) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, oldestFirst[i])
	}
	return out
}
