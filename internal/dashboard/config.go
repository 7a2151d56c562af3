package dashboard

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"Mansoor88-6/site-analytics/internal/models"
)

var (
	ErrEmptyURL        = errors.New("dashboard: URL cannot be empty")
	ErrInvalidDelay    = errors.New("dashboard: delays must be positive and max delay must not be below base delay")
	ErrInvalidInterval = errors.New("dashboard: poll interval must be positive")
)

// RecentLimit is how many live activities the dashboard keeps
const RecentLimit = 50

// Config holds the dashboard client configuration
type Config struct {
	// URL is the websocket endpoint, e.g. ws://localhost:8080/analytics/ws
	URL string

	// Token is the dashboard token, sent as a query parameter on the
	// websocket handshake
	Token string

	// Query selects the aggregate window
	Query models.AnalyticsQuery

	// BaseDelay and MaxDelay bound the reconnect backoff
	BaseDelay time.Duration
	MaxDelay  time.Duration

	// JitterFactor spreads reconnect attempts, 0 to 1
	JitterFactor float64

	// PollInterval is how often the REST fallback polls while disconnected
	PollInterval time.Duration

	RecentLimit int
}

// DefaultConfig returns a configuration for the server at baseURL
func DefaultConfig(baseURL string) Config {
	return Config{
		URL:          WebSocketURL(baseURL),
		BaseDelay:    time.Second,
		MaxDelay:     30 * time.Second,
		JitterFactor: 0.5,
		PollInterval: 30 * time.Second,
		RecentLimit:  RecentLimit,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if strings.TrimSpace(c.URL) == "" {
		return ErrEmptyURL
	}
	if c.BaseDelay <= 0 || c.MaxDelay < c.BaseDelay {
		return ErrInvalidDelay
	}
	if c.PollInterval <= 0 {
		return ErrInvalidInterval
	}
	if c.JitterFactor < 0 || c.JitterFactor > 1 {
		return fmt.Errorf("dashboard: jitter factor %v out of range", c.JitterFactor)
	}
	return nil
}

// WebSocketURL derives the websocket endpoint from the server root
func WebSocketURL(baseURL string) string {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Host == "" {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path += "/analytics/ws"
	return u.String()
}
