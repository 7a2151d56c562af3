package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the analytics server configuration.
// Values come from a YAML file and can be overridden through the environment.
type Config struct {
	Env       string          `yaml:"env" env:"ANALYTICS_ENV" env-default:"local"`
	Log       LogConfig       `yaml:"log"`
	HTTP      HTTPConfig      `yaml:"http"`
	Storage   StorageConfig   `yaml:"storage"`
	Spool     SpoolConfig     `yaml:"spool"`
	Realtime  RealtimeConfig  `yaml:"realtime"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Dashboard DashboardConfig `yaml:"dashboard"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

type HTTPConfig struct {
	Address        string        `yaml:"address" env:"HTTP_ADDRESS" env-default:":8080"`
	ReadTimeout    time.Duration `yaml:"read_timeout" env:"HTTP_READ_TIMEOUT" env-default:"15s"`
	WriteTimeout   time.Duration `yaml:"write_timeout" env:"HTTP_WRITE_TIMEOUT" env-default:"15s"`
	IdleTimeout    time.Duration `yaml:"idle_timeout" env:"HTTP_IDLE_TIMEOUT" env-default:"60s"`
	AllowedOrigins []string      `yaml:"allowed_origins" env:"HTTP_ALLOWED_ORIGINS" env-default:"*"`
}

type StorageConfig struct {
	Driver     string           `yaml:"driver" env:"STORAGE_DRIVER" env-default:"sqlite"`
	SQLitePath string           `yaml:"sqlite_path" env:"STORAGE_SQLITE_PATH" env-default:"analytics.db"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

type ClickHouseConfig struct {
	Addr          []string      `yaml:"addr" env:"CLICKHOUSE_ADDR" env-default:"localhost:9000"`
	Database      string        `yaml:"database" env:"CLICKHOUSE_DATABASE" env-default:"analytics"`
	Username      string        `yaml:"username" env:"CLICKHOUSE_USERNAME" env-default:"default"`
	Password      string        `yaml:"password" env:"CLICKHOUSE_PASSWORD"`
	DialTimeout   time.Duration `yaml:"dial_timeout" env:"CLICKHOUSE_DIAL_TIMEOUT" env-default:"5s"`
	BatchSize     int           `yaml:"batch_size" env:"CLICKHOUSE_BATCH_SIZE" env-default:"100"`
	FlushInterval time.Duration `yaml:"flush_interval" env:"CLICKHOUSE_FLUSH_INTERVAL" env-default:"2s"`
}

type SpoolConfig struct {
	Disabled      bool          `yaml:"disabled" env:"SPOOL_DISABLED"`
	Path          string        `yaml:"path" env:"SPOOL_PATH" env-default:"spool.db"`
	RetryInterval time.Duration `yaml:"retry_interval" env:"SPOOL_RETRY_INTERVAL" env-default:"60s"`
	MaxAge        time.Duration `yaml:"max_age" env:"SPOOL_MAX_AGE" env-default:"168h"`
}

type RealtimeConfig struct {
	ActivityBuffer   int           `yaml:"activity_buffer" env:"REALTIME_ACTIVITY_BUFFER" env-default:"50"`
	SubscriberBuffer int           `yaml:"subscriber_buffer" env:"REALTIME_SUBSCRIBER_BUFFER" env-default:"64"`
	LiveWindow       time.Duration `yaml:"live_window" env:"REALTIME_LIVE_WINDOW" env-default:"5m"`
	PruneInterval    time.Duration `yaml:"prune_interval" env:"REALTIME_PRUNE_INTERVAL" env-default:"15s"`
	Presence         string        `yaml:"presence" env:"REALTIME_PRESENCE" env-default:"memory"`
	RedisURL         string        `yaml:"redis_url" env:"REALTIME_REDIS_URL" env-default:"redis://localhost:6379/0"`
	RedisKey         string        `yaml:"redis_key" env:"REALTIME_REDIS_KEY" env-default:"analytics:live_sessions"`
}

type AnalyticsConfig struct {
	DefaultPeriod      string        `yaml:"default_period" env:"ANALYTICS_DEFAULT_PERIOD" env-default:"last_30_days"`
	Timezone           string        `yaml:"timezone" env:"ANALYTICS_TIMEZONE" env-default:"UTC"`
	SessionTimeout     time.Duration `yaml:"session_timeout" env:"ANALYTICS_SESSION_TIMEOUT" env-default:"30m"`
	TopPagesLimit      int           `yaml:"top_pages_limit" env:"ANALYTICS_TOP_PAGES_LIMIT" env-default:"10"`
	ProjectPathPrefix  string        `yaml:"project_path_prefix" env:"ANALYTICS_PROJECT_PATH_PREFIX" env-default:"/projects/"`
	CVDownloadElements []string      `yaml:"cv_download_elements" env:"ANALYTICS_CV_DOWNLOAD_ELEMENTS" env-default:"cv,resume"`
	SiteHosts          []string      `yaml:"site_hosts" env:"ANALYTICS_SITE_HOSTS"`
	SearchEngines      []string      `yaml:"search_engines" env:"ANALYTICS_SEARCH_ENGINES" env-default:"google,bing,yahoo,duckduckgo,baidu,yandex,ecosia,qwant,startpage"`
	SocialNetworks     []string      `yaml:"social_networks" env:"ANALYTICS_SOCIAL_NETWORKS" env-default:"facebook,twitter,x,t,linkedin,lnkd,instagram,reddit,youtube,pinterest,tiktok,mastodon,threads"`
	UACacheSize        int           `yaml:"ua_cache_size" env:"ANALYTICS_UA_CACHE_SIZE" env-default:"1024"`
	RequestTimeout     time.Duration `yaml:"request_timeout" env:"ANALYTICS_REQUEST_TIMEOUT" env-default:"10s"`
}

type DashboardConfig struct {
	Token string `yaml:"token" env:"DASHBOARD_TOKEN"`
}

// Storage drivers and presence backends
const (
	DriverSQLite     = "sqlite"
	DriverClickHouse = "clickhouse"

	PresenceMemory = "memory"
	PresenceRedis  = "redis"
)

var validPeriods = map[string]bool{
	"today": true, "yesterday": true, "last_7_days": true, "last_30_days": true,
	"last_90_days": true, "this_month": true, "last_month": true, "this_year": true,
}

// LoadConfig reads the YAML file at path and applies environment overrides.
// A missing file is not an error: defaults and environment are used instead.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to read config from environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that cleanenv cannot
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverSQLite, DriverClickHouse:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	switch c.Realtime.Presence {
	case PresenceMemory, PresenceRedis:
	default:
		return fmt.Errorf("unknown presence backend %q", c.Realtime.Presence)
	}

	if !validPeriods[c.Analytics.DefaultPeriod] {
		return fmt.Errorf("unknown default period %q", c.Analytics.DefaultPeriod)
	}

	if _, err := time.LoadLocation(c.Analytics.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Analytics.Timezone, err)
	}

	if c.Realtime.LiveWindow <= 0 || c.Realtime.PruneInterval <= 0 {
		return errors.New("realtime live_window and prune_interval must be positive")
	}
	if c.Realtime.ActivityBuffer <= 0 || c.Realtime.SubscriberBuffer <= 0 {
		return errors.New("realtime buffers must be positive")
	}
	if c.Analytics.SessionTimeout <= 0 {
		return errors.New("analytics session_timeout must be positive")
	}

	return nil
}

// Location returns the configured reporting time zone
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Analytics.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
