package config

import (
	"strings"
	"time"
)

const (
	defaultMaxRows      = 50000
	defaultWatchlistKey = "sanctions-data/latest.jsonl"
)

// ScreeningConfig controls one screening pass.
type ScreeningConfig struct {
	// MaxRows is the per-job row ceiling; rows beyond it are not processed.
	MaxRows int `env:"MAX_ROWS" envDefault:"50000"`

	// TTLDays sets the retention of job items. 0 disables retention.
	TTLDays int `env:"TTL_DAYS" envDefault:"0"`

	// DefaultCountry applies to work items without a country.
	DefaultCountry string `env:"DEFAULT_COUNTRY" envDefault:"NZ"`

	// MatchStrategy selects the similarity scorer: fuzzy or basic.
	MatchStrategy string `env:"MATCH_STRATEGY" envDefault:"fuzzy"`

	// WatchlistBucket overrides the bucket of the work item for the snapshot.
	WatchlistBucket string `env:"WATCHLIST_BUCKET"`

	// WatchlistKey is the object key of the NDJSON watchlist snapshot.
	WatchlistKey string `env:"WATCHLIST_KEY" envDefault:"sanctions-data/latest.jsonl"`

	// WatchlistNamePath is a JMESPath expression selecting the name of a
	// snapshot line. Empty reads the top-level "name" field.
	WatchlistNamePath string `env:"WATCHLIST_NAME_PATH"`
}

// Sanitize applies guardrails to screening configuration values.
func (c *ScreeningConfig) Sanitize() {
	if c.MaxRows < 1 {
		c.MaxRows = defaultMaxRows
	}
	if c.TTLDays < 0 {
		c.TTLDays = 0
	}
	c.DefaultCountry = strings.TrimSpace(c.DefaultCountry)
	if c.DefaultCountry == "" {
		c.DefaultCountry = "NZ"
	}
	c.MatchStrategy = strings.ToLower(strings.TrimSpace(c.MatchStrategy))
	c.WatchlistBucket = strings.TrimSpace(c.WatchlistBucket)
	c.WatchlistKey = strings.TrimSpace(c.WatchlistKey)
	if c.WatchlistKey == "" {
		c.WatchlistKey = defaultWatchlistKey
	}
}

// Retention returns how long job items are kept, or 0 when retention is off.
func (c *ScreeningConfig) Retention() time.Duration {
	return time.Duration(c.TTLDays) * 24 * time.Hour
}
