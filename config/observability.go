package config

import (
	"log/slog"
	"strings"
	"time"
)

const defaultNotifierName = "namescreen"

// ObservabilityConfig groups logging, metrics and failure notification configuration.
type ObservabilityConfig struct {
	Metrics       ObservabilityMetricsConfig
	Notifications NotificationsConfig `envPrefix:"NOTIFY_"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Sanitize applies guardrails to observability sub-configs.
func (c *ObservabilityConfig) Sanitize() {
	c.Metrics.Sanitize()
	c.Notifications.Sanitize()
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c *ObservabilityConfig) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ObservabilityMetricsConfig controls emission of metrics to StatsD.
type ObservabilityMetricsConfig struct {
	Enabled       bool   `env:"METRICS_ENABLED" envDefault:"false"`
	StatsdAddress string `env:"STATSD_ADDRESS"  envDefault:"127.0.0.1:8125"`
	Prefix        string `env:"METRICS_PREFIX"  envDefault:"namescreen"`
}

// Sanitize normalises derived fields and enforces safe defaults.
func (c *ObservabilityMetricsConfig) Sanitize() {
	c.StatsdAddress = strings.TrimSpace(c.StatsdAddress)
	if c.StatsdAddress == "" {
		c.Enabled = false
	}
	c.Prefix = strings.Trim(strings.TrimSpace(c.Prefix), ".")
}

// IsEnabled returns true when metrics emission is active after sanitisation.
func (c *ObservabilityMetricsConfig) IsEnabled() bool {
	return c.Enabled && c.StatsdAddress != ""
}

// NotificationsConfig controls alerts sent when a screening job fails.
type NotificationsConfig struct {
	Enabled    bool                        `env:"ENABLED"     envDefault:"false"`
	Timeout    time.Duration               `env:"TIMEOUT"     envDefault:"5s"`
	RetryLimit int                         `env:"RETRY_LIMIT" envDefault:"3"`
	Slack      SlackNotificationConfig     `                  envPrefix:"SLACK_"`
	PagerDuty  PagerDutyNotificationConfig `                  envPrefix:"PAGERDUTY_"`
}

// Sanitize disables sinks that are missing their credentials.
func (c *NotificationsConfig) Sanitize() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	c.RetryLimit = max(c.RetryLimit, 0)

	c.Slack.WebhookURL = strings.TrimSpace(c.Slack.WebhookURL)
	c.Slack.Channel = strings.TrimSpace(c.Slack.Channel)
	if c.Slack.Username = strings.TrimSpace(c.Slack.Username); c.Slack.Username == "" {
		c.Slack.Username = defaultNotifierName
	}
	c.PagerDuty.RoutingKey = strings.TrimSpace(c.PagerDuty.RoutingKey)
	if c.PagerDuty.Source = strings.TrimSpace(c.PagerDuty.Source); c.PagerDuty.Source == "" {
		c.PagerDuty.Source = defaultNotifierName
	}

	if !c.Enabled {
		c.Slack.Enabled = false
		c.PagerDuty.Enabled = false
		return
	}
	if c.Slack.WebhookURL == "" {
		c.Slack.Enabled = false
	}
	if c.PagerDuty.RoutingKey == "" {
		c.PagerDuty.Enabled = false
	}
}

// SlackNotificationConfig controls the Slack webhook sink.
type SlackNotificationConfig struct {
	Enabled    bool   `env:"ENABLED"     envDefault:"false"`
	WebhookURL string `env:"WEBHOOK_URL"`
	Channel    string `env:"CHANNEL"`
	Username   string `env:"USERNAME"    envDefault:"namescreen"`
}

// PagerDutyNotificationConfig controls the PagerDuty Events API v2 sink.
type PagerDutyNotificationConfig struct {
	Enabled    bool   `env:"ENABLED"     envDefault:"false"`
	RoutingKey string `env:"ROUTING_KEY"`
	Source     string `env:"SOURCE"      envDefault:"namescreen"`
}
