// Package config provides configuration for the gazepatch daemon.
package config

import (
	"os"
	"strconv"
	"time"
)

// Default configuration values.
const (
	DefaultHTTPPort      = "8000"
	DefaultMQTTBroker    = "tcp://127.0.0.1:1883"
	DefaultMQTTTopic     = "gazepatch/stream"
	DefaultGenServiceURL = "http://127.0.0.1:8001"
	DefaultDBPath        = "gazepatch.db"
)

// Config holds all configuration for the gazepatch daemon.
// Flag parsing is done in cmd/gazepatchd/main.go; this struct is data only.
type Config struct {
	// Debug enables verbose debug logging.
	Debug bool

	// HTTPPort is the port the dashboard/API server listens on.
	HTTPPort string

	// Feed selects the sample source: "sim", "mqtt" or "ws".
	Feed string

	// MQTT feed settings.
	MQTTBroker string
	MQTTTopic  string

	// WSURL is the websocket relay endpoint for the "ws" feed.
	WSURL string

	// GenServiceURL is the base URL of the image generation service.
	GenServiceURL string

	// DBPath is the SQLite file for calibration state and the event log.
	DBPath string

	// BaseImagePath is the initial stimulus image shown to the viewer.
	BaseImagePath string

	// ConfidenceThreshold marks gaze samples below it as invalid.
	ConfidenceThreshold float64

	// FixationDwell is how long gaze must stay inside one sector
	// before a modification is requested for the opposite sector.
	FixationDwell time.Duration

	// Blink hysteresis tuning.
	BlinkCloseBelow float64
	BlinkOpenAbove  float64
	BlinkHold       time.Duration

	// Simulated feed tuning.
	SimHz            float64
	SimBlinkInterval time.Duration

	// TelemetryHistory bounds the in-memory telemetry ring.
	TelemetryHistory int
}

// DefaultConfig returns sensible defaults for a local bench setup.
func DefaultConfig() Config {
	return Config{
		HTTPPort:            DefaultHTTPPort,
		Feed:                "sim",
		MQTTBroker:          DefaultMQTTBroker,
		MQTTTopic:           DefaultMQTTTopic,
		GenServiceURL:       DefaultGenServiceURL,
		DBPath:              DefaultDBPath,
		ConfidenceThreshold: 0.6,
		FixationDwell:       1500 * time.Millisecond,
		BlinkCloseBelow:     0.35,
		BlinkOpenAbove:      0.55,
		BlinkHold:           120 * time.Millisecond,
		SimHz:               120,
		SimBlinkInterval:    2 * time.Second,
		TelemetryHistory:    1024,
	}
}

// LoadEnv loads configuration values from environment variables.
// Call this after flag parsing to apply environment overrides.
func (c *Config) LoadEnv() {
	if v := os.Getenv("GAZEPATCH_MQTT_BROKER"); v != "" {
		c.MQTTBroker = v
	}
	if v := os.Getenv("GAZEPATCH_MQTT_TOPIC"); v != "" {
		c.MQTTTopic = v
	}
	if v := os.Getenv("GAZEPATCH_WS_URL"); v != "" {
		c.WSURL = v
	}
	if v := os.Getenv("GAZEPATCH_GEN_URL"); v != "" {
		c.GenServiceURL = v
	}
	if v := os.Getenv("GAZEPATCH_DB"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("GAZEPATCH_BASE_IMAGE"); v != "" {
		c.BaseImagePath = v
	}
	if v := os.Getenv("GAZEPATCH_CONFIDENCE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.ConfidenceThreshold = f
		}
	}
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	switch c.Feed {
	case "sim", "mqtt", "ws":
	default:
		return &ConfigError{Field: "Feed", Message: "feed must be one of: sim, mqtt, ws"}
	}
	if c.Feed == "ws" && c.WSURL == "" {
		return &ConfigError{Field: "WSURL", Message: "ws feed requires --ws-url or GAZEPATCH_WS_URL"}
	}
	if c.BlinkOpenAbove <= c.BlinkCloseBelow {
		return &ConfigError{Field: "BlinkOpenAbove", Message: "blink open threshold must be greater than close threshold"}
	}
	if c.FixationDwell <= 0 {
		return &ConfigError{Field: "FixationDwell", Message: "fixation dwell must be positive"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}
