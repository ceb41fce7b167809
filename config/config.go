package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Market selects the upstream flavour: "spot" or "futures".
	Market  string   `yaml:"market"`
	Symbols []string `yaml:"symbols"`

	Binance struct {
		SpotStreamEndpoint    string `yaml:"spot_stream_endpoint"`
		FuturesStreamEndpoint string `yaml:"futures_stream_endpoint"`
	} `yaml:"binance"`

	Book struct {
		SnapshotDepth       int           `yaml:"snapshot_depth"`
		DiffBufferLimit     int           `yaml:"diff_buffer_limit"`
		SubscriberQueueSize int           `yaml:"subscriber_queue_size"`
		MaxResyncAttempts   int           `yaml:"max_resync_attempts"`
		BackoffMin          time.Duration `yaml:"backoff_min"`
		BackoffMax          time.Duration `yaml:"backoff_max"`
	} `yaml:"book"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`

	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`
}

func defaultConfig() *Config {
	c := &Config{}
	c.Market = "spot"
	c.Symbols = []string{"btc_usdt"}
	c.Binance.SpotStreamEndpoint = "wss://stream.binance.com:9443/stream"
	c.Binance.FuturesStreamEndpoint = "wss://fstream.binance.com/stream"
	c.Book.SnapshotDepth = 1000
	c.Book.DiffBufferLimit = 1000
	c.Book.SubscriberQueueSize = 256
	c.Book.MaxResyncAttempts = 5
	c.Book.BackoffMin = 500 * time.Millisecond
	c.Book.BackoffMax = 30 * time.Second
	c.Logging.Level = "info"
	c.Metrics.Addr = ":8080"
	return c
}

// Load builds the configuration from defaults, an optional yaml file named
// by DEPTHBRIDGE_CONFIG, and env overrides, in that order.
func Load() *Config {
	c := defaultConfig()

	if path := os.Getenv("DEPTHBRIDGE_CONFIG"); path != "" {
		if b, err := os.ReadFile(path); err == nil {
			_ = yaml.Unmarshal(b, c)
		}
	}

	if v := os.Getenv("DEPTHBRIDGE_MARKET"); v != "" {
		c.Market = v
	}
	if v := os.Getenv("DEPTHBRIDGE_SYMBOLS"); v != "" {
		c.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("DEPTHBRIDGE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("DEPTHBRIDGE_METRICS_ADDR"); v != "" {
		c.Metrics.Addr = v
	}
	if v := os.Getenv("DEPTHBRIDGE_MAX_RESYNC_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Book.MaxResyncAttempts = n
		}
	}

	return c
}
