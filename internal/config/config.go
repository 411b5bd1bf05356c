package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from a YAML string like "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = dur
	return nil
}

// Probe methods.
const (
	PingMethodExec = "exec"
	PingMethodICMP = "icmp"
)

// Speed test methods.
const (
	SpeedMethodStream    = "stream"
	SpeedMethodSpeedtest = "speedtest"
)

// DefaultSpeedURL is a small fixed-size binary test file.
const DefaultSpeedURL = "https://github.com/hallipr/internetstats/raw/main/testdata/100.bin"

// LogConfig holds log file settings.
type LogConfig struct {
	Dir string `yaml:"dir"`
}

// PingConfig holds ping sweep settings.
type PingConfig struct {
	Interval     Duration `yaml:"interval"`
	Timeout      Duration `yaml:"timeout"`
	PayloadSize  int      `yaml:"payload_size"`
	DontFragment *bool    `yaml:"dont_fragment"`
	Method       string   `yaml:"method"`
}

// Payload returns the filler data sent with every echo request.
func (p PingConfig) Payload() []byte {
	return bytes.Repeat([]byte{'a'}, p.PayloadSize)
}

// DF reports whether fragmentation is disallowed.
func (p PingConfig) DF() bool {
	return p.DontFragment == nil || *p.DontFragment
}

// SpeedConfig holds speed test settings.
type SpeedConfig struct {
	Interval   Duration `yaml:"interval"`
	URL        string   `yaml:"url"`
	BufferSize int      `yaml:"buffer_size"`
	Timeout    Duration `yaml:"timeout"`
	Method     string   `yaml:"method"`
}

// WebhookConfig holds alert webhook settings.
type WebhookConfig struct {
	URL           string   `yaml:"url"`
	Cooldown      Duration `yaml:"cooldown"`
	RatePerMinute int      `yaml:"rate_per_minute"`
}

// AlertsConfig holds all alert configuration.
type AlertsConfig struct {
	Webhook WebhookConfig `yaml:"webhook"`
}

// ServerConfig holds HTTP server settings. An empty address disables the server.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// StorageConfig holds storage settings. An empty path disables history.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// RetentionConfig controls pruning of old log files and history rows.
type RetentionConfig struct {
	KeepDays int    `yaml:"keep_days"`
	Schedule string `yaml:"schedule"`
}

// Config is the root application configuration.
type Config struct {
	Hosts     []string        `yaml:"hosts"`
	Log       LogConfig       `yaml:"log"`
	Ping      PingConfig      `yaml:"ping"`
	Speed     SpeedConfig     `yaml:"speed"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Retention RetentionConfig `yaml:"retention"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads, parses, and validates the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse parses and validates YAML config data.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if len(c.Hosts) == 0 {
		c.Hosts = []string{"google.com", "microsoft.com", "cloudflare.com"}
	}
	if c.Log.Dir == "" {
		c.Log.Dir = "."
	}

	if c.Ping.Interval.Duration == 0 {
		c.Ping.Interval = Duration{5 * time.Second}
	}
	if c.Ping.Timeout.Duration == 0 {
		c.Ping.Timeout = Duration{time.Second}
	}
	if c.Ping.PayloadSize == 0 {
		c.Ping.PayloadSize = 32
	}
	if c.Ping.Method == "" {
		c.Ping.Method = PingMethodExec
	}

	if c.Speed.Interval.Duration == 0 {
		c.Speed.Interval = Duration{30 * time.Minute}
	}
	if c.Speed.URL == "" {
		c.Speed.URL = DefaultSpeedURL
	}
	if c.Speed.BufferSize == 0 {
		c.Speed.BufferSize = 10 * 1024
	}
	if c.Speed.Timeout.Duration == 0 {
		c.Speed.Timeout = Duration{5 * time.Minute}
	}
	if c.Speed.Method == "" {
		c.Speed.Method = SpeedMethodStream
	}

	if c.Alerts.Webhook.Cooldown.Duration == 0 {
		c.Alerts.Webhook.Cooldown = Duration{5 * time.Minute}
	}
	if c.Alerts.Webhook.RatePerMinute == 0 {
		c.Alerts.Webhook.RatePerMinute = 30
	}

	if c.Retention.Schedule == "" {
		c.Retention.Schedule = "@daily"
	}
}

// Validate checks field values after defaults have been applied.
func (c *Config) Validate() error {
	for i, h := range c.Hosts {
		if h == "" {
			return fmt.Errorf("hosts[%d]: hostname is required", i)
		}
	}
	if c.Ping.Interval.Duration < 0 {
		return fmt.Errorf("ping.interval must be positive")
	}
	if c.Ping.Timeout.Duration < 0 {
		return fmt.Errorf("ping.timeout must be positive")
	}
	if c.Ping.PayloadSize < 0 || c.Ping.PayloadSize > 65500 {
		return fmt.Errorf("ping.payload_size %d out of range (0-65500)", c.Ping.PayloadSize)
	}
	switch c.Ping.Method {
	case PingMethodExec, PingMethodICMP:
	default:
		return fmt.Errorf("ping.method: invalid method %q (must be exec or icmp)", c.Ping.Method)
	}

	if c.Speed.Interval.Duration < 0 {
		return fmt.Errorf("speed.interval must be positive")
	}
	if c.Speed.BufferSize < 0 {
		return fmt.Errorf("speed.buffer_size must be positive")
	}
	switch c.Speed.Method {
	case SpeedMethodStream, SpeedMethodSpeedtest:
	default:
		return fmt.Errorf("speed.method: invalid method %q (must be stream or speedtest)", c.Speed.Method)
	}

	if c.Retention.KeepDays < 0 {
		return fmt.Errorf("retention.keep_days must not be negative")
	}
	return nil
}
