// Package config loads Robin's YAML configuration with environment
// variable fallbacks for secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	// Reasoning engine
	Provider string `yaml:"provider"` // openai, gemini
	Model    string `yaml:"model"`
	MaxTurns int    `yaml:"max_turns"`

	// API keys (environment fallback: OPENAI_API_KEY, GOOGLE_API_KEY)
	OpenAIKey string `yaml:"openai_key"`
	GoogleKey string `yaml:"google_key"`

	// Tor transport
	Tor TorConfig `yaml:"tor"`

	// Search engine roster override. Each entry is "Name|URLTemplate"
	// with a %s query placeholder. Empty means the built-in roster.
	Engines []string `yaml:"engines"`

	// Fan-out concurrency
	SearchConcurrency  int `yaml:"search_concurrency"`
	ScrapeConcurrency  int `yaml:"scrape_concurrency"`
	AnalystConcurrency int `yaml:"analyst_concurrency"`

	// ReportDir is where save_report writes markdown reports.
	ReportDir string `yaml:"report_dir"`

	// Store selects the investigation record backend.
	Store StoreConfig `yaml:"store"`

	// Monitor holds recurring investigation schedules.
	Monitor MonitorConfig `yaml:"monitor"`

	// Observability
	Observability ObservabilityConfig `yaml:"observability"`
}

// TorConfig holds SOCKS proxy settings for onion access.
type TorConfig struct {
	ProxyAddr      string   `yaml:"proxy_addr"`
	Timeout        Duration `yaml:"timeout"`
	RequestsPerSec float64  `yaml:"requests_per_sec"`
}

// StoreConfig selects and configures the record backend.
type StoreConfig struct {
	Backend string      `yaml:"backend"` // file, redis
	FileDir string      `yaml:"file_dir"`
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string   `yaml:"addr"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`
	TTL      Duration `yaml:"ttl"`
}

// MonitorConfig holds scheduled investigation jobs.
type MonitorConfig struct {
	Jobs []MonitorJob `yaml:"jobs"`
}

// MonitorJob is one recurring investigation.
type MonitorJob struct {
	Name     string `yaml:"name"`
	Schedule string `yaml:"schedule"` // cron expression
	Query    string `yaml:"query"`
}

// ObservabilityConfig holds metrics and tracing settings.
type ObservabilityConfig struct {
	Port          int    `yaml:"port"`
	TraceExporter string `yaml:"trace_exporter"` // none, otlp, stdout
	OTLPEndpoint  string `yaml:"otlp_endpoint"`
}

// Load reads configuration from a YAML file and applies defaults.
// An empty path returns a default configuration.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 - path supplied by operator
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyDefaults()

	// Load API keys from environment if not in config
	if cfg.OpenAIKey == "" {
		cfg.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.GoogleKey == "" {
		cfg.GoogleKey = os.Getenv("GOOGLE_API_KEY")
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Provider == "" {
		c.Provider = "openai"
	}
	if c.MaxTurns == 0 {
		c.MaxTurns = 15
	}
	if c.Tor.ProxyAddr == "" {
		c.Tor.ProxyAddr = "127.0.0.1:9050"
	}
	if c.Tor.Timeout == 0 {
		c.Tor.Timeout = Duration(60 * time.Second)
	}
	if c.Tor.RequestsPerSec == 0 {
		c.Tor.RequestsPerSec = 2
	}
	if c.SearchConcurrency == 0 {
		c.SearchConcurrency = 5
	}
	if c.ScrapeConcurrency == 0 {
		c.ScrapeConcurrency = 5
	}
	if c.AnalystConcurrency == 0 {
		c.AnalystConcurrency = 4
	}
	if c.ReportDir == "" {
		c.ReportDir = "."
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "file"
	}
	if c.Observability.Port == 0 {
		c.Observability.Port = 9091
	}
	if c.Observability.TraceExporter == "" {
		c.Observability.TraceExporter = "none"
	}
}

// Save writes configuration to a YAML file.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}

	switch c.Store.Backend {
	case "file":
	case "redis":
		if c.Store.Redis.Addr == "" {
			return fmt.Errorf("store.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	for _, job := range c.Monitor.Jobs {
		if job.Schedule == "" || job.Query == "" {
			return fmt.Errorf("monitor job %q needs both schedule and query", job.Name)
		}
	}

	return nil
}
