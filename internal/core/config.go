package core

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the entire fuseid configuration.
type Config struct {
	Server      ServerConfig     `yaml:"server"`
	Bus         BusConfig        `yaml:"bus"`
	Dedup       DedupConfig      `yaml:"dedup"`
	Correlation CorrelatorConfig `yaml:"correlation"`
	Pipeline    PipelineConfig   `yaml:"pipeline"`
	Collectors  CollectorsConfig `yaml:"collectors"`
	Syslog      SyslogConfig     `yaml:"syslog"`
	Outputs     OutputsConfig    `yaml:"outputs"`
	Logging     LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds status API server settings.
type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// BusConfig holds NATS message bus settings.
type BusConfig struct {
	URL      string `yaml:"url"`
	Embedded bool   `yaml:"embedded"`
	DataDir  string `yaml:"data_dir"`
	Port     int    `yaml:"port"`
}

// DedupConfig holds deduplication settings.
type DedupConfig struct {
	WindowSeconds int `yaml:"window_seconds"`
}

// PipelineConfig holds ingestion queue and worker pool settings.
type PipelineConfig struct {
	QueueSize int `yaml:"queue_size"`
	Workers   int `yaml:"workers"`
}

// CollectorsConfig holds the sensor file gateway settings. Each source tails
// one NDJSON file of raw sensor records and forwards lines onto the bus.
type CollectorsConfig struct {
	Enabled bool              `yaml:"enabled"`
	Sources []CollectorSource `yaml:"sources"`
}

// CollectorSource is one tailed sensor file.
type CollectorSource struct {
	Channel string `yaml:"channel"`
	Path    string `yaml:"path"`
}

// SyslogConfig holds the syslog gateway settings.
type SyslogConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Protocol    string `yaml:"protocol"`
	MinSeverity string `yaml:"min_severity"`
}

// OutputsConfig holds alert sink settings.
type OutputsConfig struct {
	Console    ConsoleSinkConfig    `yaml:"console"`
	File       FileSinkConfig       `yaml:"file"`
	OpenSearch OpenSearchSinkConfig `yaml:"opensearch"`
	Webhook    WebhookSinkConfig    `yaml:"webhook"`
}

// ConsoleSinkConfig holds console output settings.
type ConsoleSinkConfig struct {
	Enabled bool `yaml:"enabled"`
	Verbose bool `yaml:"verbose"`
}

// FileSinkConfig holds NDJSON file output settings.
type FileSinkConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Directory string `yaml:"directory"`
	Filename  string `yaml:"filename"`
}

// OpenSearchSinkConfig holds OpenSearch output settings.
type OpenSearchSinkConfig struct {
	Enabled     bool   `yaml:"enabled"`
	URL         string `yaml:"url"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	Insecure    bool   `yaml:"insecure"`
	IndexPrefix string `yaml:"index_prefix"`
}

// WebhookSinkConfig holds webhook output settings.
type WebhookSinkConfig struct {
	Enabled     bool              `yaml:"enabled"`
	URL         string            `yaml:"url"`
	MinSeverity string            `yaml:"min_severity"`
	Headers     map[string]string `yaml:"headers,omitempty"`
	QueueSize   int               `yaml:"queue_size"`
	Workers     int               `yaml:"workers"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns a Config with sane defaults so the platform runs
// without a config file.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    1790,
		},
		Bus: BusConfig{
			URL:      "nats://127.0.0.1:4222",
			Embedded: true,
			DataDir:  "./data/nats",
			Port:     4222,
		},
		Dedup: DedupConfig{
			WindowSeconds: 60,
		},
		Correlation: CorrelatorConfig{
			WindowSeconds:          300,
			MaxHistory:             10000,
			CleanupIntervalSeconds: 60,
		},
		Pipeline: PipelineConfig{
			QueueSize: 10000,
			Workers:   2,
		},
		Collectors: CollectorsConfig{
			Enabled: false,
		},
		Syslog: SyslogConfig{
			Enabled:     false,
			Host:        "0.0.0.0",
			Port:        5514,
			Protocol:    "udp",
			MinSeverity: "LOW",
		},
		Outputs: OutputsConfig{
			Console: ConsoleSinkConfig{
				Enabled: true,
			},
			File: FileSinkConfig{
				Enabled:   true,
				Directory: "logs/alerts",
				Filename:  "unified_alerts.log",
			},
			OpenSearch: OpenSearchSinkConfig{
				Enabled:     false,
				URL:         "http://localhost:9200",
				IndexPrefix: "hybrid-ids-alerts",
			},
			Webhook: WebhookSinkConfig{
				Enabled:     false,
				MinSeverity: "HIGH",
				QueueSize:   1000,
				Workers:     2,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig loads configuration from a YAML file, falling back to defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig writes the configuration to a YAML file.
func SaveConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// LogLevel returns the normalized log level string.
func (c *Config) LogLevel() string {
	return strings.ToLower(c.Logging.Level)
}
