package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AnalyzerConfig controls how trace logs are discovered and ingested.
type AnalyzerConfig struct {
	FileSuffix   string `yaml:"file_suffix"`
	NumWorkers   int    `yaml:"num_workers"`
	MaxLineBytes int    `yaml:"max_line_bytes"`
}

// LoggingConfig controls the run's diagnostic log.
type LoggingConfig struct {
	DebugLog   string `yaml:"debug_log"`
	Level      string `yaml:"level"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// MetricsConfig controls the run metrics textfile.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// ClickHouseConfig holds connection details for ClickHouse.
type ClickHouseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// SQLiteConfig holds the database file for the sqlite exporter.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// NATSConfig holds the server and subjects for the nats exporter.
type NATSConfig struct {
	URL            string `yaml:"url"`
	CycleSubject   string `yaml:"cycle_subject"`
	SummarySubject string `yaml:"summary_subject"`
}

// FileConfig is used by exporters that write to the local filesystem.
type FileConfig struct {
	RootPath string `yaml:"root_path"`
}

// ExporterDef defines a single exporter from the config file.
type ExporterDef struct {
	Type       string           `yaml:"type"`
	Enabled    bool             `yaml:"enabled"`
	Gob        FileConfig       `yaml:"gob"`
	JSON       FileConfig       `yaml:"json"`
	Prometheus FileConfig       `yaml:"prometheus"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	SQLite     SQLiteConfig     `yaml:"sqlite"`
	NATS       NATSConfig       `yaml:"nats"`
}

// AlerterRule defines a single rule evaluated against the result of a run.
type AlerterRule struct {
	Name      string  `yaml:"name"`
	Metric    string  `yaml:"metric"` // e.g., "global_min_rate", "cycle_count"
	Operator  string  `yaml:"operator"`
	Threshold float64 `yaml:"threshold"`
}

// AlerterConfig holds the configuration for the alerter.
type AlerterConfig struct {
	Enabled bool          `yaml:"enabled"`
	Rules   []AlerterRule `yaml:"rules"`
}

// SMTPConfig holds the configuration for the email notifier.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	To       string `yaml:"to"` // Comma-separated list of recipients
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Analyzer  AnalyzerConfig `yaml:"analyzer"`
	Logging   LoggingConfig  `yaml:"logging"`
	Metrics   MetricsConfig  `yaml:"metrics"`
	Exporters []ExporterDef  `yaml:"exporters"`
	Alerter   AlerterConfig  `yaml:"alerter"`
	SMTP      SMTPConfig     `yaml:"smtp"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Analyzer: AnalyzerConfig{
			FileSuffix:   ".log",
			NumWorkers:   4,
			MaxLineBytes: 1 << 20,
		},
		Logging: LoggingConfig{
			DebugLog:   "debug.log",
			Level:      "debug",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// LoadConfig reads the configuration from a YAML file on top of Default().
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that have no sensible fallback.
func (c *Config) Validate() error {
	if c.Analyzer.NumWorkers < 0 {
		return fmt.Errorf("analyzer.num_workers must not be negative, got %d", c.Analyzer.NumWorkers)
	}
	if c.Analyzer.MaxLineBytes < 0 {
		return fmt.Errorf("analyzer.max_line_bytes must not be negative, got %d", c.Analyzer.MaxLineBytes)
	}
	for i, def := range c.Exporters {
		if def.Type == "" {
			return fmt.Errorf("exporters[%d]: type is required", i)
		}
	}
	for i, rule := range c.Alerter.Rules {
		switch rule.Operator {
		case ">", "<", "=", ">=", "<=":
		default:
			return fmt.Errorf("alerter.rules[%d] (%s): unknown operator %q", i, rule.Name, rule.Operator)
		}
	}
	return nil
}
