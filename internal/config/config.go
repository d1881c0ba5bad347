package config

import (
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata" // sync.timezone must resolve on hosts without zoneinfo

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Archive ArchiveConfig `yaml:"archive" mapstructure:"archive"`
	Source  SourceConfig  `yaml:"source" mapstructure:"source"`
	Sync    SyncConfig    `yaml:"sync" mapstructure:"sync"`
	Extract ExtractConfig `yaml:"extract" mapstructure:"extract"`
	RunLog  RunLogConfig  `yaml:"runlog" mapstructure:"runlog"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// ArchiveConfig locates the persisted CSV and JSON archive files.
type ArchiveConfig struct {
	Dir      string `yaml:"dir" mapstructure:"dir"`
	CSVFile  string `yaml:"csv_file" mapstructure:"csv_file"`
	JSONFile string `yaml:"json_file" mapstructure:"json_file"`
}

// SourceConfig configures retrieval of the daily incident-log documents.
type SourceConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst       int     `yaml:"burst" mapstructure:"burst"`
	MaxBytes    int64   `yaml:"max_bytes" mapstructure:"max_bytes"`
}

// Timeout returns the per-request timeout.
func (s SourceConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSecs) * time.Second
}

// SyncConfig configures the incremental sync window and worker pool.
type SyncConfig struct {
	EarliestDate string `yaml:"earliest_date" mapstructure:"earliest_date"`
	Workers      int    `yaml:"workers" mapstructure:"workers"`
	Timezone     string `yaml:"timezone" mapstructure:"timezone"`
}

// Earliest parses EarliestDate (YYYY-MM-DD) as a UTC civil date.
func (s SyncConfig) Earliest() (time.Time, error) {
	d, err := time.Parse(time.DateOnly, s.EarliestDate)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "config: parse sync.earliest_date %q", s.EarliestDate)
	}
	return d, nil
}

// Location loads the time zone used to decide what "today" is.
func (s SyncConfig) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, eris.Wrapf(err, "config: load sync.timezone %q", s.Timezone)
	}
	return loc, nil
}

// ExtractConfig configures PDF table extraction.
type ExtractConfig struct {
	Provider      string `yaml:"provider" mapstructure:"provider"`
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	MinColumns    int    `yaml:"min_columns" mapstructure:"min_columns"`
	MistralKey    string `yaml:"mistral_api_key" mapstructure:"mistral_api_key"`
	MistralModel  string `yaml:"mistral_model" mapstructure:"mistral_model"`
}

// RunLogConfig configures where sync runs are recorded.
type RunLogConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// DefaultRunLogFile is the sqlite run-log file name inside archive.dir.
const DefaultRunLogFile = "crimelog.db"

// withDefaultPath places an unset sqlite database next to the archive.
func (r RunLogConfig) withDefaultPath(archiveDir string) RunLogConfig {
	if r.DatabaseURL == "" && (r.Driver == "sqlite" || r.Driver == "") {
		r.DatabaseURL = filepath.Join(archiveDir, DefaultRunLogFile)
	}
	return r
}

// MetricsConfig configures the optional Prometheus Pushgateway.
type MetricsConfig struct {
	PushURL string `yaml:"push_url" mapstructure:"push_url"`
	Job     string `yaml:"job" mapstructure:"job"`
}

// ServerConfig configures the read-only publication server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CRIMELOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("archive.dir", ".")
	v.SetDefault("archive.csv_file", "usc_crime_logs.csv")
	v.SetDefault("archive.json_file", "usc_crime_logs.json")
	v.SetDefault("source.base_url", "https://dps.usc.edu/wp-content/uploads")
	v.SetDefault("source.user_agent", "dps-crimelog/1.0")
	v.SetDefault("source.timeout_secs", 20)
	v.SetDefault("source.rate_per_sec", 4.0)
	v.SetDefault("source.burst", 4)
	v.SetDefault("source.max_bytes", 25<<20)
	v.SetDefault("sync.earliest_date", "2023-12-04")
	v.SetDefault("sync.workers", 12)
	v.SetDefault("sync.timezone", "America/Los_Angeles")
	v.SetDefault("extract.provider", "local")
	v.SetDefault("extract.pdftotext_path", "pdftotext")
	v.SetDefault("extract.min_columns", 4)
	v.SetDefault("extract.mistral_model", "mistral-ocr-latest")
	v.SetDefault("runlog.driver", "sqlite")
	v.SetDefault("runlog.database_url", "") // sqlite: <archive.dir>/crimelog.db
	v.SetDefault("metrics.job", "crimelog")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	cfg.RunLog = cfg.RunLog.withDefaultPath(cfg.Archive.Dir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	if _, err := c.Sync.Earliest(); err != nil {
		return err
	}
	if c.Sync.Workers <= 0 {
		return eris.Errorf("config: sync.workers must be positive, got %d", c.Sync.Workers)
	}
	if c.Archive.CSVFile == "" || c.Archive.JSONFile == "" {
		return eris.New("config: archive.csv_file and archive.json_file are required")
	}
	if c.Archive.CSVFile == c.Archive.JSONFile {
		return eris.New("config: archive.csv_file and archive.json_file must differ")
	}
	return nil
}

// Redacted returns a copy of the config with secrets masked.
func (c Config) Redacted() Config {
	if c.Extract.MistralKey != "" {
		c.Extract.MistralKey = "****"
	}
	if strings.Contains(c.RunLog.DatabaseURL, "@") {
		c.RunLog.DatabaseURL = "****"
	}
	return c
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
