package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/camvault/internal/logger"
	"github.com/loykin/camvault/internal/tls"
)

// Defaults applied before the file is read.
const (
	DefaultTickInterval = time.Second
	DefaultStopGrace    = 5 * time.Second
	DefaultBinary       = "ffmpeg"
	DefaultExtension    = "mp4"
	DefaultRecordsDir   = "/var/lib/camvault/records"
	DefaultStateDir     = "/var/lib/camvault"
	DefaultStoreDSN     = "sqlite:///var/lib/camvault/camvault.db"
)

// Config is the daemon's static configuration, loaded once at startup.
// Runtime settings (records root, free-space threshold, relocation policy)
// live in the store and are polled every tick.
type Config struct {
	Store   StoreConfig   `toml:"store" mapstructure:"store"`
	Capture CaptureConfig `toml:"capture" mapstructure:"capture"`
	Loop    LoopConfig    `toml:"loop" mapstructure:"loop"`
	Log     LogConfig     `toml:"log" mapstructure:"log"`
	Metrics MetricsConfig `toml:"metrics" mapstructure:"metrics"`
	Server  ServerConfig  `toml:"server" mapstructure:"server"`
	History HistoryConfig `toml:"history" mapstructure:"history"`
}

type StoreConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

type CaptureConfig struct {
	Binary    string        `toml:"binary" mapstructure:"binary"`
	Extension string        `toml:"extension" mapstructure:"extension"`
	StopGrace time.Duration `toml:"stop_grace" mapstructure:"stop_grace"`
	LogName   string        `toml:"log_name" mapstructure:"log_name"`
}

type LoopConfig struct {
	Interval   time.Duration `toml:"interval" mapstructure:"interval"`
	RecordsDir string        `toml:"records_dir" mapstructure:"records_dir"` // used until the store has a value
	StateDir   string        `toml:"state_dir" mapstructure:"state_dir"`
}

type LogConfig struct {
	Dir        string `toml:"dir" mapstructure:"dir"`
	Level      string `toml:"level" mapstructure:"level"`
	Format     string `toml:"format" mapstructure:"format"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
	NoColor    bool   `toml:"no_color" mapstructure:"no_color"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Listen  string `toml:"listen" mapstructure:"listen"`
}

type ServerConfig struct {
	Listen string    `toml:"listen" mapstructure:"listen"`
	TLS    TLSConfig `toml:"tls" mapstructure:"tls"`
}

// TLSConfig turns the status API into HTTPS when a certificate source is set.
type TLSConfig struct {
	CertFile     string   `toml:"cert_file" mapstructure:"cert_file"`
	KeyFile      string   `toml:"key_file" mapstructure:"key_file"`
	Dir          string   `toml:"dir" mapstructure:"dir"`
	AutoGenerate bool     `toml:"auto_generate" mapstructure:"auto_generate"`
	MinVersion   string   `toml:"min_version" mapstructure:"min_version"`
	Hosts        []string `toml:"hosts" mapstructure:"hosts"`
}

func (c TLSConfig) Options() tls.Options {
	return tls.Options{
		CertFile:     c.CertFile,
		KeyFile:      c.KeyFile,
		Dir:          c.Dir,
		AutoGenerate: c.AutoGenerate,
		MinVersion:   c.MinVersion,
		Hosts:        c.Hosts,
	}
}

type HistoryConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

// Logger converts the log section into logger.Config.
func (c LogConfig) Logger() logger.Config {
	return logger.Config{
		Dir:        c.Dir,
		Level:      c.Level,
		Format:     c.Format,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
		NoColor:    c.NoColor,
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.dsn", DefaultStoreDSN)
	v.SetDefault("capture.binary", DefaultBinary)
	v.SetDefault("capture.extension", DefaultExtension)
	v.SetDefault("capture.stop_grace", DefaultStopGrace)
	v.SetDefault("capture.log_name", "ffmpeg.log")
	v.SetDefault("loop.interval", DefaultTickInterval)
	v.SetDefault("loop.records_dir", DefaultRecordsDir)
	v.SetDefault("loop.state_dir", DefaultStateDir)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("log.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("log.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("log.dir", "")
	v.SetDefault("log.compress", false)
	v.SetDefault("log.no_color", false)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", ":9464")
	v.SetDefault("server.listen", "")
	v.SetDefault("server.tls.cert_file", "")
	v.SetDefault("server.tls.key_file", "")
	v.SetDefault("server.tls.dir", "")
	v.SetDefault("server.tls.auto_generate", false)
	v.SetDefault("server.tls.min_version", "")
	v.SetDefault("history.dsn", "")
}

// Load reads a TOML config file. An empty path yields defaults plus
// CAMVAULT_* environment overrides (e.g. CAMVAULT_STORE_DSN).
// Relative paths in the file are resolved against the file's directory.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("CAMVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	base := ""
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		base = filepath.Dir(path)
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	c.Capture.Extension = strings.TrimPrefix(strings.TrimSpace(c.Capture.Extension), ".")
	if base != "" {
		c.Loop.RecordsDir = resolve(base, c.Loop.RecordsDir)
		c.Loop.StateDir = resolve(base, c.Loop.StateDir)
		c.Log.Dir = resolve(base, c.Log.Dir)
		c.Server.TLS.CertFile = resolve(base, c.Server.TLS.CertFile)
		c.Server.TLS.KeyFile = resolve(base, c.Server.TLS.KeyFile)
		c.Server.TLS.Dir = resolve(base, c.Server.TLS.Dir)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks values that would make the daemon misbehave.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Store.DSN) == "" {
		errs = append(errs, errors.New("store.dsn is required"))
	}
	if strings.TrimSpace(c.Capture.Binary) == "" {
		errs = append(errs, errors.New("capture.binary is required"))
	}
	if c.Capture.Extension == "" {
		errs = append(errs, errors.New("capture.extension is required"))
	}
	if c.Capture.StopGrace <= 0 {
		errs = append(errs, fmt.Errorf("capture.stop_grace must be positive, got %s", c.Capture.StopGrace))
	}
	if c.Loop.Interval <= 0 {
		errs = append(errs, fmt.Errorf("loop.interval must be positive, got %s", c.Loop.Interval))
	}
	if c.Loop.RecordsDir == "" {
		errs = append(errs, errors.New("loop.records_dir is required"))
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	return errors.Join(errs...)
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
