package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/JoeShih716/go-cash-ledger/pkg/mysql"
)

// Backend 帳本的儲存實作
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendMySQL  Backend = "mysql"
)

var _ pflag.Value = (*Backend)(nil)

// Set implements pflag.Value.
func (b *Backend) Set(v string) error {
	switch Backend(strings.ToLower(v)) {
	case BackendMemory:
		*b = BackendMemory
	case BackendMySQL:
		*b = BackendMySQL
	default:
		return fmt.Errorf("unknown backend %q (want memory or mysql)", v)
	}
	return nil
}

// String implements pflag.Value.
func (b *Backend) String() string { return string(*b) }

// Type implements pflag.Value.
func (b *Backend) Type() string { return "backend" }

type Config struct {
	HTTP   HTTPConfig   `yaml:"http"`
	GRPC   GRPCConfig   `yaml:"grpc"`
	Ledger LedgerConfig `yaml:"ledger"`
	Log    LogConfig    `yaml:"log"`
	MySQL  mysql.Config `yaml:"mysql"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type GRPCConfig struct {
	Addr           string        `yaml:"addr"`
	HealthInterval time.Duration `yaml:"health_interval"`
}

type LedgerConfig struct {
	Backend Backend `yaml:"backend"`
	// WALPath 為空時記憶體帳本不持久化
	WALPath              string `yaml:"wal_path"`
	CaseInsensitiveNames bool   `yaml:"case_insensitive_names"`
	SoftDelete           bool   `yaml:"soft_delete"`
	// Timezone 決定「今天」是哪一天，IANA 名稱 (e.g. America/Sao_Paulo)
	Timezone string `yaml:"timezone"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// loadConfig 讀取並解析設定檔；path 為空時只用預設值
func loadConfig(path string) (*Config, error) {
	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	return parseConfig(data)
}

func parseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults 補全 yaml 沒寫的欄位
func (c *Config) setDefaults() {
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.HTTP.ReadTimeout == 0 {
		c.HTTP.ReadTimeout = 10 * time.Second
	}
	if c.HTTP.WriteTimeout == 0 {
		c.HTTP.WriteTimeout = 10 * time.Second
	}
	if c.HTTP.ShutdownTimeout == 0 {
		c.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if c.GRPC.Addr == "" {
		c.GRPC.Addr = ":50051"
	}
	if c.GRPC.HealthInterval == 0 {
		c.GRPC.HealthInterval = 5 * time.Second
	}
	if c.Ledger.Backend == "" {
		c.Ledger.Backend = BackendMemory
	}
	if c.Ledger.Timezone == "" {
		c.Ledger.Timezone = "UTC"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	c.MySQL.SetDefaults()
}

func (c *Config) validate() error {
	if err := c.Ledger.Backend.Set(string(c.Ledger.Backend)); err != nil {
		return err
	}
	if _, err := c.location(); err != nil {
		return err
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("unknown log format %q (want text or json)", c.Log.Format)
	}
	if c.Ledger.Backend == BackendMySQL && c.MySQL.Host == "" {
		return fmt.Errorf("mysql.host is required when ledger.backend is mysql")
	}
	return nil
}

func (c *Config) location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Ledger.Timezone)
	if err != nil {
		return nil, fmt.Errorf("ledger.timezone: %w", err)
	}
	return loc, nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// newLogger 依設定建立 slog.Logger
func newLogger(cfg LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
