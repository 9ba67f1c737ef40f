package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"
)

type Config struct {
	App struct {
		LogLevel string `toml:"log_level"`
	} `toml:"app"`

	Serial struct {
		Port             string `toml:"port"` // 启动时自动连接，可为空
		ReadTimeoutMs    int    `toml:"read_timeout_ms"`
		IdlePauseMs      int    `toml:"idle_pause_ms"`
		ReconnectPauseMs int    `toml:"reconnect_pause_ms"`
		Encoding         string `toml:"encoding"`
		MaxLineBytes     int    `toml:"max_line_bytes"`
	} `toml:"serial"`

	Capture struct {
		Dir           string `toml:"dir"`
		RecordExt     string `toml:"record_ext"`
		LogExt        string `toml:"log_ext"`
		RecordEnabled *bool  `toml:"record_enabled"`
		LogEnabled    *bool  `toml:"log_enabled"`
	} `toml:"capture"`

	SQLite struct {
		Enabled bool   `toml:"enabled"`
		Path    string `toml:"path"`
	} `toml:"sqlite"`

	Redis struct {
		Enabled    bool   `toml:"enabled"`
		Addr       string `toml:"addr"`
		Password   string `toml:"password"`
		DB         int    `toml:"db"`
		Prefix     string `toml:"prefix"`
		Stream     string `toml:"stream"`
		Channel    string `toml:"channel"`
		TTLSeconds int    `toml:"ttl_seconds"`
	} `toml:"redis"`

	Postgres struct {
		Enabled bool   `toml:"enabled"`
		DSN     string `toml:"dsn"`
	} `toml:"postgres"`

	WebSocket struct {
		Enabled bool   `toml:"enabled"`
		Addr    string `toml:"addr"`
		Path    string `toml:"path"`
	} `toml:"websocket"`
}

// Load 读取 TOML 配置文件，填充默认值并校验
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	if err := Finalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default 没有配置文件时使用的配置
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// Finalize 填充默认值并校验，用于代码中构造的配置
func Finalize(cfg *Config) error {
	applyDefaults(cfg)
	return validate(cfg)
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.App.LogLevel) == "" {
		cfg.App.LogLevel = "info"
	}

	if cfg.Serial.ReadTimeoutMs <= 0 {
		cfg.Serial.ReadTimeoutMs = 1000
	}
	if cfg.Serial.IdlePauseMs <= 0 {
		cfg.Serial.IdlePauseMs = 50
	}
	if cfg.Serial.ReconnectPauseMs <= 0 {
		cfg.Serial.ReconnectPauseMs = 1000
	}
	if strings.TrimSpace(cfg.Serial.Encoding) == "" {
		cfg.Serial.Encoding = "utf-8"
	}
	if cfg.Serial.MaxLineBytes <= 0 {
		cfg.Serial.MaxLineBytes = 4096
	}

	if strings.TrimSpace(cfg.Capture.Dir) == "" {
		cfg.Capture.Dir = "."
	}
	cfg.Capture.RecordExt = strings.TrimPrefix(strings.TrimSpace(cfg.Capture.RecordExt), ".")
	if cfg.Capture.RecordExt == "" {
		cfg.Capture.RecordExt = "csv"
	}
	cfg.Capture.LogExt = strings.TrimPrefix(strings.TrimSpace(cfg.Capture.LogExt), ".")
	if cfg.Capture.LogExt == "" {
		cfg.Capture.LogExt = "log"
	}
	if cfg.Capture.RecordEnabled == nil {
		cfg.Capture.RecordEnabled = boolPtr(true)
	}
	if cfg.Capture.LogEnabled == nil {
		cfg.Capture.LogEnabled = boolPtr(true)
	}

	if cfg.SQLite.Enabled && strings.TrimSpace(cfg.SQLite.Path) == "" {
		cfg.SQLite.Path = "data/standlog.db"
	}
	if cfg.Redis.Enabled && strings.TrimSpace(cfg.Redis.Addr) == "" {
		cfg.Redis.Addr = "127.0.0.1:6379"
	}
	if strings.TrimSpace(cfg.Redis.Prefix) == "" {
		cfg.Redis.Prefix = "standlog"
	}
	if strings.TrimSpace(cfg.WebSocket.Addr) == "" {
		cfg.WebSocket.Addr = "127.0.0.1:8765"
	}
	if strings.TrimSpace(cfg.WebSocket.Path) == "" {
		cfg.WebSocket.Path = "/ws"
	}
}

func validate(cfg *Config) error {
	if _, err := zerolog.ParseLevel(strings.ToLower(cfg.App.LogLevel)); err != nil {
		return fmt.Errorf("app.log_level: %w", err)
	}
	if !cfg.RecordEnabled() && !cfg.LogEnabled() {
		return errors.New("capture.record_enabled and capture.log_enabled are both false")
	}
	if cfg.LogEnabled() && cfg.RecordEnabled() && cfg.Capture.RecordExt == cfg.Capture.LogExt {
		return errors.New("capture.record_ext and capture.log_ext must differ")
	}
	if strings.ContainsAny(cfg.Capture.RecordExt+cfg.Capture.LogExt, `/\`) {
		return errors.New("capture extensions must not contain path separators")
	}
	if cfg.Postgres.Enabled && strings.TrimSpace(cfg.Postgres.DSN) == "" {
		return errors.New("postgres.dsn empty but enabled")
	}
	if cfg.Redis.TTLSeconds < 0 {
		return errors.New("redis.ttl_seconds must not be negative")
	}
	if !strings.HasPrefix(cfg.WebSocket.Path, "/") {
		return errors.New("websocket.path must start with /")
	}
	return nil
}

func (c *Config) RecordEnabled() bool {
	return c.Capture.RecordEnabled == nil || *c.Capture.RecordEnabled
}
func (c *Config) LogEnabled() bool { return c.Capture.LogEnabled == nil || *c.Capture.LogEnabled }

func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.Serial.ReadTimeoutMs) * time.Millisecond
}

func (c *Config) IdlePause() time.Duration {
	return time.Duration(c.Serial.IdlePauseMs) * time.Millisecond
}

func (c *Config) ReconnectPause() time.Duration {
	return time.Duration(c.Serial.ReconnectPauseMs) * time.Millisecond
}

func boolPtr(b bool) *bool { return &b }
