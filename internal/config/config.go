// Package config loads and watches the nudged configuration file.
// YAML and JSON are both accepted; YAML is coerced to JSON so one strict
// decoder (DisallowUnknownFields) validates both formats.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

type Config struct {
	Logging LoggingConfig `json:"logging"`
	Store   StoreConfig   `json:"store"`
	Cache   CacheConfig   `json:"cache"`
	Engine  EngineConfig  `json:"engine"`
	Push    PushConfig    `json:"push"`
	Mail    MailConfig    `json:"mail"`
}

type LoggingConfig struct {
	Level   string     `json:"level"`
	Console bool       `json:"console"`
	File    FileConfig `json:"file"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type StoreConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout"`
}

type CacheConfig struct {
	// Backend selects "redis" or "memory". Memory keeps the same dedup
	// semantics but nothing survives a restart; use it only without a
	// Redis deployment.
	Backend string      `json:"backend"`
	Redis   RedisConfig `json:"redis"`
}

type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type EngineConfig struct {
	ReminderSpec string `json:"reminder_spec"`
	OverdueSpec  string `json:"overdue_spec"`
	SweepSpec    string `json:"sweep_spec"`

	ReminderHorizon  string `json:"reminder_horizon"`
	ReminderCooldown string `json:"reminder_cooldown"`
	OverdueCooldown  string `json:"overdue_cooldown"`
	CacheTTL         string `json:"cache_ttl"`
	CacheQuantum     string `json:"cache_quantum"`
	DedupRetention   string `json:"dedup_retention"`

	// Locale: "ar" (default) or "en".
	Locale string `json:"locale"`
}

type PushConfig struct {
	Enabled bool   `json:"enabled"`
	Listen  string `json:"listen"`
}

type MailConfig struct {
	Enabled        bool   `json:"enabled"`
	Host           string `json:"host"`
	Port           int    `json:"port"`
	Username       string `json:"username"`
	Password       string `json:"password"`
	From           string `json:"from"`
	SendsPerMinute int    `json:"sends_per_minute"`
}

// Parse decodes config bytes. Unknown fields are rejected so a typo fails
// loudly at startup instead of silently running with defaults.
func Parse(path string, data []byte) (*Config, error) {
	j, format, err := coerceToJSONBytes(path, data)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(j))
	dec.DisallowUnknownFields()
	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config (%s): %w", format, err)
	}
	return &cfg, nil
}

// LoadFile reads and validates a config file.
func LoadFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(path, b)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces the fatal-at-startup rules: required externals must be
// configured, durations must parse, and the dedup retention must exceed
// every cooldown or the TTL would undercut the cooldown contract.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Store.Path) == "" {
		return errors.New("store.path is required")
	}
	switch strings.ToLower(strings.TrimSpace(c.Cache.Backend)) {
	case "", "memory":
	case "redis":
		if strings.TrimSpace(c.Cache.Redis.Addr) == "" {
			return errors.New("cache.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("cache.backend: unknown backend %q", c.Cache.Backend)
	}
	if c.Mail.Enabled {
		if strings.TrimSpace(c.Mail.Host) == "" {
			return errors.New("mail.host is required when mail is enabled")
		}
		if strings.TrimSpace(c.Mail.From) == "" {
			return errors.New("mail.from is required when mail is enabled")
		}
	}
	switch strings.ToLower(strings.TrimSpace(c.Engine.Locale)) {
	case "", "ar", "en":
	default:
		return fmt.Errorf("engine.locale: unknown locale %q", c.Engine.Locale)
	}

	fields := []struct {
		path string
		raw  string
	}{
		{"store.busy_timeout", c.Store.BusyTimeout},
		{"engine.reminder_horizon", c.Engine.ReminderHorizon},
		{"engine.reminder_cooldown", c.Engine.ReminderCooldown},
		{"engine.overdue_cooldown", c.Engine.OverdueCooldown},
		{"engine.cache_ttl", c.Engine.CacheTTL},
		{"engine.cache_quantum", c.Engine.CacheQuantum},
		{"engine.dedup_retention", c.Engine.DedupRetention},
	}
	for _, f := range fields {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}

	retention, _ := ParseDurationOrDefault("engine.dedup_retention", c.Engine.DedupRetention, 2*time.Hour)
	for _, f := range []struct {
		path string
		raw  string
		def  time.Duration
	}{
		{"engine.reminder_cooldown", c.Engine.ReminderCooldown, 25 * time.Minute},
		{"engine.overdue_cooldown", c.Engine.OverdueCooldown, time.Hour},
	} {
		cd, _ := ParseDurationOrDefault(f.path, f.raw, f.def)
		if cd >= retention {
			return fmt.Errorf("%s (%s) must be below engine.dedup_retention (%s)", f.path, cd, retention)
		}
	}
	return nil
}
