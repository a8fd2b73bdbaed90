// Package config loads the proxy's environment-variable configuration.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config wraps koanf.Koanf to provide typed configuration access.
// @see https://github.com/knadh/koanf .
type Config struct {
	k *koanf.Koanf
}

// Load reads every supported environment variable into a Config.
// Keys are lower-cased and dot-free: PORT, CACHE_DIR, MAX_CACHE_SIZE,
// REQUEST_TIMEOUT, MAX_REDIRECTS, USER_SERVER_LIST_TIMEOUT, LOOKUP_RELAYS,
// FALLBACK_SERVERS, ALLOWED_UPLOAD_IPS.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(env.Provider("", ".", strings.ToLower), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	return &Config{k: k}, nil
}

// GetString gets a string value by key.
func (c *Config) GetString(key string) string {
	return c.k.String(strings.ToLower(key))
}

// Exists checks if a key exists.
func (c *Config) Exists(key string) bool {
	return c.k.Exists(strings.ToLower(key))
}

// GetStringWithDefault gets a string value with a default fallback.
func (c *Config) GetStringWithDefault(key, defaultValue string) string {
	if c.Exists(key) {
		v := c.GetString(key)
		if v != "" {
			return v
		}
	}
	return defaultValue
}

// GetIntWithDefault gets an integer value with a default fallback.
func (c *Config) GetIntWithDefault(key string, defaultValue int) int {
	if !c.Exists(key) {
		return defaultValue
	}
	v, err := strconv.Atoi(strings.TrimSpace(c.GetString(key)))
	if err != nil {
		return defaultValue
	}
	return v
}

// GetDurationMillisWithDefault reads a millisecond integer env var into a
// time.Duration, falling back to defaultValue when unset or unparsable.
func (c *Config) GetDurationMillisWithDefault(key string, defaultValue time.Duration) time.Duration {
	ms := c.GetIntWithDefault(key, -1)
	if ms < 0 {
		return defaultValue
	}
	return time.Duration(ms) * time.Millisecond
}

// GetByteSizeWithDefault parses a byte-size env var with an optional
// B|KB|MB|GB|TB suffix (e.g. "500MB"). Returns defaultValue (typically 0,
// meaning "no limit") if the key is unset or unparsable.
func (c *Config) GetByteSizeWithDefault(key string, defaultValue int64) int64 {
	if !c.Exists(key) {
		return defaultValue
	}
	raw := strings.TrimSpace(c.GetString(key))
	if raw == "" {
		return defaultValue
	}
	n, err := humanize.ParseBytes(raw)
	if err != nil {
		return defaultValue
	}
	return int64(n)
}

// GetStringList splits a comma-separated env var into a trimmed,
// non-empty string slice. Returns nil if the key is unset or empty.
func (c *Config) GetStringList(key string) []string {
	raw := c.GetString(key)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ProxyConfig holds the typed configuration for the blob caching proxy,
// resolved once at startup from environment variables (spec.md §6).
type ProxyConfig struct {
	Port                  int
	CacheDir              string
	MaxCacheSizeBytes     int64 // 0 means unlimited
	RequestTimeout        time.Duration
	MaxRedirects          int
	AuthorLookupTimeout   time.Duration
	LookupRelays          []string
	FallbackServers       []string
	AllowedUploadIPRanges []string
}

// LoadProxyConfig loads and type-checks every proxy-specific setting.
func LoadProxyConfig() (*ProxyConfig, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	return &ProxyConfig{
		Port:                  cfg.GetIntWithDefault("PORT", 3000),
		CacheDir:              cfg.GetStringWithDefault("CACHE_DIR", "./data/cache"),
		MaxCacheSizeBytes:     cfg.GetByteSizeWithDefault("MAX_CACHE_SIZE", 0),
		RequestTimeout:        cfg.GetDurationMillisWithDefault("REQUEST_TIMEOUT", 30*time.Second),
		MaxRedirects:          cfg.GetIntWithDefault("MAX_REDIRECTS", 5),
		AuthorLookupTimeout:   cfg.GetDurationMillisWithDefault("USER_SERVER_LIST_TIMEOUT", 20*time.Second),
		LookupRelays:          cfg.GetStringList("LOOKUP_RELAYS"),
		FallbackServers:       cfg.GetStringList("FALLBACK_SERVERS"),
		AllowedUploadIPRanges: defaultIfEmpty(cfg.GetStringList("ALLOWED_UPLOAD_IPS"), []string{"127.0.0.1", "::1"}),
	}, nil
}

func defaultIfEmpty(v, def []string) []string {
	if len(v) == 0 {
		return def
	}
	return v
}
