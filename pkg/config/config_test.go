package config

import (
	"os"
	"testing"
	"time"
)

func setenv(t *testing.T, kv map[string]string) {
	t.Helper()
	for k, v := range kv {
		os.Setenv(k, v)
		t.Cleanup(func() { os.Unsetenv(k) })
	}
}

func TestLoadProxyConfigDefaults(t *testing.T) {
	cfg, err := LoadProxyConfig()
	if err != nil {
		t.Fatalf("LoadProxyConfig: %v", err)
	}

	if cfg.Port != 3000 {
		t.Errorf("expected default port 3000, got %d", cfg.Port)
	}
	if cfg.MaxCacheSizeBytes != 0 {
		t.Errorf("expected default max cache size 0 (unlimited), got %d", cfg.MaxCacheSizeBytes)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("expected default request timeout 30s, got %v", cfg.RequestTimeout)
	}
	if cfg.MaxRedirects != 5 {
		t.Errorf("expected default max redirects 5, got %d", cfg.MaxRedirects)
	}
	if len(cfg.AllowedUploadIPRanges) == 0 {
		t.Error("expected a non-empty default allowed-upload IP list")
	}
}

func TestLoadProxyConfigFromEnv(t *testing.T) {
	setenv(t, map[string]string{
		"PORT":                     "8088",
		"CACHE_DIR":                "/tmp/blobcache",
		"MAX_CACHE_SIZE":           "500MB",
		"REQUEST_TIMEOUT":          "5000",
		"MAX_REDIRECTS":            "2",
		"USER_SERVER_LIST_TIMEOUT": "1000",
		"LOOKUP_RELAYS":            "wss://relay.one, wss://relay.two",
		"FALLBACK_SERVERS":         "https://a.example,https://b.example",
		"ALLOWED_UPLOAD_IPS":       "10.0.0.0/8, 192.168.1.5",
	})

	cfg, err := LoadProxyConfig()
	if err != nil {
		t.Fatalf("LoadProxyConfig: %v", err)
	}

	if cfg.Port != 8088 {
		t.Errorf("expected port 8088, got %d", cfg.Port)
	}
	if cfg.CacheDir != "/tmp/blobcache" {
		t.Errorf("expected cache dir /tmp/blobcache, got %s", cfg.CacheDir)
	}
	if cfg.MaxCacheSizeBytes != 500*1000*1000 {
		t.Errorf("expected 500MB decoded to %d bytes, got %d", 500*1000*1000, cfg.MaxCacheSizeBytes)
	}
	if cfg.RequestTimeout != 5*time.Second {
		t.Errorf("expected request timeout 5s, got %v", cfg.RequestTimeout)
	}
	if cfg.MaxRedirects != 2 {
		t.Errorf("expected max redirects 2, got %d", cfg.MaxRedirects)
	}
	if cfg.AuthorLookupTimeout != time.Second {
		t.Errorf("expected author lookup timeout 1s, got %v", cfg.AuthorLookupTimeout)
	}
	if len(cfg.LookupRelays) != 2 || cfg.LookupRelays[0] != "wss://relay.one" {
		t.Errorf("unexpected lookup relays: %v", cfg.LookupRelays)
	}
	if len(cfg.FallbackServers) != 2 {
		t.Errorf("unexpected fallback servers: %v", cfg.FallbackServers)
	}
	if len(cfg.AllowedUploadIPRanges) != 2 {
		t.Errorf("unexpected allowed upload ips: %v", cfg.AllowedUploadIPRanges)
	}
}

func TestGetByteSizeWithDefaultUnset(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.GetByteSizeWithDefault("MAX_CACHE_SIZE", 0); got != 0 {
		t.Errorf("expected 0 for unset MAX_CACHE_SIZE, got %d", got)
	}
}
