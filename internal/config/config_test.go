package config

import (
	"os"
	"testing"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		old, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, old)
			}
		})
	}
}

func TestLoadDefaultsToMockProvider(t *testing.T) {
	clearEnv(t, "LLM_PROVIDER", "OPENAI_API_KEY", "CACHE_BACKEND", "REDIS_URL", "RPM_LIMIT")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Provider != "mock" {
		t.Fatalf("LLM.Provider = %q, want mock", cfg.LLM.Provider)
	}
	if cfg.LLM.MaxRetries != 3 {
		t.Fatalf("LLM.MaxRetries = %d, want 3", cfg.LLM.MaxRetries)
	}
	if cfg.Cache.TTLSeconds != 3600 {
		t.Fatalf("Cache.TTLSeconds = %d, want 3600", cfg.Cache.TTLSeconds)
	}
}

func TestLoadRejectsRemoteProviderWithoutAPIKey(t *testing.T) {
	clearEnv(t, "OPENAI_API_KEY")
	os.Setenv("LLM_PROVIDER", "remote")
	t.Cleanup(func() { os.Unsetenv("LLM_PROVIDER") })

	if _, err := Load(); err == nil {
		t.Fatal("expected error when LLM_PROVIDER=remote without OPENAI_API_KEY")
	}
}

func TestLoadRejectsRedisCacheBackendWithoutURL(t *testing.T) {
	clearEnv(t, "REDIS_URL")
	os.Setenv("CACHE_BACKEND", "redis")
	t.Cleanup(func() { os.Unsetenv("CACHE_BACKEND") })

	if _, err := Load(); err == nil {
		t.Fatal("expected error when CACHE_BACKEND=redis without REDIS_URL")
	}
}

func TestLoadRejectsInvalidLLMProvider(t *testing.T) {
	os.Setenv("LLM_PROVIDER", "carrier-pigeon")
	t.Cleanup(func() { os.Unsetenv("LLM_PROVIDER") })

	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid LLM_PROVIDER")
	}
}
