package config

import (
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{
		"RENDERD_DB_PATH", "RENDERD_API_LISTEN", "RENDERD_DEBUG_LISTEN",
		"RENDERD_REMOTE_DEBUG_PORT", "RENDERD_MAX_TABS", "RENDERD_RENDER_TIMEOUT_MS",
	} {
		t.Setenv(key, "")
	}

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.APIListenAddr != "0.0.0.0:7070" {
		t.Fatalf("APIListenAddr = %q", cfg.APIListenAddr)
	}
	if cfg.DebugListenAddr != "127.0.0.1:7071" {
		t.Fatalf("DebugListenAddr = %q", cfg.DebugListenAddr)
	}
	if cfg.RemoteDebuggingPort != 9222 {
		t.Fatalf("RemoteDebuggingPort = %d", cfg.RemoteDebuggingPort)
	}
	if cfg.MaxTabs != 0 {
		t.Fatalf("MaxTabs = %d, want 0 (unbounded)", cfg.MaxTabs)
	}
	if cfg.RenderTimeout != 5*time.Second {
		t.Fatalf("RenderTimeout = %v", cfg.RenderTimeout)
	}
	if cfg.DatabasePath == "" {
		t.Fatal("DatabasePath empty")
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("RENDERD_API_LISTEN", "127.0.0.1:8080")
	t.Setenv("RENDERD_MAX_TABS", "5")
	t.Setenv("RENDERD_RENDER_TIMEOUT_MS", "100")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.APIListenAddr != "127.0.0.1:8080" {
		t.Fatalf("APIListenAddr = %q", cfg.APIListenAddr)
	}
	if cfg.MaxTabs != 5 {
		t.Fatalf("MaxTabs = %d", cfg.MaxTabs)
	}
	if cfg.RenderTimeout != 100*time.Millisecond {
		t.Fatalf("RenderTimeout = %v", cfg.RenderTimeout)
	}
}

func TestFromEnvRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"RENDERD_MAX_TABS":          "-1",
		"RENDERD_RENDER_TIMEOUT_MS": "0",
		"RENDERD_API_LISTEN":        "not-an-addr",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := FromEnv(); err == nil {
				t.Fatalf("FromEnv accepted %s=%s", key, value)
			}
		})
	}
}
