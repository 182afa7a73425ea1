package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultDBPath        = "~/.renderd/state.db"
	defaultAPIPort       = "7070"
	defaultAPIListenAddr = "0.0.0.0:" + defaultAPIPort
	defaultDebugListen   = "127.0.0.1:7071"
	defaultRemotePort    = 9222
	defaultRenderTimeout = 5000
)

// ServerConfig captures the runtime configuration required by the daemon.
type ServerConfig struct {
	DatabasePath        string
	APIListenAddr       string
	DebugListenAddr     string // empty disables the ops listener
	BrowserExecPath     string
	UserDataDir         string
	RemoteDebuggingPort int
	MaxTabs             int // 0 means unbounded
	RenderTimeout       time.Duration
}

// FromEnv loads server configuration from environment variables, applying
// opinionated defaults when unset.
func FromEnv() (ServerConfig, error) {
	cfg := ServerConfig{
		DatabasePath:    getenv("RENDERD_DB_PATH", defaultDBPath),
		APIListenAddr:   getenv("RENDERD_API_LISTEN", defaultAPIListenAddr),
		DebugListenAddr: getenv("RENDERD_DEBUG_LISTEN", defaultDebugListen),
		BrowserExecPath: getenv("RENDERD_BROWSER_EXEC", ""),
		UserDataDir:     expandPath(getenv("RENDERD_USER_DATA_DIR", "")),
	}

	port, err := intFromEnv("RENDERD_REMOTE_DEBUG_PORT", defaultRemotePort)
	if err != nil {
		return ServerConfig{}, err
	}
	cfg.RemoteDebuggingPort = port

	maxTabs, err := intFromEnv("RENDERD_MAX_TABS", 0)
	if err != nil {
		return ServerConfig{}, err
	}
	if maxTabs < 0 {
		return ServerConfig{}, fmt.Errorf("RENDERD_MAX_TABS must not be negative, got %d", maxTabs)
	}
	cfg.MaxTabs = maxTabs

	timeoutMS, err := intFromEnv("RENDERD_RENDER_TIMEOUT_MS", defaultRenderTimeout)
	if err != nil {
		return ServerConfig{}, err
	}
	if timeoutMS <= 0 {
		return ServerConfig{}, fmt.Errorf("RENDERD_RENDER_TIMEOUT_MS must be positive, got %d", timeoutMS)
	}
	cfg.RenderTimeout = time.Duration(timeoutMS) * time.Millisecond

	if _, _, err := net.SplitHostPort(cfg.APIListenAddr); err != nil {
		return ServerConfig{}, fmt.Errorf("invalid api listen addr %q: %w", cfg.APIListenAddr, err)
	}
	if cfg.DebugListenAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.DebugListenAddr); err != nil {
			return ServerConfig{}, fmt.Errorf("invalid debug listen addr %q: %w", cfg.DebugListenAddr, err)
		}
	}

	cfg.DatabasePath = expandPath(cfg.DatabasePath)
	return cfg, nil
}

func getenv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func intFromEnv(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, raw, err)
	}
	return parsed, nil
}

func expandPath(path string) string {
	path = strings.TrimSpace(path)
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			if path == "~" {
				return home
			}
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
