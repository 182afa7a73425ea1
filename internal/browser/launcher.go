// Package browser owns the headless Chrome process and the tabs handed out
// to the renderer: launching the executable, probing its DevTools endpoint,
// and pooling DevTools targets.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

const (
	DefaultRemoteAddr = "127.0.0.1"
	DefaultRemotePort = 9222

	defaultUserDataDirName    = "renderd-browser-data"
	devtoolsProbeRetryBackoff = 250 * time.Millisecond
	devtoolsProbeAttempts     = 20
)

var defaultExecCandidates = []string{
	"/headless-chrome/headless-chrome",
	"/headless-shell/headless-shell",
	"/usr/bin/headless-shell",
	"/usr/bin/chromium",
	"/usr/bin/google-chrome",
}

// Config controls how the managed browser instance is launched.
type Config struct {
	RemoteDebuggingAddr string
	RemoteDebuggingPort int
	UserDataDir         string
	ExecPath            string
}

// DevToolsInfo exposes debugging metadata for the ops endpoint.
type DevToolsInfo struct {
	WebSocketURL   string `json:"websocket_url"`
	WebSocketPath  string `json:"websocket_path"`
	BrowserVersion string `json:"browser_version"`
	UserAgent      string `json:"user_agent"`
	Address        string `json:"address"`
	Port           int    `json:"port"`
}

// Browser manages one headless Chrome process reachable through chromedp.
// Tabs are created as fresh DevTools targets under this process.
type Browser struct {
	cfg         Config
	logger      *slog.Logger
	allocCtx    context.Context
	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc
	devtools    DevToolsInfo
}

// New launches a headless Chrome instance and verifies its DevTools endpoint
// responds.
func New(ctx context.Context, logger *slog.Logger, cfg Config) (*Browser, error) {
	if ctx == nil {
		return nil, errors.New("browser: context is required")
	}
	if logger == nil {
		return nil, errors.New("browser: logger is required")
	}

	cfg.RemoteDebuggingAddr = strings.TrimSpace(cfg.RemoteDebuggingAddr)
	if cfg.RemoteDebuggingAddr == "" {
		cfg.RemoteDebuggingAddr = DefaultRemoteAddr
	}
	if cfg.RemoteDebuggingPort == 0 {
		cfg.RemoteDebuggingPort = DefaultRemotePort
	}
	if cfg.UserDataDir == "" {
		cfg.UserDataDir = filepath.Join(os.TempDir(), defaultUserDataDirName)
	}
	if err := os.MkdirAll(cfg.UserDataDir, 0o755); err != nil {
		return nil, fmt.Errorf("browser: ensure user data dir: %w", err)
	}

	resolvedExecPath, err := resolveExecPath(cfg.ExecPath)
	if err != nil {
		return nil, err
	}
	cfg.ExecPath = resolvedExecPath

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("headless", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("remote-debugging-address", cfg.RemoteDebuggingAddr),
		chromedp.Flag("remote-debugging-port", cfg.RemoteDebuggingPort),
		chromedp.UserDataDir(cfg.UserDataDir),
		chromedp.ExecPath(cfg.ExecPath),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)

	logFunc := func(format string, args ...any) {
		logger.Debug("chromedp", "message", fmt.Sprintf(format, args...))
	}
	browserCtx, cancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(logFunc))

	// Prime the browser process.
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("browser: start: %w", err)
	}

	devtools, err := probeDevTools(cfg.RemoteDebuggingPort)
	if err != nil {
		cancel()
		allocCancel()
		return nil, err
	}
	devtools.Address = cfg.RemoteDebuggingAddr
	devtools.Port = cfg.RemoteDebuggingPort

	logger.Info("headless browser ready", "devtools_port", cfg.RemoteDebuggingPort, "exec", cfg.ExecPath)

	return &Browser{
		cfg:         cfg,
		logger:      logger,
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		ctx:         browserCtx,
		cancel:      cancel,
		devtools:    devtools,
	}, nil
}

// Close tears down the browser process and resources.
func (b *Browser) Close() {
	b.cancel()
	b.allocCancel()
}

// DevTools returns debugging metadata.
func (b *Browser) DevTools() DevToolsInfo {
	return b.devtools
}

func probeDevTools(port int) (DevToolsInfo, error) {
	client := &http.Client{Timeout: 2 * time.Second}
	urlStr := fmt.Sprintf("http://127.0.0.1:%d/json/version", port)

	type response struct {
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
		Browser              string `json:"Browser"`
		UserAgent            string `json:"User-Agent"`
	}

	for i := 0; i < devtoolsProbeAttempts; i++ {
		resp, err := client.Get(urlStr)
		if err != nil {
			time.Sleep(devtoolsProbeRetryBackoff)
			continue
		}

		var payload response
		decodeErr := json.NewDecoder(resp.Body).Decode(&payload)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK || decodeErr != nil || payload.WebSocketDebuggerURL == "" {
			time.Sleep(devtoolsProbeRetryBackoff)
			continue
		}

		parsed, err := url.Parse(payload.WebSocketDebuggerURL)
		if err != nil {
			return DevToolsInfo{}, fmt.Errorf("browser: parse devtools url: %w", err)
		}

		return DevToolsInfo{
			WebSocketURL:   payload.WebSocketDebuggerURL,
			WebSocketPath:  parsed.RequestURI(),
			BrowserVersion: payload.Browser,
			UserAgent:      payload.UserAgent,
		}, nil
	}
	return DevToolsInfo{}, fmt.Errorf("browser: unable to discover devtools endpoint on port %d", port)
}

func resolveExecPath(requested string) (string, error) {
	candidates := make([]string, 0, len(defaultExecCandidates)+1)
	if path := strings.TrimSpace(requested); path != "" {
		candidates = append(candidates, path)
	}
	candidates = append(candidates, defaultExecCandidates...)

	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("browser: could not find a headless Chrome binary; tried %s", strings.Join(candidates, ", "))
}
