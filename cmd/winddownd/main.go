// Command winddownd is the late-night streaming wind-down daemon. It tracks
// how long streaming tabs stay open, overlays a countdown when the watch
// duration runs out, and recovers its timers from SQLite after a restart.
//
// Usage:
//
//	winddownd -config winddown.yaml          # run with config file
//	winddownd -db winddown.db                # run with defaults
//	winddownd -db winddown.db -browser ws://127.0.0.1:9222/...  # attach to Chrome
//	winddownd -db winddown.db -timers        # dump live timers and exit
//	winddownd -db winddown.db -settings      # dump settings and exit
//	winddownd -db winddown.db -mcp           # serve MCP tools on stdio
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/winddown/browser"
	"github.com/hazyhaar/winddown/winddown"
)

func main() {
	configPath := flag.String("config", "", "path to winddown.yaml config file")
	dbPath := flag.String("db", "", "path to SQLite database")
	listen := flag.String("listen", "", "HTTP listen address")
	session := flag.String("session", "", "browser session id (new id clears stored timers)")
	browserURL := flag.String("browser", "", "DevTools control URL of a running browser")
	mcpStdio := flag.Bool("mcp", false, "serve MCP tools on stdio instead of running the daemon loops")
	dumpTimers := flag.Bool("timers", false, "dump live timers and exit")
	dumpSettings := flag.Bool("settings", false, "dump settings and exit")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, options{
		configPath:   *configPath,
		dbPath:       *dbPath,
		listen:       *listen,
		session:      *session,
		browserURL:   *browserURL,
		mcpStdio:     *mcpStdio,
		dumpTimers:   *dumpTimers,
		dumpSettings: *dumpSettings,
	}); err != nil {
		logger.Error("winddownd: fatal", "error", err)
		os.Exit(1)
	}
}

type options struct {
	configPath   string
	dbPath       string
	listen       string
	session      string
	browserURL   string
	mcpStdio     bool
	dumpTimers   bool
	dumpSettings bool
}

func run(ctx context.Context, logger *slog.Logger, opts options) error {
	cfg, err := winddown.LoadConfigFile(opts.configPath)
	if err != nil {
		return err
	}
	if opts.dbPath != "" {
		cfg.DBPath = opts.dbPath
	}
	if opts.listen != "" {
		cfg.Listen = opts.listen
	}
	if opts.session != "" {
		cfg.SessionID = opts.session
	}
	if opts.browserURL != "" {
		cfg.BrowserURL = opts.browserURL
	}
	if cfg.SessionID == "" {
		cfg.SessionID = env("WINDDOWN_SESSION", "default")
	}

	// The browser bridge doubles as tab source and overlay sink, so it is
	// built before the service when attachment is configured.
	var bridge *browser.Bridge
	var overlay *browser.OverlaySink
	var svcOpts []winddown.ServiceOption
	svcOpts = append(svcOpts, winddown.WithServiceLogger(logger))
	if cfg.BrowserURL != "" {
		bridge = browser.New(browser.Config{ControlURL: cfg.BrowserURL, Logger: logger})
		if err := bridge.Connect(); err != nil {
			return err
		}
		defer bridge.Close()
		// Fill the tab snapshot before recovery runs its liveness checks.
		if err := bridge.Prime(ctx); err != nil {
			logger.Warn("winddownd: initial tab scan failed", "error", err)
		}
		overlay = browser.NewOverlaySink(bridge, "http://"+cfg.Listen)
		svcOpts = append(svcOpts, winddown.WithEngineOptions(
			winddown.WithTabSource(bridge),
			winddown.WithSink(overlay),
		))
	}

	svc, err := winddown.New(ctx, cfg, svcOpts...)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer svc.Close()
	if overlay != nil {
		overlay.Snooze = func() int { return svc.Engine().Settings().SnoozeMinutes }
	}

	// One-shot: timers.
	if opts.dumpTimers {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(svc.Engine().ListTimers())
	}

	// One-shot: settings.
	if opts.dumpSettings {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(svc.Engine().Settings())
	}

	// MCP mode: tools on stdio, no HTTP server.
	if opts.mcpStdio {
		svc.Start(ctx)
		srv := mcp.NewServer(&mcp.Implementation{Name: "winddown", Version: "1.0.0"}, nil)
		svc.RegisterMCP(srv)
		logger.Info("winddownd: serving MCP on stdio")
		return srv.Run(ctx, &mcp.StdioTransport{})
	}

	// Daemon mode.
	svc.Start(ctx)
	if bridge != nil {
		go bridge.Run(ctx, svc.Engine())
	}

	r := chi.NewRouter()
	winddown.RegisterHTTP(r, svc)
	httpSrv := &http.Server{Addr: cfg.Listen, Handler: r}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("winddownd: listening", "addr", cfg.Listen, "db", cfg.DBPath)
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http: %w", err)
	case <-ctx.Done():
	}

	logger.Info("winddownd: shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutCtx)
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
