// Command veil is the element-redaction daemon: it drives a real browser,
// lets the user mark elements for blurring, hiding, or text replacement, and
// keeps those marks applied per domain as pages change. A local HTTP API is
// the control surface.
//
// Usage:
//
//	veil -config veil.yaml                  # full configuration
//	veil -url https://example.com           # attach to a single page
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/veil/api"
	"github.com/hazyhaar/veil/idgen"
	"github.com/hazyhaar/veil/internal/browser"
	"github.com/hazyhaar/veil/internal/config"
	"github.com/hazyhaar/veil/preset"
	"github.com/hazyhaar/veil/session"
	"github.com/hazyhaar/veil/store"
)

func main() {
	configPath := flag.String("config", "", "path to veil.yaml config file")
	singleURL := flag.String("url", "", "attach to a single URL")
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
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *singleURL); err != nil {
		logger.Error("veil: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, singleURL string) error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.LoadFile(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if singleURL != "" {
		cfg.Pages = append(cfg.Pages, singleURL)
	}

	st, err := store.Open(cfg.Store.Path, store.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	catalog, err := preset.Load()
	if err != nil {
		return fmt.Errorf("load presets: %w", err)
	}

	mgr := browser.NewManager(browser.Config{
		RemoteURL:  cfg.Browser.Remote,
		Headless:   cfg.Browser.Headless,
		NavTimeout: cfg.Browser.NavTimeout,
		Logger:     logger,
	})
	if _, err := mgr.Start(); err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	defer mgr.Close()

	sessions := session.NewManager()
	defer sessions.CloseAll()

	newTabID := idgen.Prefixed("tab_", idgen.NanoID(8))
	for _, pageURL := range cfg.Pages {
		page, err := mgr.OpenTab(ctx, pageURL)
		if err != nil {
			logger.Error("veil: open tab", "url", pageURL, "error", err)
			continue
		}
		sess, err := session.New(newTabID(), session.Config{
			Page:           page,
			Store:          st,
			URL:            pageURL,
			DebounceWindow: cfg.Debounce.Window,
			DebounceMax:    cfg.Debounce.MaxBuffer,
			Logger:         logger,
		})
		if err != nil {
			logger.Error("veil: create session", "url", pageURL, "error", err)
			page.Close()
			continue
		}
		if err := sess.Start(ctx); err != nil {
			logger.Error("veil: start session", "url", pageURL, "error", err)
			page.Close()
			continue
		}
		sessions.Add(sess)
	}

	srv := api.NewServer(api.Config{
		Store:    st,
		Sessions: sessions,
		Presets:  catalog,
		Logger:   logger,
	})
	return srv.Serve(ctx, cfg.API.Addr)
}
