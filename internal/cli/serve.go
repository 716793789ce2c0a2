package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/caresync/caresync/internal/alertcache"
	"github.com/caresync/caresync/internal/api"
	"github.com/caresync/caresync/internal/detect"
	"github.com/caresync/caresync/internal/model"
	"github.com/caresync/caresync/internal/notestore"
	"github.com/caresync/caresync/internal/oracle"
	"github.com/caresync/caresync/internal/worker"
)

var (
	serveAddr      string
	serveNotesPath string
)

// serveCmd runs the HTTP API with the alert cache and a notes-file
// watcher that refreshes cached alerts in the background.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the notes, patients, and alerts API over HTTP",
	Long: `Serve exposes the note store and the drift-detection pipeline over HTTP.
Alert responses are cached per scope, keyed by a content fingerprint of
the input notes; an edit to the notes file triggers a background refresh
without blocking readers.

Example:
  caresync serve --addr :8080 --notes data/synthetic_notes.json`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config, :8080)")
	serveCmd.Flags().StringVar(&serveNotesPath, "notes", "", "path to the notes JSON file (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	if serveNotesPath != "" {
		cfg.Notes.Path = serveNotesPath
	}

	logLevel := slog.LevelInfo
	if cfg.Output.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	store := notestore.New(cfg.Notes.Path)
	cache := alertcache.New(alertcache.WithLogger(logger))
	if !cfg.Cache.Enabled {
		// A zero max age makes every lookup stale, so each request
		// recomputes while concurrent callers still share one flight.
		cfg.Cache.MaxAge = 0
	}

	var detector *detect.Detector
	var configErr error
	client, err := oracle.NewOpenAIClient(cfg.Oracle)
	if err != nil {
		var ce *oracle.ConfigError
		if !errors.As(err, &ce) {
			return err
		}
		// Keep serving notes and patients; alert endpoints answer with
		// a distinct warning instead of a silent empty list.
		configErr = err
		logger.Warn("oracle not configured, alert detection disabled", slog.String("error", err.Error()))
	} else {
		detector = detect.New(client,
			detect.WithConcurrency(cfg.Detection.Concurrency),
			detect.WithLimiter(worker.NewLimiter(cfg.Detection.RequestsPerSecond, cfg.Detection.Burst)),
			detect.WithLogger(logger),
		)
	}

	server := api.NewServer(store, detector, cache, cfg.Cache.MaxAge, configErr, logger)

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("listening", slog.String("addr", cfg.Server.Addr), slog.String("notes", cfg.Notes.Path))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if detector != nil {
		g.Go(func() error {
			err := store.Watch(ctx, func() {
				notes, err := store.Load()
				if err != nil {
					logger.Warn("reload after change failed", slog.String("error", err.Error()))
					return
				}
				if len(notes) == 0 {
					return
				}
				cache.Refresh(alertcache.ScopeAll, notes, func(ctx context.Context) ([]model.Alert, error) {
					return detector.DetectDrift(ctx, notes)
				})
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
