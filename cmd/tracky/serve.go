package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/erazemk/tracky/internal/api"
	"github.com/erazemk/tracky/internal/blob"
	"github.com/erazemk/tracky/internal/config"
	"github.com/erazemk/tracky/internal/db"
	"github.com/erazemk/tracky/internal/live"
	"github.com/erazemk/tracky/internal/media"
	"github.com/erazemk/tracky/internal/metrics"
	"github.com/erazemk/tracky/internal/store"
	"github.com/erazemk/tracky/internal/store/mongostore"
	"github.com/erazemk/tracky/internal/workflow"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		addr    string
		logPath string
		debug   bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("addr") {
				a.cfg.Addr = addr
			}
			if cmd.Flags().Changed("log") {
				a.cfg.LogPath = logPath
			}
			return serve(cmd.Context(), a.cfg, debug)
		},
	}
	cmd.Flags().StringVarP(&addr, "addr", "a", ":8080", "listen address")
	cmd.Flags().StringVarP(&logPath, "log", "l", "", "log file path (default: stdout/stderr only)")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")
	return cmd
}

// entityBackend is the opened entity store with its readiness check.
type entityBackend struct {
	docs  store.DocumentStore
	locs  store.LocationStore
	ping  api.Check
	close func()
}

// entityStores opens the configured entity backend. The returned close
// function is never nil.
func entityStores(ctx context.Context, cfg *config.Config, database *db.DB) (*entityBackend, error) {
	if cfg.Storage.Entities != config.EntitiesMongo {
		return &entityBackend{
			docs:  store.NewDocuments(database),
			locs:  store.NewLocations(database),
			ping:  database.PingContext,
			close: func() {},
		}, nil
	}

	ms, err := mongostore.Open(ctx, cfg.Storage.MongoURI, cfg.Storage.MongoDatabase)
	if err != nil {
		return nil, err
	}
	closeFn := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := ms.Close(ctx); err != nil {
			slog.Error("failed to close mongo client", "error", err)
		}
	}
	return &entityBackend{docs: ms, locs: ms, ping: ms.Ping, close: closeFn}, nil
}

func serve(ctx context.Context, cfg *config.Config, debug bool) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	closeLog, err := setupLogger(cfg.LogPath, debug)
	if err != nil {
		return err
	}
	defer closeLog()

	database, err := db.Open(cfg.Storage.Driver, cfg.Storage.DSN())
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer database.Close()

	if err := db.Migrate(database); err != nil {
		return err
	}
	slog.Info("database ready", "driver", cfg.Storage.Driver)

	jwtSecret := cfg.JWTSecret
	if jwtSecret == "" {
		// Load JWT secret from database (auto-generated on first run).
		jwtSecret, err = store.GetJWTSecret(ctx, database)
		if err != nil {
			return err
		}
	}

	entities, err := entityStores(ctx, cfg, database)
	if err != nil {
		return err
	}
	defer entities.close()
	slog.Info("entity store ready", "backend", cfg.Storage.Entities)

	blobs, err := blob.Open(ctx, cfg.Blob.Store())
	if err != nil {
		return fmt.Errorf("opening blob store: %w", err)
	}
	slog.Info("blob store ready", "driver", blobs.Driver())

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	coord := media.New(blobs, slog.Default(), m)
	coord.QRSize = cfg.QRSize

	hub := live.NewHub(slog.Default())

	svc := workflow.NewService(entities.docs, entities.locs, coord)
	svc.Metrics = m
	svc.Publisher = hub

	mux := http.NewServeMux()
	mux.Handle("/api/", api.NewRouter(api.Deps{
		DB:             database,
		JWTSecret:      jwtSecret,
		Service:        svc,
		Hub:            hub,
		MaxUploadBytes: cfg.MaxUploadBytes,
	}))
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("GET /readyz", api.ReadyHandler(map[string]api.Check{
		"database": database.PingContext,
		"entities": entities.ping,
	}))

	// Local blobs are served by us; remote drivers hand out their own URLs.
	if blobs.Driver() == blob.DriverFilesystem && strings.HasPrefix(cfg.Blob.PublicURL, "/") {
		prefix := strings.TrimRight(cfg.Blob.PublicURL, "/") + "/"
		mux.Handle("GET "+prefix, http.StripPrefix(prefix, http.FileServer(http.Dir(cfg.Blob.FSRoot))))
	}

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.LoggingMiddleware(m)(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
	}()

	slog.Info("server started", "addr", cfg.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		return err
	}

	slog.Info("server stopped, closing database")
	return nil
}

