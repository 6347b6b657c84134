// Package internal provides the main application initialization and runtime logic.
package internal

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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/remi/internal/api"
	"github.com/starford/remi/internal/bookmarks"
	"github.com/starford/remi/internal/console"
	"github.com/starford/remi/internal/models"
	"github.com/starford/remi/internal/session"
	"github.com/starford/remi/internal/sse"
	"github.com/starford/remi/internal/storage"
	"github.com/starford/remi/internal/store"
	"github.com/starford/remi/internal/transport"
	"github.com/starford/remi/internal/trust"
)

// components are the long-lived pieces shared by every command.
type components struct {
	files     *storage.FS
	db        *store.DB
	trust     *trust.Manager
	engine    *session.Engine
	bookmarks *bookmarks.Service
}

func (c *components) Close() error {
	return c.db.Close()
}

func newApplication(opts []Option) (*application, error) {
	app := &application{
		logWriter: os.Stdout,
		output:    os.Stdout,
	}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

func (a *application) newLogger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(a.logWriter, &slog.HandlerOptions{
		Level: a.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// build opens storage and the database and assembles the session engine.
func (a *application) build(logger *slog.Logger) (*components, error) {
	cfg := a.config

	if err := os.MkdirAll(cfg.Data.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	files, err := storage.NewFS(cfg.Data.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	mode, err := trust.ParseMode(cfg.Trust.Mode)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	trustManager := trust.NewManager(db,
		trust.WithMode(mode),
		trust.WithLogger(logger),
	)

	client := transport.NewClient(trustManager,
		transport.WithTimeout(cfg.Gemini.Timeout),
		transport.WithMaxResponseSize(cfg.Gemini.MaxResponseSize),
		transport.WithLogger(logger),
	)

	engine := session.New(client,
		session.WithHome(cfg.Gemini.HomeLocation()),
		session.WithMaxRedirects(cfg.Gemini.MaxRedirects),
		session.WithRefetchOnReplay(cfg.Gemini.RefetchOnReplay),
		session.WithHistoryCap(cfg.Gemini.HistoryCap),
		session.WithRecorder(db),
		session.WithLogger(logger),
	)

	marks, err := bookmarks.NewService(files, logger)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init bookmarks: %w", err)
	}

	return &components{
		files:     files,
		db:        db,
		trust:     trustManager,
		engine:    engine,
		bookmarks: marks,
	}, nil
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.newLogger()

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("home", cfg.Gemini.Home),
		slog.String("trust_mode", cfg.Trust.Mode),
		slog.String("data_path", cfg.Data.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	c, err := app.build(logger)
	if err != nil {
		return err
	}
	defer c.Close()

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	c.engine.OnCommit(func(res *session.Result) {
		data := map[string]string{"id": res.ID, "url": res.Location.String()}
		if res.Document != nil {
			data["title"] = res.Document.Title()
		}
		broker.Publish(sse.Event{Type: sse.EventNavigationCommitted, Data: data})
	})
	c.engine.Console().OnAppend(func(e console.Entry) {
		broker.Publish(sse.Event{Type: sse.EventConsoleAppended, Data: e})
	})
	c.bookmarks.OnChange(func(items []models.Bookmark) {
		broker.PublishBookmarks(len(items))
	})

	apiRouter := api.NewRouter(api.Deps{
		Engine:    c.engine,
		Bookmarks: c.bookmarks,
		Pages:     c.db,
		Hosts:     c.trust,
		Downloads: api.NewDownloads(c.files),
	}, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		if err := c.db.Ping(); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Reload bookmarks edited outside the app.
	g.Go(func() error {
		if err := c.bookmarks.Watch(gCtx, c.files.Root()); err != nil {
			logger.Warn("bookmarks watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")
		c.engine.Cancel()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown ends the errgroup so the watcher's context is cancelled.
var errShutdown = errors.New("shutdown")
