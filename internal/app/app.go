package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/gorilla/websocket"

	"github.com/Spenny12/Google-Trends-bulk-tool/internal/config"
	apierrors "github.com/Spenny12/Google-Trends-bulk-tool/internal/errors"
	"github.com/Spenny12/Google-Trends-bulk-tool/internal/exporter"
	"github.com/Spenny12/Google-Trends-bulk-tool/internal/infrastructure"
	custommw "github.com/Spenny12/Google-Trends-bulk-tool/internal/middleware"
	"github.com/Spenny12/Google-Trends-bulk-tool/internal/pipeline"
	"github.com/Spenny12/Google-Trends-bulk-tool/internal/services"
	handlers "github.com/Spenny12/Google-Trends-bulk-tool/internal/transport/http"
	"github.com/Spenny12/Google-Trends-bulk-tool/internal/trends"
	ws "github.com/Spenny12/Google-Trends-bulk-tool/internal/websocket"
)

const AppName = "Google Trends Bulk Tool"

var (
	// Version and BuildTime are set at compile time via ldflags.
	Version   = "dev"
	BuildTime = ""
)

// Application holds the wired components of the running server.
type Application struct {
	Config        *config.Config
	Router        *chi.Mux
	Server        *http.Server
	Hub           *ws.Hub
	Uploads       *services.UploadStore
	Runs          *services.RunService
	Health        *services.HealthService
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders

	metrics *infrastructure.BusinessMetrics
}

// NewApplication builds the application from configuration.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("application starting",
		slog.String("name", AppName),
		slog.String("version", Version))

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to ensure directories: %w", err)
	}

	app := &Application{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initializeServices(); err != nil {
		return nil, err
	}

	app.setupRouter()
	app.createServer()

	return app, nil
}

// initializeServices constructs the service graph in dependency order.
func (a *Application) initializeServices() error {
	providers, err := infrastructure.InitializeOTel(nil, a.Logger)
	if err != nil {
		a.Logger.Warn("telemetry disabled", slog.String("error", err.Error()))
	} else {
		a.OTelProviders = providers
	}

	a.Hub = ws.NewHub(a.Logger)
	a.Hub.Start()

	trendsClient, err := trends.NewHTTPClient(trends.ClientConfig{
		BaseURL:           a.Config.Trends.BaseURL,
		HostLanguage:      a.Config.Trends.HostLanguage,
		TimezoneOffset:    a.Config.Trends.TimezoneOffset,
		Timeout:           a.Config.Trends.RequestTimeout,
		RequestsPerSecond: a.Config.Trends.RPS,
		Burst:             a.Config.Trends.Burst,
	}, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create trends client: %w", err)
	}

	var metrics *infrastructure.BusinessMetrics
	if a.OTelProviders != nil {
		metrics, err = infrastructure.CreateBusinessMetrics(a.OTelProviders.Meter)
		if err != nil {
			a.Logger.Warn("business metrics disabled", slog.String("error", err.Error()))
		}
	}
	a.metrics = metrics

	runner := pipeline.NewRunner(trendsClient, a.Config.Trends.BatchSize, a.Logger, metrics)
	csvExporter := exporter.NewCSVExporter(a.Config.Paths.ExportsDir, a.Logger)

	a.Uploads = services.NewUploadStore()

	hub := a.Hub
	progress := func(runID string) pipeline.ProgressReporter {
		return ws.NewRunReporter(hub, runID)
	}

	a.Runs = services.NewRunService(
		a.Uploads,
		runner,
		csvExporter,
		progress,
		a.Config.Server.RunTimeout,
		a.Logger,
		metrics,
	)
	a.Runs.SetStatusNotifier(func(runID, status, stage string) {
		hub.BroadcastRunStatus(runID, status, stage)
	})

	a.Health = services.NewHealthService(Version, BuildTime, a.Uploads, a.Runs, a.Hub, a.Logger)

	return nil
}

// setupRouter configures the HTTP router with all routes.
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	r.Use(custommw.RequestID)
	r.Use(custommw.RealIP)

	errorHandler := apierrors.NewErrorHandler(a.Logger, false)
	r.NotFound(errorHandler.NotFound)
	r.MethodNotAllowed(errorHandler.MethodNotAllowed)

	// WebSocket upgrades bypass the JSON middleware stack.
	r.With(custommw.WebSocketTraceMiddleware(a.Logger)).HandleFunc("/ws", a.handleWebSocket)

	r.Group(func(r chi.Router) {
		if a.OTelProviders != nil {
			if otelMW, err := custommw.NewOTelMiddleware(a.OTelProviders); err == nil {
				r.Use(otelMW.Handler)
			} else {
				a.Logger.Warn("otel middleware disabled", slog.String("error", err.Error()))
			}
		}

		r.Use(custommw.StructuredLogger(a.Logger))
		r.Use(custommw.Recoverer(a.Logger))
		r.Use(custommw.SecurityHeaders)

		if a.Config.Security.EnableCORS {
			r.Use(custommw.CORS(custommw.CORSConfig{
				AllowedOrigins:   a.Config.Security.AllowedOrigins,
				AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
				AllowCredentials: false,
				MaxAge:           300,
				Logger:           a.Logger,
			}))
		}

		if a.Config.Security.RateLimit.Enabled {
			r.Use(custommw.NewRateLimiter(
				a.Config.Security.RateLimit.RPS,
				a.Config.Security.RateLimit.Burst,
				a.Logger,
			).Handler)
		}

		a.setupAPIRoutes(r)

		r.Get("/", handlers.ServeIndex())
	})

	a.Router = r
}

// setupAPIRoutes mounts the JSON API.
func (a *Application) setupAPIRoutes(r chi.Router) {
	healthHandler := handlers.NewHealthHandler(a.Health, a.Logger)
	queriesHandler := handlers.NewQueriesHandler(a.Uploads, a.Logger)
	queriesHandler.SetMetrics(a.metrics)
	runsHandler := handlers.NewRunsHandler(a.Runs, a.Logger)

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Get("/health", healthHandler.Health)
		r.Get("/version", healthHandler.Version)

		r.Mount("/queries", queriesHandler.Routes())
		r.Mount("/runs", runsHandler.Routes())
	})

	if a.OTelProviders != nil && a.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)
	}
}

// handleWebSocket upgrades the connection and hands it to the hub.
func (a *Application) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  a.Config.WebSocket.ReadBufferSize,
		WriteBufferSize: a.Config.WebSocket.WriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range a.Config.Security.AllowedOrigins {
				if allowed == "*" || allowed == origin {
					return true
				}
			}
			return false
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.Logger.ErrorContext(r.Context(), "websocket upgrade failed",
			slog.String("error", err.Error()),
			slog.String("origin", r.Header.Get("Origin")),
			slog.String("remote_addr", custommw.GetRealIP(r)))
		apierrors.WriteError(w, apierrors.ErrWebSocketUpgrade)
		return
	}

	ws.ServeWS(a.Hub, conn, infrastructure.GetTraceID(r.Context()))
}

// createServer builds the http.Server around the router.
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
	}
}

// Start runs the HTTP server until the context is cancelled.
func (a *Application) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("http server listening", slog.String("addr", a.Server.Addr))
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		return a.Stop(context.Background())
	}
}

// Stop gracefully shuts the application down.
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	a.Hub.Stop()

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}

	if err := infrastructure.CloseLogFile(); err != nil {
		a.Logger.Warn("log file close failed", slog.String("error", err.Error()))
	}

	return nil
}

// Run starts the application and blocks until SIGINT or SIGTERM.
func (a *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	err := a.Start(ctx)
	a.Logger.Info("application stopped", slog.Duration("uptime", time.Since(start)))
	return err
}
