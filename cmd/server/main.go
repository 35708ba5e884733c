package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"promptflows/backend/internal/api"
	"promptflows/backend/internal/auth"
	"promptflows/backend/internal/config"
	"promptflows/backend/internal/logging"
	"promptflows/backend/internal/mcp"
	"promptflows/backend/internal/repository"
	"promptflows/backend/internal/services"
	"promptflows/backend/internal/telemetry"
)

const version = "1.0.0"

// rootOptions holds flags shared by every subcommand.
type rootOptions struct {
	configPath string
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "promptflows",
		Short:         "PromptFlows content service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config file (default: ./config.yaml)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newRecountCommand(opts))
	return cmd
}

// app is the wired storage and service layer shared by subcommands.
type app struct {
	cfg     *config.Config
	logger  *logging.Logger
	repo    repository.Repository
	service *services.Service
	pools   []*pgxpool.Pool
}

func (r *app) Close() {
	for _, p := range r.pools {
		p.Close()
	}
}

func setup(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	logger := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})

	rt := &app{cfg: cfg, logger: logger}
	var counters repository.CounterStore
	switch cfg.DB.Driver {
	case "memory":
		store := repository.NewMemoryStore()
		rt.repo, counters = store, store
		logger.Warn("using in-memory storage; data is lost on exit")
	default:
		pool, err := initDatabase(ctx, cfg.ConnString(), logger)
		if err != nil {
			return nil, err
		}
		rt.pools = append(rt.pools, pool)
		rt.repo = repository.NewPostgresStore(pool)

		counterPool := pool
		if cfg.DB.Elevated.User != "" {
			counterPool, err = initDatabase(ctx, cfg.ElevatedConnString(), logger)
			if err != nil {
				rt.Close()
				return nil, fmt.Errorf("elevated pool: %w", err)
			}
			rt.pools = append(rt.pools, counterPool)
		}
		counters = repository.NewPostgresCounterStore(counterPool)
	}

	rt.service = services.NewService(rt.repo, counters, logger, cfg.Engine)
	return rt, nil
}

func initDatabase(ctx context.Context, connStr string, logger *logging.Logger) (*pgxpool.Pool, error) {
	logger.Debug("Initializing database connection")

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and MCP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := setup(ctx, opts)
			if err != nil {
				return err
			}
			defer rt.Close()
			return serve(ctx, rt)
		},
	}
}

func serve(ctx context.Context, rt *app) error {
	cfg, logger := rt.cfg, rt.logger
	logger.Info("Configuration loaded",
		"environment", cfg.Environment,
		"db_driver", cfg.DB.Driver,
		"okta_domain", cfg.Auth.OktaDomain,
		"okta_client_id", cfg.Auth.ClientID,
		"swagger_client_id", cfg.Auth.SwaggerClientID,
	)
	if cfg.Auth.SwaggerClientID != "" && cfg.Auth.SwaggerClientID == cfg.Auth.ClientID {
		logger.Warn("swagger client id matches the backend client id; PKCE login from the docs page will fail for a confidential client")
	}

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry, version)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Error("Telemetry shutdown error", "error", err)
		}
	}()
	logger.Info("Telemetry initialized", "enabled", cfg.Telemetry.Enabled, "otlp_endpoint", cfg.Telemetry.OTLPEndpoint)

	authz, err := auth.New(ctx, cfg, rt.service, logger)
	if err != nil {
		return fmt.Errorf("auth initialization failed: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = api.ErrorHandler(logger)
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware("promptflows"))

	handler := api.NewHandler(rt.service, rt.repo, logger)
	e.GET("/health", handler.HandleHealth)

	e.GET("/login", echo.WrapHandler(http.HandlerFunc(authz.LoginHandler)))
	e.GET("/auth/callback", echo.WrapHandler(http.HandlerFunc(authz.CallbackHandler)))
	e.GET("/logout", echo.WrapHandler(http.HandlerFunc(authz.LogoutHandler)))

	apiGroup := e.Group("/api/v1")
	apiGroup.Use(echo.WrapMiddleware(authz.RequireAuth))
	api.RegisterHandlers(apiGroup, handler)
	logger.Info("REST API handlers mounted")

	if cfg.MCP.Enabled {
		mcpServer := mcp.NewServer(rt.service, logger)
		e.Any(cfg.MCP.BasePath, echo.WrapHandler(authz.RequireAuth(mcpServer.Handler(cfg.MCP.BasePath))))
		logger.Info("MCP protocol handlers mounted", "path", cfg.MCP.BasePath)
	}

	e.GET("/openapi.yaml", echo.WrapHandler(api.SpecHandler(cfg.Auth.OktaDomain)))
	e.GET("/docs", echo.WrapHandler(api.SwaggerHandler(cfg.Auth.OktaDomain, cfg.Auth.SwaggerClientID)))
	e.GET("/docs/oauth2-redirect.html", echo.WrapHandler(api.OAuth2RedirectHandler()))

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      e,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "address", cfg.Server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
		if err := server.Close(); err != nil {
			logger.Error("Server close error", "error", err)
		}
		return err
	}
	logger.Info("Server stopped gracefully")
	return nil
}
