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

	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-gateway/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-gateway/pkg/adapters/datasource/mssql"
	"github.com/ekaya-inc/ekaya-gateway/pkg/adapters/datasource/postgres"
	"github.com/ekaya-inc/ekaya-gateway/pkg/config"
	"github.com/ekaya-inc/ekaya-gateway/pkg/handlers"
	"github.com/ekaya-inc/ekaya-gateway/pkg/logging"
	"github.com/ekaya-inc/ekaya-gateway/pkg/mcp"
	"github.com/ekaya-inc/ekaya-gateway/pkg/mcp/tools"
	"github.com/ekaya-inc/ekaya-gateway/pkg/metrics"
	"github.com/ekaya-inc/ekaya-gateway/pkg/middleware"
	"github.com/ekaya-inc/ekaya-gateway/pkg/models"
	"github.com/ekaya-inc/ekaya-gateway/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

const (
	serviceName     = "ekaya-gateway"
	shutdownTimeout = 30 * time.Second
)

var rootCmd = &cobra.Command{
	Use:   serviceName,
	Short: "Read-only SQL gateway for PostgreSQL and SQL Server",
	Long: `ekaya-gateway executes validated, parameterized, paginated read-only
queries against a pooled PostgreSQL backend and an optional SQL Server backend,
over HTTP and MCP.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and MCP server",
	Long: `Start the gateway with the specified configuration.

Example:
  ekaya-gateway serve --config ./config.yaml
  PGHOST=db.internal MSSQL_CONN_STR=... ekaya-gateway serve`,
	RunE: runServe,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Probe every configured database once and exit",
	Long:  "Runs the health probe once. Exits non-zero when the pooled database is unreachable.",
	RunE:  runCheck,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", os.Getenv("CONFIG_FILE"), "config file path (env CONFIG_FILE)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s %s\n", serviceName, Version)
		},
	})
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// gateway holds the wired components shared by serve and check.
type gateway struct {
	cfg         *config.Config
	logger      *zap.Logger
	registry    *prometheus.Registry
	connections *datasource.ConnectionManager
	query       services.QueryService
	schema      services.SchemaService
	health      services.HealthService
}

func loadGateway(cmd *cobra.Command) (*gateway, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path, Version)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	g, err := newGateway(cmd.Context(), cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return g, nil
}

func newGateway(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*gateway, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.New(registry)

	connections := datasource.NewConnectionManager(
		datasource.ConnectionManagerConfig{AcquireTimeout: cfg.Pooled.AcquireTimeout},
		logger,
		rec,
	)

	pooled, err := postgres.NewConnector(ctx, pooledConnectorConfig(cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create pooled backend: %w", err)
	}
	connections.Register(pooled)

	if cfg.ODBC.Configured() {
		odbc, err := mssql.NewConnector(odbcConnectorConfig(cfg), logger)
		if err != nil {
			_ = connections.Close()
			return nil, fmt.Errorf("failed to create odbc backend: %w", err)
		}
		connections.Register(odbc)
	} else {
		logger.Info("ODBC backend not configured; requests for it will be rejected")
	}

	dialects := datasource.NewRegistry(postgres.NewDialect(), mssql.NewDialect())

	return &gateway{
		cfg:         cfg,
		logger:      logger,
		registry:    registry,
		connections: connections,
		query: services.NewQueryService(connections, dialects, services.QueryServiceConfig{
			MaxPageSize:      cfg.Query.MaxPageSize,
			DefaultPageSize:  cfg.Query.DefaultPageSize,
			StatementTimeout: cfg.Query.StatementTimeout,
			CountTimeout:     cfg.Query.CountTimeout,
			ExactCounts:      cfg.Query.ExactCounts,
		}, rec, logger),
		schema: services.NewSchemaService(connections, dialects, services.SchemaServiceConfig{
			CatalogTimeout: cfg.Query.StatementTimeout,
			CountTimeout:   cfg.Query.CountTimeout,
		}, rec, logger),
		health: services.NewHealthService(connections, services.DefaultHealthTimeout, logger),
	}, nil
}

// pooledConnectorConfig maps the pooled section onto the PostgreSQL connector.
func pooledConnectorConfig(cfg *config.Config) *postgres.Config {
	return &postgres.Config{
		Host:     config.ResolveHostForDocker(cfg.Pooled.Host),
		Port:     cfg.Pooled.Port,
		User:     cfg.Pooled.User,
		Password: cfg.Pooled.Password,
		Database: cfg.Pooled.Database,
		SSLMode:  cfg.Pooled.SSLMode,
		URL:      cfg.Pooled.URL,
		MinConns: cfg.Pooled.PoolMinConns,
		MaxConns: cfg.Pooled.PoolMaxConns,
	}
}

// odbcConnectorConfig maps the odbc section onto the SQL Server connector.
func odbcConnectorConfig(cfg *config.Config) *mssql.Config {
	return &mssql.Config{
		ConnString:             cfg.ODBC.ConnString,
		Host:                   config.ResolveHostForDocker(cfg.ODBC.Host),
		Port:                   cfg.ODBC.Port,
		Database:               cfg.ODBC.Database,
		Username:               cfg.ODBC.User,
		Password:               cfg.ODBC.Password,
		Encrypt:                cfg.ODBC.Encrypt,
		TrustServerCertificate: cfg.ODBC.TrustServerCertificate,
		ConnectTimeout:         cfg.ODBC.ConnectTimeout,
	}
}

// routes builds the HTTP mux with every gateway endpoint.
func (g *gateway) routes() http.Handler {
	mux := http.NewServeMux()

	handlers.NewHealthHandler(g.cfg, g.health, g.connections, g.logger).RegisterRoutes(mux)
	handlers.NewQueryHandler(g.query, g.logger).RegisterRoutes(mux)
	handlers.NewSchemaHandler(g.schema, g.logger).RegisterRoutes(mux)
	mux.Handle("GET /metrics", metrics.Handler(g.registry))

	if g.cfg.MCP.Enabled {
		audit := mcp.NewAuditLogger(g.logger)
		mcpServer := mcp.NewServer(serviceName, g.cfg.Version, g.logger, server.WithHooks(audit.Hooks()))
		tools.RegisterAll(mcpServer.MCP(), &tools.ToolDeps{
			QueryService:  g.query,
			SchemaService: g.schema,
			HealthService: g.health,
			Version:       g.cfg.Version,
			Logger:        g.logger.Named("mcp-tools"),
		})
		handlers.NewMCPHandler(mcpServer, g.logger).RegisterRoutes(mux)
	}

	return middleware.RequestID()(middleware.RequestLogger(g.logger)(mux))
}

func runServe(cmd *cobra.Command, args []string) error {
	g, err := loadGateway(cmd)
	if err != nil {
		return err
	}
	logger := g.logger
	defer func() { _ = logger.Sync() }()
	defer func() {
		if err := g.connections.Close(); err != nil {
			logger.Error("Error closing connections", zap.Error(err))
		}
	}()

	logger.Info("Starting ekaya-gateway",
		zap.String("version", g.cfg.Version),
		zap.String("env", g.cfg.Env),
		zap.String("addr", g.cfg.ListenAddr()),
		zap.Bool("odbc_configured", g.cfg.ODBC.Configured()),
		zap.Bool("mcp_enabled", g.cfg.MCP.Enabled),
		zap.Int("max_page_size", g.cfg.Query.MaxPageSize),
		zap.Duration("statement_timeout", g.cfg.Query.StatementTimeout),
	)

	srv := &http.Server{
		Addr:              g.cfg.ListenAddr(),
		Handler:           g.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		var err error
		if g.cfg.TLSCertPath != "" && g.cfg.TLSKeyPath != "" {
			logger.Info("Server listening (TLS)", zap.String("addr", srv.Addr))
			err = srv.ListenAndServeTLS(g.cfg.TLSCertPath, g.cfg.TLSKeyPath)
		} else {
			logger.Info("Server listening", zap.String("addr", srv.Addr))
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
		close(serverErrCh)
	}()

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-shutdownCh:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case err, ok := <-serverErrCh:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Error during server shutdown", zap.Error(err))
	}

	logger.Info("Server shutdown complete")
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	g, err := loadGateway(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = g.logger.Sync() }()
	defer func() { _ = g.connections.Close() }()

	report := g.health.Check(cmd.Context())
	fmt.Fprintf(cmd.OutOrStdout(), "status=%s pooled=%t odbc=%t message=%q\n",
		report.Status, report.DatabaseStatus.Pooled, report.DatabaseStatus.ODBC, report.Message)

	if report.Status != models.HealthStatusOK {
		return errors.New("pooled database is unreachable")
	}
	return nil
}
