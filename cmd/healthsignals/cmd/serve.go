package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/solatis/healthsignals/internal/core/api"
	"github.com/solatis/healthsignals/internal/core/config"
	"github.com/solatis/healthsignals/internal/core/db"
	"github.com/solatis/healthsignals/internal/core/metrics"
	"github.com/solatis/healthsignals/internal/core/server"
	"github.com/solatis/healthsignals/internal/rules"
)

const Version = "0.1.0"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gRPC and HTTP evaluation service",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "0.0.0.0", "listen host")
	serveCmd.Flags().Int("grpc-port", 50051, "gRPC server port")
	serveCmd.Flags().Int("http-port", 8080, "HTTP server port")
	serveCmd.Flags().String("rules", "", "CSV rule sheet used when a request carries no inline rules")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []api.Option{
		api.WithLogger(logger),
		api.WithMetrics(metrics.New()),
	}

	// Audit log is optional
	if url := databaseURL(); url != "" {
		database, err := openMigrated(ctx, url)
		if err != nil {
			return err
		}
		defer database.Close()

		store, err := db.NewAuditStore(database)
		if err != nil {
			return fmt.Errorf("failed to create audit store: %w", err)
		}
		opts = append(opts, api.WithAuditStore(store))
		logger.Info("audit log enabled", "database", config.RedactURL(url))
	} else {
		logger.Info("audit log disabled", "hint", "set "+config.DatabaseURLEnv+" or --db-url")
	}

	service, err := api.NewEvaluationService(rules.NewEngine(logger), cfg, opts...)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	grpcServer, err := server.NewGRPCServer(cfg, service, logger)
	if err != nil {
		return fmt.Errorf("failed to create grpc server: %w", err)
	}

	// http_port 0 disables the HTTP listener
	var httpServer *server.HTTPServer
	if cfg.HTTPPort != 0 {
		httpServer, err = server.NewHTTPServer(cfg, service, logger)
		if err != nil {
			return fmt.Errorf("failed to create http server: %w", err)
		}
	}

	logger.Info("starting healthsignals",
		"version", Version,
		"grpc", cfg.GRPCAddr(),
		"http_enabled", httpServer != nil,
		"http", cfg.HTTPAddr(),
		"rules", cfg.RulesPath)

	errChan := make(chan error, 2)
	go func() { errChan <- grpcServer.Start(ctx) }()
	if httpServer != nil {
		go func() { errChan <- httpServer.Start(ctx) }()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case runErr = <-errChan:
	case <-sigChan:
		logger.Info("shutting down gracefully")
	}

	if httpServer != nil {
		if err := httpServer.Shutdown(ctx); err != nil && runErr == nil {
			runErr = err
		}
	}
	if err := grpcServer.Shutdown(ctx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// loadConfig loads the config file and applies command-line overrides.
func loadConfig(cmd *cobra.Command) (*config.ServiceConfig, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Host, _ = flags.GetString("host")
	}
	if flags.Changed("grpc-port") {
		cfg.GRPCPort, _ = flags.GetInt("grpc-port")
	}
	if flags.Changed("http-port") {
		cfg.HTTPPort, _ = flags.GetInt("http-port")
	}
	if flags.Changed("rules") {
		cfg.RulesPath, _ = flags.GetString("rules")
	}
	return cfg, nil
}

// openMigrated opens the audit database and requires every embedded
// migration to be applied.
func openMigrated(ctx context.Context, url string) (*sqlx.DB, error) {
	database, err := db.Open(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	statuses, err := db.MigrateStatus(ctx, database)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to check migrations: %w", err)
	}
	for _, s := range statuses {
		if !s.Applied {
			database.Close()
			return nil, fmt.Errorf("migration %s not applied - run 'healthsignals migrate up' first", s.ID)
		}
	}
	return database, nil
}
