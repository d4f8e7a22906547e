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
	_ "time/tzdata"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"schedule-management-backend/internal/api"
	"schedule-management-backend/internal/config"
	"schedule-management-backend/internal/db"
	"schedule-management-backend/internal/logging"
)

var (
	// Global flags
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "schedule-api",
	Short: "Schedule management backend",
	Long: `HTTP API for importing class schedules from CSV, analyzing the rows
into calendar events and keeping the resulting tasks.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		logger, err = logging.New(cfg.Logging, verbose)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the analysis worker",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE:  runMigrate,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func connect(ctx context.Context) (*db.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	database, err := db.Connect(cfg.Database.Driver, cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Database.Driver, err)
	}
	if err := database.Migrate(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return database, nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	database, err := connect(cmd.Context())
	if err != nil {
		return err
	}
	defer database.Close()

	logger.Info("schema up to date", zap.String("driver", cfg.Database.Driver))
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := connect(ctx)
	if err != nil {
		return err
	}
	defer database.Close()
	logger.Info("connected to database", zap.String("driver", cfg.Database.Driver))

	srv, err := api.New(ctx, cfg, database, logger)
	if err != nil {
		return err
	}

	workerCtx, cancelWorker := context.WithCancel(context.Background())
	srv.Worker.Start(workerCtx)

	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           srv.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("API server is running", zap.String("addr", cfg.HTTP.Addr))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if serr := httpSrv.Shutdown(shutdownCtx); serr != nil {
		logger.Warn("http shutdown", zap.Error(serr))
	}

	// in-flight analyses stay "processing" and are resumed by the next start
	cancelWorker()
	srv.Worker.Stop()
	return err
}
