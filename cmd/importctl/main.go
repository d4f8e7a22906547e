package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"schedule-management-backend/internal/client"
	"schedule-management-backend/internal/config"
	"schedule-management-backend/internal/logging"
)

var (
	// Global flags
	configPath string
	baseURL    string
	verbose    bool
	timeout    time.Duration

	logger *zap.Logger
	api    *client.Client
)

var rootCmd = &cobra.Command{
	Use:   "importctl",
	Short: "Import schedules and drive their analysis from the terminal",
	Long: `importctl uploads CSV class schedules to the schedule API, submits the
resulting entries for analysis and shows lock status and results.

Examples:
  importctl login --email sv@example.com
  importctl import tkb.csv --analyze --wait
  importctl status`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if baseURL != "" {
			cfg.Client.BaseURL = baseURL
		}

		logCfg := cfg.Logging
		logCfg.Format = "console"
		if !verbose {
			logCfg.Level = "warn"
		}
		logger, err = logging.New(logCfg, verbose)
		if err != nil {
			return err
		}

		tokens, err := client.NewFileTokenStore(cfg.Client.TokenFile)
		if err != nil {
			return err
		}
		api, err = client.FromConfig(cfg.Client, tokens, logger)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	defaultConfig := ""
	if dir, err := os.UserConfigDir(); err == nil {
		defaultConfig = dir + "/schedule-importctl/config.yaml"
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfig, "path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "API base URL (overrides config and API_BASE_URL)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log every API call")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall command timeout")

	rootCmd.AddCommand(loginCmd, logoutCmd, importCmd, entriesCmd, analyzeCmd, resultsCmd, statusCmd, unlockCmd, batchCmd)
}

// commandContext bounds a command by --timeout and Ctrl-C.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: ")+err.Error())
		os.Exit(1)
	}
}
