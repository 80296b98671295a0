package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/solatis/healthsignals/internal/core/config"
	"github.com/solatis/healthsignals/internal/core/logging"
)

var (
	configFile string
	dbURL      string
	logLevel   string
	logFormat  string

	logger = slog.New(slog.DiscardHandler)
)

var rootCmd = &cobra.Command{
	Use:           "healthsignals",
	Short:         "Health signal rule matching engine",
	Long:          `healthsignals evaluates a sheet of guidance rules against a user's health metrics and returns the matching tips ranked by priority.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		l, err := logging.NewLogger(cmd.ErrOrStderr(), logLevel, logFormat)
		if err != nil {
			return err
		}
		logger = l
		slog.SetDefault(l)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db-url", "", "audit database URL (sqlite://path or postgres://...), overrides "+config.DatabaseURLEnv)
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level ("+strings.Join(logging.AllLevels, ", ")+")")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "log format ("+strings.Join(logging.AllFormats, ", ")+")")
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

// databaseURL returns --db-url, falling back to the environment.
func databaseURL() string {
	if dbURL != "" {
		return dbURL
	}
	return config.DatabaseURL()
}
