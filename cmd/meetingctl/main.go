// Package main is meetingctl, an operator CLI for the meeting index.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"meeting-rag-api/internal/config"
	"meeting-rag-api/pkg/logger"
)

var (
	configDir string
	logLevel  string
	cfg       *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "meetingctl",
	Short:         "Manage and query the meeting index",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		_ = godotenv.Load()
		var err error
		if configDir != "" {
			cfg, err = config.LoadFrom(configDir)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		logger.InitWithWriter(cmd.ErrOrStderr(), logLevel, "text")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "directory holding config.yaml")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
