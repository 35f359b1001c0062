package main

import (
	"log/slog"
	"os"

	"github.com/spotlightworks/spotlight/spotlight/logger"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "spotlightctl",
	Short: "operational tooling for the spotlight economy service",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.toml", "path to config")
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(finalizeCmd)
	rootCmd.AddCommand(sweepCmd)
}

func main() {
	slog.SetDefault(slog.New(logger.NewHandler(slog.LevelInfo)))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
