// Package handlers wires the CLI commands to the analysis pipeline.
package handlers

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"pulse/internal/config"
	"pulse/internal/logger"
)

var cfgFile string

// NewRootCmd creates the root command with all subcommands attached
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pulse",
		Short: "Pulse analyzes public discussion of a keyword and writes a cited report.",
		Long: `Pulse collects posts and comments about a keyword, filters them for
relevance with an LLM judge, clusters them by topic, and synthesizes a
multi-section report with numbered citations back to the sources.`,
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.pulse.yaml)")

	rootCmd.AddCommand(NewAnalyzeCmd())
	rootCmd.AddCommand(NewReportCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if cfg.App.Debug || cfg.App.LogLevel == "debug" {
		level = slog.LevelDebug
	}
	logger.Init(level)
}
