package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"aisum/internal/config"
	"aisum/internal/slogutil"
	"aisum/internal/version"
)

var (
	configPath   string
	verbosity    int
	quiet        bool
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "aisum",
	Short: "aisum - AI status summaries for Jira issue hierarchies",
	Long: `aisum writes AI-generated status summaries into Jira issues. Summaries roll up
from sub-tasks and stories to epics, features and initiatives, and are only
regenerated when something below an issue changed since its last summary.`,
	Version:       version.String(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate(version.Details() + "\n")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ./aisum.json or ~/.aisum/aisum.json)")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "More logging (-v info, -vv debug)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Only log errors")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "human", "Output format (human, json, yaml)")
}

// loadConfig reads the config file and environment.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// levelOverride maps -v and -q onto a log level, or nil to keep the config's.
func levelOverride() *slog.Level {
	if verbosity == 0 && !quiet {
		return nil
	}
	level := slogutil.LevelFromVerbosity(verbosity, quiet)
	return &level
}

// fatal prints err and exits, the way every command reports failure.
func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
