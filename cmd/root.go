package cmd

import (
	"context"
	"errors"
	"fmt"
	"globekeys/internal/config"
	"globekeys/internal/utils"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

// Set by main from the build's ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

var (
	configPath string
	quiet      bool
)

var rootCmd = &cobra.Command{
	Use:   "globekeys",
	Short: "Translation key extraction and message catalog sync for next-globe-gen projects",
	Long: `globekeys statically extracts the translation keys used with next-globe-gen
from JavaScript and TypeScript sources and keeps every locale's message
catalog in sync with them.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("globekeys %s (commit %s, built %s)\n", Version, GitCommit, BuildTime)
	},
}

// project is the loaded configuration of the current command
type project struct {
	cfg       *config.Config
	projectID string
}

func loadProject() (*project, error) {
	// Load shared config (~/.globekeys/config.json) so OPENAI_*/QDRANT_*
	// from that file are visible as env vars.
	if err := config.LoadFromUserConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "⚠ Failed to load user config: %v\n", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		if errors.Is(err, config.ErrConfigNotFound) {
			return nil, fmt.Errorf("%w (run in the project root or pass --config)", err)
		}
		return nil, err
	}
	if err := config.LoadDotEnv(cfg.Dir); err != nil {
		fmt.Fprintf(os.Stderr, "⚠ %v\n", err)
	}

	projectID, err := utils.ComputeProjectID(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to compute project id: %w", err)
	}
	return &project{cfg: cfg, projectID: projectID}, nil
}

func logf(format string, args ...interface{}) {
	if quiet {
		return
	}
	fmt.Printf(format, args...)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultFileName, "Path to the project config file")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Only print results and errors")

	rootCmd.AddCommand(versionCmd)
}

func Execute() error {
	return rootCmd.Execute()
}
