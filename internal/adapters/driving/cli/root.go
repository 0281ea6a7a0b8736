// Package cli provides the tripctx command line interface.
package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tripsync/tripctx/internal/adapters/driven/config"
	"github.com/tripsync/tripctx/internal/adapters/driven/config/file"
	"github.com/tripsync/tripctx/internal/app"
	"github.com/tripsync/tripctx/internal/core/domain"
	"github.com/tripsync/tripctx/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

var (
	configPath string
	verbose    bool
	callerID   string
	tripID     string
)

// engine holds the wired services. Commands read it after PersistentPreRunE.
// ownsEngine is false when the engine was injected rather than built here.
var (
	engine     *app.App
	ownsEngine bool
)

var rootCmd = &cobra.Command{
	Use:   "tripctx",
	Short: "Trip context retrieval and prompt assembly",
	Long: `tripctx ingests trip documents, retrieves the most relevant passages for
a question and assembles them with live trip data into a bounded prompt.

Every command runs as the caller given by --caller, who must be an active
member of the trip given by --trip.`,
	SilenceUsage:       true,
	PersistentPreRunE:  setupEngine,
	PersistentPostRunE: teardownEngine,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.tripctx/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&callerID, "caller", os.Getenv("TRIPCTX_CALLER"), "user ID of the caller")
	rootCmd.PersistentFlags().StringVarP(&tripID, "trip", "t", os.Getenv("TRIPCTX_TRIP"), "trip ID")
}

// Execute runs the root command and releases the engine even when the
// command failed.
func Execute() error {
	err := rootCmd.Execute()
	if cerr := teardownEngine(rootCmd, nil); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// needsEngine reports whether cmd uses services. Help, version and the
// settings commands do not.
func needsEngine(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "version", "help", "settings", "completion":
			return false
		}
	}
	return cmd.Name() != "tripctx" && cmd.Runnable()
}

func setupEngine(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(verbose)
	logger.SetOutput(cmd.ErrOrStderr())

	if engine != nil || !needsEngine(cmd) {
		return nil
	}

	loadDotEnv()

	store, err := file.NewConfigStore(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	settings, err := config.LoadSettings(store, os.Getenv)
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}
	logger.Debug("Config: %s", store.Path())

	a, err := app.Build(cmd.Context(), settings, filepath.Dir(store.Path()))
	if err != nil {
		return err
	}
	engine, ownsEngine = a, true
	return nil
}

// loadDotEnv merges ./.env into the environment. A missing file is normal.
func loadDotEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("Reading .env: %v", err)
	}
}

func teardownEngine(_ *cobra.Command, _ []string) error {
	if engine == nil || !ownsEngine {
		return nil
	}
	err := engine.Close()
	engine, ownsEngine = nil, false
	return err
}

// requireCaller returns the trip and caller flags, failing when either is empty.
func requireCaller() (string, string, error) {
	trip, caller := strings.TrimSpace(tripID), strings.TrimSpace(callerID)
	if trip == "" {
		return "", "", fmt.Errorf("%w: --trip is required", domain.ErrInvalidInput)
	}
	if caller == "" {
		return "", "", fmt.Errorf("%w: --caller is required", domain.ErrInvalidInput)
	}
	return trip, caller, nil
}
