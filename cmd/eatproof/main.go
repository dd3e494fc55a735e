package main

import (
	"fmt"
	"os"

	"github.com/franckalain/eatproof/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	configPath string
	verbose    bool
	logger     *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "eatproof",
	Short: "eatproof scores scanned products for consumer safety",
	Long: `eatproof is the backend for the Eatproof product-safety scanner.

It computes a 0-100 safety score for a scanned product from its ingredient
list and packaging metadata, flags allergens against a reference table, and
serves scan history, health profiles and recall notices to the client app.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Environment overrides are optional; a missing .env is fine.
		_ = godotenv.Load()

		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// loadConfig reads the config file when one exists and falls back to
// defaults otherwise, so a bare `eatproof serve` works out of the box.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.GetConfigPath()
	}
	if _, err := os.Stat(path); err != nil {
		if configPath != "" {
			return nil, fmt.Errorf("config file %s not found", configPath)
		}
		return config.Default(), nil
	}
	return config.LoadConfig(path)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(analyzeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
