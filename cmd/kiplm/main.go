// Command kiplm keeps a KiCad database library in sync with a directory of
// CSV part tables and serves the catalog over HTTP.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/kiplm/kiplm/internal/config"
	"github.com/kiplm/kiplm/internal/logging"
)

var (
	cfgFile string
	v       = viper.New()
	cfg     *config.Config
	logger  = zap.NewNop()
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "kiplm",
	Short: "KiCad parts catalog backed by CSV tables",
	Long: `kiplm manages an electronic parts catalog stored as one CSV file per
category (db/RES.csv, db/CAP.csv, ...).

From these tables it builds a SQLite mirror and a .kicad_dbl descriptor so
KiCad can use the catalog as a database library, and it serves an HTTP API
for browser integrations that look up and create parts.

Settings are read from kiplm.toml in the working directory (or --config),
overridden by KIPLM_* environment variables and then by flags.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Annotations[skipConfigAnnotation] == "true" {
			return nil
		}

		var err error
		cfg, err = config.Load(v, cfgFile)
		if err != nil {
			return err
		}

		level := cfg.Log.Level
		if verbose {
			level = "debug"
		}
		logger, err = logging.New(logging.Options{
			Level:      level,
			File:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

// skipConfigAnnotation marks commands that run without loading kiplm.toml.
const skipConfigAnnotation = "kiplm.skip-config"

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "catalog", Title: "Catalog Commands:"},
		&cobra.Group{ID: "server", Title: "Server Commands:"},
		&cobra.Group{ID: "setup", Title: "Setup Commands:"},
	)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default ./kiplm.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("db-dir", "", "Directory holding the CSV tables")
	_ = v.BindPFlag("db_dir", rootCmd.PersistentFlags().Lookup("db-dir"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errBuildFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
