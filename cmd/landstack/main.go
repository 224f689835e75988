// Command landstack fits the stacked land-cover models and writes the
// probability rasters, models and reports of a run.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/YuminosukeSato/landstack/config"
	"github.com/YuminosukeSato/landstack/pkg/log"
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	configPath string
	logLevel   string
	noProgress bool
)

var rootCmd = &cobra.Command{
	Use:   "landstack",
	Short: "Stacked-ensemble land-cover probability mapping",
	Long: `landstack links survey points to a stack of feature rasters, fits a bank of
base learners per land-cover label, combines them with a per-label ensemble
and a multilabel stacker, and validates every stage on held-out points.

Example:
  landstack run -c run.yaml
  landstack link -c run.yaml
  landstack validate -c run.yaml
  landstack predict -c run.yaml --stage stack`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "landstack", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "landstack.yaml", "run configuration (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&noProgress, "no-progress", false, "disable raster prediction progress bars")
	rootCmd.AddCommand(runCmd, linkCmd, validateCmd, predictCmd, versionCmd)
}

// loadConfig reads the configuration and installs the global logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := log.SetupLogger(cfg.Logging.Level, cfg.Logging.Pretty); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.GetLogger().Error("landstack failed", err)
		stop()
		os.Exit(1)
	}
}
