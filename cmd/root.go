package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/obsched/config"
	"github.com/kilianp07/obsched/infra/logger"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "obsched",
	Short:         "Two-site observation slot scheduler",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "configuration file (yaml or json)")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

// loadConfig reads the configuration and applies its log options.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Log.Output == nil {
		cfg.Log.Output = cmd.ErrOrStderr()
	}
	logger.Configure(cfg.Log)
	return cfg, nil
}
