package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/frahmantamala/salespilot/internal"
	"github.com/frahmantamala/salespilot/pkg/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "salespilot",
	Short: "SalesPilot checkout backend",
	Long:  `Checkout, payment reconciliation and lead verification endpoints for the SalesPilot site.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// loadConfig starts from the defaults, overlays config.yml when one exists
// in path and then the deployment environment.
func loadConfig(path string) (*internal.Config, error) {
	cfg := internal.DefaultConfig()

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.SetEnvPrefix("ENV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	} else if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("error validating config: %w", err)
	}

	if cfg.Logging.Level == "" && cfg.Logging.Format != "json" {
		logger.Init(cfg.Env)
	} else {
		jsonLogs := cfg.Env == "production" || cfg.Logging.Format == "json"
		logger.InitWithLevel(jsonLogs, logger.ParseLevel(cfg.Logging.Level))
	}
	return cfg, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", ".", "directory holding config.yml")

	rootCmd.AddCommand(httpServerCmd)
	rootCmd.AddCommand(migrateCmd)
}
