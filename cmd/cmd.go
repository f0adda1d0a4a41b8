package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/frahmantamala/smartwater-vending/internal"
	"github.com/frahmantamala/smartwater-vending/pkg/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "smartwater",
	Short: "SmartWater vending",
	Long:  `Receives mobile-money payments, vends utility tokens and keeps per-meter totals.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// local secrets (.env) must be in the environment before viper reads it
		_ = godotenv.Load()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*internal.Config, error) {
	if os.Getenv("APP_ENV") == "production" || os.Getenv("DOCKER_ENV") == "true" {
		cfg := internal.LoadConfigFromEnv()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("error validating config from environment: %w", err)
		}
		configureLogger(cfg)
		return cfg, nil
	}

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.SetEnvPrefix("ENV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config: %w", err)
	}

	var cfg internal.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("error validating config: %w", err)
	}
	configureLogger(&cfg)
	return &cfg, nil
}

func configureLogger(cfg *internal.Config) {
	logger.Configure(logger.Options{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
	})
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config-dir", ".", "directory holding config.yml")

	rootCmd.AddCommand(httpServerCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(eventCmd)
	rootCmd.AddCommand(darajaCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(vendCmd)
	rootCmd.AddCommand(tokenCmd)
}
