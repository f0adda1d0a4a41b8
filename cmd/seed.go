package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/smartwater-vending/internal/meter"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample meters",
	Long:  `Registers the sample meters MTR001..MTR003 for development and sandbox testing. Existing meters are left alone.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		cfg, err := loadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		app, err := NewApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer app.Close()

		created, err := app.Meters.Seed(ctx, meter.SampleMeters())
		if err != nil {
			return fmt.Errorf("failed to seed meters: %w", err)
		}
		fmt.Printf("Seeded %d meter(s)\n", created)
		return nil
	},
}
