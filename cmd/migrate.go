package cmd

import (
	"context"
	"fmt"

	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"

	"github.com/frahmantamala/smartwater-vending/pkg/logger"
)

var (
	migrateCmd = &cobra.Command{
		RunE:  runMigration,
		Use:   "migrate",
		Short: "to run db migration files under db/migrations directory",
		Long: `Applies the goose migrations to postgres. sqlite databases are migrated
from the gorm models whenever the application opens them.`,
	}
	migrateRollback bool
	migrateDir      string
)

func init() {
	migrateCmd.Flags().BoolVarP(&migrateRollback, "rollback", "r", false, "to rollback the latest version of sql migration")
	migrateCmd.PersistentFlags().StringVarP(&migrateDir, "dir", "d", "db/migrations", "sql migrations directory")
}

func runMigration(_ *cobra.Command, _ []string) error {
	ctx := context.Background()
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	lg := logger.LoggerWrapper()

	if cfg.Database.Driver == "sqlite" {
		_, sqlxDB, err := openDatabase(cfg.Database)
		if err != nil {
			return err
		}
		lg.Info("sqlite schema migrated from models", "source", cfg.Database.Source)
		return sqlxDB.Close()
	}

	db, err := goose.OpenDBWithDriver("pgx", cfg.Database.Source)
	if err != nil {
		return fmt.Errorf("goose: failed to open DB: %w", err)
	}
	defer db.Close()
	goose.SetTableName("schema_migrations")

	command := "up"
	if migrateRollback {
		command = "down"
	}
	if err := goose.RunContext(ctx, command, db, migrateDir); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}

	version, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return err
	}
	lg.Info("migrations applied", "command", command, "version", version)
	return nil
}
