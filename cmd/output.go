package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// withApp loads config, builds the App and closes it after fn.
func withApp(fn func(ctx context.Context, app *App) error) error {
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
	return fn(ctx, app)
}
