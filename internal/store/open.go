package store

import (
	"context"
	"fmt"

	"chess-server/internal/config"
)

// Open builds the backend selected by cfg.StoreDriver.
func Open(ctx context.Context, cfg config.Config) (Store, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory, "":
		return NewMemory(), nil
	case config.DriverPostgres:
		return NewPostgres(ctx, cfg.DatabaseURL)
	case config.DriverSQLite:
		return NewSQLite(ctx, cfg.SQLitePath)
	}
	return nil, fmt.Errorf("store: unknown driver %q", cfg.StoreDriver)
}
