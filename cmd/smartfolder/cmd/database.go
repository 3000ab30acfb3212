package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/solatis/smartfolder/internal/core/db"
	"github.com/solatis/smartfolder/internal/rules"
)

// openDatabase opens the configured database, creating the data directory
// for local sqlite files.
func openDatabase(ctx context.Context) (*sqlx.DB, error) {
	if strings.HasPrefix(cfg.DBURL, "sqlite://") && cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
	}
	database, err := db.Open(ctx, cfg.DBURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return database, nil
}

// requireMigrated fails when any embedded migration is not applied yet.
func requireMigrated(ctx context.Context, database *sqlx.DB) error {
	statuses, err := db.MigrateStatus(ctx, database)
	if err != nil {
		return fmt.Errorf("failed to check migrations: %w", err)
	}
	for _, s := range statuses {
		if !s.Applied {
			return fmt.Errorf("migration %s not applied - run 'smartfolder migrate' first", s.ID)
		}
	}
	return nil
}

func compileOptions() rules.CompileOptions {
	return rules.CompileOptions{Registry: rules.DefaultFieldRegistry()}
}
