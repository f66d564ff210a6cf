package index

import (
	"fmt"
	"os"
	"path/filepath"

	"dedup-go/internal/config"
	"dedup-go/internal/dedup"
)

const databaseFile = "dedup.db"

// New creates the index described by the configuration. Only the sqlite
// type exists today; the factory keeps the call sites ready for others.
func New(cfg config.DatabaseConfig) (dedup.Index, error) {
	switch cfg.Type {
	case "sqlite", "":
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		return NewSQLiteIndex(filepath.Join(cfg.DataDir, databaseFile), nil, nil)
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
