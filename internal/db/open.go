package db

import (
	"context"
	"strings"

	"gorm.io/gorm"
)

const defaultPostgresMaxConns = 10

// Open selects the driver from the database URL: postgres:// and postgresql:// URLs go to
// Postgres, anything else is treated as a SQLite file path.
func Open(ctx context.Context, databaseURL string) (*gorm.DB, error) {
	if IsPostgresURL(databaseURL) {
		return OpenPostgres(ctx, databaseURL, defaultPostgresMaxConns)
	}
	return OpenSQLite(strings.TrimPrefix(strings.TrimSpace(databaseURL), "sqlite://"))
}

func IsPostgresURL(databaseURL string) bool {
	normalized := strings.ToLower(strings.TrimSpace(databaseURL))
	return strings.HasPrefix(normalized, "postgres://") || strings.HasPrefix(normalized, "postgresql://")
}
