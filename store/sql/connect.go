package sqlstore

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

// ConnectConfig is the subset of the persistence configuration needed to
// open a database handle. persistence-bun configs satisfy it.
type ConnectConfig interface {
	GetDriver() string
	GetServer() string
}

// Connect opens the database named by the configuration and pairs it with
// the matching bun dialect. Supported drivers are postgres and sqlite3.
// The handle is opened lazily; callers ping it through the persistence
// client.
func Connect(cfg ConnectConfig) (*sql.DB, schema.Dialect, error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("sqlstore: connect config is required")
	}

	driver := strings.TrimSpace(cfg.GetDriver())
	dsn := strings.TrimSpace(cfg.GetServer())
	if dsn == "" {
		return nil, nil, fmt.Errorf("sqlstore: connection string is required")
	}

	var dialect schema.Dialect
	switch driver {
	case "postgres", "pg":
		driver = "postgres"
		dialect = pgdialect.New()
	case "sqlite3", "sqlite":
		driver = "sqlite3"
		dialect = sqlitedialect.New()
	default:
		return nil, nil, fmt.Errorf("sqlstore: unsupported driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlstore: open %s database: %w", driver, err)
	}
	return db, dialect, nil
}
