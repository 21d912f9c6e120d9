package repository

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/opensource-finance/harrier/internal/domain"
)

// sqlitePragmas keep one writer and many readers on the same file without
// SQLITE_BUSY during a batch pass.
var sqlitePragmas = []string{
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"busy_timeout(5000)",
	"foreign_keys(ON)",
}

// dataSource maps a repository config to a database/sql driver name and DSN.
func dataSource(cfg domain.RepositoryConfig) (driverName, dsn string, err error) {
	switch cfg.Driver {
	case "sqlite":
		path := cfg.SQLitePath
		if path == "" {
			path = "./harrier.db"
		}
		q := url.Values{}
		for _, p := range sqlitePragmas {
			q.Add("_pragma", p)
		}
		return "sqlite", "file:" + path + "?" + q.Encode(), nil

	case "postgres":
		host := cfg.PostgresHost
		if host == "" {
			host = "localhost"
		}
		port := cfg.PostgresPort
		if port == 0 {
			port = 5432
		}
		db := cfg.PostgresDB
		if db == "" {
			db = "harrier"
		}
		sslmode := cfg.PostgresSSLMode
		if sslmode == "" {
			sslmode = "disable"
		}
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(cfg.PostgresUser, cfg.PostgresPassword),
			Host:     fmt.Sprintf("%s:%d", host, port),
			Path:     "/" + db,
			RawQuery: url.Values{"sslmode": {sslmode}}.Encode(),
		}
		return "postgres", u.String(), nil
	}
	return "", "", fmt.Errorf("%w: unsupported repository driver %q", domain.ErrInvalidInput, cfg.Driver)
}

// open connects and pings the configured database.
func open(cfg domain.RepositoryConfig) (*sql.DB, error) {
	driverName, dsn, err := dataSource(cfg)
	if err != nil {
		return nil, err
	}

	if driverName == "sqlite" {
		if dir := filepath.Dir(cfg.SQLitePath); cfg.SQLitePath != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driverName, err)
	}
	return db, nil
}
