// Package database provides the sql.DB bootstrap and cross-driver SQL
// compatibility helpers. MySQL, PostgreSQL, and SQLite are supported; all
// queries in the codebase are written with ? placeholders and converted
// through ConvertPlaceholders.
package database

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

var (
	mu         sync.RWMutex
	db         *sql.DB
	activeName string
)

// Connect opens the database for the given driver and DSN, configures the
// pool, and installs it as the process-wide connection.
func Connect(driver, dsn string) (*sql.DB, error) {
	driver = strings.ToLower(driver)
	switch driver {
	case "mysql", "mariadb":
		driver = "mysql"
	case "postgres", "postgresql":
		driver = "postgres"
	case "sqlite", "sqlite3":
		driver = "sqlite3"
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(30 * time.Minute)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	mu.Lock()
	db = conn
	activeName = driver
	mu.Unlock()
	return conn, nil
}

// SetDB installs an externally created connection (tests use this with
// sqlmock or in-memory sqlite).
func SetDB(conn *sql.DB, driver string) {
	mu.Lock()
	db = conn
	activeName = strings.ToLower(driver)
	mu.Unlock()
}

// GetDB returns the process-wide connection.
func GetDB() (*sql.DB, error) {
	mu.RLock()
	defer mu.RUnlock()
	if db == nil {
		return nil, fmt.Errorf("database not connected")
	}
	return db, nil
}

// ActiveDriver returns the normalized driver name of the active connection.
func ActiveDriver() string {
	mu.RLock()
	defer mu.RUnlock()
	if activeName == "" {
		return "sqlite3"
	}
	return activeName
}
