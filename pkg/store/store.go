// Package store owns database connections for the query pipeline. It
// opens SQLite files with the pragmas the engine depends on, opens
// MySQL-compatible servers from environment configuration, and exposes
// the narrow interfaces the query and materialization layers consume.
package store

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	"github.com/nexuscrm/strata/pkg/sanitize"
)

// Querier executes row-returning statements. *sql.DB, *sql.Tx, and *DB
// all satisfy it.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Execer executes statements that return no rows.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// DB wraps one open connection pool together with its dialect.
// sql.DB is already thread-safe and manages its own pooling; no extra
// locking is layered on top.
type DB struct {
	db      *sql.DB
	dialect sanitize.Dialect
}

var tlsOnce sync.Once

// OpenSQLite creates or opens a SQLite database at the given path.
//
// The connection is configured with WAL mode for concurrent reads,
// NORMAL synchronous mode, a 5-second busy timeout, and foreign key
// enforcement. SQLite supports one writer at a time, so the pool is
// capped at a single connection to avoid SQLITE_BUSY errors.
func OpenSQLite(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return &DB{db: db, dialect: sanitize.SQLite}, nil
}

// MySQLConfig holds the connection settings for a MySQL-compatible
// server. Zero fields fall back to MySQLConfigFromEnv defaults.
type MySQLConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
}

// MySQLConfigFromEnv reads DB_HOST, DB_PORT, DB_USER, DB_PASSWORD, and
// DB_NAME.
func MySQLConfigFromEnv() MySQLConfig {
	return MySQLConfig{
		Host:     os.Getenv("DB_HOST"),
		Port:     os.Getenv("DB_PORT"),
		User:     os.Getenv("DB_USER"),
		Password: os.Getenv("DB_PASSWORD"),
		Database: os.Getenv("DB_NAME"),
	}
}

// OpenMySQL connects to a MySQL-compatible server. Remote hosts get a
// TLS config registered with the driver; localhost connects without TLS.
//
// MaxIdleConns matches MaxOpenConns to prevent ephemeral-port exhaustion
// under high concurrency; lifetime settings recycle connections before
// they go stale.
func OpenMySQL(cfg MySQLConfig) (*DB, error) {
	if cfg.Port == "" {
		cfg.Port = "3306"
	}
	if cfg.Database == "" {
		cfg.Database = "strata"
	}

	tlsParam := ""
	if cfg.Host != "" && cfg.Host != "127.0.0.1" && cfg.Host != "localhost" {
		host := cfg.Host
		tlsOnce.Do(func() {
			if err := mysql.RegisterTLSConfig("strata", &tls.Config{
				MinVersion: tls.VersionTLS12,
				ServerName: host,
			}); err != nil {
				log.Printf("Failed to register TLS config: %v", err)
			}
		})
		tlsParam = "&tls=strata"
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database, tlsParam)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(100)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(3 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{db: db, dialect: sanitize.MySQL}, nil
}

// Dialect returns the dialect the pool was opened with.
func (d *DB) Dialect() sanitize.Dialect {
	return d.dialect
}

// DB returns the underlying *sql.DB for operations that need it.
func (d *DB) DB() *sql.DB {
	return d.db
}

// QueryContext executes a row-returning statement.
func (d *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return d.db.QueryContext(ctx, query, args...)
}

// QueryRowContext executes a statement expected to return at most one row.
func (d *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return d.db.QueryRowContext(ctx, query, args...)
}

// ExecContext executes a statement that returns no rows.
func (d *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.db.ExecContext(ctx, query, args...)
}

// BeginTx starts a transaction.
func (d *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return d.db.BeginTx(ctx, opts)
}

// Ping verifies the connection is alive.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Close closes the pool.
func (d *DB) Close() error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}
