package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// DB wraps sql.DB for Postgres (pgx) or SQLite.
type DB struct {
	Client  *sql.DB
	dialect dialect
}

type dialect struct {
	name   string
	get    string
	upsert string
	delete string
	schema string
	// begin opens a transaction that already holds the write lock for key.
	begin []string
}

var postgresDialect = dialect{
	name:   "postgres",
	get:    `SELECT value FROM kv_store WHERE key = $1`,
	upsert: `INSERT INTO kv_store (key, value, updated_at) VALUES ($1, $2, NOW()) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
	delete: `DELETE FROM kv_store WHERE key = $1`,
	schema: `
	CREATE TABLE IF NOT EXISTS kv_store (
		key         TEXT PRIMARY KEY,
		value       JSONB NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	begin: []string{`BEGIN`, `SELECT pg_advisory_xact_lock(hashtext($1))`},
}

var sqliteDialect = dialect{
	name:   "sqlite",
	get:    `SELECT value FROM kv_store WHERE key = ?`,
	upsert: `INSERT INTO kv_store (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP) ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
	delete: `DELETE FROM kv_store WHERE key = ?`,
	schema: `
	CREATE TABLE IF NOT EXISTS kv_store (
		key         TEXT PRIMARY KEY,
		value       TEXT NOT NULL,
		updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,
	begin: []string{`BEGIN IMMEDIATE`},
}

// NewDB creates a Postgres connection with sane defaults and ensures the schema.
func NewDB(connString string) (*DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return open(db, postgresDialect)
}

// NewSQLite opens (or creates) a SQLite file.
func NewSQLite(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// single writer per device
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{"PRAGMA journal_mode = WAL", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return open(db, sqliteDialect)
}

func open(db *sql.DB, d dialect) (*DB, error) {
	if _, err := db.Exec(d.schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate %s: %w", d.name, err)
	}
	return &DB{Client: db, dialect: d}, nil
}

func (d *DB) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value string
	err := d.Client.QueryRowContext(ctx, d.dialect.get, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return []byte(value), true, nil
}

func (d *DB) Set(ctx context.Context, key string, value []byte) error {
	_, err := d.Client.ExecContext(ctx, d.dialect.upsert, key, string(value))
	return err
}

// Update reads, applies fn and writes key inside one transaction. Postgres
// takes a per-key advisory lock; SQLite takes the database write lock up front.
func (d *DB) Update(ctx context.Context, key string, fn func([]byte, bool) ([]byte, error)) (err error) {
	conn, err := d.Client.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	for i, stmt := range d.dialect.begin {
		var args []any
		if i > 0 {
			args = append(args, key)
		}
		if _, err := conn.ExecContext(ctx, stmt, args...); err != nil {
			if i > 0 {
				_, _ = conn.ExecContext(context.Background(), `ROLLBACK`)
			}
			return fmt.Errorf("begin update: %w", err)
		}
	}
	defer func() {
		if err != nil {
			_, _ = conn.ExecContext(context.Background(), `ROLLBACK`)
		}
	}()

	var value string
	ok := true
	if err := conn.QueryRowContext(ctx, d.dialect.get, key).Scan(&value); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		ok = false
	}
	next, err := fn([]byte(value), ok)
	if err != nil {
		return err
	}
	if _, err := conn.ExecContext(ctx, d.dialect.upsert, key, string(next)); err != nil {
		return err
	}
	_, err = conn.ExecContext(ctx, `COMMIT`)
	return err
}

func (d *DB) Delete(ctx context.Context, key string) error {
	_, err := d.Client.ExecContext(ctx, d.dialect.delete, key)
	return err
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}
