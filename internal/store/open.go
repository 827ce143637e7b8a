package store

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Backends accepted by Open.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Options selects and configures a backend.
type Options struct {
	Backend     string
	DataDir     string
	SQLitePath  string
	DatabaseURL string
	RedisAddr   string
	RedisPrefix string
}

// Open builds a Store for the configured backend.
func Open(opts Options) (*Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case BackendMemory:
		return NewMemory(), nil
	case BackendFile, "":
		kv, err := NewFileKV(opts.DataDir)
		if err != nil {
			return nil, err
		}
		return New(kv), nil
	case BackendSQLite:
		path := opts.SQLitePath
		if path == "" {
			path = filepath.Join(opts.DataDir, "rollcall.db")
		}
		db, err := NewSQLite(path)
		if err != nil {
			return nil, err
		}
		return New(db), nil
	case BackendPostgres:
		db, err := NewDB(opts.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return New(db), nil
	case BackendRedis:
		prefix := opts.RedisPrefix
		if prefix == "" {
			prefix = "rollcall:"
		}
		return New(NewRedis(opts.RedisAddr, prefix)), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
}
