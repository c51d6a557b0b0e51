package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Backend names accepted by Open
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Options selects and configures a storage backend
type Options struct {
	Driver    string
	Path      string // SQLite file, or :memory:
	DSN       string // PostgreSQL connection string
	MinConns  int
	MaxConns  int
	Dimension int
}

// Open returns the backend named by opts.Driver
func Open(ctx context.Context, opts Options, logger *slog.Logger) (Storage, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch strings.ToLower(opts.Driver) {
	case "", BackendSQLite:
		logger.Debug("opening sqlite store", "path", opts.Path, "build", BuildMode, "max_conns", opts.MaxConns)
		return NewSQLiteStorageWithPool(opts.Path, PoolConfig{MinConns: opts.MinConns, MaxConns: opts.MaxConns})
	case BackendPostgres:
		if opts.DSN == "" {
			return nil, fmt.Errorf("postgres backend requires a DSN")
		}
		logger.Debug("opening postgres store", "dimension", opts.Dimension, "max_conns", opts.MaxConns)
		return NewPostgresStorage(ctx, PostgresConfig{
			DSN:       opts.DSN,
			Dimension: opts.Dimension,
			MinConns:  opts.MinConns,
			MaxConns:  opts.MaxConns,
		})
	default:
		return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
	}
}
