// Package store persists small JSON documents by key. The ledger keeps its
// signal list and counters here.
package store

import (
	"context"

	"github.com/rotisserie/eris"
)

// KV is a key/value store for JSON documents.
type KV interface {
	// Get returns nil, nil when key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes all keys in one atomic step.
	Delete(ctx context.Context, keys ...string) error

	Migrate(ctx context.Context) error
	Close() error
}

// Drivers accepted by Config.Driver.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config selects and configures a backend.
type Config struct {
	Driver      string     `yaml:"driver" mapstructure:"driver"`
	SQLitePath  string     `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	DatabaseURL string     `yaml:"database_url" mapstructure:"database_url"`
	Pool        PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// Open constructs the configured backend and runs its migration.
func Open(ctx context.Context, cfg Config) (KV, error) {
	var (
		kv  KV
		err error
	)
	switch cfg.Driver {
	case "", DriverMemory:
		kv = NewMemory()
	case DriverSQLite:
		kv, err = NewSQLite(cfg.SQLitePath)
	case DriverPostgres:
		kv, err = NewPostgres(ctx, cfg.DatabaseURL, &cfg.Pool)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := kv.Migrate(ctx); err != nil {
		_ = kv.Close()
		return nil, err
	}
	return kv, nil
}
