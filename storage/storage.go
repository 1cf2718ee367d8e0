package storage

import (
	"context"
	"fmt"

	"kanban-api/domain"
)

// BackendTables selects Azure Table Storage.
const BackendTables = "tables"

// Backend is a Store that can provision its own schema and users.
type Backend interface {
	domain.Store
	Migrate(ctx context.Context) error
	UpsertUser(ctx context.Context, u domain.User) error
}

// Options selects and addresses a storage backend.
type Options struct {
	Backend          string
	DSN              string
	ConnectionString string
	TablePrefix      string
}

// Open connects to the configured backend.
func Open(ctx context.Context, opts Options) (Backend, error) {
	switch opts.Backend {
	case DriverPostgres, DriverSQLite:
		st, err := OpenSQL(ctx, opts.Backend, opts.DSN)
		if err != nil {
			return nil, err
		}
		return st, nil
	case BackendTables:
		st, err := NewTableStore(opts.ConnectionString, opts.TablePrefix)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}
