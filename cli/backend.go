package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"team-tasks/backend/config"
	"team-tasks/backend/logging"
	"team-tasks/backend/repositories"
	"team-tasks/backend/repositories/memory"

	gfshutdown "github.com/gelmium/graceful-shutdown"
)

// Backend is the set of stores a command runs against.
type Backend struct {
	Store    repositories.Store
	Audit    repositories.AuditRepository
	Denylist repositories.SessionDenylist
	Ping     func(ctx context.Context) error

	closers map[string]gfshutdown.Operation
}

// Shutdown returns the close operations for every connection the backend holds.
func (b *Backend) Shutdown() map[string]gfshutdown.Operation {
	return b.closers
}

// Close releases every connection, collecting all failures.
func (b *Backend) Close(ctx context.Context) error {
	var errs []error
	for name, op := range b.closers {
		if err := op(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// OpenBackend connects the document store, then the optional Cassandra audit
// sink and Redis session denylist.
func OpenBackend(ctx context.Context, cfg *config.Config) (_ *Backend, err error) {
	b := &Backend{closers: map[string]gfshutdown.Operation{}}
	defer func() {
		if err != nil {
			_ = b.Close(ctx)
		}
	}()

	switch cfg.StoreBackend {
	case config.StoreMemory:
		store := memory.NewStore()
		b.Store = store
		b.Audit = store
		logging.Logger.Warn("Event ID: MEMORY_STORE, Description: Using the in-process store, data is lost on exit")
	default:
		store, err := repositories.NewMongoStore(ctx, repositories.MongoOptions{
			URI:          cfg.MongoURI,
			Database:     cfg.MongoDBName,
			Transactions: cfg.MongoTransactions,
		})
		if err != nil {
			return nil, err
		}
		b.Store = store
		b.Audit = store
		b.Ping = store.Ping
		b.closers["mongo"] = store.Disconnect
	}

	if cfg.AuditBackend == config.AuditCassandra {
		audit, err := repositories.NewCassandraAuditRepository(cfg.CassandraDB, cfg.CassKeyspace)
		if err != nil {
			return nil, err
		}
		b.Audit = audit
		b.closers["cassandra"] = func(context.Context) error {
			audit.Close()
			return nil
		}
	}

	if strings.TrimSpace(cfg.RedisAddr) != "" {
		denylist, err := repositories.NewRedisSessionDenylist(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return nil, err
		}
		b.Denylist = denylist
		b.closers["redis"] = func(context.Context) error {
			return denylist.Close()
		}
	}

	return b, nil
}
