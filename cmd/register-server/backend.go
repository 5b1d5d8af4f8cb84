package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/register/internal/config"
	"github.com/BrandonDHaskell/Portunus/register/internal/db"
	pgdb "github.com/BrandonDHaskell/Portunus/register/internal/db/postgres"
	"github.com/BrandonDHaskell/Portunus/register/internal/register/store"
	"github.com/BrandonDHaskell/Portunus/register/internal/register/store/memory"
	"github.com/BrandonDHaskell/Portunus/register/internal/register/store/postgres"
	"github.com/BrandonDHaskell/Portunus/register/internal/register/store/sqlite"
)

// backend is an opened store pair plus whatever must be released with it.
type backend struct {
	registry store.Registry
	log      store.EventLog
	close    func()
}

// openBackend opens the configured driver. Both SQL drivers migrate on open.
func openBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*backend, error) {
	switch cfg.Store.Driver {
	case config.DriverSQLite:
		conn, err := db.Open(ctx, db.Config{Path: cfg.SQLite.Path, Env: cfg.Env})
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		writer := db.NewWorker(conn)
		return &backend{
			registry: sqlite.NewRegistryStore(conn, writer),
			log:      sqlite.NewLogStore(conn, writer),
			close: func() {
				writer.Close()
				_ = conn.Close()
			},
		}, nil

	case config.DriverPostgres:
		gdb, err := pgdb.Open(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return &backend{
			registry: postgres.NewRegistryStore(gdb),
			log:      postgres.NewLogStore(gdb),
			close:    func() { _ = pgdb.Close(gdb) },
		}, nil

	case config.DriverMemory:
		reg := memory.NewRegistry()
		return &backend{
			registry: reg,
			log:      memory.NewLog(reg),
			close:    func() {},
		}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}
