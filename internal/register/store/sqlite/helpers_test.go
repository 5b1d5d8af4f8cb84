package sqlite_test

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/BrandonDHaskell/Portunus/register/internal/db"
	"github.com/BrandonDHaskell/Portunus/register/internal/register/store"
	"github.com/BrandonDHaskell/Portunus/register/internal/register/store/sqlite"
	"github.com/BrandonDHaskell/Portunus/register/internal/register/types"
)

var base = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// openTestDB returns an in-memory SQLite connection with the production
// PRAGMAs and schema. Each test gets its own database.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	// Shared cache keeps the database alive while the pool recycles the conn.
	dsn := fmt.Sprintf(
		"file:test_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
		strings.ReplaceAll(t.Name(), "/", "_"),
	)

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("openTestDB: sql.Open: %v", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	if err := conn.Ping(); err != nil {
		conn.Close()
		t.Fatalf("openTestDB: ping: %v", err)
	}
	if _, err := db.Migrate(context.Background(), conn); err != nil {
		conn.Close()
		t.Fatalf("openTestDB: migrate: %v", err)
	}

	t.Cleanup(func() { conn.Close() })
	return conn
}

// newTestWriter returns a db.Worker backed by conn, closed with the test.
func newTestWriter(t *testing.T, conn *sql.DB) *db.Worker {
	t.Helper()

	w := db.NewWorker(conn)
	t.Cleanup(func() { w.Close() })
	return w
}

type fixture struct {
	reg    *sqlite.RegistryStore
	log    *sqlite.LogStore
	l1, l2 types.Location
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	f := fixture{
		reg: sqlite.NewRegistryStore(conn, w),
		log: sqlite.NewLogStore(conn, w),
		l1:  types.Location{Code: "L1", Name: "North Gate", Active: true},
		l2:  types.Location{Code: "L2", Name: "South Gate", Active: true},
	}
	for _, l := range []*types.Location{&f.l1, &f.l2} {
		if err := f.reg.CreateLocation(context.Background(), l); err != nil {
			t.Fatalf("CreateLocation: %v", err)
		}
	}
	return f
}

func (f fixture) employee(t *testing.T, name string, loc int64) types.Employee {
	t.Helper()
	e := types.Employee{LocationID: loc, Name: name, Active: true}
	if err := f.reg.CreateEmployee(context.Background(), &e); err != nil {
		t.Fatalf("CreateEmployee: %v", err)
	}
	return e
}

func (f fixture) appendEntry(t *testing.T, ref types.Ref, dir types.Direction, loc int64, at time.Time) types.LogEntry {
	t.Helper()
	var out types.LogEntry
	err := f.log.Update(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.Append(ctx, types.LogEntry{
			EntityKind: ref.Kind,
			EntityID:   ref.ID,
			Direction:  dir,
			LocationID: loc,
			Timestamp:  at,
		})
		return err
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	return out
}
