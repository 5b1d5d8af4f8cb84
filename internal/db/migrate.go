package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type migration struct {
	version int
	name    string
	sql     string
}

// MigrationState reports one embedded migration and when it was applied.
// AppliedAt is nil for pending migrations.
type MigrationState struct {
	Version   int
	Name      string
	AppliedAt *time.Time
}

const ensureSchemaMigrations = `
CREATE TABLE IF NOT EXISTS schema_migrations (
  version       INTEGER PRIMARY KEY,
  name          TEXT    NOT NULL DEFAULT '',
  applied_at_ms INTEGER NOT NULL
);`

// Migrate applies every pending embedded migration in version order, each
// in its own transaction, and returns how many it applied.
func Migrate(ctx context.Context, db *sql.DB) (int, error) {
	states, ms, err := status(ctx, db)
	if err != nil {
		return 0, err
	}

	applied := 0
	for i, st := range states {
		if st.AppliedAt != nil {
			continue
		}
		if err := apply(ctx, db, ms[i]); err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}

// Status lists every embedded migration with its applied time.
func Status(ctx context.Context, db *sql.DB) ([]MigrationState, error) {
	states, _, err := status(ctx, db)
	return states, err
}

func status(ctx context.Context, db *sql.DB) ([]MigrationState, []migration, error) {
	if _, err := db.ExecContext(ctx, ensureSchemaMigrations); err != nil {
		return nil, nil, fmt.Errorf("ensure schema_migrations: %w", err)
	}
	ms, err := loadMigrations(migrationsFS, "migrations")
	if err != nil {
		return nil, nil, err
	}
	done, err := appliedVersions(ctx, db)
	if err != nil {
		return nil, nil, err
	}

	states := make([]MigrationState, len(ms))
	for i, m := range ms {
		states[i] = MigrationState{Version: m.version, Name: m.name}
		if at, ok := done[m.version]; ok {
			states[i].AppliedAt = &at
		}
	}
	return states, ms, nil
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[int]time.Time, error) {
	rows, err := db.QueryContext(ctx, `SELECT version, applied_at_ms FROM schema_migrations;`)
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	defer rows.Close()

	out := make(map[int]time.Time)
	for rows.Next() {
		var (
			v  int
			ms int64
		)
		if err := rows.Scan(&v, &ms); err != nil {
			return nil, fmt.Errorf("scan schema_migrations: %w", err)
		}
		out[v] = time.UnixMilli(ms).UTC()
	}
	return out, rows.Err()
}

// loadMigrations reads NNNN_name.sql files from dir, sorted by version.
func loadMigrations(fsys fs.FS, dir string) ([]migration, error) {
	files, err := fs.Glob(fsys, path.Join(dir, "*.sql"))
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	ms := make([]migration, 0, len(files))
	for _, f := range files {
		name := path.Base(f)
		v, err := parseVersion(name)
		if err != nil {
			return nil, err
		}
		b, err := fs.ReadFile(fsys, f)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		ms = append(ms, migration{version: v, name: name, sql: string(b)})
	}

	slices.SortFunc(ms, func(a, b migration) int { return a.version - b.version })
	for i := 1; i < len(ms); i++ {
		if ms[i].version == ms[i-1].version {
			return nil, fmt.Errorf("duplicate migration version %d (%s, %s)", ms[i].version, ms[i-1].name, ms[i].name)
		}
	}
	return ms, nil
}

func apply(ctx context.Context, db *sql.DB, m migration) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s: %w", m.name, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, m.sql); err != nil {
		return fmt.Errorf("apply migration %s: %w", m.name, err)
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO schema_migrations(version, name, applied_at_ms) VALUES (?, ?, ?);`,
		m.version, m.name, time.Now().UTC().UnixMilli(),
	); err != nil {
		return fmt.Errorf("record migration %s: %w", m.name, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", m.name, err)
	}
	return nil
}

// parseVersion reads the numeric prefix: 0001_init.sql -> 1.
func parseVersion(filename string) (int, error) {
	prefix, _, ok := strings.Cut(filename, "_")
	if !ok {
		return 0, fmt.Errorf("bad migration filename: %s", filename)
	}
	v, err := strconv.Atoi(prefix)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("bad migration version in %s", filename)
	}
	return v, nil
}
