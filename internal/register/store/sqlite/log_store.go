package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	dbpkg "github.com/BrandonDHaskell/Portunus/register/internal/db"
	"github.com/BrandonDHaskell/Portunus/register/internal/register/store"
	"github.com/BrandonDHaskell/Portunus/register/internal/register/types"
)

// LogStore is the SQLite event log. Update runs on the single writer
// goroutine over the single connection, so a unit's LastEvent and Append
// can never interleave with another unit's.
type LogStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewLogStore(db *sql.DB, writer *dbpkg.Worker) *LogStore {
	return &LogStore{db: db, writer: writer}
}

func (s *LogStore) Update(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, &sqliteTx{tx: tx})
	})
}

func (s *LogStore) LastEvent(ctx context.Context, ref types.Ref) (types.LogEntry, bool, error) {
	return lastEvent(ctx, s.db, ref)
}

// winnersCTE ranks every entity's entries newest first. The location
// filter must be applied to rn = 1 rows only, never inside the CTE.
const winnersCTE = `
WITH ranked AS (
  SELECT ` + entryCols + `,
         ROW_NUMBER() OVER (
           PARTITION BY entity_kind, entity_id
           ORDER BY occurred_at_ms DESC, entry_id DESC
         ) AS rn
  FROM log_entries
  WHERE (?1 = '' OR entity_kind = ?1)
)
`

func (s *LogStore) Present(ctx context.Context, f store.PresenceFilter) ([]types.LogEntry, error) {
	var locationID any
	if f.LocationID != nil {
		locationID = *f.LocationID
	}

	rows, err := s.db.QueryContext(ctx, winnersCTE+`
SELECT `+entryCols+`
FROM ranked
WHERE rn = 1
  AND direction = 'IN'
  AND (?2 IS NULL OR location_id = ?2)
ORDER BY occurred_at_ms DESC, entry_id DESC;
`, string(f.Kind), locationID)
	if err != nil {
		return nil, fmt.Errorf("Present: %w", err)
	}
	out, err := scanEntries(rows)
	if err != nil {
		return nil, fmt.Errorf("Present scan: %w", err)
	}
	return out, nil
}

func (s *LogStore) PresentCounts(ctx context.Context, kind types.Kind) (map[int64]int, error) {
	rows, err := s.db.QueryContext(ctx, winnersCTE+`
SELECT location_id, COUNT(*)
FROM ranked
WHERE rn = 1 AND direction = 'IN'
GROUP BY location_id;
`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("PresentCounts: %w", err)
	}
	defer rows.Close()

	counts := make(map[int64]int)
	for rows.Next() {
		var loc int64
		var n int
		if err := rows.Scan(&loc, &n); err != nil {
			return nil, fmt.Errorf("PresentCounts scan: %w", err)
		}
		counts[loc] = n
	}
	return counts, rows.Err()
}

func (s *LogStore) Events(ctx context.Context, f store.EventFilter) ([]types.LogEntry, error) {
	var locationID, fromMs, toMs any
	if f.LocationID != nil {
		locationID = *f.LocationID
	}
	if !f.From.IsZero() {
		fromMs = f.From.UnixMilli()
	}
	if !f.To.IsZero() {
		toMs = f.To.UnixMilli()
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT `+entryCols+`
FROM log_entries
WHERE (?1 = '' OR entity_kind = ?1)
  AND (?2 IS NULL OR location_id = ?2)
  AND (?3 IS NULL OR occurred_at_ms >= ?3)
  AND (?4 IS NULL OR occurred_at_ms < ?4)
ORDER BY entity_kind, entity_id, occurred_at_ms, entry_id;
`, string(f.Kind), locationID, fromMs, toMs)
	if err != nil {
		return nil, fmt.Errorf("Events: %w", err)
	}
	out, err := scanEntries(rows)
	if err != nil {
		return nil, fmt.Errorf("Events scan: %w", err)
	}
	return out, nil
}

// sqliteTx is the store.Tx view of one Worker transaction.
type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) Entity(ctx context.Context, ref types.Ref) (types.Entity, error) {
	return entity(ctx, t.tx, ref)
}

func (t *sqliteTx) ActiveEmployeeByName(ctx context.Context, key string) (types.Entity, error) {
	e, err := scanEmployee(t.tx.QueryRowContext(ctx, `
SELECT `+employeeCols+`
FROM employees
WHERE name_key = ? AND active = 1
ORDER BY employee_id
LIMIT 1;
`, key))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Entity{}, store.ErrNotFound
	}
	if err != nil {
		return types.Entity{}, fmt.Errorf("ActiveEmployeeByName: %w", err)
	}
	return e.Entity(), nil
}

func (t *sqliteTx) LastEvent(ctx context.Context, ref types.Ref) (types.LogEntry, bool, error) {
	return lastEvent(ctx, t.tx, ref)
}

func (t *sqliteTx) Append(ctx context.Context, e types.LogEntry) (types.LogEntry, error) {
	var recordedBy any
	if e.RecordedBy != nil {
		recordedBy = *e.RecordedBy
	}

	res, err := t.tx.ExecContext(ctx, `
INSERT INTO log_entries(entity_kind, entity_id, direction, location_id, occurred_at_ms, recorded_by)
VALUES (?, ?, ?, ?, ?, ?);
`, string(e.EntityKind), e.EntityID, string(e.Direction), e.LocationID, e.Timestamp.UnixMilli(), recordedBy)
	if err != nil {
		return types.LogEntry{}, fmt.Errorf("Append insert: %w", err)
	}
	if e.ID, err = res.LastInsertId(); err != nil {
		return types.LogEntry{}, fmt.Errorf("Append id: %w", err)
	}
	e.Timestamp = fromMs(e.Timestamp.UnixMilli())
	return e, nil
}
