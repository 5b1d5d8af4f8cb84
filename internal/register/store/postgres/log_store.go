package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/BrandonDHaskell/Portunus/register/internal/register/store"
	"github.com/BrandonDHaskell/Portunus/register/internal/register/types"
)

var (
	_ store.Registry = (*RegistryStore)(nil)
	_ store.EventLog = (*LogStore)(nil)
)

// LogStore is the Postgres event log. Units run as ordinary read-committed
// transactions; Tx.LastEvent takes a transaction-scoped advisory lock on
// the entity, so two units for one entity queue up between LastEvent and
// commit.
type LogStore struct {
	db *gorm.DB
}

func NewLogStore(db *gorm.DB) *LogStore {
	return &LogStore{db: db}
}

func (s *LogStore) Update(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &pgTx{db: tx})
	})
}

func (s *LogStore) LastEvent(ctx context.Context, ref types.Ref) (types.LogEntry, bool, error) {
	return lastEvent(s.db.WithContext(ctx), ref)
}

func lastEvent(db *gorm.DB, ref types.Ref) (types.LogEntry, bool, error) {
	var ms []entryModel
	err := db.Where("entity_kind = ? AND entity_id = ?", string(ref.Kind), ref.ID).
		Order("occurred_at DESC, entry_id DESC").
		Limit(1).
		Find(&ms).Error
	if err != nil {
		return types.LogEntry{}, false, fmt.Errorf("LastEvent %s: %w", ref, err)
	}
	if len(ms) == 0 {
		return types.LogEntry{}, false, nil
	}
	return ms[0].toType(), true, nil
}

// winners selects each entity's newest entry. Filters on location must
// wrap this query, never go inside it.
const winners = `
SELECT DISTINCT ON (entity_kind, entity_id)
       entry_id, entity_kind, entity_id, direction, location_id, occurred_at, recorded_by
FROM log_entries
WHERE (@kind = '' OR entity_kind = @kind)
ORDER BY entity_kind, entity_id, occurred_at DESC, entry_id DESC
`

func (s *LogStore) Present(ctx context.Context, f store.PresenceFilter) ([]types.LogEntry, error) {
	var locationID sql.NullInt64
	if f.LocationID != nil {
		locationID = sql.NullInt64{Int64: *f.LocationID, Valid: true}
	}

	var ms []entryModel
	err := s.db.WithContext(ctx).Raw(`
SELECT * FROM (`+winners+`) w
WHERE direction = 'IN'
  AND (CAST(@location AS BIGINT) IS NULL OR location_id = @location)
ORDER BY occurred_at DESC, entry_id DESC
`, map[string]any{"kind": string(f.Kind), "location": locationID}).Scan(&ms).Error
	if err != nil {
		return nil, fmt.Errorf("Present: %w", err)
	}
	return toEntries(ms), nil
}

func (s *LogStore) PresentCounts(ctx context.Context, kind types.Kind) (map[int64]int, error) {
	var rows []struct {
		LocationID int64
		N          int
	}
	err := s.db.WithContext(ctx).Raw(`
SELECT location_id, COUNT(*) AS n FROM (`+winners+`) w
WHERE direction = 'IN'
GROUP BY location_id
`, map[string]any{"kind": string(kind)}).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("PresentCounts: %w", err)
	}

	counts := make(map[int64]int, len(rows))
	for _, r := range rows {
		counts[r.LocationID] = r.N
	}
	return counts, nil
}

func (s *LogStore) Events(ctx context.Context, f store.EventFilter) ([]types.LogEntry, error) {
	q := s.db.WithContext(ctx).Model(&entryModel{})
	if f.Kind != "" {
		q = q.Where("entity_kind = ?", string(f.Kind))
	}
	if f.LocationID != nil {
		q = q.Where("location_id = ?", *f.LocationID)
	}
	if !f.From.IsZero() {
		q = q.Where("occurred_at >= ?", f.From.UTC())
	}
	if !f.To.IsZero() {
		q = q.Where("occurred_at < ?", f.To.UTC())
	}

	var ms []entryModel
	if err := q.Order("entity_kind, entity_id, occurred_at, entry_id").Find(&ms).Error; err != nil {
		return nil, fmt.Errorf("Events: %w", err)
	}
	return toEntries(ms), nil
}

// pgTx is the store.Tx view of one gorm transaction.
type pgTx struct {
	db *gorm.DB
}

// lockKey packs a ref into one advisory lock key.
func lockKey(ref types.Ref) int64 {
	k := ref.ID << 1
	if ref.Kind == types.KindVehicle {
		k |= 1
	}
	return k
}

func (t *pgTx) Entity(_ context.Context, ref types.Ref) (types.Entity, error) {
	return entity(t.db, ref)
}

func (t *pgTx) ActiveEmployeeByName(_ context.Context, key string) (types.Entity, error) {
	var ms []employeeModel
	err := t.db.Where("name_key = ? AND active", key).
		Order("employee_id").
		Limit(1).
		Find(&ms).Error
	if err != nil {
		return types.Entity{}, fmt.Errorf("ActiveEmployeeByName: %w", err)
	}
	if len(ms) == 0 {
		return types.Entity{}, store.ErrNotFound
	}
	return ms[0].toType().Entity(), nil
}

// LastEvent locks the entity until the unit ends before reading.
func (t *pgTx) LastEvent(_ context.Context, ref types.Ref) (types.LogEntry, bool, error) {
	if err := t.db.Exec("SELECT pg_advisory_xact_lock(?)", lockKey(ref)).Error; err != nil {
		return types.LogEntry{}, false, fmt.Errorf("lock %s: %w", ref, err)
	}
	return lastEvent(t.db, ref)
}

func (t *pgTx) Append(_ context.Context, e types.LogEntry) (types.LogEntry, error) {
	m := entryModel{
		EntityKind: string(e.EntityKind),
		EntityID:   e.EntityID,
		Direction:  string(e.Direction),
		LocationID: e.LocationID,
		OccurredAt: e.Timestamp.UTC().Truncate(time.Millisecond),
		RecordedBy: e.RecordedBy,
	}
	if err := t.db.Create(&m).Error; err != nil {
		return types.LogEntry{}, fmt.Errorf("Append insert: %w", err)
	}
	return m.toType(), nil
}
