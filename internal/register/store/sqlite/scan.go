package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BrandonDHaskell/Portunus/register/internal/register/store"
	"github.com/BrandonDHaskell/Portunus/register/internal/register/types"
)

// querier is satisfied by both *sql.DB and *sql.Tx so lookups can run
// inside or outside a write unit.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func fromMs(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

const employeeCols = `employee_id, location_id, ext_id, name, department, active, created_at_ms, updated_at_ms`

func scanEmployee(r rowScanner) (types.Employee, error) {
	var (
		e                  types.Employee
		active             int
		createdMs, updatMs int64
	)
	if err := r.Scan(&e.ID, &e.LocationID, &e.ExtID, &e.Name, &e.Department, &active, &createdMs, &updatMs); err != nil {
		return types.Employee{}, err
	}
	e.Active = active != 0
	e.CreatedAt, e.UpdatedAt = fromMs(createdMs), fromMs(updatMs)
	return e, nil
}

const vehicleCols = `vehicle_id, location_id, plate_number, description, owner, active, created_at_ms, updated_at_ms`

func scanVehicle(r rowScanner) (types.Vehicle, error) {
	var (
		v                  types.Vehicle
		active             int
		createdMs, updatMs int64
	)
	if err := r.Scan(&v.ID, &v.LocationID, &v.PlateNumber, &v.Description, &v.Owner, &active, &createdMs, &updatMs); err != nil {
		return types.Vehicle{}, err
	}
	v.Active = active != 0
	v.CreatedAt, v.UpdatedAt = fromMs(createdMs), fromMs(updatMs)
	return v, nil
}

const entryCols = `entry_id, entity_kind, entity_id, direction, location_id, occurred_at_ms, recorded_by`

func scanEntry(r rowScanner) (types.LogEntry, error) {
	var (
		e          types.LogEntry
		kind, dir  string
		ms         int64
		recordedBy sql.NullInt64
	)
	if err := r.Scan(&e.ID, &kind, &e.EntityID, &dir, &e.LocationID, &ms, &recordedBy); err != nil {
		return types.LogEntry{}, err
	}
	e.EntityKind = types.Kind(kind)
	e.Direction = types.Direction(dir)
	e.Timestamp = fromMs(ms)
	if recordedBy.Valid {
		id := recordedBy.Int64
		e.RecordedBy = &id
	}
	return e, nil
}

func scanEntries(rows *sql.Rows) ([]types.LogEntry, error) {
	defer rows.Close()

	var out []types.LogEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// entity loads one employee or vehicle, active or not.
func entity(ctx context.Context, q querier, ref types.Ref) (types.Entity, error) {
	var err error
	switch ref.Kind {
	case types.KindEmployee:
		var e types.Employee
		e, err = scanEmployee(q.QueryRowContext(ctx,
			`SELECT `+employeeCols+` FROM employees WHERE employee_id = ?;`, ref.ID))
		if err == nil {
			return e.Entity(), nil
		}
	case types.KindVehicle:
		var v types.Vehicle
		v, err = scanVehicle(q.QueryRowContext(ctx,
			`SELECT `+vehicleCols+` FROM vehicles WHERE vehicle_id = ?;`, ref.ID))
		if err == nil {
			return v.Entity(), nil
		}
	default:
		return types.Entity{}, fmt.Errorf("%s: %w", ref, store.ErrNotFound)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return types.Entity{}, fmt.Errorf("%s: %w", ref, store.ErrNotFound)
	}
	return types.Entity{}, fmt.Errorf("load %s: %w", ref, err)
}

func lastEvent(ctx context.Context, q querier, ref types.Ref) (types.LogEntry, bool, error) {
	e, err := scanEntry(q.QueryRowContext(ctx, `
SELECT `+entryCols+`
FROM log_entries
WHERE entity_kind = ? AND entity_id = ?
ORDER BY occurred_at_ms DESC, entry_id DESC
LIMIT 1;
`, string(ref.Kind), ref.ID))
	if errors.Is(err, sql.ErrNoRows) {
		return types.LogEntry{}, false, nil
	}
	if err != nil {
		return types.LogEntry{}, false, fmt.Errorf("last event %s: %w", ref, err)
	}
	return e, true, nil
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
