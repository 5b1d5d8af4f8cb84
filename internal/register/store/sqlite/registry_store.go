package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	dbpkg "github.com/BrandonDHaskell/Portunus/register/internal/db"
	"github.com/BrandonDHaskell/Portunus/register/internal/register/store"
	"github.com/BrandonDHaskell/Portunus/register/internal/register/types"
)

// entitiesChunk keeps IN (...) lists well under SQLite's variable limit.
const entitiesChunk = 500

// RegistryStore persists locations, operators, employees and vehicles.
// Writes go through the shared Worker, so uniqueness pre-checks and the
// insert that follows them run in one serialized transaction.
type RegistryStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewRegistryStore(db *sql.DB, writer *dbpkg.Worker) *RegistryStore {
	return &RegistryStore{db: db, writer: writer}
}

func exists(ctx context.Context, tx *sql.Tx, query string, args ...any) (bool, error) {
	var n int
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RegistryStore) CreateLocation(ctx context.Context, loc *types.Location) error {
	if loc.CreatedAt.IsZero() {
		loc.CreatedAt = time.Now().UTC()
	}
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		taken, err := exists(ctx, tx,
			`SELECT COUNT(*) FROM locations WHERE code = ? COLLATE NOCASE OR name = ?;`, loc.Code, loc.Name)
		if err != nil {
			return fmt.Errorf("CreateLocation check: %w", err)
		}
		if taken {
			return fmt.Errorf("location %q: %w", loc.Code, store.ErrConflict)
		}

		res, err := tx.ExecContext(ctx, `
INSERT INTO locations(code, name, address, active, created_at_ms)
VALUES (?, ?, ?, ?, ?);
`, loc.Code, loc.Name, loc.Address, boolInt(loc.Active), loc.CreatedAt.UnixMilli())
		if err != nil {
			return fmt.Errorf("CreateLocation insert: %w", err)
		}
		loc.ID, err = res.LastInsertId()
		return err
	})
}

func (s *RegistryStore) CreateOperator(ctx context.Context, op *types.Operator) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		taken, err := exists(ctx, tx, `SELECT COUNT(*) FROM operators WHERE username = ?;`, op.Username)
		if err != nil {
			return fmt.Errorf("CreateOperator check: %w", err)
		}
		if taken {
			return fmt.Errorf("operator %q: %w", op.Username, store.ErrConflict)
		}

		var locationID any
		if op.LocationID != nil {
			ok, err := exists(ctx, tx, `SELECT COUNT(*) FROM locations WHERE location_id = ?;`, *op.LocationID)
			if err != nil {
				return fmt.Errorf("CreateOperator location: %w", err)
			}
			if !ok {
				return fmt.Errorf("operator location %d: %w", *op.LocationID, store.ErrNotFound)
			}
			locationID = *op.LocationID
		}

		res, err := tx.ExecContext(ctx, `
INSERT INTO operators(username, display_name, role, location_id, created_at_ms)
VALUES (?, ?, ?, ?, ?);
`, op.Username, op.DisplayName, string(op.Role), locationID, time.Now().UTC().UnixMilli())
		if err != nil {
			return fmt.Errorf("CreateOperator insert: %w", err)
		}
		op.ID, err = res.LastInsertId()
		return err
	})
}

func (s *RegistryStore) CreateEmployee(ctx context.Context, emp *types.Employee) error {
	now := time.Now().UTC()
	if emp.CreatedAt.IsZero() {
		emp.CreatedAt = now
	}
	emp.UpdatedAt = now

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var code string
		err := tx.QueryRowContext(ctx, `SELECT code FROM locations WHERE location_id = ?;`, emp.LocationID).Scan(&code)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("employee location %d: %w", emp.LocationID, store.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("CreateEmployee location: %w", err)
		}

		if emp.ExtID == "" {
			var n int
			if err := tx.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM employees WHERE location_id = ?;`, emp.LocationID).Scan(&n); err != nil {
				return fmt.Errorf("CreateEmployee ext_id: %w", err)
			}
			emp.ExtID = types.GenerateExtID(code, n+1)
		}

		res, err := tx.ExecContext(ctx, `
INSERT INTO employees(location_id, ext_id, name, name_key, department, active, created_at_ms, updated_at_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?);
`, emp.LocationID, emp.ExtID, emp.Name, types.NameKey(emp.Name), emp.Department, boolInt(emp.Active),
			emp.CreatedAt.UnixMilli(), emp.UpdatedAt.UnixMilli())
		if err != nil {
			return fmt.Errorf("CreateEmployee insert: %w", err)
		}
		emp.ID, err = res.LastInsertId()
		return err
	})
}

func (s *RegistryStore) CreateVehicle(ctx context.Context, v *types.Vehicle) error {
	now := time.Now().UTC()
	if v.CreatedAt.IsZero() {
		v.CreatedAt = now
	}
	v.UpdatedAt = now

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		ok, err := exists(ctx, tx, `SELECT COUNT(*) FROM locations WHERE location_id = ?;`, v.LocationID)
		if err != nil {
			return fmt.Errorf("CreateVehicle location: %w", err)
		}
		if !ok {
			return fmt.Errorf("vehicle location %d: %w", v.LocationID, store.ErrNotFound)
		}
		taken, err := exists(ctx, tx,
			`SELECT COUNT(*) FROM vehicles WHERE location_id = ? AND plate_number = ?;`, v.LocationID, v.PlateNumber)
		if err != nil {
			return fmt.Errorf("CreateVehicle check: %w", err)
		}
		if taken {
			return fmt.Errorf("vehicle %q: %w", v.PlateNumber, store.ErrConflict)
		}

		res, err := tx.ExecContext(ctx, `
INSERT INTO vehicles(location_id, plate_number, description, owner, active, created_at_ms, updated_at_ms)
VALUES (?, ?, ?, ?, ?, ?, ?);
`, v.LocationID, v.PlateNumber, v.Description, v.Owner, boolInt(v.Active),
			v.CreatedAt.UnixMilli(), v.UpdatedAt.UnixMilli())
		if err != nil {
			return fmt.Errorf("CreateVehicle insert: %w", err)
		}
		v.ID, err = res.LastInsertId()
		return err
	})
}

func (s *RegistryStore) SetActive(ctx context.Context, ref types.Ref, active bool) error {
	var query string
	switch ref.Kind {
	case types.KindEmployee:
		query = `UPDATE employees SET active = ?, updated_at_ms = ? WHERE employee_id = ?;`
	case types.KindVehicle:
		query = `UPDATE vehicles SET active = ?, updated_at_ms = ? WHERE vehicle_id = ?;`
	default:
		return fmt.Errorf("%s: %w", ref, store.ErrNotFound)
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query, boolInt(active), time.Now().UTC().UnixMilli(), ref.ID)
		if err != nil {
			return fmt.Errorf("SetActive %s: %w", ref, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%s: %w", ref, store.ErrNotFound)
		}
		return nil
	})
}

const locationCols = `location_id, code, name, address, active, created_at_ms`

func scanLocation(r rowScanner) (types.Location, error) {
	var (
		l         types.Location
		active    int
		createdMs int64
	)
	if err := r.Scan(&l.ID, &l.Code, &l.Name, &l.Address, &active, &createdMs); err != nil {
		return types.Location{}, err
	}
	l.Active = active != 0
	l.CreatedAt = fromMs(createdMs)
	return l, nil
}

func (s *RegistryStore) Location(ctx context.Context, id int64) (types.Location, error) {
	l, err := scanLocation(s.db.QueryRowContext(ctx,
		`SELECT `+locationCols+` FROM locations WHERE location_id = ?;`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Location{}, store.ErrNotFound
	}
	if err != nil {
		return types.Location{}, fmt.Errorf("Location: %w", err)
	}
	return l, nil
}

func (s *RegistryStore) LocationByCode(ctx context.Context, code string) (types.Location, error) {
	l, err := scanLocation(s.db.QueryRowContext(ctx,
		`SELECT `+locationCols+` FROM locations WHERE code = ? COLLATE NOCASE;`, strings.TrimSpace(code)))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Location{}, store.ErrNotFound
	}
	if err != nil {
		return types.Location{}, fmt.Errorf("LocationByCode: %w", err)
	}
	return l, nil
}

func (s *RegistryStore) Locations(ctx context.Context) ([]types.Location, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+locationCols+` FROM locations ORDER BY name;`)
	if err != nil {
		return nil, fmt.Errorf("Locations: %w", err)
	}
	defer rows.Close()

	var out []types.Location
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, fmt.Errorf("Locations scan: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *RegistryStore) Operator(ctx context.Context, id int64) (types.Operator, error) {
	var (
		op         types.Operator
		role       string
		locationID sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT operator_id, username, display_name, role, location_id
FROM operators WHERE operator_id = ?;
`, id).Scan(&op.ID, &op.Username, &op.DisplayName, &role, &locationID)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Operator{}, store.ErrNotFound
	}
	if err != nil {
		return types.Operator{}, fmt.Errorf("Operator: %w", err)
	}
	op.Role = types.Role(role)
	if locationID.Valid {
		lid := locationID.Int64
		op.LocationID = &lid
	}
	return op, nil
}

func (s *RegistryStore) Entities(ctx context.Context, refs []types.Ref) (map[types.Ref]types.Entity, error) {
	var empIDs, vehIDs []any
	for _, r := range refs {
		switch r.Kind {
		case types.KindEmployee:
			empIDs = append(empIDs, r.ID)
		case types.KindVehicle:
			vehIDs = append(vehIDs, r.ID)
		}
	}

	out := make(map[types.Ref]types.Entity, len(refs))
	for len(empIDs) > 0 {
		n := min(len(empIDs), entitiesChunk)
		rows, err := s.db.QueryContext(ctx,
			`SELECT `+employeeCols+` FROM employees WHERE employee_id IN (`+placeholders(n)+`);`, empIDs[:n]...)
		if err != nil {
			return nil, fmt.Errorf("Entities employees: %w", err)
		}
		for rows.Next() {
			e, err := scanEmployee(rows)
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("Entities employees scan: %w", err)
			}
			out[e.Entity().Ref] = e.Entity()
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
		empIDs = empIDs[n:]
	}

	for len(vehIDs) > 0 {
		n := min(len(vehIDs), entitiesChunk)
		rows, err := s.db.QueryContext(ctx,
			`SELECT `+vehicleCols+` FROM vehicles WHERE vehicle_id IN (`+placeholders(n)+`);`, vehIDs[:n]...)
		if err != nil {
			return nil, fmt.Errorf("Entities vehicles: %w", err)
		}
		for rows.Next() {
			v, err := scanVehicle(rows)
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("Entities vehicles scan: %w", err)
			}
			out[v.Entity().Ref] = v.Entity()
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
		vehIDs = vehIDs[n:]
	}

	return out, nil
}

// likePattern turns a search term into a LIKE pattern with \ as escape.
func likePattern(search string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.TrimSpace(search)) + "%"
}

// ActiveEntities relies on LIKE being case-insensitive for ASCII in SQLite.
func (s *RegistryStore) ActiveEntities(ctx context.Context, f store.EntityFilter) ([]types.Entity, error) {
	var (
		query  string
		fields []string
	)
	switch f.Kind {
	case types.KindEmployee:
		query = `SELECT ` + employeeCols + ` FROM employees WHERE active = 1`
		fields = []string{"name", "department", "ext_id"}
	case types.KindVehicle:
		query = `SELECT ` + vehicleCols + ` FROM vehicles WHERE active = 1`
		fields = []string{"plate_number", "description", "owner"}
	default:
		return nil, fmt.Errorf("ActiveEntities: unknown kind %q", f.Kind)
	}

	var args []any
	if f.LocationID != nil {
		query += ` AND location_id = ?`
		args = append(args, *f.LocationID)
	}
	if strings.TrimSpace(f.Search) != "" {
		pattern := likePattern(f.Search)
		ors := make([]string, len(fields))
		for i, col := range fields {
			ors[i] = col + ` LIKE ? ESCAPE '\'`
			args = append(args, pattern)
		}
		query += ` AND (` + strings.Join(ors, ` OR `) + `)`
	}
	if f.Kind == types.KindEmployee {
		query += ` ORDER BY name, employee_id;`
	} else {
		query += ` ORDER BY plate_number, vehicle_id;`
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ActiveEntities: %w", err)
	}
	defer rows.Close()

	var out []types.Entity
	for rows.Next() {
		if f.Kind == types.KindEmployee {
			e, err := scanEmployee(rows)
			if err != nil {
				return nil, fmt.Errorf("ActiveEntities scan: %w", err)
			}
			out = append(out, e.Entity())
			continue
		}
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, fmt.Errorf("ActiveEntities scan: %w", err)
		}
		out = append(out, v.Entity())
	}
	return out, rows.Err()
}
