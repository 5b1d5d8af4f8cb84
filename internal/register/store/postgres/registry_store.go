package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BrandonDHaskell/Portunus/register/internal/register/store"
	"github.com/BrandonDHaskell/Portunus/register/internal/register/types"
)

// RegistryStore persists locations, operators, employees and vehicles.
// Unique keys are enforced by the schema; the handle must be opened with
// TranslateError so violations arrive as gorm.ErrDuplicatedKey.
type RegistryStore struct {
	db *gorm.DB
}

func NewRegistryStore(db *gorm.DB) *RegistryStore {
	return &RegistryStore{db: db}
}

func conflict(err error, what string) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%s: %w", what, store.ErrConflict)
	}
	return err
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ErrNotFound
	}
	return err
}

func locationExists(tx *gorm.DB, id int64) (bool, error) {
	var n int64
	if err := tx.Model(&locationModel{}).Where("location_id = ?", id).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RegistryStore) CreateLocation(ctx context.Context, loc *types.Location) error {
	if loc.CreatedAt.IsZero() {
		loc.CreatedAt = time.Now().UTC()
	}
	m := locationModel{
		Code:      loc.Code,
		Name:      loc.Name,
		Address:   loc.Address,
		Active:    loc.Active,
		CreatedAt: loc.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("CreateLocation: %w", conflict(err, fmt.Sprintf("location %q", loc.Code)))
	}
	loc.ID = m.ID
	return nil
}

func (s *RegistryStore) CreateOperator(ctx context.Context, op *types.Operator) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if op.LocationID != nil {
			ok, err := locationExists(tx, *op.LocationID)
			if err != nil {
				return fmt.Errorf("CreateOperator location: %w", err)
			}
			if !ok {
				return fmt.Errorf("operator location %d: %w", *op.LocationID, store.ErrNotFound)
			}
		}

		m := operatorModel{
			Username:    op.Username,
			DisplayName: op.DisplayName,
			Role:        string(op.Role),
			LocationID:  op.LocationID,
		}
		if err := tx.Create(&m).Error; err != nil {
			return fmt.Errorf("CreateOperator: %w", conflict(err, fmt.Sprintf("operator %q", op.Username)))
		}
		op.ID = m.ID
		return nil
	})
}

// CreateEmployee locks the location row so concurrent inserts at one
// location draw distinct ext_id ordinals.
func (s *RegistryStore) CreateEmployee(ctx context.Context, emp *types.Employee) error {
	now := time.Now().UTC()
	if emp.CreatedAt.IsZero() {
		emp.CreatedAt = now
	}
	emp.UpdatedAt = now

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var loc locationModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("location_id = ?", emp.LocationID).
			Take(&loc).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("employee location %d: %w", emp.LocationID, store.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("CreateEmployee location: %w", err)
		}

		if emp.ExtID == "" {
			var n int64
			if err := tx.Model(&employeeModel{}).Where("location_id = ?", emp.LocationID).Count(&n).Error; err != nil {
				return fmt.Errorf("CreateEmployee ext_id: %w", err)
			}
			emp.ExtID = types.GenerateExtID(loc.Code, int(n)+1)
		}

		m := employeeModel{
			LocationID: emp.LocationID,
			ExtID:      emp.ExtID,
			Name:       emp.Name,
			NameKey:    types.NameKey(emp.Name),
			Department: emp.Department,
			Active:     emp.Active,
			CreatedAt:  emp.CreatedAt,
			UpdatedAt:  emp.UpdatedAt,
		}
		if err := tx.Create(&m).Error; err != nil {
			return fmt.Errorf("CreateEmployee insert: %w", err)
		}
		emp.ID = m.ID
		return nil
	})
}

func (s *RegistryStore) CreateVehicle(ctx context.Context, v *types.Vehicle) error {
	now := time.Now().UTC()
	if v.CreatedAt.IsZero() {
		v.CreatedAt = now
	}
	v.UpdatedAt = now

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := locationExists(tx, v.LocationID)
		if err != nil {
			return fmt.Errorf("CreateVehicle location: %w", err)
		}
		if !ok {
			return fmt.Errorf("vehicle location %d: %w", v.LocationID, store.ErrNotFound)
		}

		m := vehicleModel{
			LocationID:  v.LocationID,
			PlateNumber: v.PlateNumber,
			Description: v.Description,
			Owner:       v.Owner,
			Active:      v.Active,
			CreatedAt:   v.CreatedAt,
			UpdatedAt:   v.UpdatedAt,
		}
		if err := tx.Create(&m).Error; err != nil {
			return fmt.Errorf("CreateVehicle: %w", conflict(err, fmt.Sprintf("vehicle %q", v.PlateNumber)))
		}
		v.ID = m.ID
		return nil
	})
}

func (s *RegistryStore) SetActive(ctx context.Context, ref types.Ref, active bool) error {
	var (
		model  any
		column string
	)
	switch ref.Kind {
	case types.KindEmployee:
		model, column = &employeeModel{}, "employee_id"
	case types.KindVehicle:
		model, column = &vehicleModel{}, "vehicle_id"
	default:
		return fmt.Errorf("%s: %w", ref, store.ErrNotFound)
	}

	res := s.db.WithContext(ctx).Model(model).
		Where(column+" = ?", ref.ID).
		Updates(map[string]any{"active": active, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return fmt.Errorf("SetActive %s: %w", ref, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%s: %w", ref, store.ErrNotFound)
	}
	return nil
}

func (s *RegistryStore) Location(ctx context.Context, id int64) (types.Location, error) {
	var m locationModel
	if err := s.db.WithContext(ctx).Where("location_id = ?", id).Take(&m).Error; err != nil {
		return types.Location{}, notFound(err)
	}
	return m.toType(), nil
}

func (s *RegistryStore) LocationByCode(ctx context.Context, code string) (types.Location, error) {
	var m locationModel
	err := s.db.WithContext(ctx).
		Where("lower(code) = lower(?)", strings.TrimSpace(code)).
		Take(&m).Error
	if err != nil {
		return types.Location{}, notFound(err)
	}
	return m.toType(), nil
}

func (s *RegistryStore) Locations(ctx context.Context) ([]types.Location, error) {
	var ms []locationModel
	if err := s.db.WithContext(ctx).Order("name").Find(&ms).Error; err != nil {
		return nil, fmt.Errorf("Locations: %w", err)
	}
	out := make([]types.Location, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.toType())
	}
	return out, nil
}

func (s *RegistryStore) Operator(ctx context.Context, id int64) (types.Operator, error) {
	var m operatorModel
	if err := s.db.WithContext(ctx).Where("operator_id = ?", id).Take(&m).Error; err != nil {
		return types.Operator{}, notFound(err)
	}
	return m.toType(), nil
}

func (s *RegistryStore) Entities(ctx context.Context, refs []types.Ref) (map[types.Ref]types.Entity, error) {
	var empIDs, vehIDs []int64
	for _, r := range refs {
		switch r.Kind {
		case types.KindEmployee:
			empIDs = append(empIDs, r.ID)
		case types.KindVehicle:
			vehIDs = append(vehIDs, r.ID)
		}
	}

	db := s.db.WithContext(ctx)
	out := make(map[types.Ref]types.Entity, len(refs))
	if len(empIDs) > 0 {
		var ms []employeeModel
		if err := db.Where("employee_id IN ?", empIDs).Find(&ms).Error; err != nil {
			return nil, fmt.Errorf("Entities employees: %w", err)
		}
		for _, m := range ms {
			e := m.toType().Entity()
			out[e.Ref] = e
		}
	}
	if len(vehIDs) > 0 {
		var ms []vehicleModel
		if err := db.Where("vehicle_id IN ?", vehIDs).Find(&ms).Error; err != nil {
			return nil, fmt.Errorf("Entities vehicles: %w", err)
		}
		for _, m := range ms {
			e := m.toType().Entity()
			out[e.Ref] = e
		}
	}
	return out, nil
}

// likePattern turns a search term into an ILIKE pattern; backslash is
// Postgres' default LIKE escape.
func likePattern(search string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.TrimSpace(search)) + "%"
}

func (s *RegistryStore) ActiveEntities(ctx context.Context, f store.EntityFilter) ([]types.Entity, error) {
	db := s.db.WithContext(ctx).Where("active")
	if f.LocationID != nil {
		db = db.Where("location_id = ?", *f.LocationID)
	}
	search := strings.TrimSpace(f.Search) != ""
	pattern := likePattern(f.Search)

	var out []types.Entity
	switch f.Kind {
	case types.KindEmployee:
		if search {
			db = db.Where("name ILIKE ? OR department ILIKE ? OR ext_id ILIKE ?", pattern, pattern, pattern)
		}
		var ms []employeeModel
		if err := db.Order("name, employee_id").Find(&ms).Error; err != nil {
			return nil, fmt.Errorf("ActiveEntities employees: %w", err)
		}
		for _, m := range ms {
			out = append(out, m.toType().Entity())
		}
	case types.KindVehicle:
		if search {
			db = db.Where("plate_number ILIKE ? OR description ILIKE ? OR owner ILIKE ?", pattern, pattern, pattern)
		}
		var ms []vehicleModel
		if err := db.Order("plate_number, vehicle_id").Find(&ms).Error; err != nil {
			return nil, fmt.Errorf("ActiveEntities vehicles: %w", err)
		}
		for _, m := range ms {
			out = append(out, m.toType().Entity())
		}
	default:
		return nil, fmt.Errorf("ActiveEntities: unknown kind %q", f.Kind)
	}
	return out, nil
}

// entity loads one employee or vehicle regardless of its active flag.
func entity(db *gorm.DB, ref types.Ref) (types.Entity, error) {
	switch ref.Kind {
	case types.KindEmployee:
		var m employeeModel
		if err := db.Where("employee_id = ?", ref.ID).Take(&m).Error; err != nil {
			return types.Entity{}, notFound(err)
		}
		return m.toType().Entity(), nil
	case types.KindVehicle:
		var m vehicleModel
		if err := db.Where("vehicle_id = ?", ref.ID).Take(&m).Error; err != nil {
			return types.Entity{}, notFound(err)
		}
		return m.toType().Entity(), nil
	}
	return types.Entity{}, store.ErrNotFound
}
