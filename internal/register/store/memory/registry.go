package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BrandonDHaskell/Portunus/register/internal/register/store"
	"github.com/BrandonDHaskell/Portunus/register/internal/register/types"
)

// Registry is an in-memory store.Registry for tests and the memory driver.
type Registry struct {
	mu sync.RWMutex

	lastID    int64
	locations map[int64]types.Location
	operators map[int64]types.Operator
	employees map[int64]types.Employee
	vehicles  map[int64]types.Vehicle
}

func NewRegistry() *Registry {
	return &Registry{
		locations: make(map[int64]types.Location),
		operators: make(map[int64]types.Operator),
		employees: make(map[int64]types.Employee),
		vehicles:  make(map[int64]types.Vehicle),
	}
}

// nextID hands out ids from one sequence; callers hold mu.
func (r *Registry) nextID() int64 {
	r.lastID++
	return r.lastID
}

func (r *Registry) CreateLocation(_ context.Context, loc *types.Location) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, l := range r.locations {
		if strings.EqualFold(l.Code, loc.Code) || l.Name == loc.Name {
			return fmt.Errorf("location %q: %w", loc.Code, store.ErrConflict)
		}
	}
	if loc.CreatedAt.IsZero() {
		loc.CreatedAt = time.Now().UTC()
	}
	loc.ID = r.nextID()
	r.locations[loc.ID] = *loc
	return nil
}

func (r *Registry) CreateOperator(_ context.Context, op *types.Operator) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, o := range r.operators {
		if o.Username == op.Username {
			return fmt.Errorf("operator %q: %w", op.Username, store.ErrConflict)
		}
	}
	if op.LocationID != nil {
		if _, ok := r.locations[*op.LocationID]; !ok {
			return fmt.Errorf("operator location %d: %w", *op.LocationID, store.ErrNotFound)
		}
	}
	op.ID = r.nextID()
	r.operators[op.ID] = *op
	return nil
}

func (r *Registry) CreateEmployee(_ context.Context, emp *types.Employee) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	loc, ok := r.locations[emp.LocationID]
	if !ok {
		return fmt.Errorf("employee location %d: %w", emp.LocationID, store.ErrNotFound)
	}
	if emp.ExtID == "" {
		n := 0
		for _, e := range r.employees {
			if e.LocationID == emp.LocationID {
				n++
			}
		}
		emp.ExtID = types.GenerateExtID(loc.Code, n+1)
	}
	now := time.Now().UTC()
	if emp.CreatedAt.IsZero() {
		emp.CreatedAt = now
	}
	emp.UpdatedAt = now
	emp.ID = r.nextID()
	r.employees[emp.ID] = *emp
	return nil
}

func (r *Registry) CreateVehicle(_ context.Context, v *types.Vehicle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.locations[v.LocationID]; !ok {
		return fmt.Errorf("vehicle location %d: %w", v.LocationID, store.ErrNotFound)
	}
	for _, x := range r.vehicles {
		if x.LocationID == v.LocationID && x.PlateNumber == v.PlateNumber {
			return fmt.Errorf("vehicle %q: %w", v.PlateNumber, store.ErrConflict)
		}
	}
	now := time.Now().UTC()
	if v.CreatedAt.IsZero() {
		v.CreatedAt = now
	}
	v.UpdatedAt = now
	v.ID = r.nextID()
	r.vehicles[v.ID] = *v
	return nil
}

func (r *Registry) SetActive(_ context.Context, ref types.Ref, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	switch ref.Kind {
	case types.KindEmployee:
		e, ok := r.employees[ref.ID]
		if !ok {
			return fmt.Errorf("%s: %w", ref, store.ErrNotFound)
		}
		e.Active, e.UpdatedAt = active, now
		r.employees[ref.ID] = e
	case types.KindVehicle:
		v, ok := r.vehicles[ref.ID]
		if !ok {
			return fmt.Errorf("%s: %w", ref, store.ErrNotFound)
		}
		v.Active, v.UpdatedAt = active, now
		r.vehicles[ref.ID] = v
	default:
		return fmt.Errorf("%s: %w", ref, store.ErrNotFound)
	}
	return nil
}

func (r *Registry) Location(_ context.Context, id int64) (types.Location, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.locations[id]
	if !ok {
		return types.Location{}, store.ErrNotFound
	}
	return l, nil
}

func (r *Registry) LocationByCode(_ context.Context, code string) (types.Location, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, l := range r.locations {
		if strings.EqualFold(l.Code, code) {
			return l, nil
		}
	}
	return types.Location{}, store.ErrNotFound
}

func (r *Registry) Locations(_ context.Context) ([]types.Location, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.Location, 0, len(r.locations))
	for _, l := range r.locations {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *Registry) Operator(_ context.Context, id int64) (types.Operator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.operators[id]
	if !ok {
		return types.Operator{}, store.ErrNotFound
	}
	return o, nil
}

func (r *Registry) Entities(_ context.Context, refs []types.Ref) (map[types.Ref]types.Entity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[types.Ref]types.Entity, len(refs))
	for _, ref := range refs {
		if e, ok := r.entity(ref); ok {
			out[ref] = e
		}
	}
	return out, nil
}

func (r *Registry) ActiveEntities(_ context.Context, f store.EntityFilter) ([]types.Entity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(f.Search))
	matches := func(fields ...string) bool {
		if needle == "" {
			return true
		}
		for _, v := range fields {
			if strings.Contains(strings.ToLower(v), needle) {
				return true
			}
		}
		return false
	}
	atLocation := func(id int64) bool {
		return f.LocationID == nil || *f.LocationID == id
	}

	var out []types.Entity
	switch f.Kind {
	case types.KindEmployee:
		for _, e := range r.employees {
			if e.Active && atLocation(e.LocationID) && matches(e.Name, e.Department, e.ExtID) {
				out = append(out, e.Entity())
			}
		}
	case types.KindVehicle:
		for _, v := range r.vehicles {
			if v.Active && atLocation(v.LocationID) && matches(v.PlateNumber, v.Description, v.Owner) {
				out = append(out, v.Entity())
			}
		}
	default:
		return nil, fmt.Errorf("active entities: unknown kind %q", f.Kind)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayName != out[j].DisplayName {
			return out[i].DisplayName < out[j].DisplayName
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// entity resolves one ref; callers hold mu.
func (r *Registry) entity(ref types.Ref) (types.Entity, bool) {
	switch ref.Kind {
	case types.KindEmployee:
		if e, ok := r.employees[ref.ID]; ok {
			return e.Entity(), true
		}
	case types.KindVehicle:
		if v, ok := r.vehicles[ref.ID]; ok {
			return v.Entity(), true
		}
	}
	return types.Entity{}, false
}

func (r *Registry) activeEmployeeByName(key string) (types.Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *types.Employee
	for id := range r.employees {
		e := r.employees[id]
		if !e.Active || types.NameKey(e.Name) != key {
			continue
		}
		if best == nil || e.ID < best.ID {
			best = &e
		}
	}
	if best == nil {
		return types.Entity{}, false
	}
	return best.Entity(), true
}
