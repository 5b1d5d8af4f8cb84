package store

import (
	"context"
	"errors"
	"time"

	"github.com/BrandonDHaskell/Portunus/register/internal/register/types"
)

var (
	// ErrNotFound is returned by lookups that match no row.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when a unique key (location code or name,
	// operator username, plate per location) is already taken.
	ErrConflict = errors.New("store: conflict")
)

// Registry holds the administrative records the engine reads: locations,
// operators, employees and vehicles. Entities are never deleted, only
// deactivated.
type Registry interface {
	CreateLocation(ctx context.Context, loc *types.Location) error
	CreateOperator(ctx context.Context, op *types.Operator) error
	// CreateEmployee fills ExtID from the location code when it is empty.
	CreateEmployee(ctx context.Context, emp *types.Employee) error
	CreateVehicle(ctx context.Context, v *types.Vehicle) error
	SetActive(ctx context.Context, ref types.Ref, active bool) error

	Location(ctx context.Context, id int64) (types.Location, error)
	LocationByCode(ctx context.Context, code string) (types.Location, error)
	Locations(ctx context.Context) ([]types.Location, error)
	Operator(ctx context.Context, id int64) (types.Operator, error)
	// Entities resolves refs in bulk, active or not. Missing refs are
	// absent from the result.
	Entities(ctx context.Context, refs []types.Ref) (map[types.Ref]types.Entity, error)
	// ActiveEntities lists active entities of one kind ordered by display
	// name, then id.
	ActiveEntities(ctx context.Context, f EntityFilter) ([]types.Entity, error)
}

// EntityFilter narrows a roster listing. LocationID matches the home
// location. Search is a case-insensitive substring matched against name,
// department and ext_id for employees, and against plate, description and
// owner for vehicles.
type EntityFilter struct {
	Kind       types.Kind
	LocationID *int64
	Search     string
}

// Tx is the view of the log inside one write unit.
type Tx interface {
	// Entity returns the entity regardless of its active flag.
	Entity(ctx context.Context, ref types.Ref) (types.Entity, error)
	// ActiveEmployeeByName returns the lowest-id active employee whose
	// types.NameKey equals key.
	ActiveEmployeeByName(ctx context.Context, key string) (types.Entity, error)
	// LastEvent returns the entity's most recent entry. Backends that do
	// not serialise whole units lock the entity here until the unit ends.
	LastEvent(ctx context.Context, ref types.Ref) (types.LogEntry, bool, error)
	// Append stores e and returns it with its assigned ID.
	Append(ctx context.Context, e types.LogEntry) (types.LogEntry, error)
}

// PresenceFilter narrows the "present now" query. LocationID is matched
// against the location of each entity's winning (most recent) entry.
type PresenceFilter struct {
	LocationID *int64
	Kind       types.Kind
}

// EventFilter selects raw entries for visit pairing. [From, To) is
// half-open; zero bounds are open.
type EventFilter struct {
	LocationID *int64
	Kind       types.Kind
	From       time.Time
	To         time.Time
}

// EventLog is the append-only ledger of IN/OUT events.
type EventLog interface {
	// Update runs fn as one unit of work. Appends made by fn become visible
	// only if fn returns nil. Two units touching the same entity never
	// interleave between LastEvent and Append.
	Update(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	LastEvent(ctx context.Context, ref types.Ref) (types.LogEntry, bool, error)
	// Present returns, for every entity whose most recent entry is an IN,
	// that entry; newest first.
	Present(ctx context.Context, f PresenceFilter) ([]types.LogEntry, error)
	// PresentCounts counts present entities per location of their winning
	// entry. An empty kind counts both kinds.
	PresentCounts(ctx context.Context, kind types.Kind) (map[int64]int, error)
	// Events returns matching entries ordered by (kind, id, timestamp, entry id).
	Events(ctx context.Context, f EventFilter) ([]types.LogEntry, error)
}
