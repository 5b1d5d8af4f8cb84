package service

import (
	"context"
	"fmt"

	"github.com/BrandonDHaskell/Portunus/register/internal/register/store"
	"github.com/BrandonDHaskell/Portunus/register/internal/register/types"
)

// LocationRegistry answers the registry questions the engine asks on its
// read and write paths: which locations exist, who the operator is, and
// what an entity looks like.
type LocationRegistry struct {
	store store.Registry
}

func NewLocationRegistry(st store.Registry) *LocationRegistry {
	return &LocationRegistry{store: st}
}

// ActiveLocation returns the location if it exists and is active.
func (r *LocationRegistry) ActiveLocation(ctx context.Context, id int64) (types.Location, error) {
	loc, err := r.store.Location(ctx, id)
	if err != nil {
		return types.Location{}, classify(err, fmt.Sprintf("location %d", id))
	}
	if !loc.Active {
		return types.Location{}, types.ErrNotFound.WithMessage(fmt.Sprintf("location %s is inactive", loc.Code))
	}
	return loc, nil
}

// Locations returns every location keyed by id, active or not, so that
// historical rows keep rendering after a location is retired.
func (r *LocationRegistry) Locations(ctx context.Context) (map[int64]types.Location, error) {
	locs, err := r.store.Locations(ctx)
	if err != nil {
		return nil, classify(err, "locations")
	}
	out := make(map[int64]types.Location, len(locs))
	for _, l := range locs {
		out[l.ID] = l
	}
	return out, nil
}

// ActiveLocations returns active locations ordered by name.
func (r *LocationRegistry) ActiveLocations(ctx context.Context) ([]types.Location, error) {
	locs, err := r.store.Locations(ctx)
	if err != nil {
		return nil, classify(err, "locations")
	}
	out := locs[:0]
	for _, l := range locs {
		if l.Active {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *LocationRegistry) Operator(ctx context.Context, id int64) (types.Operator, error) {
	op, err := r.store.Operator(ctx, id)
	if err != nil {
		return types.Operator{}, classify(err, fmt.Sprintf("operator %d", id))
	}
	return op, nil
}

func (r *LocationRegistry) Entity(ctx context.Context, ref types.Ref) (types.Entity, error) {
	m, err := r.store.Entities(ctx, []types.Ref{ref})
	if err != nil {
		return types.Entity{}, classify(err, ref.String())
	}
	e, ok := m[ref]
	if !ok {
		return types.Entity{}, types.ErrNotFound.WithMessage(fmt.Sprintf("%s not found", ref))
	}
	return e, nil
}

// Entities resolves refs in bulk; missing refs are absent from the map.
func (r *LocationRegistry) Entities(ctx context.Context, refs []types.Ref) (map[types.Ref]types.Entity, error) {
	if len(refs) == 0 {
		return map[types.Ref]types.Entity{}, nil
	}
	m, err := r.store.Entities(ctx, refs)
	if err != nil {
		return nil, classify(err, "entities")
	}
	return m, nil
}

func (r *LocationRegistry) ActiveEntities(ctx context.Context, f store.EntityFilter) ([]types.Entity, error) {
	if !f.Kind.Valid() {
		return nil, types.ErrInvalidArgument.WithMessage("kind must be employee or vehicle")
	}
	ents, err := r.store.ActiveEntities(ctx, f)
	if err != nil {
		return nil, classify(err, "active entities")
	}
	return ents, nil
}
