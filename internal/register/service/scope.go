package service

import (
	"context"
	"fmt"

	"github.com/BrandonDHaskell/Portunus/register/internal/register/types"
)

// ScopeFor resolves the location filter an operator may read with. Admins
// get what they asked for (nil means every location); officers are pinned
// to their own location.
func ScopeFor(op types.Operator, requested *int64) (*int64, error) {
	if op.IsAdmin() {
		return requested, nil
	}
	if op.LocationID == nil {
		return nil, types.ErrForbidden.WithMessage(fmt.Sprintf("operator %s has no assigned location", op.Username))
	}
	if requested != nil && *requested != *op.LocationID {
		return nil, types.ErrForbidden.WithMessage("officers can only view their own location")
	}
	own := *op.LocationID
	return &own, nil
}

// RecordLocationFor decides where an operator's event for ent is recorded.
// Admins default to the entity's home location. Officers record at their
// own location, may only admit entities registered there, and may only
// release entities that last entered there. A deactivated entity is
// ErrNotFound for every operator, ahead of any permission check. The check
// reads outside any write unit; the Recorder still performs the
// authoritative transition check.
func (s *PresenceService) RecordLocationFor(ctx context.Context, op types.Operator, ent types.Entity, dir types.Direction, requested *int64) (int64, error) {
	if !ent.Active {
		return 0, types.ErrNotFound.WithMessage(fmt.Sprintf("%s is deactivated", ent.DisplayName))
	}
	if op.IsAdmin() {
		if requested != nil {
			return *requested, nil
		}
		return ent.HomeLocationID, nil
	}

	own, err := ScopeFor(op, requested)
	if err != nil {
		return 0, err
	}

	switch dir {
	case types.DirectionIn:
		if ent.HomeLocationID != *own {
			return 0, types.ErrForbidden.WithMessage(fmt.Sprintf("%s is registered at another location", ent.DisplayName))
		}
	case types.DirectionOut:
		last, ok, err := s.log.LastEvent(ctx, ent.Ref)
		if err != nil {
			return 0, classify(err, "last event")
		}
		if ok && last.Direction == types.DirectionIn && last.LocationID != *own {
			return 0, types.ErrForbidden.WithMessage(fmt.Sprintf("%s entered at another location", ent.DisplayName))
		}
	}
	return *own, nil
}
