package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/register/internal/register/store"
	"github.com/BrandonDHaskell/Portunus/register/internal/register/types"
)

type transitionFunc func(ctx context.Context, tx store.Tx, ent types.Entity, dir types.Direction, locationID int64, operatorID *int64) (types.LogEntry, error)

// OwnershipLinker mirrors a vehicle's event onto the employee named as
// its owner. The match is exact on types.NameKey; when several active
// employees share the key the lowest id wins.
type OwnershipLinker struct {
	transition transitionFunc
	logger     *zap.Logger
}

// Mirror runs inside the vehicle's unit of work, after the vehicle entry
// was appended. It appends an employee IN when the vehicle entered and the
// employee is absent, an employee OUT when the vehicle left and the
// employee is present, and nothing otherwise.
func (l *OwnershipLinker) Mirror(ctx context.Context, tx store.Tx, vehicle types.Entity, entry types.LogEntry) (*types.LogEntry, types.Entity, error) {
	if strings.TrimSpace(vehicle.Owner) == "" {
		return nil, types.Entity{}, nil
	}

	emp, err := tx.ActiveEmployeeByName(ctx, types.NameKey(vehicle.Owner))
	if errors.Is(err, store.ErrNotFound) {
		l.logger.Debug("vehicle owner matches no active employee",
			zap.Stringer("vehicle", vehicle.Ref), zap.String("owner", vehicle.Owner))
		return nil, types.Entity{}, nil
	}
	if err != nil {
		return nil, types.Entity{}, classify(err, "owner lookup")
	}

	last, ok, err := tx.LastEvent(ctx, emp.Ref)
	if err != nil {
		return nil, types.Entity{}, classify(err, "owner last event")
	}
	present := ok && last.Direction == types.DirectionIn

	if (entry.Direction == types.DirectionIn) == present {
		return nil, emp, nil
	}

	mirrored, err := l.transition(ctx, tx, emp, entry.Direction, entry.LocationID, entry.RecordedBy)
	if err != nil {
		return nil, types.Entity{}, err
	}
	return &mirrored, emp, nil
}
