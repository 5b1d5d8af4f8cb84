package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/register/internal/register/store"
	"github.com/BrandonDHaskell/Portunus/register/internal/register/types"
)

// Recorder is the entry/exit gate. Every accepted event, including the
// employee event mirrored from a vehicle, passes through transition
// inside one store unit of work.
type Recorder struct {
	log      store.EventLog
	registry *LocationRegistry
	presence *PresenceService
	linker   *OwnershipLinker
	logger   *zap.Logger
	now      func() time.Time
}

type RecorderOption func(*Recorder)

// WithClock replaces time.Now; tests use it to pin timestamps.
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) { r.now = now }
}

func NewRecorder(log store.EventLog, reg *LocationRegistry, presence *PresenceService, logger *zap.Logger, opts ...RecorderOption) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Recorder{
		log:      log,
		registry: reg,
		presence: presence,
		logger:   logger,
		now:      time.Now,
	}
	r.linker = &OwnershipLinker{transition: r.transition, logger: logger}
	for _, o := range opts {
		o(r)
	}
	return r
}

// RecordEvent appends one IN or OUT for an entity. It fails with
// ErrNotFound for unknown or deactivated entities and locations, and with
// ErrInvalidTransition for a second IN or an OUT without an IN. Vehicle
// events may append a mirrored employee event in the same unit.
func (r *Recorder) RecordEvent(ctx context.Context, req types.RecordRequest) (types.RecordResult, error) {
	if !req.Kind.Valid() {
		return types.RecordResult{}, types.ErrInvalidArgument.WithMessage(fmt.Sprintf("unknown entity kind %q", req.Kind))
	}
	if !req.Direction.Valid() {
		return types.RecordResult{}, types.ErrInvalidArgument.WithMessage(fmt.Sprintf("invalid direction %q", req.Direction))
	}
	if _, err := r.registry.ActiveLocation(ctx, req.LocationID); err != nil {
		return types.RecordResult{}, err
	}

	ref := types.Ref{Kind: req.Kind, ID: req.EntityID}
	var res types.RecordResult

	err := r.log.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		ent, err := tx.Entity(ctx, ref)
		if err != nil {
			return classify(err, ref.String())
		}
		if !ent.Active {
			return types.ErrNotFound.WithMessage(fmt.Sprintf("%s is deactivated", ent.DisplayName))
		}

		entry, err := r.transition(ctx, tx, ent, req.Direction, req.LocationID, req.OperatorID)
		if err != nil {
			return err
		}
		res = types.RecordResult{Entry: entry, Entity: ent}

		if ent.Kind != types.KindVehicle {
			return nil
		}
		mirrored, emp, err := r.linker.Mirror(ctx, tx, ent, entry)
		if err != nil {
			return err
		}
		if mirrored != nil {
			res.Mirrored = mirrored
			res.MirroredName = emp.DisplayName
		}
		return nil
	})
	if err != nil {
		err = classify(err, "record event")
		if !errors.Is(err, types.ErrInvalidTransition) && !errors.Is(err, types.ErrNotFound) {
			r.logger.Error("record event failed", zap.Stringer("entity", ref), zap.Error(err))
		}
		return types.RecordResult{}, err
	}

	r.presence.invalidate(ctx)

	r.logger.Debug("event recorded",
		zap.Stringer("entity", ref),
		zap.String("direction", string(res.Entry.Direction)),
		zap.Int64("location_id", res.Entry.LocationID),
		zap.Int64("entry_id", res.Entry.ID),
	)
	if res.Mirrored != nil {
		r.logger.Info("owner event mirrored",
			zap.Stringer("vehicle", ref),
			zap.Stringer("employee", res.Mirrored.Entity()),
			zap.String("direction", string(res.Mirrored.Direction)),
		)
	}
	return res, nil
}

// transition checks dir against the entity's last entry and appends. It
// must run inside Update so the read and the append are one unit.
func (r *Recorder) transition(ctx context.Context, tx store.Tx, ent types.Entity, dir types.Direction, locationID int64, operatorID *int64) (types.LogEntry, error) {
	last, ok, err := tx.LastEvent(ctx, ent.Ref)
	if err != nil {
		return types.LogEntry{}, classify(err, "last event")
	}
	present := ok && last.Direction == types.DirectionIn

	switch {
	case dir == types.DirectionIn && present:
		return types.LogEntry{}, types.ErrInvalidTransition.WithMessage(fmt.Sprintf("%s is already on territory", ent.DisplayName))
	case dir == types.DirectionOut && !present:
		return types.LogEntry{}, types.ErrInvalidTransition.WithMessage(fmt.Sprintf("%s is not on territory", ent.DisplayName))
	}

	ts := r.now().UTC().Truncate(time.Millisecond)
	if ok && ts.Before(last.Timestamp) {
		ts = last.Timestamp
	}

	entry, err := tx.Append(ctx, types.LogEntry{
		EntityKind: ent.Kind,
		EntityID:   ent.ID,
		Direction:  dir,
		LocationID: locationID,
		Timestamp:  ts,
		RecordedBy: operatorID,
	})
	if err != nil {
		return types.LogEntry{}, classify(err, "append")
	}
	return entry, nil
}
