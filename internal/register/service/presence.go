package service

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/register/internal/register/store"
	"github.com/BrandonDHaskell/Portunus/register/internal/register/types"
)

// CountCache stores PresentCounts results between writes. Implementations
// may fail; the resolver then falls back to the log.
type CountCache interface {
	Counts(ctx context.Context, kind types.Kind) (map[int64]int, bool, error)
	StoreCounts(ctx context.Context, kind types.Kind, counts map[int64]int) error
	Invalidate(ctx context.Context) error
}

// PresenceService derives presence from the event log. An entity is
// present iff its single most recent entry, across all locations, is an IN.
type PresenceService struct {
	log      store.EventLog
	registry *LocationRegistry
	cache    CountCache
	logger   *zap.Logger
}

// NewPresenceService builds the resolver. cache may be nil.
func NewPresenceService(log store.EventLog, reg *LocationRegistry, cache CountCache, logger *zap.Logger) *PresenceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PresenceService{log: log, registry: reg, cache: cache, logger: logger}
}

// LastDirection returns the direction of the entity's winning entry; ok
// is false when the entity has never been recorded.
func (s *PresenceService) LastDirection(ctx context.Context, ref types.Ref) (dir types.Direction, ok bool, err error) {
	e, ok, err := s.log.LastEvent(ctx, ref)
	if err != nil {
		return "", false, classify(err, "last event")
	}
	if !ok {
		return "", false, nil
	}
	return e.Direction, true, nil
}

func (s *PresenceService) IsPresent(ctx context.Context, ref types.Ref) (bool, error) {
	dir, ok, err := s.LastDirection(ctx, ref)
	if err != nil {
		return false, err
	}
	return ok && dir == types.DirectionIn, nil
}

// ListPresent returns hydrated rows for present entities, newest entry
// first. The location filter applies to where each entity last entered.
// Entities missing from the registry are dropped.
func (s *PresenceService) ListPresent(ctx context.Context, f store.PresenceFilter) ([]types.PresenceRow, error) {
	entries, err := s.log.Present(ctx, f)
	if err != nil {
		return nil, classify(err, "present")
	}
	if len(entries) == 0 {
		return []types.PresenceRow{}, nil
	}

	refs := make([]types.Ref, len(entries))
	for i, e := range entries {
		refs[i] = e.Entity()
	}
	ents, err := s.registry.Entities(ctx, refs)
	if err != nil {
		return nil, err
	}
	locs, err := s.registry.Locations(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([]types.PresenceRow, 0, len(entries))
	for _, e := range entries {
		ent, ok := ents[e.Entity()]
		if !ok {
			continue
		}
		rows = append(rows, types.PresenceRow{
			Kind:          ent.Kind,
			ID:            ent.ID,
			DisplayName:   ent.DisplayName,
			GroupLabel:    ent.GroupLabel,
			Owner:         ent.Owner,
			EntryTime:     e.Timestamp,
			EntryLocation: locs[e.LocationID],
			HomeLocation:  locs[ent.HomeLocationID],
		})
	}
	return rows, nil
}

// Roster lists active entities of one kind matching f, present ones first,
// each group in registry order. Presence is the global state, so an
// employee registered at f.LocationID who last entered elsewhere still
// shows as present.
func (s *PresenceService) Roster(ctx context.Context, f store.EntityFilter) ([]types.RosterRow, error) {
	ents, err := s.registry.ActiveEntities(ctx, f)
	if err != nil {
		return nil, err
	}
	if len(ents) == 0 {
		return []types.RosterRow{}, nil
	}

	entries, err := s.log.Present(ctx, store.PresenceFilter{Kind: f.Kind})
	if err != nil {
		return nil, classify(err, "present")
	}
	entered := make(map[types.Ref]types.LogEntry, len(entries))
	for _, e := range entries {
		entered[e.Entity()] = e
	}
	locs, err := s.registry.Locations(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([]types.RosterRow, 0, len(ents))
	for _, ent := range ents {
		row := types.RosterRow{
			Kind:         ent.Kind,
			ID:           ent.ID,
			ExtID:        ent.ExtID,
			DisplayName:  ent.DisplayName,
			GroupLabel:   ent.GroupLabel,
			Owner:        ent.Owner,
			HomeLocation: locs[ent.HomeLocationID],
		}
		if e, ok := entered[ent.Ref]; ok {
			at, loc := e.Timestamp, locs[e.LocationID]
			row.Present, row.EntryTime, row.EntryLocation = true, &at, &loc
		}
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Present && !rows[j].Present })
	return rows, nil
}

// PresentCounts maps location id to the number of present entities whose
// winning entry is there. An empty kind counts both kinds.
func (s *PresenceService) PresentCounts(ctx context.Context, kind types.Kind) (map[int64]int, error) {
	if s.cache != nil {
		counts, ok, err := s.cache.Counts(ctx, kind)
		switch {
		case err != nil:
			s.logger.Warn("presence count cache read failed", zap.Error(err))
		case ok:
			return counts, nil
		}
	}

	counts, err := s.log.PresentCounts(ctx, kind)
	if err != nil {
		return nil, classify(err, "present counts")
	}

	if s.cache != nil {
		if err := s.cache.StoreCounts(ctx, kind, counts); err != nil {
			s.logger.Warn("presence count cache write failed", zap.Error(err))
		}
	}
	return counts, nil
}

// invalidate drops cached counts after a write.
func (s *PresenceService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("presence count cache invalidation failed", zap.Error(err))
	}
}
