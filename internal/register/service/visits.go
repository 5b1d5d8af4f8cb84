package service

import (
	"context"
	"sort"

	"github.com/BrandonDHaskell/Portunus/register/internal/register/store"
	"github.com/BrandonDHaskell/Portunus/register/internal/register/types"
)

const DefaultVisitLimit = 500

// VisitService rebuilds visit history from the log on every call.
type VisitService struct {
	log          store.EventLog
	registry     *LocationRegistry
	defaultLimit int
}

// NewVisitService builds the aggregator. A non-positive defaultLimit
// falls back to DefaultVisitLimit.
func NewVisitService(log store.EventLog, reg *LocationRegistry, defaultLimit int) *VisitService {
	if defaultLimit <= 0 {
		defaultLimit = DefaultVisitLimit
	}
	return &VisitService{log: log, registry: reg, defaultLimit: defaultLimit}
}

// ListVisits pairs the entries in [q.From, q.To) into visits, newest
// entry first, at most q.Limit of them (the default limit when unset).
func (s *VisitService) ListVisits(ctx context.Context, q types.VisitQuery) ([]types.Visit, error) {
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return nil, types.ErrInvalidArgument.WithMessage("date range ends before it starts")
	}
	if q.Kind != "" && !q.Kind.Valid() {
		return nil, types.ErrInvalidArgument.WithMessage("unknown entity kind " + string(q.Kind))
	}
	limit := q.Limit
	if limit <= 0 {
		limit = s.defaultLimit
	}

	entries, err := s.log.Events(ctx, store.EventFilter{
		LocationID: q.LocationID,
		Kind:       q.Kind,
		From:       q.From,
		To:         q.To,
	})
	if err != nil {
		return nil, classify(err, "events")
	}

	visits := PairVisits(entries)
	if len(visits) > limit {
		visits = visits[:limit]
	}
	if err := s.hydrate(ctx, visits); err != nil {
		return nil, err
	}
	return visits, nil
}

func (s *VisitService) hydrate(ctx context.Context, visits []types.Visit) error {
	if len(visits) == 0 {
		return nil
	}

	seen := make(map[types.Ref]bool)
	var refs []types.Ref
	for _, v := range visits {
		ref := types.Ref{Kind: v.Kind, ID: v.EntityID}
		if !seen[ref] {
			seen[ref] = true
			refs = append(refs, ref)
		}
	}
	ents, err := s.registry.Entities(ctx, refs)
	if err != nil {
		return err
	}
	locs, err := s.registry.Locations(ctx)
	if err != nil {
		return err
	}

	for i := range visits {
		v := &visits[i]
		ref := types.Ref{Kind: v.Kind, ID: v.EntityID}
		if ent, ok := ents[ref]; ok {
			v.DisplayName = ent.DisplayName
			v.GroupLabel = ent.GroupLabel
		} else {
			v.DisplayName = types.DeletedName(ref)
		}
		if l, ok := locs[v.EntryLocation.ID]; ok {
			v.EntryLocation = l
		}
		if v.ExitLocation != nil {
			if l, ok := locs[v.ExitLocation.ID]; ok {
				exit := l
				v.ExitLocation = &exit
			}
		}
	}
	return nil
}

// PairVisits turns entries ordered by (kind, id, timestamp, entry id) into
// visits sorted by entry time, newest first. Per entity the latest IN
// holds the open slot (an earlier unmatched IN is dropped), an OUT closes
// it, an OUT with no slot is ignored, and a slot still held at the end
// becomes an open visit. Location fields carry only the id.
func PairVisits(entries []types.LogEntry) []types.Visit {
	var (
		visits []types.Visit
		open   *types.LogEntry
		cur    types.Ref
	)

	flush := func() {
		if open != nil {
			visits = append(visits, newVisit(*open, nil))
			open = nil
		}
	}

	for i := range entries {
		e := entries[i]
		if e.Entity() != cur {
			flush()
			cur = e.Entity()
		}
		switch e.Direction {
		case types.DirectionIn:
			open = &e
		case types.DirectionOut:
			if open != nil {
				visits = append(visits, newVisit(*open, &e))
				open = nil
			}
		}
	}
	flush()

	sort.SliceStable(visits, func(i, j int) bool {
		a, b := visits[i], visits[j]
		if !a.EntryTime.Equal(b.EntryTime) {
			return a.EntryTime.After(b.EntryTime)
		}
		return a.EntryID > b.EntryID
	})
	return visits
}

func newVisit(in types.LogEntry, out *types.LogEntry) types.Visit {
	v := types.Visit{
		Kind:            in.EntityKind,
		EntityID:        in.EntityID,
		EntryID:         in.ID,
		EntryTime:       in.Timestamp,
		EntryLocation:   types.Location{ID: in.LocationID},
		RecordedByEntry: in.RecordedBy,
	}
	if out != nil {
		exit := out.Timestamp
		v.ExitTime = &exit
		v.ExitLocation = &types.Location{ID: out.LocationID}
		v.RecordedByExit = out.RecordedBy
	}
	return v
}
