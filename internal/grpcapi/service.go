package grpcapi

import (
	"context"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/Portunus/register/internal/register/service"
	"github.com/BrandonDHaskell/Portunus/register/internal/register/store"
	"github.com/BrandonDHaskell/Portunus/register/internal/register/types"
)

type registerService struct {
	engine      *service.Engine
	exportLimit int
}

var _ RegisterServer = (*registerService)(nil)

func entityKind(in *structpb.Struct) (types.Kind, error) {
	kind, err := types.ParseKind(str(in, "kind"))
	if err == nil && kind == "" {
		err = types.ErrInvalidArgument.WithMessage("kind must be employee or vehicle")
	}
	return kind, err
}

func (s *registerService) RecordEvent(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	kind, err := entityKind(in)
	if err != nil {
		return nil, toStatus(err)
	}
	id, err := requiredInt(in, "entity_id")
	if err != nil {
		return nil, toStatus(err)
	}
	dir, err := types.ParseDirection(str(in, "direction"))
	if err != nil {
		return nil, toStatus(err)
	}
	requested, err := optInt(in, "location_id")
	if err != nil {
		return nil, toStatus(err)
	}

	op := operatorFrom(ctx)
	ent, err := s.engine.Registry.Entity(ctx, types.Ref{Kind: kind, ID: id})
	if err != nil {
		return nil, toStatus(err)
	}
	loc, err := s.engine.Presence.RecordLocationFor(ctx, op, ent, dir, requested)
	if err != nil {
		return nil, toStatus(err)
	}

	res, err := s.engine.Recorder.RecordEvent(ctx, types.RecordRequest{
		Kind:       kind,
		EntityID:   id,
		Direction:  dir,
		LocationID: loc,
		OperatorID: &op.ID,
	})
	if err != nil {
		return nil, toStatus(err)
	}

	out := map[string]any{
		"entry":   entryValue(res.Entry),
		"message": res.Message(),
	}
	if res.Mirrored != nil {
		out["mirrored"] = entryValue(*res.Mirrored)
		out["mirrored_name"] = res.MirroredName
	}
	return toStruct(out)
}

func (s *registerService) ListPresent(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	requested, err := optInt(in, "location_id")
	if err != nil {
		return nil, toStatus(err)
	}
	scope, err := service.ScopeFor(operatorFrom(ctx), requested)
	if err != nil {
		return nil, toStatus(err)
	}
	kind, err := types.ParseKind(str(in, "kind"))
	if err != nil {
		return nil, toStatus(err)
	}

	rows, err := s.engine.Presence.ListPresent(ctx, store.PresenceFilter{LocationID: scope, Kind: kind})
	if err != nil {
		return nil, toStatus(err)
	}
	list := make([]any, 0, len(rows))
	for _, r := range rows {
		list = append(list, presenceValue(r))
	}
	return toStruct(map[string]any{"count": len(rows), "rows": list})
}

func (s *registerService) ListRoster(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	kind, err := entityKind(in)
	if err != nil {
		return nil, toStatus(err)
	}
	requested, err := optInt(in, "location_id")
	if err != nil {
		return nil, toStatus(err)
	}
	scope, err := service.ScopeFor(operatorFrom(ctx), requested)
	if err != nil {
		return nil, toStatus(err)
	}

	rows, err := s.engine.Presence.Roster(ctx, store.EntityFilter{
		Kind:       kind,
		LocationID: scope,
		Search:     str(in, "search"),
	})
	if err != nil {
		return nil, toStatus(err)
	}
	list := make([]any, 0, len(rows))
	for _, r := range rows {
		list = append(list, rosterValue(r))
	}
	return toStruct(map[string]any{"kind": string(kind), "count": len(rows), "rows": list})
}

func (s *registerService) PresentCounts(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	kind := types.KindEmployee
	if raw := str(in, "kind"); raw != "" {
		k, err := types.ParseKind(raw)
		if err != nil {
			return nil, toStatus(err)
		}
		kind = k
	}

	counts, err := s.engine.Presence.PresentCounts(ctx, kind)
	if err != nil {
		return nil, toStatus(err)
	}
	if op := operatorFrom(ctx); !op.IsAdmin() {
		scope, err := service.ScopeFor(op, nil)
		if err != nil {
			return nil, toStatus(err)
		}
		counts = map[int64]int{*scope: counts[*scope]}
	}

	byLocation := make(map[string]any, len(counts))
	for id, n := range counts {
		byLocation[fmt.Sprint(id)] = n
	}
	label := string(kind)
	if kind == "" {
		label = "all"
	}
	return toStruct(map[string]any{"kind": label, "counts": byLocation})
}

func (s *registerService) IsPresent(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	kind, err := entityKind(in)
	if err != nil {
		return nil, toStatus(err)
	}
	id, err := requiredInt(in, "id")
	if err != nil {
		return nil, toStatus(err)
	}

	dir, ok, err := s.engine.Presence.LastDirection(ctx, types.Ref{Kind: kind, ID: id})
	if err != nil {
		return nil, toStatus(err)
	}
	out := map[string]any{
		"kind":           string(kind),
		"id":             id,
		"present":        ok && dir == types.DirectionIn,
		"last_direction": nil,
	}
	if ok {
		out["last_direction"] = string(dir)
	}
	return toStruct(out)
}

func (s *registerService) ListVisits(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var (
		q   types.VisitQuery
		err error
	)
	if q.LocationID, err = optInt(in, "location_id"); err != nil {
		return nil, toStatus(err)
	}
	if q.From, err = optTime(in, "from"); err != nil {
		return nil, toStatus(err)
	}
	if q.To, err = optTime(in, "to"); err != nil {
		return nil, toStatus(err)
	}
	if q.Kind, err = types.ParseKind(str(in, "kind")); err != nil {
		return nil, toStatus(err)
	}
	limit, err := optInt(in, "limit")
	if err != nil {
		return nil, toStatus(err)
	}
	if limit != nil {
		q.Limit = int(min(*limit, int64(s.exportLimit)))
	}
	if q.LocationID, err = service.ScopeFor(operatorFrom(ctx), q.LocationID); err != nil {
		return nil, toStatus(err)
	}

	visits, err := s.engine.Visits.ListVisits(ctx, q)
	if err != nil {
		return nil, toStatus(err)
	}
	list := make([]any, 0, len(visits))
	for _, v := range visits {
		list = append(list, visitValue(v))
	}
	return toStruct(map[string]any{"count": len(visits), "visits": list})
}
