package grpcapi

import (
	"errors"
	"fmt"
	"math"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/Portunus/register/internal/register/types"
)

// ── Requests ────────────────────────────────────────────────────────────────

func str(in *structpb.Struct, key string) string {
	return in.GetFields()[key].GetStringValue()
}

// optInt reads a whole, positive number field; absent or null yields nil.
func optInt(in *structpb.Struct, key string) (*int64, error) {
	v, ok := in.GetFields()[key]
	if !ok {
		return nil, nil
	}
	if _, isNull := v.GetKind().(*structpb.Value_NullValue); isNull {
		return nil, nil
	}
	n, isNum := v.GetKind().(*structpb.Value_NumberValue)
	if !isNum || n.NumberValue <= 0 || n.NumberValue != math.Trunc(n.NumberValue) {
		return nil, types.ErrInvalidArgument.WithMessage(fmt.Sprintf("%s must be a positive integer", key))
	}
	id := int64(n.NumberValue)
	return &id, nil
}

func requiredInt(in *structpb.Struct, key string) (int64, error) {
	v, err := optInt(in, key)
	if err != nil {
		return 0, err
	}
	if v == nil {
		return 0, types.ErrInvalidArgument.WithMessage(key + " is required")
	}
	return *v, nil
}

// optTime reads an RFC 3339 string field.
func optTime(in *structpb.Struct, key string) (time.Time, error) {
	raw := str(in, key)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, types.ErrInvalidArgument.WithMessage(fmt.Sprintf("%s must be an RFC 3339 timestamp", key))
	}
	return t.UTC(), nil
}

// ── Responses ───────────────────────────────────────────────────────────────

func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func entryValue(e types.LogEntry) map[string]any {
	m := map[string]any{
		"id":          e.ID,
		"entity_kind": string(e.EntityKind),
		"entity_id":   e.EntityID,
		"direction":   string(e.Direction),
		"location_id": e.LocationID,
		"timestamp":   ts(e.Timestamp),
	}
	if e.RecordedBy != nil {
		m["recorded_by"] = *e.RecordedBy
	}
	return m
}

func locationValue(l types.Location) map[string]any {
	return map[string]any{"id": l.ID, "code": l.Code, "name": l.Name}
}

func presenceValue(r types.PresenceRow) map[string]any {
	return map[string]any{
		"kind":           string(r.Kind),
		"id":             r.ID,
		"display_name":   r.DisplayName,
		"group_label":    r.GroupLabel,
		"owner":          r.Owner,
		"entry_time":     ts(r.EntryTime),
		"entry_location": locationValue(r.EntryLocation),
		"home_location":  locationValue(r.HomeLocation),
	}
}

func rosterValue(r types.RosterRow) map[string]any {
	m := map[string]any{
		"kind":           string(r.Kind),
		"id":             r.ID,
		"ext_id":         r.ExtID,
		"display_name":   r.DisplayName,
		"group_label":    r.GroupLabel,
		"owner":          r.Owner,
		"home_location":  locationValue(r.HomeLocation),
		"present":        r.Present,
		"entry_time":     nil,
		"entry_location": nil,
	}
	if r.Present {
		m["entry_time"] = ts(*r.EntryTime)
		m["entry_location"] = locationValue(*r.EntryLocation)
	}
	return m
}

func visitValue(v types.Visit) map[string]any {
	m := map[string]any{
		"kind":           string(v.Kind),
		"entity_id":      v.EntityID,
		"display_name":   v.DisplayName,
		"group_label":    v.GroupLabel,
		"entry_id":       v.EntryID,
		"entry_time":     ts(v.EntryTime),
		"entry_location": locationValue(v.EntryLocation),
		"exit_time":      nil,
		"exit_location":  nil,
	}
	if v.ExitTime != nil {
		m["exit_time"] = ts(*v.ExitTime)
	}
	if v.ExitLocation != nil {
		m["exit_location"] = locationValue(*v.ExitLocation)
	}
	return m
}

func toStruct(m map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return s, nil
}

// toStatus maps engine error classes onto gRPC codes.
func toStatus(err error) error {
	switch {
	case errors.Is(err, types.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, types.Message(err))
	case errors.Is(err, types.ErrForbidden):
		return status.Error(codes.PermissionDenied, types.Message(err))
	case errors.Is(err, types.ErrNotFound):
		return status.Error(codes.NotFound, types.Message(err))
	case errors.Is(err, types.ErrInvalidTransition):
		return status.Error(codes.FailedPrecondition, types.Message(err))
	default:
		return status.Error(codes.Internal, "unexpected server error")
	}
}
