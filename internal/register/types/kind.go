package types

import (
	"fmt"
	"strings"
)

// Kind identifies which registry table an entity lives in.
type Kind string

const (
	KindEmployee Kind = "employee"
	KindVehicle  Kind = "vehicle"
)

func (k Kind) Valid() bool {
	return k == KindEmployee || k == KindVehicle
}

// Label is the human-facing name used in exports.
func (k Kind) Label() string {
	switch k {
	case KindEmployee:
		return "Employee"
	case KindVehicle:
		return "Vehicle"
	default:
		return string(k)
	}
}

// ParseKind accepts "employee" / "vehicle" in any case. An empty string
// yields the zero Kind, which filters treat as "all kinds".
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", "all":
		return "", nil
	case string(KindEmployee):
		return KindEmployee, nil
	case string(KindVehicle):
		return KindVehicle, nil
	}
	return "", ErrInvalidArgument.WithMessage(fmt.Sprintf("unknown entity kind %q", s))
}

// Direction is the polarity of a log entry.
type Direction string

const (
	DirectionIn  Direction = "IN"
	DirectionOut Direction = "OUT"
)

func (d Direction) Valid() bool {
	return d == DirectionIn || d == DirectionOut
}

func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToUpper(strings.TrimSpace(s))) {
	case DirectionIn:
		return DirectionIn, nil
	case DirectionOut:
		return DirectionOut, nil
	}
	return "", ErrInvalidArgument.WithMessage(fmt.Sprintf("invalid direction %q", s))
}

// Ref is the (kind, id) pair that partitions the event log.
type Ref struct {
	Kind Kind  `json:"kind"`
	ID   int64 `json:"id"`
}

func (r Ref) String() string {
	return fmt.Sprintf("%s#%d", r.Kind, r.ID)
}
