package types

import (
	"fmt"
	"time"
)

// LogEntry is one immutable IN/OUT event. Entries are ordered by
// (Timestamp, ID); the ID breaks ties in insertion order.
type LogEntry struct {
	ID         int64     `json:"id"`
	EntityKind Kind      `json:"entity_kind"`
	EntityID   int64     `json:"entity_id"`
	Direction  Direction `json:"direction"`
	LocationID int64     `json:"location_id"`
	Timestamp  time.Time `json:"timestamp"`
	RecordedBy *int64    `json:"recorded_by,omitempty"`
}

func (e LogEntry) Entity() Ref {
	return Ref{Kind: e.EntityKind, ID: e.EntityID}
}

// Before reports whether e sorts strictly before o in log order.
func (e LogEntry) Before(o LogEntry) bool {
	if !e.Timestamp.Equal(o.Timestamp) {
		return e.Timestamp.Before(o.Timestamp)
	}
	return e.ID < o.ID
}

// RecordRequest asks the validator to append one event.
type RecordRequest struct {
	Kind       Kind      `json:"kind"`
	EntityID   int64     `json:"entity_id"`
	Direction  Direction `json:"direction"`
	LocationID int64     `json:"location_id"`
	OperatorID *int64    `json:"operator_id,omitempty"`
}

// RecordResult describes an accepted event and, for vehicles, the
// employee event mirrored by the ownership linker.
type RecordResult struct {
	Entry        LogEntry  `json:"entry"`
	Entity       Entity    `json:"-"`
	Mirrored     *LogEntry `json:"mirrored,omitempty"`
	MirroredName string    `json:"mirrored_name,omitempty"`
}

// Message is the operator-facing confirmation, e.g.
// "ABC 123 entered (owner Jane Doe also marked IN)".
func (r RecordResult) Message() string {
	verb := "entered"
	if r.Entry.Direction == DirectionOut {
		verb = "left"
	}
	msg := fmt.Sprintf("%s %s", r.Entity.DisplayName, verb)
	if r.Mirrored != nil {
		msg += fmt.Sprintf(" (owner %s also marked %s)", r.MirroredName, r.Mirrored.Direction)
	}
	return msg
}
