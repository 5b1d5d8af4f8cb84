package types

import "time"

// Visit pairs an IN with the OUT that closed it. ExitTime is nil while
// the entity is still present. Visits are derived on every query and
// never stored.
type Visit struct {
	Kind            Kind       `json:"kind"`
	EntityID        int64      `json:"entity_id"`
	DisplayName     string     `json:"display_name"`
	GroupLabel      string     `json:"group_label,omitempty"`
	EntryID         int64      `json:"entry_id"`
	EntryTime       time.Time  `json:"entry_time"`
	ExitTime        *time.Time `json:"exit_time,omitempty"`
	EntryLocation   Location   `json:"entry_location"`
	ExitLocation    *Location  `json:"exit_location,omitempty"`
	RecordedByEntry *int64     `json:"recorded_by_entry,omitempty"`
	RecordedByExit  *int64     `json:"recorded_by_exit,omitempty"`
}

func (v Visit) Open() bool { return v.ExitTime == nil }

// Duration is the length of a closed visit; ok is false for open visits.
func (v Visit) Duration() (d time.Duration, ok bool) {
	if v.ExitTime == nil {
		return 0, false
	}
	return v.ExitTime.Sub(v.EntryTime), true
}

// VisitQuery filters history. From/To form a half-open [From, To) range;
// zero values are unbounded. An empty Kind means both kinds.
type VisitQuery struct {
	LocationID *int64
	From       time.Time
	To         time.Time
	Kind       Kind
	Limit      int
}
