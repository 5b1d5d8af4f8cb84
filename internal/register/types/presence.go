package types

import "time"

// PresenceRow is one entity whose most recent event, across all
// locations, is an IN.
type PresenceRow struct {
	Kind          Kind      `json:"kind"`
	ID            int64     `json:"id"`
	DisplayName   string    `json:"display_name"`
	GroupLabel    string    `json:"group_label,omitempty"`
	Owner         string    `json:"owner,omitempty"`
	EntryTime     time.Time `json:"entry_time"`
	EntryLocation Location  `json:"entry_location"`
	HomeLocation  Location  `json:"home_location"`
}

// RosterRow is one active registry entry with its current presence.
// EntryTime and EntryLocation are set only while Present.
type RosterRow struct {
	Kind          Kind       `json:"kind"`
	ID            int64      `json:"id"`
	ExtID         string     `json:"ext_id,omitempty"`
	DisplayName   string     `json:"display_name"`
	GroupLabel    string     `json:"group_label,omitempty"`
	Owner         string     `json:"owner,omitempty"`
	HomeLocation  Location   `json:"home_location"`
	Present       bool       `json:"present"`
	EntryTime     *time.Time `json:"entry_time,omitempty"`
	EntryLocation *Location  `json:"entry_location,omitempty"`
}
