package types

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

type Location struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type Employee struct {
	ID         int64     `json:"id"`
	LocationID int64     `json:"location_id"`
	ExtID      string    `json:"ext_id"`
	Name       string    `json:"name"`
	Department string    `json:"department,omitempty"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Vehicle struct {
	ID          int64     `json:"id"`
	LocationID  int64     `json:"location_id"`
	PlateNumber string    `json:"plate_number"`
	Description string    `json:"description,omitempty"`
	Owner       string    `json:"owner,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Entity is the kind-agnostic view of an employee or vehicle that the
// presence engine works with.
type Entity struct {
	Ref
	ExtID          string // employees only
	DisplayName    string
	GroupLabel     string // department for employees, description for vehicles
	Owner          string // vehicles only
	HomeLocationID int64
	Active         bool
}

func (e Employee) Entity() Entity {
	return Entity{
		Ref:            Ref{Kind: KindEmployee, ID: e.ID},
		ExtID:          e.ExtID,
		DisplayName:    e.Name,
		GroupLabel:     e.Department,
		HomeLocationID: e.LocationID,
		Active:         e.Active,
	}
}

func (v Vehicle) Entity() Entity {
	return Entity{
		Ref:            Ref{Kind: KindVehicle, ID: v.ID},
		DisplayName:    v.PlateNumber,
		GroupLabel:     v.Description,
		Owner:          v.Owner,
		HomeLocationID: v.LocationID,
		Active:         v.Active,
	}
}

// DeletedName is the placeholder shown for log rows whose entity is gone
// from the registry.
func DeletedName(r Ref) string {
	return fmt.Sprintf("[deleted %s #%d]", r.Kind, r.ID)
}

// NameKey normalises a person's name for owner matching: surrounding
// whitespace trimmed, Unicode case folded. Matching is exact on the key.
func NameKey(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}

// GenerateExtID builds the default external id for the n-th employee
// registered at a location, e.g. EMPNOR0003 for location code "north".
func GenerateExtID(locationCode string, n int) string {
	prefix := strings.ToUpper(strings.TrimSpace(locationCode))
	if r := []rune(prefix); len(r) > 3 {
		prefix = string(r[:3])
	}
	return fmt.Sprintf("EMP%s%04d", prefix, n)
}
