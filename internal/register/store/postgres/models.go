package postgres

import (
	"time"

	"github.com/BrandonDHaskell/Portunus/register/internal/register/types"
)

type locationModel struct {
	ID        int64 `gorm:"column:location_id;primaryKey"`
	Code      string
	Name      string
	Address   string
	Active    bool
	CreatedAt time.Time
}

func (locationModel) TableName() string { return "locations" }

func (m locationModel) toType() types.Location {
	return types.Location{
		ID:        m.ID,
		Code:      m.Code,
		Name:      m.Name,
		Address:   m.Address,
		Active:    m.Active,
		CreatedAt: m.CreatedAt.UTC(),
	}
}

type operatorModel struct {
	ID          int64 `gorm:"column:operator_id;primaryKey"`
	Username    string
	DisplayName string
	Role        string
	LocationID  *int64
	CreatedAt   time.Time
}

func (operatorModel) TableName() string { return "operators" }

func (m operatorModel) toType() types.Operator {
	return types.Operator{
		ID:          m.ID,
		Username:    m.Username,
		DisplayName: m.DisplayName,
		Role:        types.Role(m.Role),
		LocationID:  m.LocationID,
	}
}

type employeeModel struct {
	ID         int64 `gorm:"column:employee_id;primaryKey"`
	LocationID int64
	ExtID      string
	Name       string
	NameKey    string
	Department string
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (employeeModel) TableName() string { return "employees" }

func (m employeeModel) toType() types.Employee {
	return types.Employee{
		ID:         m.ID,
		LocationID: m.LocationID,
		ExtID:      m.ExtID,
		Name:       m.Name,
		Department: m.Department,
		Active:     m.Active,
		CreatedAt:  m.CreatedAt.UTC(),
		UpdatedAt:  m.UpdatedAt.UTC(),
	}
}

type vehicleModel struct {
	ID          int64 `gorm:"column:vehicle_id;primaryKey"`
	LocationID  int64
	PlateNumber string
	Description string
	Owner       string
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (vehicleModel) TableName() string { return "vehicles" }

func (m vehicleModel) toType() types.Vehicle {
	return types.Vehicle{
		ID:          m.ID,
		LocationID:  m.LocationID,
		PlateNumber: m.PlateNumber,
		Description: m.Description,
		Owner:       m.Owner,
		Active:      m.Active,
		CreatedAt:   m.CreatedAt.UTC(),
		UpdatedAt:   m.UpdatedAt.UTC(),
	}
}

type entryModel struct {
	ID         int64 `gorm:"column:entry_id;primaryKey"`
	EntityKind string
	EntityID   int64
	Direction  string
	LocationID int64
	OccurredAt time.Time
	RecordedBy *int64
}

func (entryModel) TableName() string { return "log_entries" }

func (m entryModel) toType() types.LogEntry {
	return types.LogEntry{
		ID:         m.ID,
		EntityKind: types.Kind(m.EntityKind),
		EntityID:   m.EntityID,
		Direction:  types.Direction(m.Direction),
		LocationID: m.LocationID,
		Timestamp:  m.OccurredAt.UTC(),
		RecordedBy: m.RecordedBy,
	}
}

func toEntries(ms []entryModel) []types.LogEntry {
	out := make([]types.LogEntry, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.toType())
	}
	return out
}
