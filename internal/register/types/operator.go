package types

import (
	"fmt"
	"strings"
)

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleOfficer Role = "officer"
)

func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleOfficer, "":
		return RoleOfficer, nil
	}
	return "", ErrInvalidArgument.WithMessage(fmt.Sprintf("unknown role %q", s))
}

// Operator is the person recording events at a checkpoint. Officers are
// bound to one location; admins may act anywhere.
type Operator struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	Role        Role   `json:"role"`
	LocationID  *int64 `json:"location_id,omitempty"`
}

func (o Operator) IsAdmin() bool { return o.Role == RoleAdmin }
