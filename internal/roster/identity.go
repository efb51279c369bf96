// Package roster holds the identities allowed to ride, drive or administer
// the campus shuttles, and the bulk import that maintains them.
package roster

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound           = errors.New("identity not found")
	ErrInvalidRole        = errors.New("invalid role")
	ErrInvalidIdentity    = errors.New("invalid identity")
	ErrDeviceAlreadyBound = errors.New("device already bound")
	// ErrBackendUnavailable marks failures reaching the tabular backend.
	// The attendance ledger wraps the same sentinel.
	ErrBackendUnavailable = errors.New("backend unavailable")
)

type Role string

const (
	RoleStudent Role = "Student"
	RoleStaff   Role = "Staff"
	RoleDriver  Role = "Driver"
	RoleAdmin   Role = "Admin"
)

// Roles lists every role in table order.
var Roles = []Role{RoleStudent, RoleStaff, RoleDriver, RoleAdmin}

// ParseRole accepts a role or its table name in any case.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "student", "students":
		return RoleStudent, nil
	case "staff":
		return RoleStaff, nil
	case "driver", "drivers":
		return RoleDriver, nil
	case "admin", "admins":
		return RoleAdmin, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
}

// Table is the name of the backing table for r.
func (r Role) Table() string {
	switch r {
	case RoleStudent:
		return "Students"
	case RoleStaff:
		return "Staff"
	case RoleDriver:
		return "Drivers"
	case RoleAdmin:
		return "Admins"
	}
	return ""
}

func (r Role) Valid() bool { return r.Table() != "" }

// Rider reports whether identities of r are scanned onto buses.
func (r Role) Rider() bool { return r == RoleStudent || r == RoleStaff }

// MaxBuses is the assignment cap for r.
func (r Role) MaxBuses() int {
	switch r {
	case RoleStudent, RoleStaff:
		return 2
	case RoleDriver:
		return 1
	}
	return 0
}

// Identity is one roster row.
type Identity struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Role          Role   `json:"role"`
	Credential    string `json:"-"`
	Contact       string `json:"contact,omitempty"`
	AssignedBus   BusSet `json:"assigned_bus"`
	BoardingPoint string `json:"boarding_point"`
	Shift         string `json:"shift"`
	DeviceID      string `json:"-"`
}

// NormalizeID trims an identifier the way every lookup compares it.
func NormalizeID(id string) string { return strings.TrimSpace(id) }

// Validate checks the role, the id and the bus assignment cap.
func (i Identity) Validate() error {
	if !i.Role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, i.Role)
	}
	if NormalizeID(i.ID) == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidIdentity)
	}
	if len(i.AssignedBus) > i.Role.MaxBuses() {
		return fmt.Errorf("%w: %s %s has %d buses, max %d", ErrInvalidIdentity, i.Role, i.ID, len(i.AssignedBus), i.Role.MaxBuses())
	}
	return nil
}

// DeviceBound reports whether a device id has been recorded.
// "None" is what the spreadsheet era left in empty cells.
func (i Identity) DeviceBound() bool {
	d := strings.TrimSpace(i.DeviceID)
	return d != "" && d != "None"
}
