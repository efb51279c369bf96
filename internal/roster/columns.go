package roster

import "transit/internal/tabular"

// Columns is the stored layout of every roster table.
var Columns = []string{"ID", "Name", "Password", "Contact", "Assigned_Bus", "Boarding_Point", "Shift", "Device_ID"}

// FromTable converts stored or uploaded rows into identities of role.
// Admin sheets historically keyed on Name, so an Admin row without an ID
// column falls back to it.
func FromTable(role Role, t *tabular.Table) []Identity {
	out := make([]Identity, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		ident := Identity{
			ID:            t.Get(i, "ID"),
			Name:          t.Get(i, "Name"),
			Role:          role,
			Credential:    t.Get(i, "Password"),
			Contact:       t.Get(i, "Contact"),
			AssignedBus:   ParseBusSet(t.Get(i, "Assigned_Bus")),
			BoardingPoint: t.Get(i, "Boarding_Point"),
			Shift:         t.Get(i, "Shift"),
			DeviceID:      t.Get(i, "Device_ID"),
		}
		if ident.ID == "" && role == RoleAdmin {
			ident.ID = ident.Name
		}
		out = append(out, ident)
	}
	return out
}

// Records renders identities in Columns order.
func Records(idents []Identity) [][]string {
	rows := make([][]string, 0, len(idents))
	for _, i := range idents {
		rows = append(rows, []string{
			i.ID, i.Name, i.Credential, i.Contact, i.AssignedBus.String(), i.BoardingPoint, i.Shift, i.DeviceID,
		})
	}
	return rows
}
