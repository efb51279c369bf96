package roster

// Merge folds imported rows for role into existing and returns the new roster
// together with the number of rows processed. Rows without an id are skipped.
//
// Riders already on the roster only gain busID, and only while they hold fewer
// than two buses. Drivers are rewritten from the row and pinned to busID alone,
// keeping their credential when the row carries none and always keeping the
// bound device. Unknown ids are created from the row with busID as their sole
// assignment. Neither input slice is modified.
func Merge(existing []Identity, role Role, busID string, rows []Identity) ([]Identity, int) {
	out := make([]Identity, len(existing))
	copy(out, existing)

	pos := make(map[string]int, len(out))
	for i, ident := range out {
		pos[NormalizeID(ident.ID)] = i
	}

	processed := 0
	for _, row := range rows {
		id := NormalizeID(row.ID)
		if id == "" {
			continue
		}
		processed++

		i, found := pos[id]
		switch {
		case found && role == RoleDriver:
			prev := out[i]
			next := fresh(row, id, role, busID)
			if next.Credential == "" {
				next.Credential = prev.Credential
			}
			next.DeviceID = prev.DeviceID
			out[i] = next
		case found:
			out[i].AssignedBus, _ = out[i].AssignedBus.Add(busID, role.MaxBuses())
		default:
			pos[id] = len(out)
			out = append(out, fresh(row, id, role, busID))
		}
	}
	return out, processed
}

func fresh(row Identity, id string, role Role, busID string) Identity {
	ident := row
	ident.ID = id
	ident.Role = role
	ident.AssignedBus = nil
	ident.AssignedBus, _ = ident.AssignedBus.Add(busID, role.MaxBuses())
	return ident
}
