package roster

import "strings"

// BusDelimiter joins assigned buses in the tabular backend.
const BusDelimiter = ", "

// BusSet is an ordered set of bus identifiers.
type BusSet []string

// ParseBusSet splits a stored Assigned_Bus cell. Blank and repeated entries are dropped.
func ParseBusSet(s string) BusSet {
	var out BusSet
	for _, part := range strings.Split(s, ",") {
		bus := strings.TrimSpace(part)
		if bus == "" || out.Contains(bus) {
			continue
		}
		out = append(out, bus)
	}
	return out
}

func (b BusSet) String() string { return strings.Join(b, BusDelimiter) }

// Contains reports exact membership of the trimmed bus id.
func (b BusSet) Contains(bus string) bool {
	bus = strings.TrimSpace(bus)
	for _, have := range b {
		if have == bus {
			return true
		}
	}
	return false
}

// Add appends bus when it is new and the set holds fewer than limit entries.
// It never mutates b.
func (b BusSet) Add(bus string, limit int) (BusSet, bool) {
	bus = strings.TrimSpace(bus)
	if bus == "" || b.Contains(bus) || len(b) >= limit {
		return b, false
	}
	out := make(BusSet, len(b), len(b)+1)
	copy(out, b)
	return append(out, bus), true
}
