package attendance

import (
	"fmt"
	"strings"
)

// ScanSlot is a position in the fixed daily cycle of boardings.
type ScanSlot int

const (
	MorningIn ScanSlot = iota
	MorningOut
	AfternoonIn
	AfternoonOut
)

// SlotsPerDay is the number of scans accepted per identity per day.
const SlotsPerDay = 4

var slotLabels = [SlotsPerDay]string{"Morning IN", "Morning OUT", "Afternoon IN", "Afternoon OUT"}

// SlotForCount maps the number of scans already recorded today to the next slot.
// It reports false once the day's cycle is complete.
func SlotForCount(count int) (ScanSlot, bool) {
	if count < 0 || count >= SlotsPerDay {
		return 0, false
	}
	return ScanSlot(count), true
}

func (s ScanSlot) String() string {
	if s < 0 || int(s) >= SlotsPerDay {
		return fmt.Sprintf("ScanSlot(%d)", int(s))
	}
	return slotLabels[s]
}

// ParseScanSlot reads a stored slot label, ignoring case and surrounding space.
func ParseScanSlot(label string) (ScanSlot, error) {
	label = strings.TrimSpace(label)
	for i, l := range slotLabels {
		if strings.EqualFold(l, label) {
			return ScanSlot(i), nil
		}
	}
	return 0, fmt.Errorf("unknown scan slot %q", label)
}

func (s ScanSlot) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *ScanSlot) UnmarshalText(b []byte) error {
	v, err := ParseScanSlot(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
