package attendance

import (
	"errors"
	"fmt"
	"io"
	"time"

	"transit/internal/roster"
	"transit/internal/tabular"
)

const (
	// TimestampLayout is how timestamps are written to the ledger, in the reference timezone.
	TimestampLayout = "2006-01-02 15:04:05"
	// DayLayout is the date portion compared by daily queries.
	DayLayout = "2006-01-02"
)

// Columns is the ledger's tabular layout, also used for exports.
var Columns = []string{"Timestamp", "ID", "Name", "Role", "Boarding_Point", "Shift", "Scan_Slot", "Bus_ID"}

var ErrInvalidEvent = errors.New("invalid scan event")

// ScanEvent is one approved boarding. Events are append-only.
type ScanEvent struct {
	Timestamp     time.Time   `json:"timestamp"`
	IdentityID    string      `json:"id"`
	Name          string      `json:"name"`
	Role          roster.Role `json:"role"`
	BoardingPoint string      `json:"boarding_point"`
	Shift         string      `json:"shift"`
	Slot          ScanSlot    `json:"scan_slot"`
	BusID         string      `json:"bus_id"`
}

// NewScanEvent builds the event for ident boarding busID into slot at when.
func NewScanEvent(ident roster.Identity, busID string, slot ScanSlot, when time.Time) (ScanEvent, error) {
	e := ScanEvent{
		Timestamp:     when.Truncate(time.Second),
		IdentityID:    roster.NormalizeID(ident.ID),
		Name:          ident.Name,
		Role:          ident.Role,
		BoardingPoint: ident.BoardingPoint,
		Shift:         ident.Shift,
		Slot:          slot,
		BusID:         roster.NormalizeID(busID),
	}
	return e, e.Validate()
}

func (e ScanEvent) Validate() error {
	switch {
	case e.IdentityID == "":
		return fmt.Errorf("%w: empty identity", ErrInvalidEvent)
	case e.BusID == "":
		return fmt.Errorf("%w: empty bus", ErrInvalidEvent)
	case e.Timestamp.IsZero():
		return fmt.Errorf("%w: zero timestamp", ErrInvalidEvent)
	case e.Slot < MorningIn || e.Slot > AfternoonOut:
		return fmt.Errorf("%w: slot %d", ErrInvalidEvent, int(e.Slot))
	}
	return nil
}

// Day is the event's calendar date in loc.
func (e ScanEvent) Day(loc *time.Location) string {
	return e.Timestamp.In(loc).Format(DayLayout)
}

// Record renders e in Columns order.
func (e ScanEvent) Record(loc *time.Location) []string {
	return []string{
		e.Timestamp.In(loc).Format(TimestampLayout),
		e.IdentityID,
		e.Name,
		string(e.Role),
		e.BoardingPoint,
		e.Shift,
		e.Slot.String(),
		e.BusID,
	}
}

// WriteEvents writes a header and events as CSV.
func WriteEvents(w io.Writer, events []ScanEvent, loc *time.Location) error {
	rows := make([][]string, 0, len(events))
	for _, e := range events {
		rows = append(rows, e.Record(loc))
	}
	return tabular.WriteCSV(w, Columns, rows)
}

// ReadEvents parses a ledger table. Name, Role, Boarding_Point and Shift may be absent.
func ReadEvents(r io.Reader, loc *time.Location) ([]ScanEvent, error) {
	t, err := tabular.ReadCSV(r)
	if err != nil {
		return nil, err
	}
	return eventsFromTable(t, loc)
}

func eventsFromTable(t *tabular.Table, loc *time.Location) ([]ScanEvent, error) {
	out := make([]ScanEvent, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		e, err := eventFromRow(t, i, loc)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func eventFromRow(t *tabular.Table, i int, loc *time.Location) (ScanEvent, error) {
	ts, err := time.ParseInLocation(TimestampLayout, t.Get(i, "Timestamp"), loc)
	if err != nil {
		return ScanEvent{}, fmt.Errorf("%w: row %d: %w", ErrInvalidEvent, i+2, err)
	}
	slot, err := ParseScanSlot(t.Get(i, "Scan_Slot"))
	if err != nil {
		return ScanEvent{}, fmt.Errorf("%w: row %d: %w", ErrInvalidEvent, i+2, err)
	}
	return ScanEvent{
		Timestamp:     ts,
		IdentityID:    t.Get(i, "ID"),
		Name:          t.Raw(i, "Name"),
		Role:          roster.Role(t.Get(i, "Role")),
		BoardingPoint: t.Raw(i, "Boarding_Point"),
		Shift:         t.Raw(i, "Shift"),
		Slot:          slot,
		BusID:         t.Get(i, "Bus_ID"),
	}, nil
}
