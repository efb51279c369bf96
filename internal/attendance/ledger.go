package attendance

import (
	"context"
	"io"

	"transit/internal/roster"
)

// Ledger is the append-only log of approved scans. Days are DayLayout
// strings computed in the reference timezone. Ids are unique per role, so
// per-identity queries take both.
type Ledger interface {
	Append(ctx context.Context, e ScanEvent) error
	CountToday(ctx context.Context, role roster.Role, identityID, day string) (int, error)
	// EventsForBus returns the day's events on busID, most recent first.
	EventsForBus(ctx context.Context, busID, day string) ([]ScanEvent, error)
	// EventsForIdentity returns the day's events for identityID in append order.
	EventsForIdentity(ctx context.Context, role roster.Role, identityID, day string) ([]ScanEvent, error)
	// Export writes the whole ledger as CSV in Columns order.
	Export(ctx context.Context, w io.Writer) error
}
