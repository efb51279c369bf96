package attendance

import (
	"context"
	"fmt"
	"io"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"transit/internal/roster"
	"transit/internal/store"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var eventColumns = []string{
	"occurred_at", "identity_id", "name", "role", "boarding_point", "shift", "scan_slot", "bus_id",
}

type eventRow struct {
	OccurredAt    time.Time `db:"occurred_at"`
	IdentityID    string    `db:"identity_id"`
	Name          string    `db:"name"`
	Role          string    `db:"role"`
	BoardingPoint string    `db:"boarding_point"`
	Shift         string    `db:"shift"`
	ScanSlot      string    `db:"scan_slot"`
	BusID         string    `db:"bus_id"`
}

func (r eventRow) event() (ScanEvent, error) {
	slot, err := ParseScanSlot(r.ScanSlot)
	if err != nil {
		return ScanEvent{}, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	return ScanEvent{
		Timestamp:     r.OccurredAt,
		IdentityID:    r.IdentityID,
		Name:          r.Name,
		Role:          roster.Role(r.Role),
		BoardingPoint: r.BoardingPoint,
		Shift:         r.Shift,
		Slot:          slot,
		BusID:         r.BusID,
	}, nil
}

// Repository persists the ledger in the scan_events table. The day column is
// stamped at insert time in the reference timezone so daily queries stay
// index lookups.
type Repository struct {
	db  store.DBInterface
	loc *time.Location
}

// NewRepository creates a repo.
func NewRepository(db store.DBInterface, loc *time.Location) *Repository {
	return &Repository{db: db, loc: loc}
}

func (r *Repository) Append(ctx context.Context, e ScanEvent) error {
	if err := e.Validate(); err != nil {
		return err
	}
	query, args, err := psql.Insert("scan_events").
		Columns(append([]string{"day"}, eventColumns...)...).
		Values(e.Day(r.loc), e.Timestamp, e.IdentityID, e.Name, string(e.Role), e.BoardingPoint, e.Shift, e.Slot.String(), e.BusID).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("append scan: %w: %w", ErrBackendUnavailable, err)
	}
	return nil
}

func (r *Repository) CountToday(ctx context.Context, role roster.Role, identityID, day string) (int, error) {
	query, args, err := psql.Select("COUNT(*)").
		From("scan_events").
		Where(sq.Eq{"role": string(role)}).
		Where(sq.Eq{"identity_id": identityID}).
		Where(sq.Eq{"day": day}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}
	var n int64
	if err := r.db.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count scans: %w: %w", ErrBackendUnavailable, err)
	}
	return int(n), nil
}

func (r *Repository) EventsForBus(ctx context.Context, busID, day string) ([]ScanEvent, error) {
	return r.list(ctx, psql.Select(eventColumns...).
		From("scan_events").
		Where(sq.Eq{"bus_id": busID}).
		Where(sq.Eq{"day": day}).
		OrderBy("seq DESC"))
}

func (r *Repository) EventsForIdentity(ctx context.Context, role roster.Role, identityID, day string) ([]ScanEvent, error) {
	return r.list(ctx, psql.Select(eventColumns...).
		From("scan_events").
		Where(sq.Eq{"role": string(role)}).
		Where(sq.Eq{"identity_id": identityID}).
		Where(sq.Eq{"day": day}).
		OrderBy("seq"))
}

func (r *Repository) Export(ctx context.Context, w io.Writer) error {
	events, err := r.list(ctx, psql.Select(eventColumns...).From("scan_events").OrderBy("seq"))
	if err != nil {
		return err
	}
	return WriteEvents(w, events, r.loc)
}

func (r *Repository) list(ctx context.Context, b sq.SelectBuilder) ([]ScanEvent, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var rows []eventRow
	if err := pgxscan.Select(ctx, r.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list scans: %w: %w", ErrBackendUnavailable, err)
	}
	out := make([]ScanEvent, 0, len(rows))
	for _, row := range rows {
		e, err := row.event()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
