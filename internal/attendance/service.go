package attendance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	charmlog "github.com/charmbracelet/log"

	"transit/internal/logger"
	"transit/internal/metrics"
	"transit/internal/roster"
)

// Receipt echoes an approved scan back to the scanner UI.
type Receipt struct {
	Name          string    `json:"name"`
	BoardingPoint string    `json:"boarding_point"`
	Shift         string    `json:"shift"`
	BusID         string    `json:"bus_id"`
	Slot          ScanSlot  `json:"scan_slot"`
	Timestamp     time.Time `json:"timestamp"`
	ScansToday    int       `json:"scans_today"`
}

// Service authorizes scans against the ledger.
type Service struct {
	ledger Ledger
	locker Locker
	loc    *time.Location
	now    func() time.Time
	log    *charmlog.Logger
}

type Option func(*Service)

// WithLocker sets how concurrent scans for one identity are serialized.
// The default is NoLock.
func WithLocker(l Locker) Option {
	return func(s *Service) { s.locker = l }
}

// WithLocation sets the reference timezone that decides calendar days.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.loc = loc }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(l *charmlog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// NewService creates a service backed by a ledger.
func NewService(ledger Ledger, opts ...Option) *Service {
	s := &Service{
		ledger: ledger,
		locker: NoLock{},
		loc:    time.UTC,
		now:    time.Now,
		log:    logger.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Location() *time.Location { return s.loc }

// Today is the current calendar day in the reference timezone.
func (s *Service) Today() string {
	return s.now().In(s.loc).Format(DayLayout)
}

// AuthorizeScan decides whether ident may board busID now and records the
// scan when approved. The next slot is the count of today's scans, so the
// cycle advances regardless of which physical direction was scanned.
func (s *Service) AuthorizeScan(ctx context.Context, ident *roster.Identity, busID string) (Receipt, error) {
	if ident == nil || roster.NormalizeID(ident.ID) == "" {
		return s.reject(notAuthenticated("please log in before scanning"), "", busID)
	}
	if !ident.Role.Rider() {
		return s.reject(notAuthenticated(fmt.Sprintf("%s accounts cannot be scanned", ident.Role)), ident.ID, busID)
	}
	busID = roster.NormalizeID(busID)
	id := roster.NormalizeID(ident.ID)

	unlock, err := s.locker.Lock(ctx, string(ident.Role)+":"+id)
	if err != nil {
		return s.fail(fmt.Errorf("lock scan for %s: %w", id, err), id, busID)
	}
	defer unlock()

	now := s.now()
	day := now.In(s.loc).Format(DayLayout)
	count, err := s.ledger.CountToday(ctx, ident.Role, id, day)
	if err != nil {
		return s.fail(err, id, busID)
	}
	slot, ok := SlotForCount(count)
	if !ok {
		return s.reject(dailyLimit(ident.Name), id, busID)
	}
	if !ident.AssignedBus.Contains(busID) {
		return s.reject(busMismatch(busID, ident.AssignedBus), id, busID)
	}

	evt, err := NewScanEvent(*ident, busID, slot, now)
	if err != nil {
		return Receipt{}, err
	}
	if err := s.ledger.Append(ctx, evt); err != nil {
		return s.fail(err, id, busID)
	}

	metrics.ScanOutcomes.WithLabelValues("approved").Inc()
	metrics.ScanSlots.WithLabelValues(slot.String()).Inc()
	s.log.Info("scan approved", "identity", id, "bus", busID, "slot", slot)
	return Receipt{
		Name:          ident.Name,
		BoardingPoint: ident.BoardingPoint,
		Shift:         ident.Shift,
		BusID:         busID,
		Slot:          slot,
		Timestamp:     evt.Timestamp,
		ScansToday:    count + 1,
	}, nil
}

func (s *Service) reject(e *ScanError, id, bus string) (Receipt, error) {
	metrics.ScanOutcomes.WithLabelValues(string(e.Kind)).Inc()
	s.log.Info("scan rejected", "identity", id, "bus", bus, "reason", e.Kind)
	return Receipt{}, e
}

func (s *Service) fail(err error, id, bus string) (Receipt, error) {
	metrics.ScanOutcomes.WithLabelValues("error").Inc()
	s.log.Error("scan failed", "identity", id, "bus", bus, "err", err)
	if !errors.Is(err, ErrBackendUnavailable) {
		err = fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	return Receipt{}, err
}

// ScansToday returns the identity's scans for today in slot order.
func (s *Service) ScansToday(ctx context.Context, role roster.Role, identityID string) ([]ScanEvent, error) {
	return s.ledger.EventsForIdentity(ctx, role, roster.NormalizeID(identityID), s.Today())
}

// Manifest lists today's boardings on busID, most recent first.
func (s *Service) Manifest(ctx context.Context, busID string) ([]ScanEvent, error) {
	return s.ledger.EventsForBus(ctx, roster.NormalizeID(busID), s.Today())
}

func (s *Service) Export(ctx context.Context, w io.Writer) error {
	return s.ledger.Export(ctx, w)
}
