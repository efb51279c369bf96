package attendance

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	charmlog "github.com/charmbracelet/log"

	"transit/internal/logger"
	"transit/internal/roster"
	"transit/internal/tabular"
)

// FileLedger appends events to a single CSV file.
//
// The mutex only keeps concurrent appends from interleaving bytes; it is not
// held across a count and the append that follows it.
type FileLedger struct {
	path string
	loc  *time.Location
	log  *charmlog.Logger
	mu   sync.Mutex
}

type FileLedgerOption func(*FileLedger)

// WithLedgerLogger sets where skipped ledger rows are reported.
func WithLedgerLogger(l *charmlog.Logger) FileLedgerOption {
	return func(fl *FileLedger) { fl.log = l }
}

func NewFileLedger(path string, loc *time.Location, opts ...FileLedgerOption) (*FileLedger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	l := &FileLedger{path: path, loc: loc, log: logger.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

func (l *FileLedger) Append(_ context.Context, e ScanEvent) error {
	if err := e.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger: %w: %w", ErrBackendUnavailable, err)
	}
	defer f.Close()

	size, err := l.dropPartialTail(f)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if size == 0 {
		_ = w.Write(Columns)
	}
	_ = w.Write(e.Record(l.loc))
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("append ledger: %w: %w", ErrBackendUnavailable, err)
	}
	return nil
}

// RejectedPath is where partial rows removed from the ledger are kept.
func (l *FileLedger) RejectedPath() string { return l.path + ".rejected" }

// dropPartialTail moves a last line that lacks its newline, left by a write
// that was cut short, out of the ledger into RejectedPath. It returns the
// ledger size afterwards.
func (l *FileLedger) dropPartialTail(f *os.File) (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat ledger: %w: %w", ErrBackendUnavailable, err)
	}
	size := info.Size()
	if size == 0 {
		return 0, nil
	}
	data := make([]byte, size)
	if _, err := f.ReadAt(data, 0); err != nil {
		return 0, fmt.Errorf("read ledger: %w: %w", ErrBackendUnavailable, err)
	}
	if data[size-1] == '\n' {
		return size, nil
	}
	keep := int64(bytes.LastIndexByte(data, '\n') + 1)
	partial := data[keep:]
	l.log.Warn("removing partial ledger row", "path", l.path, "row", string(partial))

	rej, err := os.OpenFile(l.RejectedPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open rejected rows: %w: %w", ErrBackendUnavailable, err)
	}
	_, err = rej.Write(append(partial, '\n'))
	if cerr := rej.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("write rejected rows: %w: %w", ErrBackendUnavailable, err)
	}
	if err := f.Truncate(keep); err != nil {
		return 0, fmt.Errorf("truncate ledger: %w: %w", ErrBackendUnavailable, err)
	}
	return keep, nil
}

func (l *FileLedger) CountToday(ctx context.Context, role roster.Role, identityID, day string) (int, error) {
	events, err := l.EventsForIdentity(ctx, role, identityID, day)
	return len(events), err
}

func (l *FileLedger) EventsForBus(_ context.Context, busID, day string) ([]ScanEvent, error) {
	events, err := l.filter(func(e ScanEvent) bool { return e.BusID == busID && e.Day(l.loc) == day })
	slices.Reverse(events)
	return events, err
}

func (l *FileLedger) EventsForIdentity(_ context.Context, role roster.Role, identityID, day string) ([]ScanEvent, error) {
	return l.filter(func(e ScanEvent) bool {
		return e.Role == role && e.IdentityID == identityID && e.Day(l.loc) == day
	})
}

// Export copies the file verbatim. An empty ledger exports its header only.
func (l *FileLedger) Export(_ context.Context, w io.Writer) error {
	data, err := l.read()
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return WriteEvents(w, nil, l.loc)
	}
	_, err = w.Write(data)
	return err
}

// filter returns the events keep accepts. Rows that do not parse are logged
// and skipped so one damaged line does not hide the rest of the ledger.
func (l *FileLedger) filter(keep func(ScanEvent) bool) ([]ScanEvent, error) {
	data, err := l.read()
	if err != nil || len(data) == 0 {
		return nil, err
	}
	t := l.table(data)
	var out []ScanEvent
	for i := 0; i < t.Len(); i++ {
		e, err := eventFromRow(t, i, l.loc)
		if err == nil {
			err = e.Validate()
		}
		if err != nil {
			l.log.Error("skipping ledger row", "path", l.path, "err", err)
			continue
		}
		if keep(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

// table reads records one at a time so a malformed record costs only itself.
func (l *FileLedger) table(data []byte) *tabular.Table {
	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	var header []string
	var rows [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			l.log.Error("skipping ledger record", "path", l.path, "line", perr.StartLine, "err", perr.Err)
			continue
		}
		if err != nil {
			l.log.Error("stopped reading ledger", "path", l.path, "err", err)
			break
		}
		if header == nil {
			header = tabular.TrimHeader(rec)
			continue
		}
		rows = append(rows, rec)
	}
	return tabular.NewTable(header, rows)
}

func (l *FileLedger) read() ([]byte, error) {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w: %w", ErrBackendUnavailable, err)
	}
	return data, nil
}
