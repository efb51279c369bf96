package attendance

import (
	"errors"
	"fmt"
	"strings"

	"transit/internal/roster"
)

// Kind names a scan rejection as surfaced to clients.
type Kind string

const (
	KindNotAuthenticated  Kind = "NOT_AUTHENTICATED"
	KindDailyLimitReached Kind = "DAILY_LIMIT_REACHED"
	KindBusMismatch       Kind = "BUS_MISMATCH"
)

var (
	ErrNotAuthenticated  = errors.New("not authenticated")
	ErrDailyLimitReached = errors.New("daily scan limit reached")
	ErrBusMismatch       = errors.New("bus not assigned")
	// ErrBackendUnavailable is shared with the roster so callers test one sentinel.
	ErrBackendUnavailable = roster.ErrBackendUnavailable
)

// ScanError is a rejected scan. It matches its kind's sentinel under errors.Is.
type ScanError struct {
	Kind            Kind
	Message         string
	AuthorizedBuses []string
}

func (e *ScanError) Error() string { return e.Message }

func (e *ScanError) Is(target error) bool {
	switch e.Kind {
	case KindNotAuthenticated:
		return target == ErrNotAuthenticated
	case KindDailyLimitReached:
		return target == ErrDailyLimitReached
	case KindBusMismatch:
		return target == ErrBusMismatch
	}
	return false
}

func notAuthenticated(msg string) *ScanError {
	return &ScanError{Kind: KindNotAuthenticated, Message: msg}
}

func dailyLimit(name string) *ScanError {
	return &ScanError{
		Kind:    KindDailyLimitReached,
		Message: fmt.Sprintf("%s has already completed all %d scans today", name, SlotsPerDay),
	}
}

func busMismatch(bus string, authorized roster.BusSet) *ScanError {
	list := "none"
	if len(authorized) > 0 {
		list = strings.Join(authorized, ", ")
	}
	return &ScanError{
		Kind:            KindBusMismatch,
		Message:         fmt.Sprintf("bus %s is not assigned to you; authorized buses: %s", bus, list),
		AuthorizedBuses: append([]string(nil), authorized...),
	}
}
