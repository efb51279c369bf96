package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	charmlog "github.com/charmbracelet/log"

	"transit/internal/logger"
	"transit/internal/metrics"
	"transit/internal/roster"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrDeviceMismatch     = errors.New("account is bound to another device")
	ErrDeviceRequired     = errors.New("device id required")
)

// MinDeviceIDLen rejects placeholder device ids such as "" or "null".
const MinDeviceIDLen = 5

// DriverMode selects how drivers prove who they are.
type DriverMode string

const (
	// DriverByName looks the driver up by contact number and accepts a
	// case-insensitive match of the display name.
	DriverByName DriverMode = "name"
	// DriverByPassword looks the driver up by id and checks the stored credential.
	DriverByPassword DriverMode = "password"
)

// Directory is the roster surface login needs.
type Directory interface {
	Lookup(ctx context.Context, role roster.Role, id string) (roster.Identity, error)
	LookupByContact(ctx context.Context, role roster.Role, contact string) (roster.Identity, error)
	BindDevice(ctx context.Context, role roster.Role, id, device string) error
}

type Authenticator struct {
	dir           Directory
	deviceBinding bool
	driverMode    DriverMode
	log           *charmlog.Logger
}

type AuthenticatorOption func(*Authenticator)

// WithDeviceBinding binds riders to the first device they log in from.
func WithDeviceBinding(on bool) AuthenticatorOption {
	return func(a *Authenticator) { a.deviceBinding = on }
}

func WithDriverMode(m DriverMode) AuthenticatorOption {
	return func(a *Authenticator) { a.driverMode = m }
}

func WithAuthLogger(l *charmlog.Logger) AuthenticatorOption {
	return func(a *Authenticator) { a.log = l }
}

func NewAuthenticator(dir Directory, opts ...AuthenticatorOption) *Authenticator {
	a := &Authenticator{dir: dir, driverMode: DriverByName, log: logger.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Login checks a password login for Student, Staff or Admin. Admin rosters are
// keyed by name, so id is the admin's name there.
func (a *Authenticator) Login(ctx context.Context, role roster.Role, id, password, deviceID string) (roster.Identity, error) {
	if role == roster.RoleDriver || !role.Valid() {
		return a.deny(role, id, ErrInvalidCredentials)
	}
	ident, err := a.dir.Lookup(ctx, role, id)
	if errors.Is(err, roster.ErrNotFound) {
		return a.deny(role, id, ErrInvalidCredentials)
	}
	if err != nil {
		return roster.Identity{}, err
	}
	if !CheckCredential(ident.Credential, password) {
		return a.deny(role, id, ErrInvalidCredentials)
	}
	if a.deviceBinding && role.Rider() {
		if err := a.bind(ctx, &ident, deviceID); err != nil {
			if errors.Is(err, ErrDeviceMismatch) || errors.Is(err, ErrDeviceRequired) {
				return a.deny(role, id, err)
			}
			return roster.Identity{}, err
		}
	}
	metrics.Logins.WithLabelValues(string(role), "ok").Inc()
	return ident, nil
}

// DriverCredentials is what a driver presents at login. Which fields count
// depends on the DriverMode.
type DriverCredentials struct {
	Contact  string
	ID       string
	Name     string
	Password string
}

// DriverLogin authenticates a driver. In DriverByName mode the driver is
// found by contact number and the display name must match. In
// DriverByPassword mode the driver is found by id, or by contact when no id
// is given, and the stored credential must match.
func (a *Authenticator) DriverLogin(ctx context.Context, cred DriverCredentials) (roster.Identity, error) {
	var (
		ident roster.Identity
		key   string
		err   error
	)
	switch a.driverMode {
	case DriverByPassword:
		if key = roster.NormalizeID(cred.ID); key != "" {
			ident, err = a.dir.Lookup(ctx, roster.RoleDriver, key)
		} else {
			key = strings.TrimSpace(cred.Contact)
			ident, err = a.dir.LookupByContact(ctx, roster.RoleDriver, key)
		}
	default:
		key = strings.TrimSpace(cred.Contact)
		ident, err = a.dir.LookupByContact(ctx, roster.RoleDriver, key)
	}
	if errors.Is(err, roster.ErrNotFound) {
		return a.deny(roster.RoleDriver, key, ErrInvalidCredentials)
	}
	if err != nil {
		return roster.Identity{}, err
	}

	var ok bool
	switch a.driverMode {
	case DriverByPassword:
		ok = cred.Password != "" && CheckCredential(ident.Credential, cred.Password)
	default:
		name := strings.TrimSpace(cred.Name)
		ok = name != "" && strings.EqualFold(strings.TrimSpace(ident.Name), name)
	}
	if !ok {
		return a.deny(roster.RoleDriver, key, ErrInvalidCredentials)
	}
	metrics.Logins.WithLabelValues(string(roster.RoleDriver), "ok").Inc()
	return ident, nil
}

func (a *Authenticator) bind(ctx context.Context, ident *roster.Identity, deviceID string) error {
	deviceID = strings.TrimSpace(deviceID)
	if len(deviceID) < MinDeviceIDLen {
		return ErrDeviceRequired
	}
	if ident.DeviceBound() {
		if strings.TrimSpace(ident.DeviceID) != deviceID {
			return ErrDeviceMismatch
		}
		return nil
	}
	err := a.dir.BindDevice(ctx, ident.Role, ident.ID, deviceID)
	if errors.Is(err, roster.ErrDeviceAlreadyBound) {
		return ErrDeviceMismatch
	}
	if err != nil {
		return fmt.Errorf("bind device: %w", err)
	}
	ident.DeviceID = deviceID
	a.log.Info("device bound", "role", ident.Role, "identity", ident.ID)
	return nil
}

func (a *Authenticator) deny(role roster.Role, id string, err error) (roster.Identity, error) {
	metrics.Logins.WithLabelValues(string(role), "denied").Inc()
	a.log.Info("login denied", "role", role, "identity", id, "reason", err)
	return roster.Identity{}, err
}
