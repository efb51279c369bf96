package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"transit/internal/roster"
)

// Session is an issued token.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Claims carries the profile cached at login, so scans need no roster read
// to know who is scanning.
type Claims struct {
	Name          string `json:"name"`
	Role          string `json:"role"`
	AssignedBus   string `json:"assigned_bus,omitempty"`
	BoardingPoint string `json:"boarding_point,omitempty"`
	Shift         string `json:"shift,omitempty"`
	Contact       string `json:"contact,omitempty"`
	jwt.RegisteredClaims
}

// Identity rebuilds the cached profile. Credentials and devices are never cached.
func (c Claims) Identity() *roster.Identity {
	return &roster.Identity{
		ID:            c.Subject,
		Name:          c.Name,
		Role:          roster.Role(c.Role),
		Contact:       c.Contact,
		AssignedBus:   roster.ParseBusSet(c.AssignedBus),
		BoardingPoint: c.BoardingPoint,
		Shift:         c.Shift,
	}
}

// Issue signs a session token for ident.
func Issue(ident roster.Identity, issuer, key string, ttl time.Duration) (Session, error) {
	now := time.Now()
	exp := now.Add(ttl)
	claims := Claims{
		Name:          ident.Name,
		Role:          string(ident.Role),
		AssignedBus:   ident.AssignedBus.String(),
		BoardingPoint: ident.BoardingPoint,
		Shift:         ident.Shift,
		Contact:       ident.Contact,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   roster.NormalizeID(ident.ID),
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: exp}, nil
}

// Parse validates a token and returns claims.
func Parse(tokenStr, key, issuer string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(key), nil
	})
	if err != nil {
		return Claims{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, errors.New("invalid token")
	}
	if issuer != "" && claims.Issuer != issuer {
		return Claims{}, errors.New("issuer mismatch")
	}
	if claims.Subject == "" || !roster.Role(claims.Role).Valid() {
		return Claims{}, errors.New("token carries no identity")
	}
	return *claims, nil
}
