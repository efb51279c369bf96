// Package handler exposes the roster, login and scan operations over HTTP.
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"transit/internal/attendance"
	"transit/internal/auth"
	"transit/internal/logger"
	"transit/internal/roster"
	"transit/internal/tabular"
)

// HealthCheck reports whether one backing service is reachable.
type HealthCheck func(ctx context.Context) bool

// Deps is everything the handlers need. Checks may be empty.
type Deps struct {
	Roster        *roster.Roster
	Authenticator *auth.Authenticator
	Scans         *attendance.Service
	JWTIssuer     string
	JWTSigningKey string
	SessionTTL    time.Duration
	Checks        map[string]HealthCheck
}

type Handler struct {
	Deps
}

func New(d Deps) *Handler {
	if d.SessionTTL <= 0 {
		d.SessionTTL = 12 * time.Hour
	}
	return &Handler{Deps: d}
}

type errorBody struct {
	Error           string   `json:"error"`
	Code            string   `json:"code"`
	AuthorizedBuses []string `json:"authorized_buses,omitempty"`
}

func abort(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, errorBody{Error: msg, Code: code})
}

// respondError maps domain errors onto status codes and stable error codes.
func respondError(c *gin.Context, err error) {
	var se *attendance.ScanError
	if errors.As(err, &se) {
		status := http.StatusForbidden
		switch se.Kind {
		case attendance.KindNotAuthenticated:
			status = http.StatusUnauthorized
		case attendance.KindDailyLimitReached:
			status = http.StatusConflict
		}
		c.AbortWithStatusJSON(status, errorBody{Error: se.Message, Code: string(se.Kind), AuthorizedBuses: se.AuthorizedBuses})
		return
	}

	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		abort(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid id or password")
	case errors.Is(err, auth.ErrDeviceMismatch):
		abort(c, http.StatusForbidden, "DEVICE_MISMATCH", "this account is registered to another device")
	case errors.Is(err, auth.ErrDeviceRequired):
		abort(c, http.StatusBadRequest, "DEVICE_REQUIRED", "a device id is required to log in")
	case errors.Is(err, roster.ErrBackendUnavailable):
		logger.FromContext(c.Request.Context()).Error("backend unavailable", "err", err)
		abort(c, http.StatusServiceUnavailable, "BACKEND_UNAVAILABLE", "attendance records are temporarily unavailable, please try again")
	case errors.Is(err, roster.ErrNotFound):
		abort(c, http.StatusNotFound, "NOT_FOUND", "no such id on the roster")
	case errors.Is(err, roster.ErrInvalidRole),
		errors.Is(err, roster.ErrInvalidIdentity),
		errors.Is(err, tabular.ErrUnsupportedFormat):
		abort(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	default:
		logger.FromContext(c.Request.Context()).Error("request failed", "err", err)
		abort(c, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}

// Health reports each configured check. Any failing check turns the response into 503.
func (h *Handler) Health(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range h.Checks {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}
