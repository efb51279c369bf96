package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"transit/internal/auth"
	"transit/internal/roster"
)

type loginRequest struct {
	Role     string `json:"role" binding:"required"`
	UserID   string `json:"user_id" binding:"required"`
	Password string `json:"password"`
	DeviceID string `json:"device_id"`
}

// driverLoginRequest carries both credential styles; the configured driver
// mode decides which fields are checked.
type driverLoginRequest struct {
	Contact  string `json:"contact"`
	DriverID string `json:"driver_id"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type sessionResponse struct {
	auth.Session
	Profile *roster.Identity `json:"profile"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	role, err := roster.ParseRole(req.Role)
	if err != nil {
		respondError(c, err)
		return
	}
	ident, err := h.Authenticator.Login(c.Request.Context(), role, req.UserID, req.Password, req.DeviceID)
	if err != nil {
		respondError(c, err)
		return
	}
	h.issue(c, ident)
}

func (h *Handler) DriverLogin(c *gin.Context) {
	var req driverLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	ident, err := h.Authenticator.DriverLogin(c.Request.Context(), auth.DriverCredentials{
		Contact:  req.Contact,
		ID:       req.DriverID,
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	h.issue(c, ident)
}

func (h *Handler) issue(c *gin.Context, ident roster.Identity) {
	s, err := auth.Issue(ident, h.JWTIssuer, h.JWTSigningKey, h.SessionTTL)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionResponse{Session: s, Profile: &ident})
}

// Session echoes the profile cached in the caller's token.
func (h *Handler) Session(c *gin.Context) {
	claims, ok := auth.SessionFrom(c)
	if !ok {
		abort(c, http.StatusUnauthorized, "NOT_AUTHENTICATED", "please log in")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"profile":    claims.Identity(),
		"expires_at": claims.ExpiresAt.Time,
	})
}
