package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	qrcode "github.com/skip2/go-qrcode"

	"transit/internal/auth"
	"transit/internal/roster"
)

const defaultQRSize = 256

// BusQR renders the poster code riders scan when they board.
func (h *Handler) BusQR(c *gin.Context) {
	h.qr(c, roster.NormalizeID(c.Param("bus_id")))
}

// MyQR renders the session identity's badge for a driver to scan.
func (h *Handler) MyQR(c *gin.Context) {
	claims, _ := auth.SessionFrom(c)
	h.qr(c, claims.Subject)
}

func (h *Handler) qr(c *gin.Context, content string) {
	if content == "" {
		abort(c, http.StatusBadRequest, "INVALID_REQUEST", "nothing to encode")
		return
	}
	size := defaultQRSize
	if v, err := strconv.Atoi(c.Query("size")); err == nil && v >= 64 && v <= 1024 {
		size = v
	}
	png, err := qrcode.Encode(content, qrcode.Medium, size)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}
