package handler

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"transit/internal/logger"
	"transit/internal/metrics"
	"transit/internal/roster"
	"transit/internal/tabular"
)

const maxUploadBytes = 8 << 20

type rosterEntry struct {
	roster.Identity
	DeviceBound bool `json:"device_bound"`
}

// ListRoster returns every identity of the role in the path, without credentials.
func (h *Handler) ListRoster(c *gin.Context) {
	role, err := roster.ParseRole(c.Param("role"))
	if err != nil {
		respondError(c, err)
		return
	}
	idents, err := h.Roster.List(c.Request.Context(), role)
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]rosterEntry, 0, len(idents))
	for _, ident := range idents {
		out = append(out, rosterEntry{Identity: ident, DeviceBound: ident.DeviceBound()})
	}
	c.JSON(http.StatusOK, gin.H{"role": role, "count": len(out), "identities": out})
}

// Import merges an uploaded CSV or XLSX sheet into a roster table. Every
// role except Admin needs the bus the sheet's rows are assigned to.
func (h *Handler) Import(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)

	role, err := roster.ParseRole(c.PostForm("role"))
	if err != nil {
		respondError(c, err)
		return
	}
	busID := roster.NormalizeID(c.PostForm("bus_id"))
	if busID == "" && role != roster.RoleAdmin {
		abort(c, http.StatusBadRequest, "INVALID_REQUEST", "bus_id is required")
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		abort(c, http.StatusBadRequest, "INVALID_REQUEST", "file is required")
		return
	}
	f, err := fh.Open()
	if err != nil {
		respondError(c, fmt.Errorf("open upload: %w", err))
		return
	}
	defer f.Close()

	table, err := tabular.Read(fh.Filename, f)
	if err != nil {
		abort(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	if !table.Has("ID") && !(role == roster.RoleAdmin && table.Has("Name")) {
		abort(c, http.StatusBadRequest, "INVALID_REQUEST", "sheet has no ID column")
		return
	}

	n, err := h.Roster.MergeImport(c.Request.Context(), role, busID, roster.FromTable(role, table))
	if err != nil {
		respondError(c, err)
		return
	}
	metrics.ImportedRows.WithLabelValues(string(role)).Add(float64(n))
	logger.FromContext(c.Request.Context()).Info("roster imported", "role", role, "bus", busID, "rows", n, "file", fh.Filename)
	c.JSON(http.StatusOK, gin.H{"role": role, "bus_id": busID, "processed": n})
}

// ExportAttendance downloads the whole ledger as CSV.
func (h *Handler) ExportAttendance(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.Scans.Export(c.Request.Context(), &buf); err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="Attendance.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}
