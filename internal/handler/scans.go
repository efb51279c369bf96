package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"transit/internal/attendance"
	"transit/internal/auth"
	"transit/internal/roster"
)

type scanRequest struct {
	BusID string `json:"bus_id" binding:"required"`
}

type driverScanRequest struct {
	ScannedID string `json:"scanned_id" binding:"required"`
}

type manifestResponse struct {
	BusID  string                 `json:"bus_id"`
	Day    string                 `json:"day"`
	Count  int                    `json:"count"`
	Events []attendance.ScanEvent `json:"events"`
}

// SelfScan records the session rider boarding the bus whose code they scanned.
func (h *Handler) SelfScan(c *gin.Context) {
	claims, _ := auth.SessionFrom(c)
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	receipt, err := h.Scans.AuthorizeScan(c.Request.Context(), claims.Identity(), req.BusID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, receipt)
}

// MyScans lists the session rider's scans today.
func (h *Handler) MyScans(c *gin.Context) {
	claims, _ := auth.SessionFrom(c)
	events, err := h.Scans.ScansToday(c.Request.Context(), roster.Role(claims.Role), claims.Subject)
	if err != nil {
		respondError(c, err)
		return
	}
	if events == nil {
		events = []attendance.ScanEvent{}
	}
	next := ""
	if slot, ok := attendance.SlotForCount(len(events)); ok {
		next = slot.String()
	}
	c.JSON(http.StatusOK, gin.H{
		"day":       h.Scans.Today(),
		"count":     len(events),
		"remaining": max(attendance.SlotsPerDay-len(events), 0),
		"next_slot": next,
		"events":    events,
	})
}

// DriverScan records a rider scanned by the driver onto the driver's own bus.
// The rider is resolved from the roster so the bus check uses current assignments.
func (h *Handler) DriverScan(c *gin.Context) {
	claims, _ := auth.SessionFrom(c)
	var req driverScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	driver := claims.Identity()
	if len(driver.AssignedBus) == 0 {
		abort(c, http.StatusForbidden, string(attendance.KindBusMismatch), "no bus is assigned to this driver")
		return
	}
	rider, err := h.Roster.LookupAny(c.Request.Context(), req.ScannedID, roster.RoleStudent, roster.RoleStaff)
	if err != nil {
		respondError(c, err)
		return
	}
	receipt, err := h.Scans.AuthorizeScan(c.Request.Context(), &rider, driver.AssignedBus[0])
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": rider.ID, "role": rider.Role, "receipt": receipt})
}

// DriverManifest lists today's boardings on the driver's bus.
func (h *Handler) DriverManifest(c *gin.Context) {
	claims, _ := auth.SessionFrom(c)
	buses := claims.Identity().AssignedBus
	if len(buses) == 0 {
		abort(c, http.StatusForbidden, string(attendance.KindBusMismatch), "no bus is assigned to this driver")
		return
	}
	h.manifest(c, buses[0])
}

func (h *Handler) AdminManifest(c *gin.Context) {
	h.manifest(c, c.Param("bus_id"))
}

func (h *Handler) manifest(c *gin.Context, busID string) {
	events, err := h.Scans.Manifest(c.Request.Context(), busID)
	if err != nil {
		respondError(c, err)
		return
	}
	if events == nil {
		events = []attendance.ScanEvent{}
	}
	c.JSON(http.StatusOK, manifestResponse{
		BusID:  roster.NormalizeID(busID),
		Day:    h.Scans.Today(),
		Count:  len(events),
		Events: events,
	})
}
