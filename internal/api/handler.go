package api

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/odyssee/discovery_service/internal/scanner"
	"github.com/odyssee/discovery_service/internal/service"
)

type Handler struct {
	svc *service.Service
}

func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

func RegisterRoutes(r *gin.Engine, h *Handler) {
	v1 := r.Group("/v1")
	{
		v1.POST("/scan", h.StartScan)
		v1.DELETE("/scan", h.CancelScan)
		v1.GET("/scan/progress", h.ScanProgress)
		v1.GET("/places", h.Places)
		v1.GET("/places/nearby", h.Nearby)
		v1.GET("/places/:id/moments", h.Moments)
	}
}

// StartScan: POST /v1/scan
// Launches a background scan of the photo library. 409 if one is running.
func (h *Handler) StartScan(c *gin.Context) {
	if err := h.svc.StartScan(); err != nil {
		if errors.Is(err, scanner.ErrScanInProgress) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "started"})
}

// CancelScan: DELETE /v1/scan
// Requests cooperative cancellation of the running scan.
func (h *Handler) CancelScan(c *gin.Context) {
	if !h.svc.CancelScan() {
		c.JSON(http.StatusConflict, gin.H{"error": "no scan in progress"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "cancelling"})
}

// ScanProgress: GET /v1/scan/progress
func (h *Handler) ScanProgress(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.ScanProgress())
}

// Places: GET /v1/places?limit=50
func (h *Handler) Places(c *gin.Context) {
	lim := parseLimit(c.DefaultQuery("limit", "50"))
	res, err := h.svc.Places(c.Request.Context(), lim)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"meta": gin.H{
			"count": len(res),
			"limit": lim,
		},
		"data": res,
	})
}

// Nearby: GET /v1/places/nearby?lat=48.85&lon=2.35&radius=10&limit=20
func (h *Handler) Nearby(c *gin.Context) {
	q := c.Request.URL.Query()

	lat, latErr := strconv.ParseFloat(q.Get("lat"), 64)
	lon, lonErr := strconv.ParseFloat(q.Get("lon"), 64)
	radius, radiusErr := strconv.ParseFloat(q.Get("radius"), 64)
	limit := parseLimit(c.DefaultQuery("limit", "20"))

	// Basic validation
	if latErr != nil || lonErr != nil || radiusErr != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or missing lat/lon/radius parameters"})
		return
	}
	if math.Abs(lat) > 90 || math.Abs(lon) > 180 || radius <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid lat/lon/radius values"})
		return
	}

	results, err := h.svc.Nearby(c.Request.Context(), lat, lon, radius, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"meta": gin.H{
			"count":     len(results),
			"radius_km": radius,
			"limit":     limit,
		},
		"data": results,
	})
}

// Moments: GET /v1/places/:id/moments?limit=100
func (h *Handler) Moments(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing id parameter"})
		return
	}
	lim := parseLimit(c.DefaultQuery("limit", "100"))

	res, err := h.svc.Moments(c.Request.Context(), id, lim)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"meta": gin.H{
			"place_id": id,
			"count":    len(res),
			"limit":    lim,
		},
		"data": res,
	})
}

// parseLimit ensures a sane integer limit, with bounds
func parseLimit(s string) int {
	l, err := strconv.Atoi(s)
	if err != nil || l <= 0 {
		return 10
	}
	if l > 200 {
		return 200
	}
	return l
}
