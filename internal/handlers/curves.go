package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ListCurves - GET /api/curves
func (h *Handlers) ListCurves(c *gin.Context) {
	curves, err := h.services.Events.Curves(c.Request.Context())
	if err != nil {
		respondError(c, err, "Failed to list curves")
		return
	}

	c.JSON(http.StatusOK, curves)
}

// GetCurve - GET /api/curves/:pattern
func (h *Handlers) GetCurve(c *gin.Context) {
	curve, err := h.services.Events.Curve(c.Request.Context(), c.Param("pattern"))
	if err != nil {
		respondError(c, err, "Failed to get curve")
		return
	}

	c.JSON(http.StatusOK, curve)
}

// RebuildCurves - POST /api/curves/rebuild
func (h *Handlers) RebuildCurves(c *gin.Context) {
	n, err := h.services.Pipeline.BuildCurves(c.Request.Context())
	if err != nil {
		respondError(c, err, "Failed to build curves")
		return
	}

	c.JSON(http.StatusOK, gin.H{"curves": n})
}
