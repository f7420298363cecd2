package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Rebuild - POST /api/rebuild
// Runs snapshots, curves and customer scoring in order.
func (h *Handlers) Rebuild(c *gin.Context) {
	res, err := h.services.Pipeline.Rebuild(c.Request.Context())
	if err != nil {
		respondError(c, err, "Failed to rebuild")
		return
	}

	c.JSON(http.StatusOK, res)
}
