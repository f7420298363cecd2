package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pacer/internal/models"
)

// ListEvents - GET /api/events?upcoming=true&status=
func (h *Handlers) ListEvents(c *gin.Context) {
	var filter models.EventFilter
	if queryBool(c, "upcoming") {
		filter.From = h.services.Pacing.AsOf()
	}
	if status := c.Query("status"); status != "" {
		filter.Status = models.EventStatus(status)
	}

	events, err := h.services.Events.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err, "Failed to list events")
		return
	}

	c.JSON(http.StatusOK, events)
}

// EventPacing - GET /api/events/:id/pacing?fresh=
func (h *Handlers) EventPacing(c *gin.Context) {
	res, err := h.services.Pacing.AnalyzeEvent(c.Request.Context(), c.Param("id"), queryBool(c, "fresh"))
	if err != nil {
		respondError(c, err, "Failed to analyze event")
		return
	}

	c.JSON(http.StatusOK, res)
}

// EventTargeting - GET /api/events/:id/targeting?limit=
func (h *Handlers) EventTargeting(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 0)
	if !ok {
		return
	}

	plan, err := h.services.Targeting.Event(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		respondError(c, err, "Failed to build targeting")
		return
	}

	c.JSON(http.StatusOK, plan)
}
