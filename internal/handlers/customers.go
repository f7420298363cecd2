package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"pacer/internal/models"
	"pacer/internal/pacing"
)

// GetCustomer - GET /api/customers/:email
func (h *Handlers) GetCustomer(c *gin.Context) {
	customer, err := h.services.Customers.Get(c.Request.Context(), c.Param("email"))
	if err != nil {
		respondError(c, err, "Failed to get customer")
		return
	}

	c.JSON(http.StatusOK, customer)
}

// CustomerSegments - GET /api/customers/segments
func (h *Handlers) CustomerSegments(c *gin.Context) {
	counts, err := h.services.Customers.Segments(c.Request.Context())
	if err != nil {
		respondError(c, err, "Failed to count segments")
		return
	}

	c.JSON(http.StatusOK, counts)
}

// HighValueCustomers - GET /api/customers/high-value?event_type=&city=&min_ltv=&limit=
func (h *Handlers) HighValueCustomers(c *gin.Context) {
	filter := models.CustomerFilter{
		EventType: c.Query("event_type"),
		City:      c.Query("city"),
		MinLTV:    pacing.HighValueMinLTV,
	}
	if raw := c.Query("min_ltv"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "min_ltv must be a number"})
			return
		}
		filter.MinLTV = v
	}
	limit, ok := queryInt(c, "limit", 0)
	if !ok {
		return
	}
	filter.Limit = limit

	customers, err := h.services.Customers.HighValue(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err, "Failed to list high-value customers")
		return
	}

	c.JSON(http.StatusOK, customers)
}

// AtRiskCustomers - GET /api/customers/at-risk?min_orders=&min_inactive=
func (h *Handlers) AtRiskCustomers(c *gin.Context) {
	minOrders, ok := queryInt(c, "min_orders", pacing.AtRiskMinOrders)
	if !ok {
		return
	}
	minInactive, ok := queryInt(c, "min_inactive", pacing.AtRiskMinDaysInactive)
	if !ok {
		return
	}

	customers, err := h.services.Customers.AtRisk(c.Request.Context(), minOrders, minInactive)
	if err != nil {
		respondError(c, err, "Failed to list at-risk customers")
		return
	}

	c.JSON(http.StatusOK, customers)
}

// ScoreCustomers - POST /api/customers/score
func (h *Handlers) ScoreCustomers(c *gin.Context) {
	n, err := h.services.Pipeline.ScoreCustomers(c.Request.Context())
	if err != nil {
		respondError(c, err, "Failed to score customers")
		return
	}

	c.JSON(http.StatusOK, gin.H{"customers": n})
}
