package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "pacer/internal/errors"
	"pacer/internal/logger"
	"pacer/internal/models"
	"pacer/internal/service"
)

// PortfolioCache shares rendered portfolios between API replicas
type PortfolioCache interface {
	GetPortfolioRaw(ctx context.Context, asOf time.Time) ([]byte, error)
	SetPortfolio(ctx context.Context, asOf time.Time, portfolio any, ttl time.Duration) error
}

// Searcher queries the pacing search index
type Searcher interface {
	Search(ctx context.Context, decision, query string, size int) ([]*models.EventPacingResult, error)
}

type Handlers struct {
	services       *service.Services
	portfolioCache PortfolioCache
	searcher       Searcher
	cacheTTL       time.Duration
}

// NewHandlers builds the HTTP handlers. portfolioCache and searcher are optional.
func NewHandlers(services *service.Services, portfolioCache PortfolioCache, searcher Searcher, cacheTTL time.Duration) *Handlers {
	return &Handlers{
		services:       services,
		portfolioCache: portfolioCache,
		searcher:       searcher,
		cacheTTL:       cacheTTL,
	}
}

// RegisterRoutes mounts every API endpoint on the group
func (h *Handlers) RegisterRoutes(api *gin.RouterGroup) {
	events := api.Group("/events")
	{
		events.GET("", h.ListEvents)
		events.GET("/:id/pacing", h.EventPacing)
		events.GET("/:id/targeting", h.EventTargeting)
	}

	api.GET("/portfolio", h.Portfolio)
	api.GET("/pacing/search", h.SearchPacing)

	curves := api.Group("/curves")
	{
		curves.GET("", h.ListCurves)
		curves.GET("/:pattern", h.GetCurve)
		curves.POST("/rebuild", h.RebuildCurves)
	}

	customers := api.Group("/customers")
	{
		customers.GET("/segments", h.CustomerSegments)
		customers.GET("/high-value", h.HighValueCustomers)
		customers.GET("/at-risk", h.AtRiskCustomers)
		customers.POST("/score", h.ScoreCustomers)
		customers.GET("/:email", h.GetCustomer)
	}

	api.POST("/rebuild", h.Rebuild)
}

// respondError maps service errors onto HTTP status codes
func respondError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": msg + ": not found"})
	case errors.Is(err, apperrors.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrRebuildInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrSearchDisabled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		logger.WithContext(c.Request.Context()).Error(msg, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}

func queryBool(c *gin.Context, key string) bool {
	v, err := strconv.ParseBool(c.Query(key))
	return err == nil && v
}

// queryInt parses an optional integer query parameter
func queryInt(c *gin.Context, key string, def int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": key + " must be an integer"})
		return 0, false
	}
	return v, true
}
