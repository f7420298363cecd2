package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "pacer/internal/errors"
	"pacer/internal/logger"
	"pacer/internal/metrics"
)

const maxSearchResults = 200

// Portfolio - GET /api/portfolio?fresh=
func (h *Handlers) Portfolio(c *gin.Context) {
	ctx := c.Request.Context()
	fresh := queryBool(c, "fresh")
	asOf := h.services.Pacing.AsOf()

	if !fresh && h.portfolioCache != nil {
		raw, err := h.portfolioCache.GetPortfolioRaw(ctx, asOf)
		if err != nil {
			logger.WithContext(ctx).Warn("Portfolio cache lookup failed", "error", err)
		}
		metrics.Engine().CacheLookup(metrics.CacheLayerValkey, raw != nil)
		if raw != nil {
			c.Data(http.StatusOK, "application/json", raw)
			return
		}
	}

	resp, err := h.services.Pacing.Portfolio(ctx, fresh)
	if err != nil {
		respondError(c, err, "Failed to analyze portfolio")
		return
	}

	if h.portfolioCache != nil {
		if err := h.portfolioCache.SetPortfolio(ctx, asOf, resp, h.cacheTTL); err != nil {
			logger.WithContext(ctx).Warn("Failed to cache portfolio", "error", err)
		}
	}

	c.JSON(http.StatusOK, resp)
}

// SearchPacing - GET /api/pacing/search?decision=&q=&size=
func (h *Handlers) SearchPacing(c *gin.Context) {
	if h.searcher == nil {
		respondError(c, apperrors.ErrSearchDisabled, "Search unavailable")
		return
	}

	size, ok := queryInt(c, "size", 50)
	if !ok {
		return
	}
	if size < 1 || size > maxSearchResults {
		c.JSON(http.StatusBadRequest, gin.H{"error": "size must be between 1 and 200"})
		return
	}

	results, err := h.searcher.Search(c.Request.Context(), c.Query("decision"), c.Query("q"), size)
	if err != nil {
		respondError(c, err, "Failed to search pacing results")
		return
	}

	c.JSON(http.StatusOK, results)
}
