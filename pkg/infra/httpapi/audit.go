package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/docker-production-aws/microtrader/pkg/domain"
)

// AuditReader answers recent-history queries.
type AuditReader interface {
	Recent(ctx context.Context, n int) ([]domain.TradeEvent, error)
}

// RegisterAuditRoutes serves GET root?limit=n, most recent first.
func RegisterAuditRoutes(r gin.IRouter, root string, audit AuditReader) {
	r.GET(root, func(c *gin.Context) {
		limit, err := parseLimit(c)
		if err != nil {
			writeError(c, err)
			return
		}
		events, err := audit.Recent(c.Request.Context(), limit)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, events)
	})
}

// parseLimit reads the optional limit query parameter; 0 means "default".
func parseLimit(c *gin.Context) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, fmt.Errorf("%w: limit must be a non-negative integer", domain.ErrValidation)
	}
	return limit, nil
}
