package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/docker-production-aws/microtrader/pkg/domain"
)

// OperationsReader returns recent operations, degraded or not.
type OperationsReader interface {
	RecentOperations(ctx context.Context, limit int) domain.OperationsView
}

// RegisterDashboardRoutes serves GET root (recent operations) and GET
// /discovery, which lists registry records optionally filtered by name.
func RegisterDashboardRoutes(r gin.IRouter, root string, ops OperationsReader, reg domain.Registry) {
	r.GET(root, func(c *gin.Context) {
		limit, err := parseLimit(c)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, ops.RecentOperations(c.Request.Context(), limit))
	})
	r.GET("/discovery", func(c *gin.Context) {
		records, err := reg.Records(c.Request.Context(), c.Query("name"))
		if err != nil {
			writeError(c, err)
			return
		}
		if records == nil {
			records = []domain.ServiceRecord{}
		}
		c.JSON(http.StatusOK, records)
	})
}
