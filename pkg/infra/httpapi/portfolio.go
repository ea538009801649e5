package httpapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/docker-production-aws/microtrader/pkg/domain"
)

// PortfolioAPI is the ledger surface exposed over HTTP.
type PortfolioAPI interface {
	Portfolio() domain.Portfolio
	Evaluate(ctx context.Context) (float64, error)
	Buy(ctx context.Context, amount int, quote domain.Quote) (domain.Portfolio, error)
	Sell(ctx context.Context, amount int, quote domain.Quote) (domain.Portfolio, error)
}

// TradeRequest is the body of buy and sell commands.
type TradeRequest struct {
	Amount int          `json:"amount"`
	Quote  domain.Quote `json:"quote"`
}

// RegisterPortfolioRoutes serves the portfolio snapshot, its valuation, and
// the buy and sell commands under root.
func RegisterPortfolioRoutes(r gin.IRouter, root string, ledger PortfolioAPI) {
	g := r.Group(root)
	g.GET("", func(c *gin.Context) {
		c.JSON(http.StatusOK, ledger.Portfolio())
	})
	g.GET("/value", func(c *gin.Context) {
		value, err := ledger.Evaluate(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"value": value})
	})
	g.POST("/buy", trade(ledger.Buy))
	g.POST("/sell", trade(ledger.Sell))
}

func trade(cmd func(context.Context, int, domain.Quote) (domain.Portfolio, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TradeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, fmt.Errorf("%w: %w", domain.ErrValidation, err))
			return
		}
		p, err := cmd(c.Request.Context(), req.Amount, req.Quote)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, p)
	}
}
