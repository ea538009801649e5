package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/docker-production-aws/microtrader/pkg/domain"
)

// QuoteReader is the read side of the quote book.
type QuoteReader interface {
	QuoteByName(ctx context.Context, name string) (domain.Quote, error)
	All() map[string]domain.Quote
}

// RegisterQuoteRoutes serves GET root (all quotes) and GET root?name=X.
func RegisterQuoteRoutes(r gin.IRouter, root string, book QuoteReader) {
	r.GET(root, func(c *gin.Context) {
		name, ok := c.GetQuery("name")
		if !ok {
			c.JSON(http.StatusOK, book.All())
			return
		}
		quote, err := book.QuoteByName(c.Request.Context(), name)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, quote)
	})
}
