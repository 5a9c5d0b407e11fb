// Package x402gin adapts the x402 payment guard to gin.
package x402gin

import (
	"github.com/gin-gonic/gin"

	"github.com/x402labs/x402-go/pkg/x402"
)

// contextKey stores the verified authorization on the gin context.
const contextKey = "x402.authorization"

// PaymentRequired returns gin middleware that lets only paid requests
// through. opts may be nil to use the guard's defaults.
func PaymentRequired(g *x402.Guard, opts *x402.EndpointOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		out := g.Evaluate(c.Request.Context(), c.Request.URL.Path, c.GetHeader(x402.AuthorizationHeader), opts)
		if !out.Allow {
			for k, v := range out.Headers {
				c.Header(k, v)
			}
			c.AbortWithStatusJSON(out.Status, out.Body)
			return
		}
		c.Set(contextKey, out.Authorization)
		c.Next()
	}
}

// GetPaymentAuthorization returns the verified payment for a request that
// passed the middleware, or nil.
func GetPaymentAuthorization(c *gin.Context) *x402.PaymentAuthorization {
	if v, ok := c.Get(contextKey); ok {
		if auth, ok := v.(*x402.PaymentAuthorization); ok {
			return auth
		}
	}
	return nil
}
