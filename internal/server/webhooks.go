package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/mngrhq/mngr/internal/payment/domain"
)

const maxWebhookBodyBytes = 1 << 20

// WebhookRateLimit throttles one provider's delivery stream. Disabled
// limiters pass everything through.
func (s *Server) WebhookRateLimit(provider string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.webhookLimiter.Allow(c.Request.Context(), provider) {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse{Error: errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}})
	}
}

// HandleStripeWebhook feeds one delivery to the settlement reconciler.
// Duplicates and ignored event types answer 200 so the provider stops
// redelivering; signature and payload failures answer 400.
func (s *Server) HandleStripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		AbortWithError(c, paymentdomain.ErrInvalidPayload)
		return
	}

	outcome, err := s.settlementSvc.Handle(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		switch {
		case errors.Is(err, paymentdomain.ErrEventAlreadyProcessed):
			c.JSON(http.StatusOK, gin.H{"received": true, "duplicate": true})
		case errors.Is(err, paymentdomain.ErrEventIgnored):
			c.JSON(http.StatusOK, gin.H{"received": true, "ignored": true})
		default:
			AbortWithError(c, err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true, "result": outcome.Result})
}
