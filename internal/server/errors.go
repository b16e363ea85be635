package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	creatordomain "github.com/mngrhq/mngr/internal/creator/domain"
	dealdomain "github.com/mngrhq/mngr/internal/deal/domain"
	"github.com/mngrhq/mngr/internal/feepolicy"
	paymentdomain "github.com/mngrhq/mngr/internal/payment/domain"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string         `json:"type"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrNotFound       = errors.New("not_found")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	var terr *dealdomain.TransitionError
	if errors.As(err, &terr) {
		// the edge exists in no role's table -> the request itself is bad;
		// the edge was valid but the row moved -> conflict
		status := http.StatusConflict
		if !dealdomain.CanTransition(terr.Role, terr.From, terr.To) {
			status = http.StatusBadRequest
		}
		return status, errorPayload{
			Type:    "invalid_transition",
			Message: "transition not allowed",
			Details: map[string]any{
				"from": string(terr.From),
				"to":   string(terr.To),
				"role": string(terr.Role),
			},
		}
	}

	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, dealdomain.ErrInvalidAmount),
		errors.Is(err, dealdomain.ErrAmountTooLarge),
		errors.Is(err, dealdomain.ErrInvalidCurrency),
		errors.Is(err, dealdomain.ErrInvalidStatus),
		errors.Is(err, creatordomain.ErrInvalidTier),
		errors.Is(err, feepolicy.ErrUnknownTier),
		errors.Is(err, feepolicy.ErrNegativeEarnings):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_request",
			Message: err.Error(),
		}

	case errors.Is(err, paymentdomain.ErrPayoutAccountMissing),
		errors.Is(err, creatordomain.ErrAccountNotLinked):
		// distinct type so clients can route the creator to onboarding
		return http.StatusBadRequest, errorPayload{
			Type:    "payout_account_missing",
			Message: "creator has no payout account",
		}

	case errors.Is(err, dealdomain.ErrNotPayable):
		return http.StatusConflict, errorPayload{
			Type:    "deal_not_payable",
			Message: "deal is not in a payable state",
		}

	case errors.Is(err, creatordomain.ErrAccountAlreadyLinked):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "payout account already linked",
		}

	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}

	case errors.Is(err, ErrForbidden),
		errors.Is(err, dealdomain.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}

	case errors.Is(err, ErrNotFound),
		errors.Is(err, dealdomain.ErrNotFound),
		errors.Is(err, creatordomain.ErrNotFound),
		errors.Is(err, paymentdomain.ErrIntentNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}

	case errors.Is(err, paymentdomain.ErrInvalidSignature):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_signature",
			Message: "webhook signature verification failed",
		}

	case errors.Is(err, paymentdomain.ErrInvalidPayload),
		errors.Is(err, paymentdomain.ErrInvalidEvent):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_payload",
			Message: "webhook payload could not be parsed",
		}

	case errors.Is(err, paymentdomain.ErrProviderUnavailable),
		errors.Is(err, paymentdomain.ErrProviderNotConfigured):
		return http.StatusBadGateway, errorPayload{
			Type:    "payment_provider_error",
			Message: "payment provider unavailable",
		}

	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds the request logger's error fields.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	switch {
	case status >= http.StatusInternalServerError:
		return "internal", payload.Type
	case status >= http.StatusBadRequest:
		return "client", payload.Type
	default:
		return "", payload.Type
	}
}
