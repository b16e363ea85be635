package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mngrhq/mngr/internal/identity"
)

func (s *Server) ConnectPayoutAccount(c *gin.Context) {
	actor, err := identity.FromContext(c.Request.Context())
	if err != nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	accountID, err := s.creatorSvc.ConnectPayoutAccount(c.Request.Context(), actor.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"accountId": accountID})
}

func (s *Server) PayoutOnboardingLink(c *gin.Context) {
	actor, err := identity.FromContext(c.Request.Context())
	if err != nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	url, err := s.creatorSvc.OnboardingLink(c.Request.Context(), actor.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": url})
}

func (s *Server) PayoutDashboardLink(c *gin.Context) {
	actor, err := identity.FromContext(c.Request.Context())
	if err != nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	url, err := s.creatorSvc.DashboardLink(c.Request.Context(), actor.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": url})
}

func (s *Server) PayoutAccountStatus(c *gin.Context) {
	actor, err := identity.FromContext(c.Request.Context())
	if err != nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	status, err := s.creatorSvc.PayoutAccountStatus(c.Request.Context(), actor.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

func (s *Server) CreatePaymentIntent(c *gin.Context) {
	actor, err := identity.FromContext(c.Request.Context())
	if err != nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	dealID, err := parseIDParam(c, "dealId")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	res, err := s.intentSvc.CreateIntent(c.Request.Context(), actor, dealID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (s *Server) PaymentIntentStatus(c *gin.Context) {
	actor, err := identity.FromContext(c.Request.Context())
	if err != nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	dealID, err := parseIDParam(c, "dealId")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	res, err := s.intentSvc.IntentStatus(c.Request.Context(), actor, dealID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}
