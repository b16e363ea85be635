package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auditdomain "github.com/mngrhq/mngr/internal/audit/domain"
	dealdomain "github.com/mngrhq/mngr/internal/deal/domain"
	"github.com/mngrhq/mngr/internal/feepolicy"
	"github.com/mngrhq/mngr/internal/identity"
)

func (s *Server) AdminStats(c *gin.Context) {
	stats, err := s.dealSvc.Stats(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) AdminListDeals(c *gin.Context) {
	actor, err := identity.FromContext(c.Request.Context())
	if err != nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	filter, err := listFilterFromQuery(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if raw := strings.TrimSpace(c.Query("brandId")); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		filter.BrandID = id
	}
	if raw := strings.TrimSpace(c.Query("creatorId")); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		filter.CreatorID = id
	}

	items, err := s.dealSvc.List(c.Request.Context(), actor, filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	out := make([]gin.H, 0, len(items))
	for _, item := range items {
		v := dealView(&item.Deal)
		v["creatorUsername"] = item.CreatorUsername
		out = append(out, v)
	}
	c.JSON(http.StatusOK, gin.H{"deals": out})
}

// AdminOverrideDealStatus forces a deal's status. Forcing paid routes
// through settlement so earnings and tier move with it.
func (s *Server) AdminOverrideDealStatus(c *gin.Context) {
	actor, err := identity.FromContext(c.Request.Context())
	if err != nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	to, err := dealdomain.ParseStatus(strings.TrimSpace(req.Status))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var deal *dealdomain.Deal
	if to == dealdomain.StatusPaid {
		deal, err = s.settlementSvc.AdminMarkPaid(c.Request.Context(), actor.ID, id)
	} else {
		deal, err = s.dealSvc.AdminOverrideStatus(c.Request.Context(), actor.ID, id, to)
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, dealView(deal))
}

type overrideTierRequest struct {
	Tier string `json:"tier" binding:"required"`
}

func (s *Server) AdminOverrideCreatorTier(c *gin.Context) {
	actor, err := identity.FromContext(c.Request.Context())
	if err != nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req overrideTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	creator, err := s.creatorSvc.OverrideTier(c.Request.Context(), actor.ID, id, feepolicy.Tier(strings.ToLower(strings.TrimSpace(req.Tier))))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":                 creator.ID.String(),
		"username":           creator.Username,
		"feeTier":            creator.FeeTier,
		"cumulativeEarnings": creator.CumulativeEarnings,
	})
}

func (s *Server) AdminListAuditLogs(c *gin.Context) {
	filter := auditdomain.ListFilter{
		Action:     strings.TrimSpace(c.Query("action")),
		TargetType: strings.TrimSpace(c.Query("targetType")),
		TargetID:   strings.TrimSpace(c.Query("targetId")),
	}
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		filter.Limit = limit
	}

	entries, err := s.auditSvc.List(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries})
}
