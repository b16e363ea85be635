package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	dealdomain "github.com/mngrhq/mngr/internal/deal/domain"
	"github.com/mngrhq/mngr/internal/identity"
)

type createDealRequest struct {
	CreatorID      string     `json:"creatorId" binding:"required"`
	Title          string     `json:"title" binding:"required"`
	Description    string     `json:"description"`
	BriefText      string     `json:"briefText"`
	Deliverables   []string   `json:"deliverables"`
	AmountCents    int64      `json:"amountCents" binding:"required"`
	Currency       string     `json:"currency"`
	DueDate        *time.Time `json:"dueDate"`
	DeliveryWindow string     `json:"deliveryWindow"`
	UsageRights    string     `json:"usageRights"`
	Exclusivity    string     `json:"exclusivity"`
	RevisionRounds *int       `json:"revisionRounds"`
}

type transitionRequest struct {
	Status string `json:"status" binding:"required"`
}

func (s *Server) CreateDeal(c *gin.Context) {
	actor, err := identity.FromContext(c.Request.Context())
	if err != nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req createDealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	creatorID, err := snowflake.ParseString(strings.TrimSpace(req.CreatorID))
	if err != nil || creatorID == 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	deal, err := s.dealSvc.Create(c.Request.Context(), dealdomain.CreateDealRequest{
		BrandID:        actor.ID,
		CreatorID:      creatorID,
		Title:          req.Title,
		Description:    req.Description,
		BriefText:      req.BriefText,
		Deliverables:   req.Deliverables,
		AmountCents:    req.AmountCents,
		Currency:       req.Currency,
		DueDate:        req.DueDate,
		DeliveryWindow: req.DeliveryWindow,
		UsageRights:    req.UsageRights,
		Exclusivity:    req.Exclusivity,
		RevisionRounds: req.RevisionRounds,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dealView(deal))
}

func (s *Server) GetDeal(c *gin.Context) {
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

	deal, err := s.dealSvc.Get(c.Request.Context(), actor, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, dealView(deal))
}

func (s *Server) ListDeals(c *gin.Context) {
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

func (s *Server) TransitionDeal(c *gin.Context) {
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

	deal, err := s.dealSvc.Transition(c.Request.Context(), actor, id, to)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, dealView(deal))
}

func dealView(d *dealdomain.Deal) gin.H {
	v := gin.H{
		"id":             d.ID.String(),
		"brandId":        d.BrandID.String(),
		"creatorId":      d.CreatorID.String(),
		"title":          d.Title,
		"description":    d.Description,
		"briefText":      d.BriefText,
		"deliverables":   []string(d.Deliverables),
		"amountCents":    d.AmountCents,
		"currency":       d.Currency,
		"feeTier":        d.FeeTier,
		"feePercent":     d.FeePercent,
		"feeCents":       d.FeeCents,
		"netCents":       d.NetCents(),
		"status":         d.Status,
		"deliveryWindow": d.DeliveryWindow,
		"usageRights":    d.UsageRights,
		"exclusivity":    d.Exclusivity,
		"revisionRounds": d.RevisionRounds,
		"createdAt":      d.CreatedAt,
		"updatedAt":      d.UpdatedAt,
	}
	if d.PaymentIntentID != nil {
		v["paymentIntentId"] = *d.PaymentIntentID
	}
	if d.DueDate != nil {
		v["dueDate"] = *d.DueDate
	}
	if d.CompletedAt != nil {
		v["completedAt"] = *d.CompletedAt
	}
	return v
}

func parseIDParam(c *gin.Context, name string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param(name)))
	if err != nil || id == 0 {
		return 0, ErrInvalidRequest
	}
	return id, nil
}

func listFilterFromQuery(c *gin.Context) (dealdomain.ListFilter, error) {
	var filter dealdomain.ListFilter

	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status, err := dealdomain.ParseStatus(raw)
		if err != nil {
			return filter, err
		}
		filter.Status = status
	}
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return filter, ErrInvalidRequest
		}
		filter.Limit = limit
	}
	if raw := strings.TrimSpace(c.Query("offset")); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return filter, ErrInvalidRequest
		}
		filter.Offset = offset
	}
	return filter, nil
}
