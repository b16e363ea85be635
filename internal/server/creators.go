package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	creatordomain "github.com/mngrhq/mngr/internal/creator/domain"
	"github.com/mngrhq/mngr/internal/feepolicy"
	"github.com/mngrhq/mngr/internal/identity"
)

// CreatorStats is the creator dashboard: deal counts, lifetime earnings and
// where they sit inside their fee band.
func (s *Server) CreatorStats(c *gin.Context) {
	actor, err := identity.FromContext(c.Request.Context())
	if err != nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	creator, err := s.creatorSvc.Get(c.Request.Context(), actor.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	counts, err := s.dealRepo.CountByCreator(c.Request.Context(), s.db, actor.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	percent, err := feepolicy.FeePercentFor(creator.FeeTier)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	progress, err := feepolicy.ProgressWithinTier(creator.CumulativeEarnings)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, creatordomain.Stats{
		PendingDeals:       int(counts.Pending),
		CompletedDeals:     int(counts.Completed),
		CumulativeEarnings: creator.CumulativeEarnings,
		FeeTier:            creator.FeeTier,
		FeePercent:         percent,
		TierProgress:       progress,
	})
}
