package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/mngrhq/mngr/internal/audit/domain"
	"github.com/mngrhq/mngr/internal/clock"
	"github.com/mngrhq/mngr/internal/config"
	creatordomain "github.com/mngrhq/mngr/internal/creator/domain"
	"github.com/mngrhq/mngr/internal/deal/domain"
	"github.com/mngrhq/mngr/internal/feepolicy"
	"github.com/mngrhq/mngr/internal/identity"
	"github.com/mngrhq/mngr/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Holder      *config.PlatformConfigHolder
	Repo        domain.Repository
	CreatorRepo creatordomain.Repository
	AuditSvc    auditdomain.Service
	Metrics     *metrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	holder      *config.PlatformConfigHolder
	repo        domain.Repository
	creatorRepo creatordomain.Repository
	auditSvc    auditdomain.Service
	metrics     *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("deal.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		holder:      p.Holder,
		repo:        p.Repo,
		creatorRepo: p.CreatorRepo,
		auditSvc:    p.AuditSvc,
		metrics:     p.Metrics,
	}
}

// Create opens a deal in pending. The fee is frozen here from the creator's
// current tier; later tier changes never reprice an open deal.
func (s *Service) Create(ctx context.Context, req domain.CreateDealRequest) (*domain.Deal, error) {
	if req.AmountCents <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	cfg := s.holder.Get()
	if req.AmountCents > cfg.MaxDealAmountCents {
		return nil, domain.ErrAmountTooLarge
	}

	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "usd"
	}
	if len(currency) != 3 {
		return nil, domain.ErrInvalidCurrency
	}

	creator, err := s.creatorRepo.Find(ctx, s.db, req.CreatorID)
	if err != nil {
		return nil, err
	}

	percent, err := feepolicy.FeePercentFor(creator.FeeTier)
	if err != nil {
		return nil, err
	}

	exclusivity := strings.ToLower(strings.TrimSpace(req.Exclusivity))
	if exclusivity == "" {
		exclusivity = "none"
	}
	deliverables := req.Deliverables
	if deliverables == nil {
		deliverables = []string{}
	}
	revisionRounds := cfg.DefaultRevisionRounds
	if req.RevisionRounds != nil && *req.RevisionRounds >= 0 {
		revisionRounds = *req.RevisionRounds
	}

	now := s.clock.Now()
	deal := &domain.Deal{
		ID:             s.genID.Generate(),
		BrandID:        req.BrandID,
		CreatorID:      creator.ID,
		Title:          strings.TrimSpace(req.Title),
		Description:    req.Description,
		BriefText:      req.BriefText,
		Deliverables:   datatypes.NewJSONSlice(deliverables),
		AmountCents:    req.AmountCents,
		Currency:       currency,
		FeeTier:        creator.FeeTier,
		FeePercent:     percent,
		FeeCents:       feepolicy.FeeAmountCents(req.AmountCents, percent),
		Status:         domain.StatusPending,
		DueDate:        req.DueDate,
		DeliveryWindow: strings.TrimSpace(req.DeliveryWindow),
		UsageRights:    req.UsageRights,
		Exclusivity:    exclusivity,
		RevisionRounds: revisionRounds,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.repo.Insert(ctx, s.db, deal); err != nil {
		return nil, err
	}

	s.log.Info("deal created",
		zap.String("deal_id", deal.ID.String()),
		zap.String("brand_id", deal.BrandID.String()),
		zap.String("creator_id", deal.CreatorID.String()),
		zap.Int64("amount_cents", deal.AmountCents),
		zap.String("fee_tier", string(deal.FeeTier)),
		zap.Int64("fee_cents", deal.FeeCents),
	)
	return deal, nil
}

func (s *Service) Get(ctx context.Context, actor identity.Identity, id snowflake.ID) (*domain.Deal, error) {
	deal, err := s.repo.Find(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if !s.canView(actor, deal) {
		return nil, domain.ErrForbidden
	}
	return deal, nil
}

func (s *Service) List(ctx context.Context, actor identity.Identity, filter domain.ListFilter) ([]*domain.ListItem, error) {
	// non-admin callers only ever see their own side
	switch actor.Role {
	case identity.RoleBrand:
		filter.BrandID = actor.ID
	case identity.RoleCreator:
		filter.CreatorID = actor.ID
	case identity.RoleAdmin:
	default:
		return nil, domain.ErrForbidden
	}
	return s.repo.List(ctx, s.db, filter)
}

// Transition applies the role-gated state machine with a compare-and-swap on
// the observed status, so two racing callers cannot both win.
func (s *Service) Transition(ctx context.Context, actor identity.Identity, id snowflake.ID, to domain.Status) (*domain.Deal, error) {
	deal, err := s.repo.Find(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if !s.ownsSide(actor, deal) {
		return nil, domain.ErrForbidden
	}
	if !domain.CanTransition(actor.Role, deal.Status, to) {
		return nil, &domain.TransitionError{Role: actor.Role, From: deal.Status, To: to}
	}

	now := s.clock.Now()
	var completedAt *time.Time
	if to == domain.StatusCompleted {
		completedAt = &now
	}

	moved, err := s.repo.UpdateStatus(ctx, s.db, id, deal.Status, to, completedAt, now)
	if err != nil {
		return nil, err
	}
	if !moved {
		// lost a race; report the edge against what the row says now
		current, err := s.repo.Find(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		return nil, &domain.TransitionError{Role: actor.Role, From: current.Status, To: to}
	}

	s.metrics.RecordDealTransition(string(to))
	s.log.Info("deal transitioned",
		zap.String("deal_id", id.String()),
		zap.String("from", string(deal.Status)),
		zap.String("to", string(to)),
		zap.String("actor_role", string(actor.Role)),
	)
	return s.repo.Find(ctx, s.db, id)
}

// AdminOverrideStatus forces a status outside the state machine. Forcing paid
// is not handled here; that path runs through settlement so earnings and tier
// stay consistent.
func (s *Service) AdminOverrideStatus(ctx context.Context, actorID snowflake.ID, id snowflake.ID, to domain.Status) (*domain.Deal, error) {
	if to == domain.StatusPaid {
		return nil, domain.ErrNotPayable
	}

	deal, err := s.repo.Find(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if deal.Status == to {
		return deal, nil
	}
	// terminal states are final for everyone, admins included
	if deal.Status.Terminal() {
		return nil, &domain.TransitionError{Role: identity.RoleAdmin, From: deal.Status, To: to}
	}

	now := s.clock.Now()
	var completedAt *time.Time
	if to == domain.StatusCompleted {
		completedAt = &now
	}

	moved, err := s.repo.UpdateStatus(ctx, s.db, id, deal.Status, to, completedAt, now)
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, &domain.TransitionError{Role: identity.RoleAdmin, From: deal.Status, To: to}
	}

	actor := actorID.String()
	target := id.String()
	_ = s.auditSvc.AuditLog(ctx, "admin", &actor, "deal.status_override", "deal", &target, map[string]any{
		"from": string(deal.Status),
		"to":   string(to),
	})
	s.metrics.RecordDealTransition(string(to))
	s.log.Warn("deal status overridden",
		zap.String("deal_id", target),
		zap.String("from", string(deal.Status)),
		zap.String("to", string(to)),
		zap.String("actor_id", actor),
	)
	return s.repo.Find(ctx, s.db, id)
}

func (s *Service) Stats(ctx context.Context) (*domain.Stats, error) {
	return s.repo.Stats(ctx, s.db)
}

func (s *Service) canView(actor identity.Identity, deal *domain.Deal) bool {
	if actor.IsAdmin() {
		return true
	}
	return s.ownsSide(actor, deal)
}

func (s *Service) ownsSide(actor identity.Identity, deal *domain.Deal) bool {
	switch actor.Role {
	case identity.RoleBrand:
		return deal.BrandID == actor.ID
	case identity.RoleCreator:
		return deal.CreatorID == actor.ID
	}
	return false
}
