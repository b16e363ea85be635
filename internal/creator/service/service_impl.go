package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/mngrhq/mngr/internal/audit/domain"
	"github.com/mngrhq/mngr/internal/clock"
	"github.com/mngrhq/mngr/internal/config"
	creatordomain "github.com/mngrhq/mngr/internal/creator/domain"
	"github.com/mngrhq/mngr/internal/feepolicy"
	paymentdomain "github.com/mngrhq/mngr/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Cfg      config.Config
	Repo     creatordomain.Repository
	Provider paymentdomain.Provider
	AuditSvc auditdomain.Service
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	cfg      config.Config
	repo     creatordomain.Repository
	provider paymentdomain.Provider
	auditSvc auditdomain.Service
}

func NewService(p Params) creatordomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("creator.service"),
		clock:    p.Clock,
		cfg:      p.Cfg,
		repo:     p.Repo,
		provider: p.Provider,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*creatordomain.Creator, error) {
	return s.repo.Find(ctx, s.db, id)
}

// ConnectPayoutAccount creates a processor account for the creator and links
// it. Re-calling with an account already linked returns the existing id.
func (s *Service) ConnectPayoutAccount(ctx context.Context, creatorID snowflake.ID) (string, error) {
	creator, err := s.repo.Find(ctx, s.db, creatorID)
	if err != nil {
		return "", err
	}
	if creator.PayoutReady() {
		return *creator.PayoutAccountID, nil
	}

	account, err := s.provider.CreateConnectedAccount(ctx, paymentdomain.CreateAccountRequest{
		Email:     creator.Email,
		Country:   "US",
		CreatorID: creator.ID,
	})
	if err != nil {
		return "", err
	}

	linked, err := s.repo.SetPayoutAccount(ctx, s.db, creator.ID, account.ID, s.clock.Now())
	if err != nil {
		return "", err
	}
	if !linked {
		// lost a race against a concurrent connect; the stored id wins
		current, err := s.repo.Find(ctx, s.db, creator.ID)
		if err != nil {
			return "", err
		}
		if current.PayoutReady() {
			return *current.PayoutAccountID, nil
		}
		return "", creatordomain.ErrAccountAlreadyLinked
	}

	s.log.Info("payout account linked",
		zap.String("creator_id", creator.ID.String()),
		zap.String("account_id", account.ID),
	)
	return account.ID, nil
}

func (s *Service) OnboardingLink(ctx context.Context, creatorID snowflake.ID) (string, error) {
	accountID, err := s.ConnectPayoutAccount(ctx, creatorID)
	if err != nil {
		return "", err
	}

	refreshURL := fmt.Sprintf("%s/creator/settings?payout=refresh", s.cfg.FrontendURL)
	returnURL := fmt.Sprintf("%s/creator/settings?payout=success", s.cfg.FrontendURL)
	return s.provider.CreateOnboardingLink(ctx, accountID, refreshURL, returnURL)
}

func (s *Service) DashboardLink(ctx context.Context, creatorID snowflake.ID) (string, error) {
	creator, err := s.repo.Find(ctx, s.db, creatorID)
	if err != nil {
		return "", err
	}
	if !creator.PayoutReady() {
		return "", creatordomain.ErrAccountNotLinked
	}
	return s.provider.CreateLoginLink(ctx, *creator.PayoutAccountID)
}

func (s *Service) PayoutAccountStatus(ctx context.Context, creatorID snowflake.ID) (*creatordomain.AccountStatus, error) {
	creator, err := s.repo.Find(ctx, s.db, creatorID)
	if err != nil {
		return nil, err
	}
	if !creator.PayoutReady() {
		return &creatordomain.AccountStatus{Connected: false, Status: "not_connected"}, nil
	}

	account, err := s.provider.RetrieveAccount(ctx, *creator.PayoutAccountID)
	if err != nil {
		return nil, err
	}

	status := "pending"
	if account.ChargesEnabled && account.PayoutsEnabled {
		status = "active"
	}
	return &creatordomain.AccountStatus{
		Connected:        true,
		Status:           status,
		AccountID:        account.ID,
		ChargesEnabled:   account.ChargesEnabled,
		PayoutsEnabled:   account.PayoutsEnabled,
		DetailsSubmitted: account.DetailsSubmitted,
	}, nil
}

// OverrideTier pins a creator's tier, bypassing the earnings-derived value.
// The override is authoritative until the next settlement recomputes the
// tier, and is always audit-logged.
func (s *Service) OverrideTier(ctx context.Context, actorID snowflake.ID, creatorID snowflake.ID, tier feepolicy.Tier) (*creatordomain.Creator, error) {
	if !feepolicy.IsValid(tier) {
		return nil, creatordomain.ErrInvalidTier
	}

	creator, err := s.repo.Find(ctx, s.db, creatorID)
	if err != nil {
		return nil, err
	}
	previous := creator.FeeTier

	if err := s.repo.SetTier(ctx, s.db, creatorID, tier, s.clock.Now()); err != nil {
		return nil, err
	}

	actor := actorID.String()
	target := creatorID.String()
	_ = s.auditSvc.AuditLog(ctx, "admin", &actor, "creator.tier_override", "creator", &target, map[string]any{
		"previous_tier": string(previous),
		"new_tier":      string(tier),
	})
	s.log.Info("creator tier overridden",
		zap.String("creator_id", target),
		zap.String("previous_tier", string(previous)),
		zap.String("new_tier", string(tier)),
	)

	return s.repo.Find(ctx, s.db, creatorID)
}
