// Package intent orchestrates charge creation for completed deals. The
// operation is idempotent per deal: one deal maps to at most one provider
// intent, no matter how many times the brand retries.
package intent

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/mngrhq/mngr/internal/clock"
	creatordomain "github.com/mngrhq/mngr/internal/creator/domain"
	dealdomain "github.com/mngrhq/mngr/internal/deal/domain"
	"github.com/mngrhq/mngr/internal/identity"
	"github.com/mngrhq/mngr/internal/observability/metrics"
	paymentdomain "github.com/mngrhq/mngr/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Result is the client-facing view of a deal's payment intent.
type Result struct {
	DealID       snowflake.ID `json:"dealId"`
	IntentID     string       `json:"intentId"`
	ClientSecret string       `json:"clientSecret,omitempty"`
	Status       string       `json:"status"`
	GrossCents   int64        `json:"grossCents"`
	FeeCents     int64        `json:"feeCents"`
	NetCents     int64        `json:"netCents"`
	Currency     string       `json:"currency"`
}

type Service interface {
	// CreateIntent creates the deal's payment intent, or returns the existing
	// one on retry.
	CreateIntent(ctx context.Context, actor identity.Identity, dealID snowflake.ID) (*Result, error)
	IntentStatus(ctx context.Context, actor identity.Identity, dealID snowflake.ID) (*Result, error)
}

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	DealRepo    dealdomain.Repository
	CreatorRepo creatordomain.Repository
	Provider    paymentdomain.Provider
	Metrics     *metrics.Metrics `optional:"true"`
}

type service struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	dealRepo    dealdomain.Repository
	creatorRepo creatordomain.Repository
	provider    paymentdomain.Provider
	metrics     *metrics.Metrics
}

func NewService(p Params) Service {
	return &service{
		db:          p.DB,
		log:         p.Log.Named("payment.intent"),
		clock:       p.Clock,
		dealRepo:    p.DealRepo,
		creatorRepo: p.CreatorRepo,
		provider:    p.Provider,
		metrics:     p.Metrics,
	}
}

func (s *service) CreateIntent(ctx context.Context, actor identity.Identity, dealID snowflake.ID) (*Result, error) {
	deal, err := s.dealRepo.Find(ctx, s.db, dealID)
	if err != nil {
		return nil, err
	}
	if !actor.IsBrand() || deal.BrandID != actor.ID {
		return nil, dealdomain.ErrForbidden
	}
	// only a delivered deal is payable; a paid deal may re-read the intent
	// that settled it, but one settled out of band has nothing to charge
	hasIntent := deal.PaymentIntentID != nil && *deal.PaymentIntentID != ""
	if deal.Status != dealdomain.StatusCompleted && !(deal.Status == dealdomain.StatusPaid && hasIntent) {
		return nil, dealdomain.ErrNotPayable
	}

	if hasIntent {
		existing, err := s.provider.RetrievePaymentIntent(ctx, *deal.PaymentIntentID)
		if err != nil {
			s.metrics.RecordPaymentIntent("retrieve_error")
			return nil, err
		}
		s.metrics.RecordPaymentIntent("reused")
		return s.result(deal, existing), nil
	}

	creator, err := s.creatorRepo.Find(ctx, s.db, deal.CreatorID)
	if err != nil {
		return nil, err
	}
	if !creator.PayoutReady() {
		return nil, paymentdomain.ErrPayoutAccountMissing
	}

	created, err := s.provider.CreatePaymentIntent(ctx, paymentdomain.CreateIntentRequest{
		AmountCents:        deal.AmountCents,
		FeeCents:           deal.FeeCents,
		Currency:           deal.Currency,
		DestinationAccount: *creator.PayoutAccountID,
		Description:        fmt.Sprintf("Deal %s: %s", deal.ID.String(), deal.Title),
		Metadata: map[string]string{
			"dealId":    deal.ID.String(),
			"brandId":   deal.BrandID.String(),
			"creatorId": deal.CreatorID.String(),
		},
	})
	if err != nil {
		s.metrics.RecordPaymentIntent("provider_error")
		return nil, err
	}

	attached, err := s.dealRepo.SetPaymentIntentID(ctx, s.db, deal.ID, created.ID, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if !attached {
		// a concurrent request attached its intent first; ours is abandoned
		// unconfirmed at the provider and the stored one wins
		current, err := s.dealRepo.Find(ctx, s.db, deal.ID)
		if err != nil {
			return nil, err
		}
		if current.PaymentIntentID == nil || *current.PaymentIntentID == "" {
			return nil, paymentdomain.ErrIntentNotFound
		}
		s.log.Warn("lost intent attach race, abandoning created intent",
			zap.String("deal_id", deal.ID.String()),
			zap.String("abandoned_intent", created.ID),
			zap.String("winning_intent", *current.PaymentIntentID),
		)
		winner, err := s.provider.RetrievePaymentIntent(ctx, *current.PaymentIntentID)
		if err != nil {
			return nil, err
		}
		s.metrics.RecordPaymentIntent("reused")
		return s.result(current, winner), nil
	}

	s.metrics.RecordPaymentIntent("created")
	s.log.Info("payment intent created",
		zap.String("deal_id", deal.ID.String()),
		zap.String("intent_id", created.ID),
		zap.Int64("amount_cents", deal.AmountCents),
		zap.Int64("fee_cents", deal.FeeCents),
	)
	return s.result(deal, created), nil
}

func (s *service) IntentStatus(ctx context.Context, actor identity.Identity, dealID snowflake.ID) (*Result, error) {
	deal, err := s.dealRepo.Find(ctx, s.db, dealID)
	if err != nil {
		return nil, err
	}
	switch {
	case actor.IsAdmin():
	case actor.IsBrand() && deal.BrandID == actor.ID:
	case actor.IsCreator() && deal.CreatorID == actor.ID:
	default:
		return nil, dealdomain.ErrForbidden
	}

	if deal.PaymentIntentID == nil || *deal.PaymentIntentID == "" {
		return nil, paymentdomain.ErrIntentNotFound
	}

	current, err := s.provider.RetrievePaymentIntent(ctx, *deal.PaymentIntentID)
	if err != nil {
		return nil, err
	}

	res := s.result(deal, current)
	if !actor.IsBrand() {
		// the confirmation secret is only for the payer
		res.ClientSecret = ""
	}
	return res, nil
}

func (s *service) result(deal *dealdomain.Deal, intent *paymentdomain.Intent) *Result {
	return &Result{
		DealID:       deal.ID,
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
		Status:       intent.Status,
		GrossCents:   deal.AmountCents,
		FeeCents:     deal.FeeCents,
		NetCents:     deal.NetCents(),
		Currency:     deal.Currency,
	}
}
