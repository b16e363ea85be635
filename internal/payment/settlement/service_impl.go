// Package settlement consumes the payment provider's event stream and
// reconciles it into deal, earnings and tier state. Deliveries are
// at-least-once; a unique reservation per provider event plus
// compare-and-swap state updates make the money effects exactly-once.
package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/mngrhq/mngr/internal/audit/domain"
	"github.com/mngrhq/mngr/internal/clock"
	creatordomain "github.com/mngrhq/mngr/internal/creator/domain"
	dealdomain "github.com/mngrhq/mngr/internal/deal/domain"
	"github.com/mngrhq/mngr/internal/feepolicy"
	"github.com/mngrhq/mngr/internal/observability/metrics"
	paymentdomain "github.com/mngrhq/mngr/internal/payment/domain"
	paymentrepo "github.com/mngrhq/mngr/internal/payment/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Outcome reports what a webhook delivery did, for logging and metrics.
type Outcome struct {
	EventType string `json:"eventType"`
	Result    string `json:"result"`
}

type Service interface {
	// Handle verifies, parses and applies one webhook delivery.
	Handle(ctx context.Context, payload []byte, signatureHeader string) (*Outcome, error)
	// AdminMarkPaid settles a deal without a provider event, for out-of-band
	// payments. It shares the reservation and application path with webhooks,
	// so repeating it is as safe as a duplicate delivery.
	AdminMarkPaid(ctx context.Context, actorID snowflake.ID, dealID snowflake.ID) (*dealdomain.Deal, error)
}

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Source      paymentdomain.WebhookSource
	Repo        paymentrepo.Repository
	DealRepo    dealdomain.Repository
	CreatorRepo creatordomain.Repository
	AuditSvc    auditdomain.Service
	Metrics     *metrics.Metrics `optional:"true"`
}

type service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	source      paymentdomain.WebhookSource
	repo        paymentrepo.Repository
	dealRepo    dealdomain.Repository
	creatorRepo creatordomain.Repository
	auditSvc    auditdomain.Service
	metrics     *metrics.Metrics
}

func NewService(p Params) Service {
	return &service{
		db:          p.DB,
		log:         p.Log.Named("payment.settlement"),
		genID:       p.GenID,
		clock:       p.Clock,
		source:      p.Source,
		repo:        p.Repo,
		dealRepo:    p.DealRepo,
		creatorRepo: p.CreatorRepo,
		auditSvc:    p.AuditSvc,
		metrics:     p.Metrics,
	}
}

func (s *service) Handle(ctx context.Context, payload []byte, signatureHeader string) (*Outcome, error) {
	now := s.clock.Now()

	if err := s.source.VerifySignature(payload, signatureHeader, now); err != nil {
		s.metrics.RecordSettlementEvent("unknown", "invalid_signature")
		return nil, err
	}

	event, err := s.source.ParseEvent(payload)
	if err != nil {
		if err == paymentdomain.ErrEventIgnored {
			s.metrics.RecordSettlementEvent("unknown", "ignored")
		}
		return nil, err
	}

	won, existing, err := s.reserve(ctx, event, now)
	if err != nil {
		return nil, err
	}
	if !won && existing != nil && existing.ProcessedAt != nil {
		s.metrics.RecordSettlementEvent(event.Type, "duplicate")
		return nil, paymentdomain.ErrEventAlreadyProcessed
	}
	// losing the reservation with no processed_at means a prior delivery
	// died mid-flight; this redelivery finishes its work

	outcome, err := s.dispatch(ctx, event)
	if err != nil {
		s.metrics.RecordSettlementEvent(event.Type, "error")
		return nil, err
	}
	s.metrics.RecordSettlementEvent(event.Type, outcome.Result)
	return outcome, nil
}

func (s *service) reserve(ctx context.Context, event *paymentdomain.SettlementEvent, now time.Time) (bool, *paymentdomain.EventRecord, error) {
	record := &paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        event.Provider,
		ProviderEventID: event.ProviderEventID,
		EventType:       event.Type,
		Payload:         datatypes.JSON(event.RawPayload),
		ReceivedAt:      now,
	}
	if event.DealID != 0 {
		dealID := event.DealID
		record.DealID = &dealID
	}

	won, err := s.repo.InsertEvent(ctx, s.db, record)
	if err != nil {
		return false, nil, err
	}
	if won {
		return true, record, nil
	}

	existing, err := s.repo.FindEvent(ctx, s.db, event.Provider, event.ProviderEventID)
	if err != nil {
		return false, nil, err
	}
	return false, existing, nil
}

func (s *service) dispatch(ctx context.Context, event *paymentdomain.SettlementEvent) (*Outcome, error) {
	switch event.Type {
	case paymentdomain.EventTypeChargeSucceeded:
		if err := s.applyChargeSucceeded(ctx, event); err != nil {
			return nil, err
		}
		return &Outcome{EventType: event.Type, Result: "applied"}, nil

	case paymentdomain.EventTypeChargeFailed:
		return s.applyChargeFailed(ctx, event)

	case paymentdomain.EventTypeAccountUpdated:
		return s.applyAccountUpdated(ctx, event)

	case paymentdomain.EventTypeTransferCreated, paymentdomain.EventTypePayoutPaid:
		// money movement downstream of settlement; observability only
		s.log.Info("provider transfer event",
			zap.String("event_type", event.Type),
			zap.String("provider_event_id", event.ProviderEventID),
			zap.String("account_id", event.AccountID),
			zap.Int64("amount_cents", event.GrossCents),
		)
		if err := s.repo.MarkProcessed(ctx, s.db, event.Provider, event.ProviderEventID, s.clock.Now()); err != nil {
			return nil, err
		}
		return &Outcome{EventType: event.Type, Result: "recorded"}, nil

	default:
		return nil, paymentdomain.ErrEventIgnored
	}
}

// applyChargeSucceeded runs the full settlement inside one transaction: the
// deal flips to paid, the creator's cumulative earnings grow by the net
// amount the provider reports, and the tier is recomputed. All three commit
// or none do.
func (s *service) applyChargeSucceeded(ctx context.Context, event *paymentdomain.SettlementEvent) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()

		deal, err := s.dealRepo.Find(ctx, tx, event.DealID)
		if err != nil {
			return err
		}
		if deal.Status == dealdomain.StatusPaid {
			// a crashed delivery already finished the money effects
			return s.repo.MarkProcessed(ctx, tx, event.Provider, event.ProviderEventID, now)
		}

		moved, err := s.dealRepo.UpdateStatus(ctx, tx, deal.ID, deal.Status, dealdomain.StatusPaid, &now, now)
		if err != nil {
			return err
		}
		if !moved {
			current, err := s.dealRepo.Find(ctx, tx, deal.ID)
			if err != nil {
				return err
			}
			if current.Status == dealdomain.StatusPaid {
				return s.repo.MarkProcessed(ctx, tx, event.Provider, event.ProviderEventID, now)
			}
			return fmt.Errorf("settlement lost status race on deal %s", deal.ID)
		}

		net := event.NetCents()
		if event.GrossCents == 0 {
			// synthetic events carry no provider figures; fall back to the
			// amounts frozen on the deal
			net = deal.NetCents()
		}

		newTotal, err := s.creatorRepo.AddEarnings(ctx, tx, deal.CreatorID, net, now)
		if err != nil {
			return err
		}

		if err := s.recomputeTier(ctx, tx, deal.CreatorID, newTotal, now); err != nil {
			return err
		}

		if err := s.repo.MarkProcessed(ctx, tx, event.Provider, event.ProviderEventID, now); err != nil {
			return err
		}

		target := deal.ID.String()
		_ = s.auditSvc.AuditLog(ctx, "system", nil, "settlement.applied", "deal", &target, map[string]any{
			"provider":          event.Provider,
			"provider_event_id": event.ProviderEventID,
			"net_cents":         net,
			"new_total_cents":   newTotal,
		})
		s.log.Info("settlement applied",
			zap.String("deal_id", target),
			zap.String("provider_event_id", event.ProviderEventID),
			zap.Int64("net_cents", net),
			zap.Int64("cumulative_earnings", newTotal),
		)
		return nil
	})
}

// recomputeTier moves the creator up when earnings cross a band boundary.
// It never moves a creator down: an admin override above the earned tier
// stays in force, and a stale compare-and-swap simply loses.
func (s *service) recomputeTier(ctx context.Context, tx *gorm.DB, creatorID snowflake.ID, totalCents int64, now time.Time) error {
	creator, err := s.creatorRepo.Find(ctx, tx, creatorID)
	if err != nil {
		return err
	}

	earned, err := feepolicy.TierFor(totalCents)
	if err != nil {
		return err
	}
	if feepolicy.Compare(earned, creator.FeeTier) <= 0 {
		return nil
	}

	upgraded, err := s.creatorRepo.UpdateTier(ctx, tx, creatorID, creator.FeeTier, earned, now)
	if err != nil {
		return err
	}
	if upgraded {
		s.metrics.RecordTierUpgrade()
		s.log.Info("creator tier upgraded",
			zap.String("creator_id", creatorID.String()),
			zap.String("from", string(creator.FeeTier)),
			zap.String("to", string(earned)),
			zap.Int64("cumulative_earnings", totalCents),
		)
	}
	return nil
}

func (s *service) applyChargeFailed(ctx context.Context, event *paymentdomain.SettlementEvent) (*Outcome, error) {
	// a failed charge does not move the deal; the brand retries from completed
	target := event.DealID.String()
	_ = s.auditSvc.AuditLog(ctx, "system", nil, "settlement.charge_failed", "deal", &target, map[string]any{
		"provider":          event.Provider,
		"provider_event_id": event.ProviderEventID,
		"failure_message":   event.FailureMessage,
	})
	s.log.Warn("charge failed",
		zap.String("deal_id", target),
		zap.String("provider_event_id", event.ProviderEventID),
		zap.String("failure_message", event.FailureMessage),
	)

	if err := s.repo.MarkProcessed(ctx, s.db, event.Provider, event.ProviderEventID, s.clock.Now()); err != nil {
		return nil, err
	}
	return &Outcome{EventType: event.Type, Result: "recorded"}, nil
}

func (s *service) applyAccountUpdated(ctx context.Context, event *paymentdomain.SettlementEvent) (*Outcome, error) {
	now := s.clock.Now()

	creator, err := s.creatorRepo.FindByPayoutAccount(ctx, s.db, event.AccountID)
	if err != nil {
		if err == creatordomain.ErrNotFound {
			// account events can arrive before onboarding links the id
			s.log.Info("account event for unlinked account", zap.String("account_id", event.AccountID))
			if err := s.repo.MarkProcessed(ctx, s.db, event.Provider, event.ProviderEventID, now); err != nil {
				return nil, err
			}
			return &Outcome{EventType: event.Type, Result: "unlinked"}, nil
		}
		return nil, err
	}

	if err := s.creatorRepo.UpdateAccountFlags(ctx, s.db, creator.ID,
		event.ChargesEnabled, event.PayoutsEnabled, event.DetailsSubmitted, now); err != nil {
		return nil, err
	}
	if err := s.repo.MarkProcessed(ctx, s.db, event.Provider, event.ProviderEventID, now); err != nil {
		return nil, err
	}

	s.log.Info("payout account flags updated",
		zap.String("creator_id", creator.ID.String()),
		zap.String("account_id", event.AccountID),
		zap.Bool("charges_enabled", event.ChargesEnabled),
		zap.Bool("payouts_enabled", event.PayoutsEnabled),
	)
	return &Outcome{EventType: event.Type, Result: "applied"}, nil
}

// AdminMarkPaid settles through the same reservation gate as webhooks, with
// a synthetic event id derived from the deal so repeats dedupe.
func (s *service) AdminMarkPaid(ctx context.Context, actorID snowflake.ID, dealID snowflake.ID) (*dealdomain.Deal, error) {
	deal, err := s.dealRepo.Find(ctx, s.db, dealID)
	if err != nil {
		return nil, err
	}
	if deal.Status == dealdomain.StatusPaid {
		return deal, nil
	}
	if deal.Status != dealdomain.StatusCompleted {
		return nil, dealdomain.ErrNotPayable
	}

	event := &paymentdomain.SettlementEvent{
		Provider:        "admin",
		ProviderEventID: fmt.Sprintf("admin_%s", dealID.String()),
		Type:            paymentdomain.EventTypeChargeSucceeded,
		DealID:          dealID,
		OccurredAt:      s.clock.Now(),
		RawPayload:      []byte(`{"source":"admin_mark_paid"}`),
	}

	now := s.clock.Now()
	won, existing, err := s.reserve(ctx, event, now)
	if err != nil {
		return nil, err
	}
	if !won && existing != nil && existing.ProcessedAt != nil {
		return nil, paymentdomain.ErrEventAlreadyProcessed
	}

	if err := s.applyChargeSucceeded(ctx, event); err != nil {
		return nil, err
	}

	actor := actorID.String()
	target := dealID.String()
	_ = s.auditSvc.AuditLog(ctx, "admin", &actor, "deal.admin_mark_paid", "deal", &target, map[string]any{
		"net_cents": deal.NetCents(),
	})

	return s.dealRepo.Find(ctx, s.db, dealID)
}
