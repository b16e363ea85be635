package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Account is the processor-side payout account for a creator.
type Account struct {
	ID               string
	ChargesEnabled   bool
	PayoutsEnabled   bool
	DetailsSubmitted bool
}

type CreateAccountRequest struct {
	Email     string
	Country   string
	CreatorID snowflake.ID
}

// CreateIntentRequest asks the processor for a transfer-splitting charge:
// the brand pays AmountCents, the platform retains FeeCents, the remainder
// routes to DestinationAccount.
type CreateIntentRequest struct {
	AmountCents        int64
	FeeCents           int64
	Currency           string
	DestinationAccount string
	Description        string
	Metadata           map[string]string
}

// Intent mirrors the processor's payment intent.
type Intent struct {
	ID           string
	ClientSecret string
	Status       string
	AmountCents  int64
	FeeCents     int64
	Currency     string
	CreatedAt    time.Time
}

// Provider is the capability surface this core needs from the external
// payment processor. Any processor with split-payment support satisfies it.
type Provider interface {
	CreateConnectedAccount(ctx context.Context, req CreateAccountRequest) (*Account, error)
	CreateOnboardingLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error)
	CreateLoginLink(ctx context.Context, accountID string) (string, error)
	CreatePaymentIntent(ctx context.Context, req CreateIntentRequest) (*Intent, error)
	RetrievePaymentIntent(ctx context.Context, id string) (*Intent, error)
	RetrieveAccount(ctx context.Context, id string) (*Account, error)
}

// WebhookSource verifies and normalizes the processor's event stream.
type WebhookSource interface {
	Name() string
	VerifySignature(payload []byte, signatureHeader string, now time.Time) error
	ParseEvent(payload []byte) (*SettlementEvent, error)
}

const (
	EventTypeChargeSucceeded = "charge_succeeded"
	EventTypeChargeFailed    = "charge_failed"
	EventTypeAccountUpdated  = "account_updated"
	EventTypeTransferCreated = "transfer_created"
	EventTypePayoutPaid      = "payout_paid"
)

// SettlementEvent is the canonical event parsed from a webhook delivery.
// Amounts are the processor's figures, not recomputed locally; they reflect
// what actually moved.
type SettlementEvent struct {
	Provider        string
	ProviderEventID string
	Type            string
	DealID          snowflake.ID
	AccountID       string
	GrossCents      int64
	FeeCents        int64
	Currency        string
	FailureMessage  string

	ChargesEnabled   bool
	PayoutsEnabled   bool
	DetailsSubmitted bool

	OccurredAt time.Time
	RawPayload []byte
}

// NetCents is the amount routed to the creator for a successful charge.
func (e *SettlementEvent) NetCents() int64 {
	net := e.GrossCents - e.FeeCents
	if net < 0 {
		return 0
	}
	return net
}

// EventRecord is the dedup reservation for one logical provider event.
// A unique index on (provider, provider_event_id) makes the insert the
// at-most-once gate under at-least-once delivery.
type EventRecord struct {
	ID              snowflake.ID   `gorm:"primaryKey"`
	Provider        string         `gorm:"type:text;not null"`
	ProviderEventID string         `gorm:"type:text;not null"`
	EventType       string         `gorm:"type:text;not null"`
	DealID          *snowflake.ID  `gorm:"index"`
	Payload         datatypes.JSON `gorm:"type:jsonb;not null"`
	ReceivedAt      time.Time      `gorm:"not null"`
	ProcessedAt     *time.Time
}

func (EventRecord) TableName() string { return "settlement_events" }
