package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/mngrhq/mngr/internal/feepolicy"
	"github.com/mngrhq/mngr/internal/identity"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Deal is one sponsored-content engagement between a brand and a creator.
// AmountCents is the gross offer; FeePercent and FeeCents are frozen at
// creation from the creator's tier at that moment and never recomputed.
type Deal struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	BrandID   snowflake.ID `gorm:"not null;index"`
	CreatorID snowflake.ID `gorm:"not null;index"`

	Title        string                      `gorm:"type:text;not null"`
	Description  string                      `gorm:"type:text"`
	BriefText    string                      `gorm:"type:text"`
	Deliverables datatypes.JSONSlice[string] `gorm:"type:jsonb"`

	AmountCents int64          `gorm:"not null"`
	Currency    string         `gorm:"type:text;not null;default:usd"`
	FeeTier     feepolicy.Tier `gorm:"type:text;not null"`
	FeePercent  int64          `gorm:"not null"`
	FeeCents    int64          `gorm:"not null"`

	Status          Status  `gorm:"type:text;not null;index"`
	PaymentIntentID *string `gorm:"type:text;index"`

	DueDate        *time.Time `gorm:""`
	DeliveryWindow string     `gorm:"type:text"`
	UsageRights    string     `gorm:"type:text"`
	Exclusivity    string     `gorm:"type:text;not null;default:none"`
	RevisionRounds int        `gorm:"not null;default:0"`
	CompletedAt    *time.Time `gorm:""`
	CreatedAt      time.Time  `gorm:"not null"`
	UpdatedAt      time.Time  `gorm:"not null"`
}

func (Deal) TableName() string { return "deals" }

// NetCents is what the creator receives once the deal settles.
func (d *Deal) NetCents() int64 { return d.AmountCents - d.FeeCents }

var (
	ErrNotFound         = errors.New("deal_not_found")
	ErrInvalidAmount    = errors.New("invalid_amount")
	ErrAmountTooLarge   = errors.New("amount_too_large")
	ErrInvalidCurrency  = errors.New("invalid_currency")
	ErrForbidden        = errors.New("forbidden")
	ErrNotPayable       = errors.New("deal_not_payable")
	ErrAlreadyHasIntent = errors.New("deal_already_has_intent")
)

// CreateDealRequest is the brand-facing creation payload.
type CreateDealRequest struct {
	BrandID        snowflake.ID
	CreatorID      snowflake.ID
	Title          string
	Description    string
	BriefText      string
	Deliverables   []string
	AmountCents    int64
	Currency       string
	DueDate        *time.Time
	DeliveryWindow string
	UsageRights    string
	Exclusivity    string
	RevisionRounds *int
}

// ListFilter narrows a deal listing. Zero IDs and empty Status mean
// unfiltered.
type ListFilter struct {
	BrandID   snowflake.ID
	CreatorID snowflake.ID
	Status    Status
	Limit     int
	Offset    int
}

// ListItem is a deal joined with the counterparty's display name.
type ListItem struct {
	Deal
	CreatorUsername string `gorm:"column:creator_username"`
}

// Stats is the platform-wide rollup for the admin dashboard.
type Stats struct {
	TotalDeals     int64 `json:"totalDeals"`
	ActiveDeals    int64 `json:"activeDeals"`
	PaidDeals      int64 `json:"paidDeals"`
	TotalPaidCents int64 `json:"totalPaidCents"`
	TotalFeeCents  int64 `json:"totalFeeCents"`
}

// CreatorCounts is the per-creator slice of the dashboard.
type CreatorCounts struct {
	Pending   int64
	Completed int64
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, deal *Deal) error
	Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Deal, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*ListItem, error)
	// UpdateStatus is a compare-and-swap on the current status; it reports
	// false when the row has moved on.
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to Status, completedAt *time.Time, now time.Time) (bool, error)
	// SetPaymentIntentID records the intent once; it reports false when a
	// different intent is already attached.
	SetPaymentIntentID(ctx context.Context, db *gorm.DB, id snowflake.ID, intentID string, now time.Time) (bool, error)
	Stats(ctx context.Context, db *gorm.DB) (*Stats, error)
	CountByCreator(ctx context.Context, db *gorm.DB, creatorID snowflake.ID) (*CreatorCounts, error)
}

type Service interface {
	Create(ctx context.Context, req CreateDealRequest) (*Deal, error)
	Get(ctx context.Context, actor identity.Identity, id snowflake.ID) (*Deal, error)
	List(ctx context.Context, actor identity.Identity, filter ListFilter) ([]*ListItem, error)
	// Transition applies the role-gated state machine.
	Transition(ctx context.Context, actor identity.Identity, id snowflake.ID, to Status) (*Deal, error)
	// AdminOverrideStatus bypasses the role gates, audit-logged. Terminal
	// states stay final even for admins.
	AdminOverrideStatus(ctx context.Context, actorID snowflake.ID, id snowflake.ID, to Status) (*Deal, error)
	Stats(ctx context.Context) (*Stats, error)
}
