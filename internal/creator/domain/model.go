package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/mngrhq/mngr/internal/feepolicy"
	"gorm.io/gorm"
)

// Creator is the supply side of the marketplace. CumulativeEarnings is in
// cents and only ever grows through confirmed settlements.
type Creator struct {
	ID       snowflake.ID `gorm:"primaryKey"`
	Username string       `gorm:"type:text;not null;uniqueIndex"`
	Email    string       `gorm:"type:text"`
	Platform string       `gorm:"type:text"`

	PayoutAccountID  *string `gorm:"type:text;index"`
	ChargesEnabled   bool    `gorm:"not null;default:false"`
	PayoutsEnabled   bool    `gorm:"not null;default:false"`
	DetailsSubmitted bool    `gorm:"not null;default:false"`

	CumulativeEarnings int64          `gorm:"not null;default:0"`
	FeeTier            feepolicy.Tier `gorm:"type:text;not null"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (Creator) TableName() string { return "creators" }

// PayoutReady reports whether settlements can route funds to this creator.
func (c *Creator) PayoutReady() bool {
	return c.PayoutAccountID != nil && *c.PayoutAccountID != ""
}

var (
	ErrNotFound             = errors.New("creator_not_found")
	ErrInvalidTier          = errors.New("invalid_tier")
	ErrAccountAlreadyLinked = errors.New("payout_account_already_linked")
	ErrAccountNotLinked     = errors.New("payout_account_not_linked")
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, creator *Creator) error
	Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Creator, error)
	FindByPayoutAccount(ctx context.Context, db *gorm.DB, accountID string) (*Creator, error)
	// SetPayoutAccount links the processor account once; it reports false when
	// a different account is already linked.
	SetPayoutAccount(ctx context.Context, db *gorm.DB, id snowflake.ID, accountID string, now time.Time) (bool, error)
	UpdateAccountFlags(ctx context.Context, db *gorm.DB, id snowflake.ID, chargesEnabled, payoutsEnabled, detailsSubmitted bool, now time.Time) error
	// AddEarnings is a single-statement atomic increment; it returns the new
	// cumulative total.
	AddEarnings(ctx context.Context, db *gorm.DB, id snowflake.ID, deltaCents int64, now time.Time) (int64, error)
	// UpdateTier is a compare-and-swap on the previously observed tier so a
	// stale recompute cannot clobber a newer one.
	UpdateTier(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to feepolicy.Tier, now time.Time) (bool, error)
	// SetTier overwrites the tier unconditionally (administrative override).
	SetTier(ctx context.Context, db *gorm.DB, id snowflake.ID, tier feepolicy.Tier, now time.Time) error
}

// AccountStatus is the onboarding view returned to creators.
type AccountStatus struct {
	Connected        bool   `json:"connected"`
	Status           string `json:"status"`
	AccountID        string `json:"accountId,omitempty"`
	ChargesEnabled   bool   `json:"chargesEnabled"`
	PayoutsEnabled   bool   `json:"payoutsEnabled"`
	DetailsSubmitted bool   `json:"detailsSubmitted"`
}

// Stats is the creator dashboard summary.
type Stats struct {
	PendingDeals       int            `json:"pendingDeals"`
	CompletedDeals     int            `json:"completedDeals"`
	CumulativeEarnings int64          `json:"cumulativeEarningsCents"`
	FeeTier            feepolicy.Tier `json:"feeTier"`
	FeePercent         int64          `json:"feePercent"`
	TierProgress       int64          `json:"tierProgress"`
}

type Service interface {
	Get(ctx context.Context, id snowflake.ID) (*Creator, error)
	ConnectPayoutAccount(ctx context.Context, creatorID snowflake.ID) (string, error)
	OnboardingLink(ctx context.Context, creatorID snowflake.ID) (string, error)
	DashboardLink(ctx context.Context, creatorID snowflake.ID) (string, error)
	PayoutAccountStatus(ctx context.Context, creatorID snowflake.ID) (*AccountStatus, error)
	OverrideTier(ctx context.Context, actorID snowflake.ID, creatorID snowflake.ID, tier feepolicy.Tier) (*Creator, error)
}
