package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/mngrhq/mngr/internal/creator/domain"
	"github.com/mngrhq/mngr/internal/feepolicy"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, creator *domain.Creator) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO creators (
			id, username, email, platform, payout_account_id,
			charges_enabled, payouts_enabled, details_submitted,
			cumulative_earnings, fee_tier, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		creator.ID,
		creator.Username,
		creator.Email,
		creator.Platform,
		creator.PayoutAccountID,
		creator.ChargesEnabled,
		creator.PayoutsEnabled,
		creator.DetailsSubmitted,
		creator.CumulativeEarnings,
		creator.FeeTier,
		creator.CreatedAt,
		creator.UpdatedAt,
	).Error
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Creator, error) {
	var item domain.Creator
	err := db.WithContext(ctx).Raw(
		`SELECT id, username, email, platform, payout_account_id,
			charges_enabled, payouts_enabled, details_submitted,
			cumulative_earnings, fee_tier, created_at, updated_at
		 FROM creators
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, domain.ErrNotFound
	}
	return &item, nil
}

func (r *repo) FindByPayoutAccount(ctx context.Context, db *gorm.DB, accountID string) (*domain.Creator, error) {
	var item domain.Creator
	err := db.WithContext(ctx).Raw(
		`SELECT id, username, email, platform, payout_account_id,
			charges_enabled, payouts_enabled, details_submitted,
			cumulative_earnings, fee_tier, created_at, updated_at
		 FROM creators
		 WHERE payout_account_id = ?
		 LIMIT 1`,
		accountID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, domain.ErrNotFound
	}
	return &item, nil
}

func (r *repo) SetPayoutAccount(ctx context.Context, db *gorm.DB, id snowflake.ID, accountID string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE creators
		 SET payout_account_id = ?, updated_at = ?
		 WHERE id = ? AND (payout_account_id IS NULL OR payout_account_id = '' OR payout_account_id = ?)`,
		accountID,
		now,
		id,
		accountID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) UpdateAccountFlags(ctx context.Context, db *gorm.DB, id snowflake.ID, chargesEnabled, payoutsEnabled, detailsSubmitted bool, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE creators
		 SET charges_enabled = ?, payouts_enabled = ?, details_submitted = ?, updated_at = ?
		 WHERE id = ?`,
		chargesEnabled,
		payoutsEnabled,
		detailsSubmitted,
		now,
		id,
	).Error
}

func (r *repo) AddEarnings(ctx context.Context, db *gorm.DB, id snowflake.ID, deltaCents int64, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE creators
		 SET cumulative_earnings = cumulative_earnings + ?, updated_at = ?
		 WHERE id = ?`,
		deltaCents,
		now,
		id,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, domain.ErrNotFound
	}

	var total int64
	err := db.WithContext(ctx).Raw(
		`SELECT cumulative_earnings FROM creators WHERE id = ?`,
		id,
	).Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (r *repo) UpdateTier(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to feepolicy.Tier, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE creators
		 SET fee_tier = ?, updated_at = ?
		 WHERE id = ? AND fee_tier = ?`,
		to,
		now,
		id,
		from,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) SetTier(ctx context.Context, db *gorm.DB, id snowflake.ID, tier feepolicy.Tier, now time.Time) error {
	res := db.WithContext(ctx).Exec(
		`UPDATE creators
		 SET fee_tier = ?, updated_at = ?
		 WHERE id = ?`,
		tier,
		now,
		id,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
