package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/mngrhq/mngr/internal/deal/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const dealColumns = `id, brand_id, creator_id, title, description, brief_text, deliverables,
	amount_cents, currency, fee_tier, fee_percent, fee_cents,
	status, payment_intent_id, due_date, delivery_window, usage_rights, exclusivity,
	revision_rounds, completed_at, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, deal *domain.Deal) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO deals (
			id, brand_id, creator_id, title, description, brief_text, deliverables,
			amount_cents, currency, fee_tier, fee_percent, fee_cents,
			status, payment_intent_id, due_date, delivery_window, usage_rights, exclusivity,
			revision_rounds, completed_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		deal.ID,
		deal.BrandID,
		deal.CreatorID,
		deal.Title,
		deal.Description,
		deal.BriefText,
		deal.Deliverables,
		deal.AmountCents,
		deal.Currency,
		deal.FeeTier,
		deal.FeePercent,
		deal.FeeCents,
		deal.Status,
		deal.PaymentIntentID,
		deal.DueDate,
		deal.DeliveryWindow,
		deal.UsageRights,
		deal.Exclusivity,
		deal.RevisionRounds,
		deal.CompletedAt,
		deal.CreatedAt,
		deal.UpdatedAt,
	).Error
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Deal, error) {
	var item domain.Deal
	err := db.WithContext(ctx).Raw(
		`SELECT `+dealColumns+`
		 FROM deals
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

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.ListItem, error) {
	var (
		conds []string
		args  []any
	)
	if filter.BrandID != 0 {
		conds = append(conds, "d.brand_id = ?")
		args = append(args, filter.BrandID)
	}
	if filter.CreatorID != 0 {
		conds = append(conds, "d.creator_id = ?")
		args = append(args, filter.CreatorID)
	}
	if filter.Status != "" {
		conds = append(conds, "d.status = ?")
		args = append(args, filter.Status)
	}

	query := `SELECT d.id, d.brand_id, d.creator_id, d.title, d.description, d.brief_text, d.deliverables,
		d.amount_cents, d.currency, d.fee_tier, d.fee_percent, d.fee_cents,
		d.status, d.payment_intent_id, d.due_date, d.delivery_window, d.usage_rights, d.exclusivity,
		d.revision_rounds, d.completed_at, d.created_at, d.updated_at,
		c.username AS creator_username
	 FROM deals d
	 LEFT JOIN creators c ON c.id = d.creator_id`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY d.created_at DESC"

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query += " LIMIT ?"
	args = append(args, limit)
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	var items []*domain.ListItem
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to domain.Status, completedAt *time.Time, now time.Time) (bool, error) {
	var res *gorm.DB
	if completedAt != nil {
		res = db.WithContext(ctx).Exec(
			`UPDATE deals
			 SET status = ?, completed_at = COALESCE(completed_at, ?), updated_at = ?
			 WHERE id = ? AND status = ?`,
			to,
			completedAt,
			now,
			id,
			from,
		)
	} else {
		res = db.WithContext(ctx).Exec(
			`UPDATE deals
			 SET status = ?, updated_at = ?
			 WHERE id = ? AND status = ?`,
			to,
			now,
			id,
			from,
		)
	}
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) SetPaymentIntentID(ctx context.Context, db *gorm.DB, id snowflake.ID, intentID string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE deals
		 SET payment_intent_id = ?, updated_at = ?
		 WHERE id = ? AND (payment_intent_id IS NULL OR payment_intent_id = '' OR payment_intent_id = ?)`,
		intentID,
		now,
		id,
		intentID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) Stats(ctx context.Context, db *gorm.DB) (*domain.Stats, error) {
	var stats domain.Stats
	err := db.WithContext(ctx).Raw(
		`SELECT
			COUNT(*) AS total_deals,
			COALESCE(SUM(CASE WHEN status IN ('accepted', 'in_progress', 'completed') THEN 1 ELSE 0 END), 0) AS active_deals,
			COALESCE(SUM(CASE WHEN status = 'paid' THEN 1 ELSE 0 END), 0) AS paid_deals,
			COALESCE(SUM(CASE WHEN status = 'paid' THEN amount_cents ELSE 0 END), 0) AS total_paid_cents,
			COALESCE(SUM(CASE WHEN status = 'paid' THEN fee_cents ELSE 0 END), 0) AS total_fee_cents
		 FROM deals`,
	).Scan(&stats).Error
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func (r *repo) CountByCreator(ctx context.Context, db *gorm.DB, creatorID snowflake.ID) (*domain.CreatorCounts, error) {
	var counts domain.CreatorCounts
	err := db.WithContext(ctx).Raw(
		`SELECT
			COALESCE(SUM(CASE WHEN status IN ('pending', 'accepted', 'in_progress') THEN 1 ELSE 0 END), 0) AS pending,
			COALESCE(SUM(CASE WHEN status IN ('completed', 'paid') THEN 1 ELSE 0 END), 0) AS completed
		 FROM deals
		 WHERE creator_id = ?`,
		creatorID,
	).Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	return &counts, nil
}
