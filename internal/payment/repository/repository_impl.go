package repository

import (
	"context"
	"time"

	"github.com/mngrhq/mngr/internal/payment/domain"
	"gorm.io/gorm"
)

// Repository persists settlement event reservations.
type Repository interface {
	// InsertEvent reserves a provider event. It reports false when another
	// delivery already holds the reservation.
	InsertEvent(ctx context.Context, db *gorm.DB, event *domain.EventRecord) (bool, error)
	FindEvent(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*domain.EventRecord, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, provider, providerEventID string, processedAt time.Time) error
}

type repo struct{}

func Provide() Repository {
	return &repo{}
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.EventRecord) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO settlement_events (
			id, provider, provider_event_id, event_type, deal_id,
			payload, received_at, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider, provider_event_id) DO NOTHING`,
		event.ID,
		event.Provider,
		event.ProviderEventID,
		event.EventType,
		event.DealID,
		event.Payload,
		event.ReceivedAt,
		event.ProcessedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindEvent(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*domain.EventRecord, error) {
	var item domain.EventRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, provider, provider_event_id, event_type, deal_id,
			payload, received_at, processed_at
		 FROM settlement_events
		 WHERE provider = ? AND provider_event_id = ?
		 LIMIT 1`,
		provider,
		providerEventID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) MarkProcessed(ctx context.Context, db *gorm.DB, provider, providerEventID string, processedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE settlement_events
		 SET processed_at = ?
		 WHERE provider = ? AND provider_event_id = ? AND processed_at IS NULL`,
		processedAt,
		provider,
		providerEventID,
	).Error
}
