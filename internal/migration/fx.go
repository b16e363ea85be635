// Package migration creates the schema on startup so a fresh database is
// usable out of the box for local and self-hosted environments.
package migration

import (
	auditdomain "github.com/mngrhq/mngr/internal/audit/domain"
	creatordomain "github.com/mngrhq/mngr/internal/creator/domain"
	dealdomain "github.com/mngrhq/mngr/internal/deal/domain"
	paymentdomain "github.com/mngrhq/mngr/internal/payment/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB) error {
		if err := conn.AutoMigrate(
			&creatordomain.Creator{},
			&dealdomain.Deal{},
			&paymentdomain.EventRecord{},
			&auditdomain.AuditLog{},
		); err != nil {
			return err
		}

		// the dedup reservation depends on this being unique
		return conn.Exec(
			`CREATE UNIQUE INDEX IF NOT EXISTS ux_settlement_events_provider_event_id
			 ON settlement_events (provider, provider_event_id)`,
		).Error
	}),
)
