package payment

import (
	"github.com/mngrhq/mngr/internal/payment/intent"
	"github.com/mngrhq/mngr/internal/payment/repository"
	"github.com/mngrhq/mngr/internal/payment/settlement"
	"github.com/mngrhq/mngr/internal/payment/stripeconnect"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(stripeconnect.NewClient),
	fx.Provide(stripeconnect.NewWebhookSource),
	fx.Provide(repository.Provide),
	fx.Provide(intent.NewService),
	fx.Provide(settlement.NewService),
)
