package deal

import (
	"github.com/mngrhq/mngr/internal/deal/repository"
	"github.com/mngrhq/mngr/internal/deal/service"
	"go.uber.org/fx"
)

var Module = fx.Module("deal.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
