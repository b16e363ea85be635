package creator

import (
	"github.com/mngrhq/mngr/internal/creator/repository"
	"github.com/mngrhq/mngr/internal/creator/service"
	"go.uber.org/fx"
)

var Module = fx.Module("creator.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
