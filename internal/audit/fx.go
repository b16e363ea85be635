package audit

import (
	"github.com/mngrhq/mngr/internal/audit/repository"
	"github.com/mngrhq/mngr/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
