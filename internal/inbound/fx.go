package inbound

import (
	"github.com/smallbiznis/payrun/internal/inbound/repository"
	"github.com/smallbiznis/payrun/internal/inbound/service"
	"go.uber.org/fx"
)

var Module = fx.Module("inbound.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
