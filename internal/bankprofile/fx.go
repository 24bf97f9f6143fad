package bankprofile

import (
	"github.com/smallbiznis/payrun/internal/bankprofile/repository"
	"github.com/smallbiznis/payrun/internal/bankprofile/service"
	"go.uber.org/fx"
)

var Module = fx.Module("bankprofile.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
