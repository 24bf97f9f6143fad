package joblog

import (
	"github.com/smallbiznis/payrun/internal/joblog/repository"
	"github.com/smallbiznis/payrun/internal/joblog/service"
	"go.uber.org/fx"
)

var Module = fx.Module("joblog.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
