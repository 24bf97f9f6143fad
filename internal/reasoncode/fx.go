package reasoncode

import (
	"context"

	"github.com/smallbiznis/payrun/internal/config"
	"github.com/smallbiznis/payrun/internal/reasoncode/domain"
	"github.com/smallbiznis/payrun/internal/reasoncode/repository"
	"github.com/smallbiznis/payrun/internal/reasoncode/seed"
	"github.com/smallbiznis/payrun/internal/reasoncode/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("reasoncode.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Invoke(loadSeed),
)

func loadSeed(lc fx.Lifecycle, cfg config.Config, svc domain.Service, log *zap.Logger) {
	if cfg.ReasonCodeSeedFile == "" {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := seed.Load(ctx, svc, cfg.ReasonCodeSeedFile); err != nil {
				log.Warn("failed to load reason code seed", zap.String("file", cfg.ReasonCodeSeedFile), zap.Error(err))
			}
			return nil
		},
	})
}
