package paymentrun

import (
	"github.com/smallbiznis/payrun/internal/paymentrun/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("paymentrun",
	fx.Provide(repository.Provide),
)
