package channel

import (
	"github.com/smallbiznis/payrun/internal/channel/apichannel"
	"github.com/smallbiznis/payrun/internal/channel/sftpchannel"
	"go.uber.org/fx"
)

var Module = fx.Module("channel",
	fx.Provide(func() *Registry {
		return NewRegistry(
			sftpchannel.NewFactory(),
			apichannel.NewFactory(),
		)
	}),
)
