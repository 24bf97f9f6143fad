package channel

import (
	bankprofiledomain "github.com/smallbiznis/payrun/internal/bankprofile/domain"
	"github.com/smallbiznis/payrun/internal/channel/domain"
)

type Registry struct {
	factories map[bankprofiledomain.ChannelKind]domain.Factory
}

func NewRegistry(factories ...domain.Factory) *Registry {
	registry := &Registry{factories: map[bankprofiledomain.ChannelKind]domain.Factory{}}
	for _, factory := range factories {
		if factory == nil {
			continue
		}
		kind := factory.Kind()
		if !kind.Valid() {
			continue
		}
		registry.factories[kind] = factory
	}
	return registry
}

func (r *Registry) KindExists(kind bankprofiledomain.ChannelKind) bool {
	if r == nil {
		return false
	}
	_, ok := r.factories[kind]
	return ok
}

func (r *Registry) NewChannel(kind bankprofiledomain.ChannelKind, cfg domain.Config) (domain.Channel, error) {
	if r == nil {
		return nil, domain.ErrKindNotFound
	}
	factory, ok := r.factories[kind]
	if !ok {
		return nil, domain.ErrKindNotFound
	}
	return factory.NewChannel(cfg)
}
