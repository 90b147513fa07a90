package coordinator

import (
	"context"
	"errors"

	pkgerrors "github.com/absmach/flock/pkg/errors"
	"github.com/absmach/flock/pkg/storage"
	"github.com/absmach/flock/proxy"
)

const maxClients = 1024

// Registry tracks the client proxies currently available for selection.
// Registration is idempotent so a participant reconnecting after a broker
// hiccup does not leave a stale entry behind.
type Registry struct {
	store storage.Storage
}

func NewRegistry(store storage.Storage) *Registry {
	return &Registry{store: store}
}

func (r *Registry) Register(ctx context.Context, p proxy.ClientProxy) error {
	err := r.store.Create(ctx, p.ID(), p)
	if errors.Is(err, pkgerrors.ErrEntityExists) {
		return r.store.Update(ctx, p.ID(), p)
	}

	return err
}

func (r *Registry) Unregister(ctx context.Context, id string) error {
	return r.store.Delete(ctx, id)
}

func (r *Registry) Get(ctx context.Context, id string) (proxy.ClientProxy, error) {
	data, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	p, ok := data.(proxy.ClientProxy)
	if !ok {
		return nil, pkgerrors.ErrInvalidData
	}

	return p, nil
}

// Available lists every registered client proxy in stable ID order.
func (r *Registry) Available(ctx context.Context) ([]proxy.ClientProxy, error) {
	data, _, err := r.store.List(ctx, 0, maxClients)
	if err != nil {
		return nil, err
	}

	proxies := make([]proxy.ClientProxy, 0, len(data))
	for i := range data {
		p, ok := data[i].(proxy.ClientProxy)
		if !ok {
			return nil, pkgerrors.ErrInvalidData
		}
		proxies = append(proxies, p)
	}

	return proxies, nil
}

func (r *Registry) Count(ctx context.Context) (int, error) {
	proxies, err := r.Available(ctx)
	if err != nil {
		return 0, err
	}

	return len(proxies), nil
}
