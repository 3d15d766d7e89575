package payment

import (
	"fmt"
	"sync"

	"github.com/lapstore/server/internal/module/order"
	"github.com/lapstore/server/internal/module/payment/provider"
)

// Registry maps provider names and payment methods to adapters.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]provider.Provider
}

// NewRegistry creates a new provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]provider.Provider)}
}

// Register registers a provider under its name.
func (r *Registry) Register(p provider.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns a provider by name.
func (r *Registry) Get(name string) (provider.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	return p, nil
}

// GetByMethod returns the provider serving a gateway payment method.
// Card payments settle through Stripe and e-wallet through Alipay; the
// domestic gateways are addressed directly by name.
func (r *Registry) GetByMethod(method order.PaymentMethod) (provider.Provider, error) {
	switch method {
	case order.MethodCard:
		return r.Get("stripe")
	case order.MethodEWallet:
		return r.Get("alipay")
	case order.MethodVNPay, order.MethodMoMo, order.MethodZaloPay:
		return r.Get(string(method))
	default:
		return nil, fmt.Errorf("%w: no provider for method %s", ErrProviderNotFound, method)
	}
}

// List returns all registered provider names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}
