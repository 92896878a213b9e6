package providers

import (
	"fmt"

	"github.com/strayline/llm-gateway/internal/gateway/registry"
)

// Dispatcher selects the adapter for a model family. There is no failover
// between families: a model resolves to exactly one family and that
// family's adapter either serves the request or the request fails.
type Dispatcher struct {
	adapters map[registry.Family]Adapter
}

// NewDispatcher wires the standard adapters against one runtime endpoint.
func NewDispatcher(endpoint, apiKey string) *Dispatcher {
	d := &Dispatcher{adapters: make(map[registry.Family]Adapter)}
	d.register(NewAnthropicAdapter(endpoint, apiKey))
	d.register(NewNovaAdapter(endpoint, apiKey))
	d.register(NewTitanAdapter(endpoint, apiKey))
	return d
}

func (d *Dispatcher) register(a Adapter) {
	d.adapters[a.Family()] = a
}

// AdapterFor returns the adapter serving family. A miss means the catalog
// names a family the build does not provide, which is a wiring bug rather
// than a client error.
func (d *Dispatcher) AdapterFor(family registry.Family) (Adapter, error) {
	a, ok := d.adapters[family]
	if !ok {
		return nil, fmt.Errorf("no adapter for model family %q", family)
	}
	return a, nil
}
