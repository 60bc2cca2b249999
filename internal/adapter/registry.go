package adapter

import (
	"github.com/rotisserie/eris"

	"github.com/prospectline/prospector/internal/model"
)

// ErrUnsupportedSource is returned when no adapter covers a job's source.
var ErrUnsupportedSource = eris.New("unsupported source")

// Registry maps sources to their adapters.
type Registry struct {
	adapters map[model.Source]Adapter
	order    []model.Source // insertion order for deterministic iteration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[model.Source]Adapter),
	}
}

// Register adds an adapter, replacing any previous one for the same source.
func (r *Registry) Register(a Adapter) {
	src := a.Source()
	if _, seen := r.adapters[src]; !seen {
		r.order = append(r.order, src)
	}
	r.adapters[src] = a
}

// Get returns the adapter for a source.
func (r *Registry) Get(src model.Source) (Adapter, error) {
	a, ok := r.adapters[src]
	if !ok {
		return nil, eris.Wrapf(ErrUnsupportedSource, "adapter: %s", src)
	}
	return a, nil
}

// Sources returns all registered sources in registration order.
func (r *Registry) Sources() []model.Source {
	out := make([]model.Source, len(r.order))
	copy(out, r.order)
	return out
}
