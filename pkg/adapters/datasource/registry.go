package datasource

import (
	"github.com/ekaya-inc/ekaya-gateway/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-gateway/pkg/models"
)

// Registry maps each backend to its dialect. It is built once at startup
// and passed to the services that need it.
type Registry struct {
	dialects map[models.Backend]Dialect
}

// NewRegistry indexes dialects by backend. A later dialect for the same
// backend replaces an earlier one.
func NewRegistry(dialects ...Dialect) *Registry {
	r := &Registry{dialects: make(map[models.Backend]Dialect, len(dialects))}
	for _, d := range dialects {
		r.dialects[d.Backend()] = d
	}
	return r
}

// Get returns the dialect for backend.
func (r *Registry) Get(backend models.Backend) (Dialect, error) {
	d, ok := r.dialects[backend]
	if !ok {
		return nil, apperrors.ErrUnknownBackend
	}
	return d, nil
}
