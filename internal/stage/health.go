package stage

import "context"

// Health summarizes the readiness of a pipeline stage.
type Health struct {
	Name       string
	Dependency string
	Ready      bool
	Detail     string
}

// Healthy constructs a ready Health record.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy constructs an unhealthy Health record with context detail.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Ready: false, Detail: detail}
}

// CheckAll runs every stage's health check in pipeline order. Records are
// labelled with the descriptor's name and dependency regardless of what the
// handler reported.
func (r *Registry) CheckAll(ctx context.Context) []Health {
	out := make([]Health, 0, len(r.ordered))
	for _, d := range r.ordered {
		h := d.Handler.HealthCheck(ctx)
		h.Name = d.Name
		h.Dependency = d.Dependency
		out = append(out, h)
	}
	return out
}
