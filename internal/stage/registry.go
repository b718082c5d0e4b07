package stage

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrInvalidRegistry marks a malformed stage catalogue.
	ErrInvalidRegistry = errors.New("invalid stage registry")
	// ErrStageNotFound is returned for unknown stage names.
	ErrStageNotFound = errors.New("stage not found")
)

// Canonical stage names in pipeline order.
const (
	NameIdeaDiscovery  = "idea_discovery"
	NameDeepResearch   = "deep_research"
	NameScoring        = "scoring"
	NameMVPDefinition  = "mvp_definition"
	NameLandingPage    = "landing_page"
	NameHumanReview    = "human_review"
	NameDeploy         = "deploy"
	NameAnalyticsSetup = "analytics_setup"
	NameDistribution   = "distribution"
	NameMonitor        = "monitor"
)

// Descriptor describes one stage of the pipeline.
type Descriptor struct {
	Name       string
	Order      int
	Dependency string
	Gate       Gate
	Handler    Handler
}

// Registry is the immutable ordered catalogue of stages.
type Registry struct {
	ordered []Descriptor
	byName  map[string]int
}

// NewRegistry validates and orders the descriptors. Orders must be unique
// and contiguous from zero; names must be unique and every stage needs a
// handler.
func NewRegistry(descs ...Descriptor) (*Registry, error) {
	if len(descs) == 0 {
		return nil, fmt.Errorf("%w: no stages", ErrInvalidRegistry)
	}
	ordered := append([]Descriptor(nil), descs...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })

	byName := make(map[string]int, len(ordered))
	for i, d := range ordered {
		name := strings.TrimSpace(d.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: stage at order %d has no name", ErrInvalidRegistry, d.Order)
		}
		if d.Handler == nil {
			return nil, fmt.Errorf("%w: stage %s has no handler", ErrInvalidRegistry, name)
		}
		if _, dup := byName[name]; dup {
			return nil, fmt.Errorf("%w: duplicate stage name %s", ErrInvalidRegistry, name)
		}
		if i > 0 && ordered[i-1].Order == d.Order {
			return nil, fmt.Errorf("%w: stages %s and %s share order %d", ErrInvalidRegistry, ordered[i-1].Name, name, d.Order)
		}
		if d.Order != i {
			return nil, fmt.Errorf("%w: expected order %d for stage %s, got %d", ErrInvalidRegistry, i, name, d.Order)
		}
		ordered[i].Name = name
		byName[name] = i
	}
	return &Registry{ordered: ordered, byName: byName}, nil
}

// Ordered returns the stages sorted by order.
func (r *Registry) Ordered() []Descriptor {
	return append([]Descriptor(nil), r.ordered...)
}

// Len returns the number of stages.
func (r *Registry) Len() int {
	return len(r.ordered)
}

// First returns the stage with order zero.
func (r *Registry) First() Descriptor {
	return r.ordered[0]
}

// At returns the stage with the given order.
func (r *Registry) At(order int) (Descriptor, bool) {
	if order < 0 || order >= len(r.ordered) {
		return Descriptor{}, false
	}
	return r.ordered[order], true
}

// Lookup returns the stage with the given name.
func (r *Registry) Lookup(name string) (Descriptor, error) {
	idx, ok := r.byName[strings.TrimSpace(name)]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrStageNotFound, name)
	}
	return r.ordered[idx], nil
}

// Dependencies returns the distinct dependency names in stage order.
func (r *Registry) Dependencies() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, d := range r.ordered {
		if d.Dependency == "" {
			continue
		}
		if _, ok := seen[d.Dependency]; ok {
			continue
		}
		seen[d.Dependency] = struct{}{}
		out = append(out, d.Dependency)
	}
	return out
}
