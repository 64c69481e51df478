package workflow

import (
	"fmt"
	"sync"

	"github.com/vepflow/vepflow/core"
	"github.com/vepflow/vepflow/portal"
)

// Factory builds a fresh workflow instance from typed parameters.
type Factory func(params interface{}) (*Workflow, error)

// Info describes a registered workflow kind.
type Info struct {
	Kind        string   `json:"kind"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Steps       []string `json:"steps"`
}

// Registry maps workflow kind names to their factories. Safe for
// concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	info      map[string]Info
	order     []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		info:      make(map[string]Info),
	}
}

// Register binds a kind name to its factory and descriptive info.
// Re-registering a kind replaces the previous binding.
func (r *Registry) Register(kind string, info Info, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[kind]; !exists {
		r.order = append(r.order, kind)
	}
	info.Kind = kind
	r.factories[kind] = factory
	r.info[kind] = info
}

// Create instantiates a workflow of the given kind.
func (r *Registry) Create(kind string, params interface{}) (*Workflow, error) {
	r.mu.RLock()
	factory, ok := r.factories[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("workflow %q: %w", kind, core.ErrUnknownWorkflow)
	}
	return factory(params)
}

// Known reports whether the kind is registered.
func (r *Registry) Known(kind string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[kind]
	return ok
}

// List returns the registered kinds in registration order.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.order))
	for _, kind := range r.order {
		out = append(out, r.info[kind])
	}
	return out
}

// DefaultRegistry registers the production workflow kinds against the
// given portal provider.
func DefaultRegistry(provider portal.Provider) *Registry {
	r := NewRegistry()

	r.Register(KindCCMA, Info{
		Name:        "Account Reconciliation",
		Description: "Calculates taxpayer debt in the CCMA window and emits a payment slip",
		Steps: []string{
			"initialize_browser", "arca_login", "open_ccma_window",
			"calculate_debt", "handle_debt_window", "generate_vep",
			"select_payment_method",
		},
	}, func(params interface{}) (*Workflow, error) {
		p, ok := params.(CCMAParams)
		if !ok {
			return nil, fmt.Errorf("workflow %s wants CCMAParams, got %T: %w",
				KindCCMA, params, core.ErrInvalidConfiguration)
		}
		return NewCCMAWorkflow(provider, p)
	})

	r.Register(KindDDJJ, Info{
		Name:        "Declaration Upload",
		Description: "Uploads a VEP batch file through the DDJJ window and processes payments",
		Steps: []string{
			"generate_vep_file", "arca_authentication", "open_ddjj_window",
			"navigate_to_vep_upload", "upload_vep_file",
			"generate_vep_from_file", "process_payments",
		},
	}, func(params interface{}) (*Workflow, error) {
		p, ok := params.(DDJJParams)
		if !ok {
			return nil, fmt.Errorf("workflow %s wants DDJJParams, got %T: %w",
				KindDDJJ, params, core.ErrInvalidConfiguration)
		}
		return NewDDJJWorkflow(provider, p)
	})

	return r
}
