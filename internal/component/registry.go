package component

import (
	"fmt"
	"sync"

	"github.com/clinlabel/sepsis/internal/models"
)

// Registry holds variables in registration order.
type Registry struct {
	mu    sync.RWMutex
	vars  map[string]Variable
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{vars: make(map[string]Variable)}
}

// Register validates and adds v.
func (r *Registry) Register(v Variable) error {
	if err := v.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.vars[v.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateVariable, v.Name)
	}
	for _, existing := range r.vars {
		if existing.Column == v.Column {
			return fmt.Errorf("%w: column %s already used by %s", ErrDuplicateVariable, v.Column, existing.Name)
		}
	}
	r.vars[v.Name] = v
	r.order = append(r.order, v.Name)
	return nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(v Variable) {
	if err := r.Register(v); err != nil {
		panic(err)
	}
}

// Get returns the variable called name.
func (r *Registry) Get(name string) (Variable, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.vars[name]
	if !ok {
		return Variable{}, fmt.Errorf("%w: %s", ErrUnknownVariable, name)
	}
	return v, nil
}

// Variables returns every variable in registration order.
func (r *Registry) Variables() []Variable {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Variable, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.vars[name])
	}
	return out
}

// Columns returns the value columns in registration order.
func (r *Registry) Columns() []string {
	vars := r.Variables()
	out := make([]string, len(vars))
	for i, v := range vars {
		out[i] = v.Column
	}
	return out
}

// SetNames replaces the flowsheet display names of an observation-backed
// variable. The FiO2Denominator key replaces the names of the denominator
// shared by the ratio variables.
func (r *Registry) SetNames(name string, names []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == FiO2Denominator {
		return r.setDenominatorNames(names)
	}

	v, ok := r.vars[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownVariable, name)
	}
	if v.Select.Kind != models.FactObservation {
		return fmt.Errorf("%w: %s reads %s facts", ErrNotFlowsheet, name, v.Select.Kind)
	}
	v.Select.Names = append([]string(nil), names...)
	if err := v.Validate(); err != nil {
		return err
	}
	r.vars[name] = v
	return nil
}

func (r *Registry) setDenominatorNames(names []string) error {
	updated := make(map[string]Variable)
	for name, v := range r.vars {
		if v.Ratio == nil || v.Ratio.Denominator.Kind != models.FactObservation {
			continue
		}
		ratio := *v.Ratio
		ratio.Denominator.Names = append([]string(nil), names...)
		v.Ratio = &ratio
		if err := v.Validate(); err != nil {
			return err
		}
		updated[name] = v
	}
	if len(updated) == 0 {
		return fmt.Errorf("%w: no ratio reads %s", ErrUnknownVariable, FiO2Denominator)
	}
	for name, v := range updated {
		r.vars[name] = v
	}
	return nil
}
