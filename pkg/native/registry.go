// Package native implements the built-in intrinsic providers for java/lang/Object,
// java/lang/Integer, java/lang/StringBuilder, and the io/github/rvm/RVM
// runtime class, wired to the interpreter through vm.NativeInvoker.
package native

import "github.com/sasakiyu/rvm/pkg/vm"

// Provider attempts to handle one native call. handled=false means "not
// mine" and lets the registry try the next provider.
type Provider interface {
	Invoke(m *vm.VM, classIdx, methodInClassIdx int, args []vm.Value) (result vm.Value, handled bool, err error)
}

// Registry consults its providers in registration order; the first to
// claim a call handles it.
type Registry struct {
	providers []Provider
}

// NewRegistry builds a registry over the given providers, tried in order.
func NewRegistry(providers ...Provider) *Registry {
	return &Registry{providers: providers}
}

// Invoke implements vm.NativeInvoker.
func (r *Registry) Invoke(m *vm.VM, classIdx, methodInClassIdx int, args []vm.Value) (vm.Value, bool, error) {
	for _, p := range r.providers {
		result, handled, err := p.Invoke(m, classIdx, methodInClassIdx, args)
		if err != nil {
			return vm.Value{}, true, err
		}
		if handled {
			return result, true, nil
		}
	}
	return vm.Value{}, false, nil
}
