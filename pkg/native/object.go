package native

import "github.com/sasakiyu/rvm/pkg/vm"

// ObjectProvider implements java/lang/Object.equals.
type ObjectProvider struct{}

func NewObjectProvider() *ObjectProvider { return &ObjectProvider{} }

func (p *ObjectProvider) Invoke(m *vm.VM, classIdx, methodInClassIdx int, args []vm.Value) (vm.Value, bool, error) {
	class := m.Program.Classes[classIdx]
	if class.Name != "java/lang/Object" {
		return vm.Value{}, false, nil
	}
	method := &class.Methods[methodInClassIdx]
	if method.Name != "equals" {
		return vm.Value{}, false, nil
	}
	return vm.Bool(ValuesEqual(m, args[0], args[1])), true, nil
}

// ValuesEqual compares two values structurally: primitives by Value
// equality, references by dereferencing one level when both sides are
// java/lang/String (comparing their text), otherwise by handle identity.
// This backs both Object.equals and RVM.getAnswer's cache-key comparison.
func ValuesEqual(m *vm.VM, a, b vm.Value) bool {
	if a.Type != vm.TReference || b.Type != vm.TReference {
		return vm.Equal(a, b)
	}
	if a.Ref == 0 || b.Ref == 0 {
		return a.Ref == b.Ref
	}
	ah := m.Heap.GetValue(a.Ref)
	bh := m.Heap.GetValue(b.Ref)
	if ah.Type == vm.TClassIndex && bh.Type == vm.TClassIndex &&
		ah.Ref == vm.StringClassIdx && bh.Ref == vm.StringClassIdx {
		return m.Heap.GetField(a.Ref, 0).Str == m.Heap.GetField(b.Ref, 0).Str
	}
	return a.Ref == b.Ref
}
