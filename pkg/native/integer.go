package native

import "github.com/sasakiyu/rvm/pkg/vm"

// smallIntCacheSize covers Integer.valueOf's fast path for 0..50.
const smallIntCacheSize = 51

// IntegerProvider implements java/lang/Integer.valueOf/intValue with a
// small-int cache (0..50) grown lazily in place, plus a hash-indexed cache
// for every other value.
type IntegerProvider struct {
	small [smallIntCacheSize]int // heap handle, -1 if not yet boxed
	others map[int32]int
}

func NewIntegerProvider() *IntegerProvider {
	p := &IntegerProvider{others: make(map[int32]int)}
	for i := range p.small {
		p.small[i] = -1
	}
	return p
}

func (p *IntegerProvider) Invoke(m *vm.VM, classIdx, methodInClassIdx int, args []vm.Value) (vm.Value, bool, error) {
	class := m.Program.Classes[classIdx]
	if class.Name != "java/lang/Integer" {
		return vm.Value{}, false, nil
	}
	method := &class.Methods[methodInClassIdx]
	switch method.Name {
	case "valueOf":
		return vm.Reference(p.box(m, args[0].AsInt32())), true, nil
	case "intValue":
		receiver := args[0]
		return m.Heap.GetField(receiver.Ref, 0), true, nil
	default:
		return vm.Value{}, false, nil
	}
}

func (p *IntegerProvider) box(m *vm.VM, n int32) int {
	if n >= 0 && int(n) < smallIntCacheSize {
		if p.small[n] < 0 {
			p.small[n] = p.allocate(m, n)
		}
		return p.small[n]
	}
	if h, ok := p.others[n]; ok {
		return h
	}
	h := p.allocate(m, n)
	p.others[n] = h
	return h
}

func (p *IntegerProvider) allocate(m *vm.VM, n int32) int {
	handle := m.Heap.NewObject(vm.IntegerClassIdx, 1)
	m.Heap.NewObjectField(vm.Int(n))
	return handle
}
