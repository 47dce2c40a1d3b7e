package native

import (
	"fmt"
	"io"

	"github.com/sasakiyu/rvm/pkg/vm"
)

// RVMProvider implements io/github/rvm/RVM's print/println/tick/heapSize/
// logState/getAnswer intrinsics. Unlike the other providers, the class
// itself is not synthesized: its .class file must be on the classpath
// because user bytecode references it directly, but the method bodies it
// declares (marked native) are still supplied here.
type RVMProvider struct {
	Stdout io.Writer
}

// NewRVMProvider builds a provider writing RVM.print/println output to w.
func NewRVMProvider(w io.Writer) *RVMProvider {
	return &RVMProvider{Stdout: w}
}

func (p *RVMProvider) Invoke(m *vm.VM, classIdx, methodInClassIdx int, args []vm.Value) (vm.Value, bool, error) {
	class := m.Program.Classes[classIdx]
	if class.Name != "io/github/rvm/RVM" {
		return vm.Value{}, false, nil
	}
	method := &class.Methods[methodInClassIdx]
	switch method.Name {
	case "print":
		for _, a := range args {
			fmt.Fprint(p.Stdout, RenderForAppend(m, a))
		}
		return vm.Void(), true, nil
	case "println":
		fmt.Fprintln(p.Stdout)
		return vm.Void(), true, nil
	case "tick":
		return vm.Int(m.TickMillis()), true, nil
	case "heapSize":
		return vm.Int(int32(m.Heap.Len())), true, nil
	case "logState":
		m.LogState()
		return vm.Void(), true, nil
	case "getAnswer":
		return p.getAnswer(m, args), true, nil
	default:
		return vm.Value{}, false, nil
	}
}

// getAnswer walks the MemEntry linked list rooted at args[0], comparing its
// stored argument array against args[1:] via Object.equals component-wise,
// returning the first match's stored answer or Reference(0) on exhaustion
// (a cache miss, per the MEM optimization's call protocol).
func (p *RVMProvider) getAnswer(m *vm.VM, args []vm.Value) vm.Value {
	wanted := args[1:]
	node := args[0]
	for !vm.IsNull(node) {
		entryArgs := m.Heap.GetField(node.Ref, 0)
		answer := m.Heap.GetField(node.Ref, 1)
		next := m.Heap.GetField(node.Ref, 2)

		if m.Heap.ArrayLength(entryArgs.Ref) == len(wanted) {
			match := true
			for i, w := range wanted {
				if !ValuesEqual(m, m.Heap.GetArrayElement(entryArgs.Ref, i), w) {
					match = false
					break
				}
			}
			if match {
				return answer
			}
		}
		node = next
	}
	return vm.Null()
}
