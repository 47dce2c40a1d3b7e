package native

import "github.com/sasakiyu/rvm/pkg/vm"

// StringBuilderProvider implements java/lang/StringBuilder's <init>,
// append, and toString. append is the overloaded case: both descriptors
// resolve to the same method-in-class index, and this provider branches on
// the actual argument's Value tag rather than the static descriptor.
type StringBuilderProvider struct{}

func NewStringBuilderProvider() *StringBuilderProvider { return &StringBuilderProvider{} }

func (p *StringBuilderProvider) Invoke(m *vm.VM, classIdx, methodInClassIdx int, args []vm.Value) (vm.Value, bool, error) {
	class := m.Program.Classes[classIdx]
	if class.Name != "java/lang/StringBuilder" {
		return vm.Value{}, false, nil
	}
	method := &class.Methods[methodInClassIdx]
	switch method.Name {
	case "<init>":
		receiver := args[0]
		m.Heap.SetField(receiver.Ref, 0, vm.StringValue(""))
		return vm.Void(), true, nil
	case "append":
		receiver := args[0]
		cur := m.Heap.GetField(receiver.Ref, 0).Str
		text := RenderForAppend(m, args[1])
		m.Heap.SetField(receiver.Ref, 0, vm.StringValue(cur+text))
		return receiver, true, nil
	case "toString":
		receiver := args[0]
		text := m.Heap.GetField(receiver.Ref, 0).Str
		handle := m.Heap.NewObject(vm.StringClassIdx, 1)
		m.Heap.NewObjectField(vm.StringValue(text))
		return vm.Reference(handle), true, nil
	default:
		return vm.Value{}, false, nil
	}
}

// RenderForAppend renders a value the way StringBuilder.append does:
// primitives decimally, booleans as "0"/"1", references dereferenced to
// their java/lang/String field when the referent is a String, to the
// decimal boxed value when the referent is a java/lang/Integer, "null" for
// a null reference, otherwise a handle-tagged placeholder.
func RenderForAppend(m *vm.VM, v vm.Value) string {
	if v.Type != vm.TReference {
		return v.RenderText()
	}
	if v.Ref == 0 {
		return "null"
	}
	header := m.Heap.GetValue(v.Ref)
	if header.Type == vm.TClassIndex && header.Ref == vm.StringClassIdx {
		return m.Heap.GetField(v.Ref, 0).Str
	}
	if header.Type == vm.TClassIndex && header.Ref == vm.IntegerClassIdx {
		return m.Heap.GetField(v.Ref, 0).RenderText()
	}
	return v.RenderText()
}
