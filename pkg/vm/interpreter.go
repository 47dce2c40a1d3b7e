package vm

import "fmt"

type stepKind uint8

const (
	stepNop stepKind = iota
	stepCall
	stepReturn
)

type stepResult struct {
	kind      stepKind
	classIdx  int
	methodIdx int
	value     Value
}

// step fetches one opcode from frame's PC within code and acts on it,
// returning Nop, Call(classIdx, methodIdx), or Return(value).
func (m *VM) step(frame *Frame, code []byte) (stepResult, error) {
	if frame.PC >= len(code) {
		return stepResult{}, fmt.Errorf("PC %d past end of code (len %d): %w", frame.PC, len(code), ErrStackCorruption)
	}
	op := frame.ReadU8(code)

	switch {
	case op == OpAconstNull:
		frame.Push(Null())

	case op >= OpIconstM1 && op <= OpIconst5:
		frame.Push(Int(int32(op) - 3))

	case op == OpBipush:
		b := frame.ReadU8(code)
		frame.Push(Int(int32(b)))

	case op == OpLdc:
		idx := frame.ReadU8(code)
		global := frame.CPBase + int(idx) - 1
		cpv := m.Program.ConstantPool[global]
		switch cpv.Kind {
		case CKConst, CKString:
			frame.Push(cpv.Value)
		default:
			return stepResult{}, fmt.Errorf("ldc at cp index %d is not a constant or string: %w", global, ErrStackCorruption)
		}

	case op == OpIload:
		idx := frame.ReadU8(code)
		frame.Push(frame.GetLocal(int(idx)))
	case op >= OpIload0 && op <= OpIload3:
		frame.Push(frame.GetLocal(int(op - OpIload0)))
	case op >= OpAload0 && op <= OpAload3:
		frame.Push(frame.GetLocal(int(op - OpAload0)))

	case op == OpAaload:
		i := frame.Pop().AsInt32()
		arr := frame.Pop()
		frame.Push(m.Heap.GetArrayElement(arr.Ref, int(i)))

	case op == OpIstore:
		idx := frame.ReadU8(code)
		frame.SetLocal(int(idx), frame.Pop())
	case op == OpAstore:
		idx := frame.ReadU8(code)
		frame.SetLocal(int(idx), frame.Pop())
	case op >= OpIstore0 && op <= OpIstore3:
		frame.SetLocal(int(op-OpIstore0), frame.Pop())
	case op >= OpAstore0 && op <= OpAstore3:
		frame.SetLocal(int(op-OpAstore0), frame.Pop())

	case op == OpAastore:
		v := frame.Pop()
		i := frame.Pop().AsInt32()
		arr := frame.Pop()
		m.Heap.SetArrayElement(arr.Ref, int(i), v)

	case op == OpPop:
		frame.Pop()

	case op == OpDup:
		v := frame.Peek(0)
		frame.Push(v)

	case op == OpDupX1:
		b := frame.Pop()
		a := frame.Pop()
		frame.Push(b)
		frame.Push(a)
		frame.Push(b)

	case op == OpIadd:
		i2 := frame.Pop().AsInt32()
		i1 := frame.Pop().AsInt32()
		frame.Push(Int(i1 + i2))

	case op == OpIsub:
		i2 := frame.Pop().AsInt32()
		i1 := frame.Pop().AsInt32()
		frame.Push(Int(i1 - i2))

	case op == OpIinc:
		idx := frame.ReadU8(code)
		delta := frame.ReadI8(code)
		cur := frame.GetLocal(int(idx)).AsInt32()
		frame.SetLocal(int(idx), Int(cur+int32(delta)))

	case op >= OpIfeq && op <= OpIfle:
		off := frame.ReadI16(code)
		i1 := frame.Pop().AsInt32()
		if compareToZero(op, i1) {
			frame.PC += int(off) - 3
		}

	case op >= OpIfIcmpeq && op <= OpIfIcmple:
		off := frame.ReadI16(code)
		i2 := frame.Pop().AsInt32()
		i1 := frame.Pop().AsInt32()
		if compareInts(op, i1, i2) {
			frame.PC += int(off) - 3
		}

	case op == OpGoto:
		off := frame.ReadI16(code)
		frame.PC += int(off) - 3

	case op == OpIreturn, op == OpFreturn, op == OpAreturn:
		return stepResult{kind: stepReturn, value: frame.Pop()}, nil
	case op == OpReturnV:
		return stepResult{kind: stepReturn, value: Void()}, nil

	case op == OpGetfield:
		cpi := frame.ReadU16(code)
		global := frame.CPBase + int(cpi) - 1
		_, fi, err := m.Loader.ResolveField(global)
		if err != nil {
			return stepResult{}, err
		}
		obj := frame.Pop()
		frame.Push(m.Heap.GetField(obj.Ref, fi))

	case op == OpPutfield:
		cpi := frame.ReadU16(code)
		global := frame.CPBase + int(cpi) - 1
		_, fi, err := m.Loader.ResolveField(global)
		if err != nil {
			return stepResult{}, err
		}
		v := frame.Pop()
		obj := frame.Pop()
		m.Heap.SetField(obj.Ref, fi, v)

	case op == OpInvokevirtual:
		cpi := frame.ReadU16(code)
		global := frame.CPBase + int(cpi) - 1
		ci, mi, err := m.Loader.ResolveMethod(global)
		if err != nil {
			return stepResult{}, err
		}
		target := m.Program.Method(ci, mi)
		argDepth := len(target.Signature.Args)
		if argDepth >= len(frame.Stack) {
			return stepResult{}, fmt.Errorf("invokevirtual %s.%s: %w", m.Program.Classes[ci].Name, target.Name, ErrStackCorruption)
		}
		receiver := frame.Peek(argDepth)
		runtimeClassIdx := m.Heap.GetValue(receiver.Ref).Ref
		runtimeClass := m.Program.Classes[runtimeClassIdx]
		if t, ok := runtimeClass.VMT[VMTKey{ClassIdx: ci, MethodInClassIdx: mi}]; ok {
			ci, mi = t.ClassIdx, t.MethodInClassIdx
		}
		return stepResult{kind: stepCall, classIdx: ci, methodIdx: mi}, nil

	case op == OpInvokespecial, op == OpInvokestatic:
		cpi := frame.ReadU16(code)
		global := frame.CPBase + int(cpi) - 1
		ci, mi, err := m.Loader.ResolveMethod(global)
		if err != nil {
			return stepResult{}, err
		}
		return stepResult{kind: stepCall, classIdx: ci, methodIdx: mi}, nil

	case op == OpNew:
		cpi := frame.ReadU16(code)
		global := frame.CPBase + int(cpi) - 1
		ci, err := m.Loader.ResolveClass(global)
		if err != nil {
			return stepResult{}, err
		}
		handle, err := m.newInstance(ci)
		if err != nil {
			return stepResult{}, err
		}
		frame.Push(Reference(handle))
		if frame.Modifiers.Has(ModAutoFree) {
			frame.RecordInstantiated(handle)
		}

	case op == OpAnewarray:
		cpi := frame.ReadU16(code)
		global := frame.CPBase + int(cpi) - 1
		ci, err := m.Loader.ResolveClass(global)
		if err != nil {
			return stepResult{}, err
		}
		count := int(frame.Pop().AsInt32())
		arrHandle := m.Heap.NewObjectArray(ci, count)
		for i := 0; i < count; i++ {
			elemHandle, err := m.newInstance(ci)
			if err != nil {
				return stepResult{}, err
			}
			m.Heap.SetArrayElement(arrHandle, i, Reference(elemHandle))
			if frame.Modifiers.Has(ModAutoFree) {
				frame.RecordInstantiated(elemHandle)
			}
		}
		frame.Push(Reference(arrHandle))
		if frame.Modifiers.Has(ModAutoFree) {
			frame.RecordInstantiated(arrHandle)
		}

	case op == OpArraylength:
		arr := frame.Pop()
		frame.Push(Int(int32(m.Heap.ArrayLength(arr.Ref))))

	case op == OpIfnull:
		off := frame.ReadI16(code)
		ref := frame.Pop()
		if IsNull(ref) {
			frame.PC += int(off) - 3
		}

	case op == OpIfnonnull:
		off := frame.ReadI16(code)
		ref := frame.Pop()
		if !IsNull(ref) {
			frame.PC += int(off) - 3
		}

	default:
		return stepResult{}, fmt.Errorf("opcode 0x%02x: %w", op, ErrUnknownOpcode)
	}

	return stepResult{kind: stepNop}, nil
}

func compareToZero(op byte, v int32) bool {
	switch op {
	case OpIfeq:
		return v == 0
	case OpIfne:
		return v != 0
	case OpIflt:
		return v < 0
	case OpIfge:
		return v >= 0
	case OpIfgt:
		return v > 0
	case OpIfle:
		return v <= 0
	default:
		return false
	}
}

func compareInts(op byte, a, b int32) bool {
	switch op {
	case OpIfIcmpeq:
		return a == b
	case OpIfIcmpne:
		return a != b
	case OpIfIcmplt:
		return a < b
	case OpIfIcmpge:
		return a >= b
	case OpIfIcmpgt:
		return a > b
	case OpIfIcmple:
		return a <= b
	default:
		return false
	}
}
