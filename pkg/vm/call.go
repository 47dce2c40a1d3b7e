package vm

import "fmt"

// call implements the Call protocol for a resolved (classIdx, methodIdx)
// target invoked from currentFrame, including the tail-recursion and MEM
// (memoization) optimizations.
func (m *VM) call(currentFrame *Frame, classIdx, methodIdx int) error {
	target := m.Program.Method(classIdx, methodIdx)
	targetClass := m.Program.Classes[classIdx]

	argCount := len(target.Signature.Args)
	total := argCount
	if !target.IsStatic() {
		total++
	}
	if total > len(currentFrame.Stack) {
		return fmt.Errorf("%s.%s%s: %w", targetClass.Name, target.Name, target.Descriptor, ErrStackCorruption)
	}
	args := make([]Value, total)
	for i := total - 1; i >= 0; i-- {
		args[i] = currentFrame.Pop()
	}

	if target.HasTailRecursion() && !target.IsNative() &&
		classIdx == currentFrame.ClassIdx && methodIdx == currentFrame.MethodInClassIdx {
		code := m.Program.Code[target.CodePtr : target.CodePtr+target.CodeLen]
		if currentFrame.PC < len(code) && isReturnOpcode(code[currentFrame.PC]) {
			currentFrame.PC = 0
			currentFrame.Stack = currentFrame.Stack[:0]
			for i := range currentFrame.Local {
				currentFrame.Local[i] = Int(0)
			}
			for i, a := range args {
				currentFrame.Local[i] = a
			}
			return nil
		}
	}

	if target.IsNative() {
		if m.Native == nil {
			return fmt.Errorf("%s.%s: %w", targetClass.Name, target.Name, ErrNativeNotFound)
		}
		result, handled, err := m.Native.Invoke(m, classIdx, methodIdx, args)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", targetClass.Name, target.Name, err)
		}
		if !handled {
			return fmt.Errorf("%s.%s: %w", targetClass.Name, target.Name, ErrNativeNotFound)
		}
		if result.Type != TVoid {
			currentFrame.Push(result)
		}
		return nil
	}

	if target.CodePtr < 0 {
		return fmt.Errorf("%s.%s: %w", targetClass.Name, target.Name, ErrAbstractMethodInvoked)
	}

	callee := NewFrame(classIdx, methodIdx, targetClass.ConstantPoolBase, target.MaxStack, target.MaxLocals)
	for i, a := range args {
		callee.SetLocal(i, a)
	}
	if target.HasAutoFree() || currentFrame.Modifiers.Has(ModAutoFree) {
		callee.Modifiers |= ModAutoFree
	}
	m.Frames = append(m.Frames, callee)

	if target.HasMem() && target.Signature.AllReference() {
		if argCount != 1 && argCount != 2 {
			return fmt.Errorf("%s.%s: memoized methods support only 1 or 2 reference arguments: %w", targetClass.Name, target.Name, ErrDescriptorParse)
		}
		if m.Native == nil {
			return fmt.Errorf("%s.%s: getAnswer: %w", targetClass.Name, target.Name, ErrNativeNotFound)
		}
		gaCI, gaMI, err := m.getAnswerTarget()
		if err != nil {
			return err
		}
		gaArgs := append([]Value{Reference(target.MemEntryPtr)}, args...)
		answer, handled, err := m.Native.Invoke(m, gaCI, gaMI, gaArgs)
		if err != nil {
			return fmt.Errorf("%s.%s: getAnswer: %w", targetClass.Name, target.Name, err)
		}
		if !handled {
			return fmt.Errorf("%s.%s: getAnswer: %w", targetClass.Name, target.Name, ErrNativeNotFound)
		}
		if !IsNull(answer) {
			// Cache hit: the callee frame just pushed never runs its body.
			m.Frames = m.Frames[:len(m.Frames)-1]
			currentFrame.Push(answer)
			return nil
		}
		// Cache miss: let the callee run for real; its eventual return is
		// memoized via MEM_SAVE.
		callee.Modifiers |= ModMemSave
	}

	return nil
}

// doReturn implements the Return protocol: MEM_SAVE memoization, AUTO_FREE
// cleanup, and frame pop. The MEM_LOAD cache-hit/cache-miss decision happens
// synchronously in call(), since getAnswer is a native intrinsic rather than
// bytecode that could return through here.
func (m *VM) doReturn(value Value) error {
	curFrame := m.topFrame()

	if value.Type == TVoid {
		m.Frames = m.Frames[:len(m.Frames)-1]
		return nil
	}

	if curFrame.Modifiers.Has(ModMemSave) {
		if err := m.saveMemEntry(curFrame, value); err != nil {
			return err
		}
	}

	if curFrame.Modifiers.Has(ModAutoFree) {
		for _, h := range curFrame.Instantiated {
			m.Heap.Free(h)
		}
	}

	m.Frames = m.Frames[:len(m.Frames)-1]
	if len(m.Frames) == 0 {
		return nil
	}

	m.topFrame().Push(value)
	return nil
}

func (m *VM) saveMemEntry(curFrame *Frame, answer Value) error {
	method := m.Program.Method(curFrame.ClassIdx, curFrame.MethodInClassIdx)
	argCount := len(method.Signature.Args)
	total := argCount
	if !method.IsStatic() {
		total++
	}

	memEntryCI, err := m.memEntryClassIdx()
	if err != nil {
		return err
	}

	argsHandle := m.Heap.NewObjectArray(ObjectClassIdx, total)
	for i := 0; i < total; i++ {
		m.Heap.SetArrayElement(argsHandle, i, curFrame.GetLocal(i))
	}

	entryHandle := m.Heap.NewObject(memEntryCI, 3)
	m.Heap.NewObjectField(Reference(argsHandle))
	m.Heap.NewObjectField(answer)
	m.Heap.NewObjectField(Reference(method.MemEntryPtr))

	method.MemEntryPtr = entryHandle
	return nil
}
