package vm

import "fmt"

// ResolveClass resolves the constant pool entry at the given global index to
// a class_idx, loading the class if needed, and rewrites the entry in place
// so later lookups are O(1).
func (cl *ClassLoader) ResolveClass(globalIdx int) (int, error) {
	cpv := &cl.Program.ConstantPool[globalIdx]
	switch cpv.Kind {
	case CKClass:
		return cpv.ClassIdx, nil
	case CKUnresolvedClassRef:
		idx, err := cl.Load(cpv.ClassName)
		if err != nil {
			return 0, fmt.Errorf("resolving class %s: %w", cpv.ClassName, err)
		}
		*cpv = ConstantPoolValue{Kind: CKClass, ClassIdx: idx}
		return idx, nil
	default:
		return 0, fmt.Errorf("constant pool index %d is not a class reference", globalIdx)
	}
}

// ResolveField resolves the constant pool entry at the given global index to
// a (class_idx, field_idx) pair, rewriting it in place on success.
func (cl *ClassLoader) ResolveField(globalIdx int) (classIdx, fieldIdx int, err error) {
	cpv := &cl.Program.ConstantPool[globalIdx]
	switch cpv.Kind {
	case CKFieldRef:
		return cpv.FieldClassIdx, cpv.FieldIdx, nil
	case CKUnresolvedFieldRef:
		ci, err := cl.Load(cpv.FieldClassName)
		if err != nil {
			return 0, 0, fmt.Errorf("resolving field %s.%s: %w", cpv.FieldClassName, cpv.FieldName, err)
		}
		fi := cl.Program.Classes[ci].FieldIdx(cpv.FieldName)
		if fi < 0 {
			return 0, 0, fmt.Errorf("%s.%s: %w", cpv.FieldClassName, cpv.FieldName, ErrUnresolvedField)
		}
		*cpv = ConstantPoolValue{Kind: CKFieldRef, FieldClassIdx: ci, FieldIdx: fi}
		return ci, fi, nil
	default:
		return 0, 0, fmt.Errorf("constant pool index %d is not a field reference", globalIdx)
	}
}

// ResolveMethod resolves the constant pool entry at the given global index
// to a (class_idx, method_in_class_idx) pair, rewriting it in place on
// success.
func (cl *ClassLoader) ResolveMethod(globalIdx int) (classIdx, methodInClassIdx int, err error) {
	cpv := &cl.Program.ConstantPool[globalIdx]
	switch cpv.Kind {
	case CKMethodRef:
		return cpv.MethodClassIdx, cpv.MethodInClassIdx, nil
	case CKUnresolvedMethodRef:
		ci, err := cl.Load(cpv.MethodClassName)
		if err != nil {
			return 0, 0, fmt.Errorf("resolving method %s.%s%s: %w", cpv.MethodClassName, cpv.MethodName, cpv.MethodDescriptor, err)
		}
		mi := cl.Program.Classes[ci].MethodInClassIdx(cpv.MethodName, cpv.MethodDescriptor)
		if mi < 0 {
			return 0, 0, fmt.Errorf("%s.%s%s: %w", cpv.MethodClassName, cpv.MethodName, cpv.MethodDescriptor, ErrUnresolvedMethod)
		}
		*cpv = ConstantPoolValue{Kind: CKMethodRef, MethodClassIdx: ci, MethodInClassIdx: mi}
		return ci, mi, nil
	default:
		return 0, 0, fmt.Errorf("constant pool index %d is not a method reference", globalIdx)
	}
}
