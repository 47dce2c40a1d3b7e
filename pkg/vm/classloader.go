package vm

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"path/filepath"

	"github.com/sasakiyu/rvm/pkg/classfile"
)

// Recognized annotation type descriptors, set as custom method flags.
const (
	annTailRecursion = "Lio/github/rvm/RVM$TailRecursion;"
	annAutoFree      = "Lio/github/rvm/RVM$AutoFree;"
	annMem           = "Lio/github/rvm/RVM$Mem;"
)

// ClassLoader reads class files from a classpath root, interns them into a
// Program, and materializes string constants directly onto a Heap.
type ClassLoader struct {
	Classpath string
	Program   *Program
	Heap      *Heap
	Verbose   bool
}

// NewClassLoader synthesizes the built-in classes into program (which must
// be empty) and returns a loader ready to load user class files.
func NewClassLoader(classpath string, program *Program, heap *Heap, verbose bool) *ClassLoader {
	SynthesizeBuiltins(program)
	return &ClassLoader{Classpath: classpath, Program: program, Heap: heap, Verbose: verbose}
}

// Load interns the named class (slash-separated internal name, no .class
// suffix) into the program, idempotently, recursively loading its super
// class first.
func (cl *ClassLoader) Load(name string) (int, error) {
	if idx, ok := cl.Program.ClassByName(name); ok {
		return idx, nil
	}

	if cl.Verbose {
		log.Printf("loading class %s", name)
	}

	path := filepath.Join(cl.Classpath, name+".class")
	cf, err := classfile.ParseFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("%s: %w", name, ErrClassNotFound)
		}
		return 0, fmt.Errorf("loading class %s: %w", name, err)
	}

	thisName, err := cf.ClassName()
	if err != nil {
		return 0, fmt.Errorf("resolving class name for %s: %w", name, err)
	}
	superName, err := cf.SuperClassName()
	if err != nil {
		return 0, fmt.Errorf("resolving super class name for %s: %w", thisName, err)
	}

	cpBase := len(cl.Program.ConstantPool)
	if err := cl.appendConstantPool(cf); err != nil {
		return 0, fmt.Errorf("translating constant pool for %s: %w", thisName, err)
	}

	class := newClass(thisName)
	class.ConstantPoolBase = cpBase

	if superName != "" {
		superIdx, err := cl.Load(superName)
		if err != nil {
			return 0, fmt.Errorf("loading super class %s of %s: %w", superName, thisName, err)
		}
		class.SuperClassIdx = superIdx
		class.HasSuper = true
		cl.inheritFields(class, superIdx)
		cl.inheritVMT(class, superIdx)
	}

	for _, f := range cf.Fields {
		idx := len(class.Fields)
		class.Fields = append(class.Fields, Field{Name: f.Name, Descriptor: f.Descriptor})
		class.fieldIndex[f.Name] = idx
	}

	thisIdx := cl.Program.AppendClass(class)

	for i, fm := range cf.Methods {
		sig, err := parseMethodDescriptor(fm.Descriptor)
		if err != nil {
			return 0, fmt.Errorf("parsing descriptor of %s.%s: %w", thisName, fm.Name, err)
		}

		m := Method{
			Name:             fm.Name,
			Descriptor:       fm.Descriptor,
			Signature:        sig,
			Flags:            translateAccessFlags(fm.AccessFlags),
			ClassIdx:         thisIdx,
			MethodInClassIdx: i,
			CodePtr:          -1,
		}

		for _, ann := range fm.Annotations {
			switch ann {
			case annTailRecursion:
				m.Flags |= MTailRecursion
			case annAutoFree:
				m.Flags |= MAutoFree
			case annMem:
				m.Flags |= MMem
				m.MemEntryPtr = 0
			}
		}

		if fm.Code != nil {
			ptr, length := appendCode(cl.Program, fm.Code.Code)
			m.CodePtr = ptr
			m.CodeLen = length
			m.MaxStack = int(fm.Code.MaxStack)
			m.MaxLocals = int(fm.Code.MaxLocals)
		}

		class.Methods = append(class.Methods, m)
		class.methodIndex[methodKey(fm.Name, fm.Descriptor)] = i

		cl.composeVMT(class, thisIdx, i, fm.Name, fm.Descriptor)
	}

	return thisIdx, nil
}

func translateAccessFlags(raw uint16) int {
	flags := 0
	if raw&classfile.AccPublic != 0 {
		flags |= MPublic
	}
	if raw&classfile.AccStatic != 0 {
		flags |= MStatic
	}
	if raw&classfile.AccFinal != 0 {
		flags |= MFinal
	}
	if raw&classfile.AccNative != 0 {
		flags |= MNative
	}
	if raw&classfile.AccAbstract != 0 {
		flags |= MAbstract
	}
	return flags
}

func (cl *ClassLoader) inheritFields(class *Class, superIdx int) {
	super := cl.Program.Classes[superIdx]
	for _, f := range super.Fields {
		idx := len(class.Fields)
		class.Fields = append(class.Fields, f)
		class.fieldIndex[f.Name] = idx
	}
}

func (cl *ClassLoader) inheritVMT(class *Class, superIdx int) {
	super := cl.Program.Classes[superIdx]
	for k, v := range super.VMT {
		class.VMT[k] = v
	}
}

// composeVMT walks the ancestor chain looking for a method with the same
// name and descriptor; every ancestor that directly declares it gets its
// VMT entry redirected to this override, so dispatch through any ancestor's
// declaring (class, method) pair lands on the most-derived implementation.
func (cl *ClassLoader) composeVMT(class *Class, thisIdx, methodInClassIdx int, name, descriptor string) {
	ancestorIdx := class.SuperClassIdx
	hasAncestor := class.HasSuper
	for hasAncestor {
		ancestor := cl.Program.Classes[ancestorIdx]
		if mi, ok := ancestor.methodIndex[methodKey(name, descriptor)]; ok {
			class.VMT[VMTKey{ClassIdx: ancestorIdx, MethodInClassIdx: mi}] = VMTTarget{ClassIdx: thisIdx, MethodInClassIdx: methodInClassIdx}
		}
		hasAncestor = ancestor.HasSuper
		ancestorIdx = ancestor.SuperClassIdx
	}
}

func (cl *ClassLoader) appendConstantPool(cf *classfile.ClassFile) error {
	for i := 1; i < len(cf.ConstantPool); i++ {
		cpv, err := cl.translateConstant(cf, cf.ConstantPool[i])
		if err != nil {
			return fmt.Errorf("constant pool index %d: %w", i, err)
		}
		cl.Program.ConstantPool = append(cl.Program.ConstantPool, cpv)
	}
	return nil
}

// translateConstant converts one raw constant pool entry. Long/Double
// entries occupy two raw slots in the source format; the second slot is
// left nil by the classfile parser and naturally falls through the nil case
// on the next loop iteration, keeping global and in-class indices aligned.
func (cl *ClassLoader) translateConstant(cf *classfile.ClassFile, entry classfile.ConstantPoolEntry) (ConstantPoolValue, error) {
	switch e := entry.(type) {
	case nil:
		return ConstantPoolValue{Kind: CKSkip}, nil
	case *classfile.ConstantClass:
		name, err := classfile.GetUtf8(cf.ConstantPool, e.NameIndex)
		if err != nil {
			return ConstantPoolValue{}, err
		}
		return ConstantPoolValue{Kind: CKUnresolvedClassRef, ClassName: name}, nil
	case *classfile.ConstantFieldref:
		className, err := classfile.GetClassName(cf.ConstantPool, e.ClassIndex)
		if err != nil {
			return ConstantPoolValue{}, err
		}
		fieldName, _, err := classfile.NameAndType(cf.ConstantPool, e.NameAndTypeIndex)
		if err != nil {
			return ConstantPoolValue{}, err
		}
		return ConstantPoolValue{Kind: CKUnresolvedFieldRef, FieldClassName: className, FieldName: fieldName}, nil
	case *classfile.ConstantMethodref:
		className, err := classfile.GetClassName(cf.ConstantPool, e.ClassIndex)
		if err != nil {
			return ConstantPoolValue{}, err
		}
		methodName, descriptor, err := classfile.NameAndType(cf.ConstantPool, e.NameAndTypeIndex)
		if err != nil {
			return ConstantPoolValue{}, err
		}
		return ConstantPoolValue{Kind: CKUnresolvedMethodRef, MethodClassName: className, MethodName: methodName, MethodDescriptor: descriptor}, nil
	case *classfile.ConstantInterfaceMethodref:
		className, err := classfile.GetClassName(cf.ConstantPool, e.ClassIndex)
		if err != nil {
			return ConstantPoolValue{}, err
		}
		methodName, descriptor, err := classfile.NameAndType(cf.ConstantPool, e.NameAndTypeIndex)
		if err != nil {
			return ConstantPoolValue{}, err
		}
		return ConstantPoolValue{Kind: CKUnresolvedMethodRef, MethodClassName: className, MethodName: methodName, MethodDescriptor: descriptor}, nil
	case *classfile.ConstantString:
		text, err := classfile.GetUtf8(cf.ConstantPool, e.StringIndex)
		if err != nil {
			return ConstantPoolValue{}, err
		}
		handle := cl.materializeString(text)
		return ConstantPoolValue{Kind: CKString, Value: Reference(handle)}, nil
	case *classfile.ConstantInteger:
		return ConstantPoolValue{Kind: CKConst, Value: Int(e.Value)}, nil
	case *classfile.ConstantFloat:
		return ConstantPoolValue{Kind: CKConst, Value: Value{Type: TFloat, Float: float64(e.Value)}}, nil
	case *classfile.ConstantLong, *classfile.ConstantDouble:
		return ConstantPoolValue{Kind: CKUnsupported}, nil
	case *classfile.ConstantUtf8, *classfile.ConstantNameAndType:
		return ConstantPoolValue{Kind: CKSkip}, nil
	default:
		return ConstantPoolValue{Kind: CKUnsupported}, nil
	}
}

// materializeString allocates a java/lang/String object whose single field
// holds the native Go string directly.
func (cl *ClassLoader) materializeString(text string) int {
	handle := cl.Heap.NewObject(StringClassIdx, 1)
	cl.Heap.NewObjectField(StringValue(text))
	return handle
}
