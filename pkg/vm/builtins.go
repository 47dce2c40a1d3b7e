package vm

// Class indices of the built-in classes this host synthesizes directly into
// the program image, grounded on the original Rust init_java_lang.
const (
	ObjectClassIdx        = 0
	StringClassIdx        = 1
	StringBuilderClassIdx = 2
	IntegerClassIdx       = 3
)

// opReturn is the bare `return` opcode, used as the trivial body of
// synthesized no-op constructors.
const opReturn = 0xB1

func mustSignature(desc string) Signature {
	sig, err := parseMethodDescriptor(desc)
	if err != nil {
		panic(err) // built-in descriptors are fixed constants, never malformed
	}
	return sig
}

func appendCode(p *Program, code []byte) (ptr, length int) {
	ptr = len(p.Code)
	p.Code = append(p.Code, code...)
	return ptr, len(code)
}

// SynthesizeBuiltins constructs java/lang/Object, java/lang/String,
// java/lang/StringBuilder, and java/lang/Integer without reading any class
// file, in that fixed index order (0..3). io/github/rvm/RVM and its
// MemEntry are NOT synthesized here: user bytecode references them
// directly, so they must be loaded as real class files.
func SynthesizeBuiltins(p *Program) {
	synthesizeObject(p)
	synthesizeString(p)
	synthesizeStringBuilder(p)
	synthesizeInteger(p)
}

func synthesizeObject(p *Program) {
	c := newClass("java/lang/Object")
	idx := p.AppendClass(c)

	initPtr, initLen := appendCode(p, []byte{opReturn})
	initMethod := Method{
		Name: "<init>", Descriptor: "()V", Signature: mustSignature("()V"),
		CodePtr: initPtr, CodeLen: initLen, MaxStack: 0, MaxLocals: 1,
		ClassIdx: idx, MethodInClassIdx: 0,
	}
	c.Methods = append(c.Methods, initMethod)
	c.methodIndex[methodKey("<init>", "()V")] = 0

	equalsMethod := Method{
		Name: "equals", Descriptor: "(Ljava/lang/Object;)Z", Signature: mustSignature("(Ljava/lang/Object;)Z"),
		Flags: MNative, ClassIdx: idx, MethodInClassIdx: 1,
	}
	c.Methods = append(c.Methods, equalsMethod)
	c.methodIndex[methodKey("equals", "(Ljava/lang/Object;)Z")] = 1
}

func synthesizeString(p *Program) {
	c := newClass("java/lang/String")
	c.SuperClassIdx = ObjectClassIdx
	c.HasSuper = true
	p.AppendClass(c)
	// No declared methods: the loader and heap write field 0 directly when
	// strings are materialized; StringBuilder/RVM natives read it back.
}

func synthesizeStringBuilder(p *Program) {
	c := newClass("java/lang/StringBuilder")
	c.SuperClassIdx = ObjectClassIdx
	c.HasSuper = true
	idx := p.AppendClass(c)

	c.Fields = append(c.Fields, Field{Name: "buffer", Descriptor: "Ljava/lang/String;"})
	c.fieldIndex["buffer"] = 0

	initMethod := Method{
		Name: "<init>", Descriptor: "()V", Signature: mustSignature("()V"),
		Flags: MNative, ClassIdx: idx, MethodInClassIdx: 0,
	}
	c.Methods = append(c.Methods, initMethod)
	c.methodIndex[methodKey("<init>", "()V")] = 0

	// append is overloaded; both descriptors resolve to the same
	// method-in-class index, and the native implementation branches on the
	// actual argument's Value tag at call time.
	appendStrDesc := "(Ljava/lang/String;)Ljava/lang/StringBuilder;"
	appendIntDesc := "(I)Ljava/lang/StringBuilder;"
	appendMethod := Method{
		Name: "append", Descriptor: appendStrDesc, Signature: mustSignature(appendStrDesc),
		Flags: MNative, ClassIdx: idx, MethodInClassIdx: 1,
	}
	c.Methods = append(c.Methods, appendMethod)
	c.methodIndex[methodKey("append", appendStrDesc)] = 1
	c.methodIndex[methodKey("append", appendIntDesc)] = 1

	toStringMethod := Method{
		Name: "toString", Descriptor: "()Ljava/lang/String;", Signature: mustSignature("()Ljava/lang/String;"),
		Flags: MNative, ClassIdx: idx, MethodInClassIdx: 2,
	}
	c.Methods = append(c.Methods, toStringMethod)
	c.methodIndex[methodKey("toString", "()Ljava/lang/String;")] = 2
}

func synthesizeInteger(p *Program) {
	c := newClass("java/lang/Integer")
	c.SuperClassIdx = ObjectClassIdx
	c.HasSuper = true
	idx := p.AppendClass(c)

	c.Fields = append(c.Fields, Field{Name: "value", Descriptor: "I"})
	c.fieldIndex["value"] = 0

	valueOfMethod := Method{
		Name: "valueOf", Descriptor: "(I)Ljava/lang/Integer;", Signature: mustSignature("(I)Ljava/lang/Integer;"),
		Flags: MNative | MStatic, ClassIdx: idx, MethodInClassIdx: 0,
	}
	c.Methods = append(c.Methods, valueOfMethod)
	c.methodIndex[methodKey("valueOf", "(I)Ljava/lang/Integer;")] = 0

	intValueMethod := Method{
		Name: "intValue", Descriptor: "()I", Signature: mustSignature("()I"),
		Flags: MNative, ClassIdx: idx, MethodInClassIdx: 1,
	}
	c.Methods = append(c.Methods, intValueMethod)
	c.methodIndex[methodKey("intValue", "()I")] = 1
}
