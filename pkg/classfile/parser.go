package classfile

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

const classMagic = 0xCAFEBABE

// ParseFile opens and parses a .class file from the given path.
func ParseFile(path string) (*ClassFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a .class file from the given reader and returns a ClassFile.
func Parse(r io.Reader) (*ClassFile, error) {
	cf := &ClassFile{}

	var magic uint32
	if err := binary.Read(r, binary.BigEndian, &magic); err != nil {
		return nil, fmt.Errorf("reading magic number: %w", err)
	}
	if magic != classMagic {
		return nil, fmt.Errorf("invalid magic number: 0x%X (expected 0xCAFEBABE)", magic)
	}

	if err := binary.Read(r, binary.BigEndian, &cf.MinorVersion); err != nil {
		return nil, fmt.Errorf("reading minor version: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &cf.MajorVersion); err != nil {
		return nil, fmt.Errorf("reading major version: %w", err)
	}

	var cpCount uint16
	if err := binary.Read(r, binary.BigEndian, &cpCount); err != nil {
		return nil, fmt.Errorf("reading constant pool count: %w", err)
	}
	pool, err := parseConstantPool(r, cpCount)
	if err != nil {
		return nil, fmt.Errorf("parsing constant pool: %w", err)
	}
	cf.ConstantPool = pool

	if err := binary.Read(r, binary.BigEndian, &cf.AccessFlags); err != nil {
		return nil, fmt.Errorf("reading access flags: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &cf.ThisClass); err != nil {
		return nil, fmt.Errorf("reading this_class: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &cf.SuperClass); err != nil {
		return nil, fmt.Errorf("reading super_class: %w", err)
	}

	// Interface table: read and discard. Interfaces are not part of this core.
	var interfacesCount uint16
	if err := binary.Read(r, binary.BigEndian, &interfacesCount); err != nil {
		return nil, fmt.Errorf("reading interfaces count: %w", err)
	}
	for i := uint16(0); i < interfacesCount; i++ {
		var ifIndex uint16
		if err := binary.Read(r, binary.BigEndian, &ifIndex); err != nil {
			return nil, fmt.Errorf("reading interface %d: %w", i, err)
		}
	}

	var fieldsCount uint16
	if err := binary.Read(r, binary.BigEndian, &fieldsCount); err != nil {
		return nil, fmt.Errorf("reading fields count: %w", err)
	}
	cf.Fields, err = parseFields(r, cf.ConstantPool, fieldsCount)
	if err != nil {
		return nil, fmt.Errorf("parsing fields: %w", err)
	}

	var methodsCount uint16
	if err := binary.Read(r, binary.BigEndian, &methodsCount); err != nil {
		return nil, fmt.Errorf("reading methods count: %w", err)
	}
	cf.Methods, err = parseMethods(r, cf.ConstantPool, methodsCount)
	if err != nil {
		return nil, fmt.Errorf("parsing methods: %w", err)
	}

	// Class-level attributes: read and discard. This core reads no
	// class-level attribute (BootstrapMethods, SourceFile, etc. are all
	// irrelevant without invokedynamic or debug info).
	if err := skipAttributes(r, cf.ConstantPool); err != nil {
		return nil, fmt.Errorf("parsing class attributes: %w", err)
	}

	return cf, nil
}

func parseFields(r io.Reader, pool []ConstantPoolEntry, count uint16) ([]FieldInfo, error) {
	fields := make([]FieldInfo, count)
	for i := uint16(0); i < count; i++ {
		var accessFlags, nameIndex, descIndex uint16
		if err := binary.Read(r, binary.BigEndian, &accessFlags); err != nil {
			return nil, fmt.Errorf("reading field %d access flags: %w", i, err)
		}
		if err := binary.Read(r, binary.BigEndian, &nameIndex); err != nil {
			return nil, fmt.Errorf("reading field %d name index: %w", i, err)
		}
		if err := binary.Read(r, binary.BigEndian, &descIndex); err != nil {
			return nil, fmt.Errorf("reading field %d descriptor index: %w", i, err)
		}

		name, err := GetUtf8(pool, nameIndex)
		if err != nil {
			return nil, fmt.Errorf("resolving field %d name: %w", i, err)
		}
		desc, err := GetUtf8(pool, descIndex)
		if err != nil {
			return nil, fmt.Errorf("resolving field %d descriptor: %w", i, err)
		}

		if err := skipAttributes(r, pool); err != nil {
			return nil, fmt.Errorf("parsing field %d attributes: %w", i, err)
		}

		fields[i] = FieldInfo{AccessFlags: accessFlags, Name: name, Descriptor: desc}
	}
	return fields, nil
}

func parseMethods(r io.Reader, pool []ConstantPoolEntry, count uint16) ([]MethodInfo, error) {
	methods := make([]MethodInfo, count)
	for i := uint16(0); i < count; i++ {
		var accessFlags, nameIndex, descIndex, attrCount uint16
		if err := binary.Read(r, binary.BigEndian, &accessFlags); err != nil {
			return nil, fmt.Errorf("reading method %d access flags: %w", i, err)
		}
		if err := binary.Read(r, binary.BigEndian, &nameIndex); err != nil {
			return nil, fmt.Errorf("reading method %d name index: %w", i, err)
		}
		if err := binary.Read(r, binary.BigEndian, &descIndex); err != nil {
			return nil, fmt.Errorf("reading method %d descriptor index: %w", i, err)
		}
		if err := binary.Read(r, binary.BigEndian, &attrCount); err != nil {
			return nil, fmt.Errorf("reading method %d attributes count: %w", i, err)
		}

		name, err := GetUtf8(pool, nameIndex)
		if err != nil {
			return nil, fmt.Errorf("resolving method %d name: %w", i, err)
		}
		desc, err := GetUtf8(pool, descIndex)
		if err != nil {
			return nil, fmt.Errorf("resolving method %d descriptor: %w", i, err)
		}

		m := MethodInfo{AccessFlags: accessFlags, Name: name, Descriptor: desc}

		for a := uint16(0); a < attrCount; a++ {
			var attrNameIndex uint16
			if err := binary.Read(r, binary.BigEndian, &attrNameIndex); err != nil {
				return nil, fmt.Errorf("reading method %d attribute %d name index: %w", i, a, err)
			}
			var length uint32
			if err := binary.Read(r, binary.BigEndian, &length); err != nil {
				return nil, fmt.Errorf("reading method %d attribute %d length: %w", i, a, err)
			}
			data := make([]byte, length)
			if _, err := io.ReadFull(r, data); err != nil {
				return nil, fmt.Errorf("reading method %d attribute %d data: %w", i, a, err)
			}

			attrName, err := GetUtf8(pool, attrNameIndex)
			if err != nil {
				return nil, fmt.Errorf("resolving method %d attribute %d name: %w", i, a, err)
			}

			switch attrName {
			case "Code":
				code, err := parseCodeAttribute(data)
				if err != nil {
					return nil, fmt.Errorf("parsing Code attribute for method %s: %w", name, err)
				}
				m.Code = code
			case "RuntimeVisibleAnnotations":
				names, err := parseRuntimeVisibleAnnotations(data, pool)
				if err != nil {
					return nil, fmt.Errorf("parsing RuntimeVisibleAnnotations for method %s: %w", name, err)
				}
				m.Annotations = names
			default:
				// Unrecognized attribute: already consumed by length, discard.
			}
		}

		methods[i] = m
	}
	return methods, nil
}

// skipAttributes reads an attribute_info table and discards every entry by
// its declared length, without inspecting the contents.
func skipAttributes(r io.Reader, pool []ConstantPoolEntry) error {
	var count uint16
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return fmt.Errorf("reading attributes count: %w", err)
	}
	for i := uint16(0); i < count; i++ {
		var nameIndex uint16
		if err := binary.Read(r, binary.BigEndian, &nameIndex); err != nil {
			return fmt.Errorf("reading attribute %d name index: %w", i, err)
		}
		var length uint32
		if err := binary.Read(r, binary.BigEndian, &length); err != nil {
			return fmt.Errorf("reading attribute %d length: %w", i, err)
		}
		if _, err := io.CopyN(io.Discard, r, int64(length)); err != nil {
			return fmt.Errorf("reading attribute %d data: %w", i, err)
		}
	}
	return nil
}

func parseCodeAttribute(data []byte) (*CodeAttribute, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("Code attribute too short: %d bytes", len(data))
	}

	maxStack := binary.BigEndian.Uint16(data[0:2])
	maxLocals := binary.BigEndian.Uint16(data[2:4])
	codeLength := binary.BigEndian.Uint32(data[4:8])

	if len(data) < 8+int(codeLength) {
		return nil, fmt.Errorf("Code attribute data too short for code_length %d", codeLength)
	}

	code := make([]byte, codeLength)
	copy(code, data[8:8+codeLength])

	// The exception table and any trailing attributes follow; this core has
	// no exception model, so they are not parsed.

	return &CodeAttribute{MaxStack: maxStack, MaxLocals: maxLocals, Code: code}, nil
}

// parseRuntimeVisibleAnnotations reads an annotations list and returns the
// type-name descriptor of each one (e.g. "Lio/github/rvm/RVM$Mem;"). Element
// value pairs are not read: the three annotations this core recognizes are
// all bare markers with no elements.
func parseRuntimeVisibleAnnotations(data []byte, pool []ConstantPoolEntry) ([]string, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("RuntimeVisibleAnnotations data too short")
	}
	numAnnotations := binary.BigEndian.Uint16(data[0:2])
	offset := 2
	names := make([]string, 0, numAnnotations)
	for i := uint16(0); i < numAnnotations; i++ {
		if offset+4 > len(data) {
			return nil, fmt.Errorf("RuntimeVisibleAnnotations truncated at annotation %d", i)
		}
		typeIndex := binary.BigEndian.Uint16(data[offset : offset+2])
		numPairs := binary.BigEndian.Uint16(data[offset+2 : offset+4])
		offset += 4
		if numPairs != 0 {
			return nil, fmt.Errorf("annotation %d has element-value pairs, unsupported", i)
		}
		name, err := GetUtf8(pool, typeIndex)
		if err != nil {
			return nil, fmt.Errorf("resolving annotation %d type: %w", i, err)
		}
		names = append(names, name)
	}
	return names, nil
}

// ClassName returns the fully qualified name of this class.
func (cf *ClassFile) ClassName() (string, error) {
	return GetClassName(cf.ConstantPool, cf.ThisClass)
}

// SuperClassName returns the fully qualified name of the super class, or ""
// if SuperClass is 0 (only true for java/lang/Object).
func (cf *ClassFile) SuperClassName() (string, error) {
	if cf.SuperClass == 0 {
		return "", nil
	}
	return GetClassName(cf.ConstantPool, cf.SuperClass)
}

// FindMethod finds a method declared directly on this class by name and descriptor.
func (cf *ClassFile) FindMethod(name, descriptor string) *MethodInfo {
	for i := range cf.Methods {
		if cf.Methods[i].Name == name && cf.Methods[i].Descriptor == descriptor {
			return &cf.Methods[i]
		}
	}
	return nil
}
