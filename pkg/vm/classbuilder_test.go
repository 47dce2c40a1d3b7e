// Package vm_test exercises the runtime end to end (class loading through
// the interpreter and native providers) as an external test package so it
// can wire pkg/native's providers without creating an import cycle (native
// imports vm).
package vm_test

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/sasakiyu/rvm/pkg/native"
	"github.com/sasakiyu/rvm/pkg/vm"
)

// classBuilder assembles a synthetic .class byte stream in memory, the same
// way pkg/classfile's own tests do: real compiled fixtures require a JDK
// this tree doesn't have, so tests build minimal well-formed images by hand
// and write them to a temp classpath for the loader to read.
type classBuilder struct {
	t    *testing.T
	cp   [][]byte // encoded constant pool entries, 1-indexed (cp[0] unused)
	this uint16
	super uint16

	fields  bytes.Buffer
	fieldN  uint16
	methods bytes.Buffer
	methodN uint16
}

func newClassBuilder(t *testing.T, name, superName string) *classBuilder {
	t.Helper()
	b := &classBuilder{t: t}
	b.cp = append(b.cp, nil) // index 0 placeholder
	nameIdx := b.utf8(name)
	b.this = b.class(nameIdx)
	if superName != "" {
		superNameIdx := b.utf8(superName)
		b.super = b.class(superNameIdx)
	}
	return b
}

func cpEntry(buf *bytes.Buffer, tag uint8, rest ...uint16) {
	buf.WriteByte(tag)
	for _, v := range rest {
		binary.Write(buf, binary.BigEndian, v)
	}
}

func (b *classBuilder) add(encode func(buf *bytes.Buffer)) uint16 {
	var buf bytes.Buffer
	encode(&buf)
	b.cp = append(b.cp, buf.Bytes())
	return uint16(len(b.cp) - 1)
}

func (b *classBuilder) utf8(s string) uint16 {
	return b.add(func(buf *bytes.Buffer) {
		buf.WriteByte(1) // TagUtf8
		binary.Write(buf, binary.BigEndian, uint16(len(s)))
		buf.WriteString(s)
	})
}

func (b *classBuilder) class(nameIdx uint16) uint16 {
	return b.add(func(buf *bytes.Buffer) { cpEntry(buf, 7, nameIdx) })
}

func (b *classBuilder) classRef(name string) uint16 {
	return b.class(b.utf8(name))
}

func (b *classBuilder) nameAndType(name, desc string) uint16 {
	nameIdx := b.utf8(name)
	descIdx := b.utf8(desc)
	return b.add(func(buf *bytes.Buffer) { cpEntry(buf, 12, nameIdx, descIdx) })
}

func (b *classBuilder) fieldref(className, name, desc string) uint16 {
	ci := b.classRef(className)
	nt := b.nameAndType(name, desc)
	return b.add(func(buf *bytes.Buffer) { cpEntry(buf, 9, ci, nt) })
}

func (b *classBuilder) methodref(className, name, desc string) uint16 {
	ci := b.classRef(className)
	nt := b.nameAndType(name, desc)
	return b.add(func(buf *bytes.Buffer) { cpEntry(buf, 10, ci, nt) })
}

func (b *classBuilder) integer(v int32) uint16 {
	return b.add(func(buf *bytes.Buffer) { cpEntry(buf, 3); binary.Write(buf, binary.BigEndian, v) })
}

func (b *classBuilder) stringConst(s string) uint16 {
	strIdx := b.utf8(s)
	return b.add(func(buf *bytes.Buffer) { cpEntry(buf, 8, strIdx) })
}

func (b *classBuilder) field(name, desc string, accessFlags uint16) {
	nameIdx := b.utf8(name)
	descIdx := b.utf8(desc)
	binary.Write(&b.fields, binary.BigEndian, accessFlags)
	binary.Write(&b.fields, binary.BigEndian, nameIdx)
	binary.Write(&b.fields, binary.BigEndian, descIdx)
	binary.Write(&b.fields, binary.BigEndian, uint16(0)) // attributes_count
	b.fieldN++
}

// methodSpec describes one method to append via addMethod.
type methodSpec struct {
	Name        string
	Descriptor  string
	AccessFlags uint16
	MaxStack    uint16
	MaxLocals   uint16
	Code        []byte // nil for native/abstract methods (no Code attribute)
	Annotations []string
}

func (b *classBuilder) method(spec methodSpec) {
	nameIdx := b.utf8(spec.Name)
	descIdx := b.utf8(spec.Descriptor)

	var attrCount uint16
	var attrs bytes.Buffer

	if spec.Code != nil {
		attrCount++
		codeNameIdx := b.utf8("Code")
		var codeBody bytes.Buffer
		binary.Write(&codeBody, binary.BigEndian, spec.MaxStack)
		binary.Write(&codeBody, binary.BigEndian, spec.MaxLocals)
		binary.Write(&codeBody, binary.BigEndian, uint32(len(spec.Code)))
		codeBody.Write(spec.Code)
		binary.Write(&codeBody, binary.BigEndian, uint16(0)) // exception_table_length
		binary.Write(&codeBody, binary.BigEndian, uint16(0)) // code's own attributes_count
		binary.Write(&attrs, binary.BigEndian, codeNameIdx)
		binary.Write(&attrs, binary.BigEndian, uint32(codeBody.Len()))
		attrs.Write(codeBody.Bytes())
	}

	if len(spec.Annotations) > 0 {
		attrCount++
		annNameIdx := b.utf8("RuntimeVisibleAnnotations")
		var annBody bytes.Buffer
		binary.Write(&annBody, binary.BigEndian, uint16(len(spec.Annotations)))
		for _, a := range spec.Annotations {
			typeIdx := b.utf8(a)
			binary.Write(&annBody, binary.BigEndian, typeIdx)
			binary.Write(&annBody, binary.BigEndian, uint16(0)) // num_element_value_pairs
		}
		binary.Write(&attrs, binary.BigEndian, annNameIdx)
		binary.Write(&attrs, binary.BigEndian, uint32(annBody.Len()))
		attrs.Write(annBody.Bytes())
	}

	binary.Write(&b.methods, binary.BigEndian, spec.AccessFlags)
	binary.Write(&b.methods, binary.BigEndian, nameIdx)
	binary.Write(&b.methods, binary.BigEndian, descIdx)
	binary.Write(&b.methods, binary.BigEndian, attrCount)
	b.methods.Write(attrs.Bytes())
	b.methodN++
}

func (b *classBuilder) bytes() []byte {
	var out bytes.Buffer
	binary.Write(&out, binary.BigEndian, uint32(0xCAFEBABE))
	binary.Write(&out, binary.BigEndian, uint16(0))  // minor
	binary.Write(&out, binary.BigEndian, uint16(52)) // major

	binary.Write(&out, binary.BigEndian, uint16(len(b.cp)))
	for i := 1; i < len(b.cp); i++ {
		out.Write(b.cp[i])
	}

	binary.Write(&out, binary.BigEndian, uint16(0x0021)) // access_flags: PUBLIC|SUPER
	binary.Write(&out, binary.BigEndian, b.this)
	binary.Write(&out, binary.BigEndian, b.super)
	binary.Write(&out, binary.BigEndian, uint16(0)) // interfaces_count

	binary.Write(&out, binary.BigEndian, b.fieldN)
	out.Write(b.fields.Bytes())

	binary.Write(&out, binary.BigEndian, b.methodN)
	out.Write(b.methods.Bytes())

	binary.Write(&out, binary.BigEndian, uint16(0)) // class attributes_count

	return out.Bytes()
}

// writeClass writes a built class's bytes as "<dir>/<name>.class",
// creating any package subdirectories name implies.
func writeClass(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	path := filepath.Join(dir, name+".class")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

// newTestVM builds a VM rooted at a fresh classpath dir with all built-in
// classes synthesized and the native providers wired, the way cmd/rvm does.
func newTestVM(t *testing.T, stdout *bytes.Buffer) (*vm.VM, string) {
	t.Helper()
	dir := t.TempDir()
	program := vm.NewProgram()
	heap := vm.NewHeap()
	loader := vm.NewClassLoader(dir, program, heap, false)
	registry := native.NewRegistry(
		native.NewObjectProvider(),
		native.NewIntegerProvider(),
		native.NewStringBuilderProvider(),
		native.NewRVMProvider(stdout),
	)
	machine := vm.NewVM(program, heap, loader, registry, false)
	return machine, dir
}
