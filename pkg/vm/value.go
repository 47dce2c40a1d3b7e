// Package vm implements the bytecode interpreter, heap, program image, and
// class loader for the runtime: the pieces that give the parsed class-file
// structure (pkg/classfile) a meaning.
package vm

import "fmt"

// Type tags the kind of a Value. Each has a declared zero value except Void.
type Type uint8

const (
	TByte Type = iota
	TShort
	TInt
	TLong
	TChar
	TFloat
	TDouble
	TBoolean
	TReference
	TClassIndex
	TArrayOf
	TString
	TVoid
	TReturnType
)

func (t Type) String() string {
	switch t {
	case TByte:
		return "byte"
	case TShort:
		return "short"
	case TInt:
		return "int"
	case TLong:
		return "long"
	case TChar:
		return "char"
	case TFloat:
		return "float"
	case TDouble:
		return "double"
	case TBoolean:
		return "boolean"
	case TReference:
		return "reference"
	case TClassIndex:
		return "classIndex"
	case TArrayOf:
		return "arrayOf"
	case TString:
		return "string"
	case TVoid:
		return "void"
	case TReturnType:
		return "returnType"
	default:
		return "unknown"
	}
}

// Zero returns the zero value for a descriptor-derived type. Void has none;
// for Void and the non-descriptor tags Zero falls back to Int(0).
func (t Type) Zero() Value {
	switch t {
	case TByte:
		return Value{Type: TByte}
	case TShort:
		return Value{Type: TShort}
	case TInt:
		return Value{Type: TInt}
	case TLong:
		return Value{Type: TLong}
	case TChar:
		return Value{Type: TChar}
	case TFloat:
		return Value{Type: TFloat}
	case TDouble:
		return Value{Type: TDouble}
	case TBoolean:
		return Value{Type: TBoolean}
	case TReference:
		return Value{Type: TReference}
	default:
		return Value{Type: TInt}
	}
}

// Value is the tagged sum flowing through the operand stack, locals, heap,
// and constant pool. Only the fields relevant to Type are meaningful.
type Value struct {
	Type Type

	Int   int64 // Byte, Short, Int, Long, Char, Boolean hold their integral payload here
	Float float64
	Ref   int        // handle for Reference; class_idx for ClassIndex/ArrayOf (see Extra)
	Extra int        // fields_count for ClassIndex, unused for ArrayOf (length lives on the heap)
	Elem  Type       // element type for ArrayOf
	Str   string     // for String
}

// Null is the Reference(0) sentinel.
func Null() Value { return Value{Type: TReference, Ref: 0} }

func IsNull(v Value) bool { return v.Type == TReference && v.Ref == 0 }

func Int(i int32) Value    { return Value{Type: TInt, Int: int64(i)} }
func Long(i int64) Value   { return Value{Type: TLong, Int: i} }
func Byte(i int8) Value    { return Value{Type: TByte, Int: int64(i)} }
func Short(i int16) Value  { return Value{Type: TShort, Int: int64(i)} }
func Char(c uint16) Value  { return Value{Type: TChar, Int: int64(c)} }
func Bool(b bool) Value {
	if b {
		return Value{Type: TBoolean, Int: 1}
	}
	return Value{Type: TBoolean, Int: 0}
}
func Reference(handle int) Value { return Value{Type: TReference, Ref: handle} }
func ClassIndexValue(classIdx, fieldsCount int) Value {
	return Value{Type: TClassIndex, Ref: classIdx, Extra: fieldsCount}
}
func ArrayOfValue(elem Type, classIdx int) Value {
	return Value{Type: TArrayOf, Elem: elem, Ref: classIdx}
}
func StringValue(s string) Value { return Value{Type: TString, Str: s} }
func Void() Value                { return Value{Type: TVoid} }

// AsInt32 returns the integral payload truncated to int32, for arithmetic
// opcodes that operate on Int values.
func (v Value) AsInt32() int32 { return int32(v.Int) }

// Equal compares two values component-wise by type and payload.
func Equal(a, b Value) bool {
	if a.Type != b.Type {
		return false
	}
	switch a.Type {
	case TByte, TShort, TInt, TLong, TChar, TBoolean:
		return a.Int == b.Int
	case TFloat, TDouble:
		return a.Float == b.Float
	case TReference:
		return a.Ref == b.Ref
	case TClassIndex:
		return a.Ref == b.Ref && a.Extra == b.Extra
	case TArrayOf:
		return a.Elem == b.Elem && a.Ref == b.Ref
	case TString:
		return a.Str == b.Str
	case TVoid:
		return true
	default:
		return false
	}
}

// RenderText renders a value the way StringBuilder.append does: primitives
// decimally, booleans as "0"/"1", references dereferenced by the caller
// before reaching here.
func (v Value) RenderText() string {
	switch v.Type {
	case TByte, TShort, TInt, TChar:
		return fmt.Sprintf("%d", v.Int)
	case TLong:
		return fmt.Sprintf("%d", v.Int)
	case TBoolean:
		return fmt.Sprintf("%d", v.Int)
	case TFloat, TDouble:
		return fmt.Sprintf("%g", v.Float)
	case TString:
		return v.Str
	default:
		return fmt.Sprintf("%v", v)
	}
}
