package classfile

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// parseConstantPool reads constant_pool_count-1 entries from r. The returned
// slice is 1-indexed: index 0 is nil, matching the raw class-file numbering.
func parseConstantPool(r io.Reader, count uint16) ([]ConstantPoolEntry, error) {
	pool := make([]ConstantPoolEntry, count)

	for i := uint16(1); i < count; i++ {
		var tag uint8
		if err := binary.Read(r, binary.BigEndian, &tag); err != nil {
			return nil, fmt.Errorf("reading constant pool tag at index %d: %w", i, err)
		}

		switch tag {
		case TagUtf8:
			var length uint16
			if err := binary.Read(r, binary.BigEndian, &length); err != nil {
				return nil, fmt.Errorf("reading Utf8 length at index %d: %w", i, err)
			}
			bytes := make([]byte, length)
			if _, err := io.ReadFull(r, bytes); err != nil {
				return nil, fmt.Errorf("reading Utf8 bytes at index %d: %w", i, err)
			}
			pool[i] = &ConstantUtf8{Value: string(bytes)}

		case TagInteger:
			var val int32
			if err := binary.Read(r, binary.BigEndian, &val); err != nil {
				return nil, fmt.Errorf("reading Integer at index %d: %w", i, err)
			}
			pool[i] = &ConstantInteger{Value: val}

		case TagFloat:
			var bits uint32
			if err := binary.Read(r, binary.BigEndian, &bits); err != nil {
				return nil, fmt.Errorf("reading Float at index %d: %w", i, err)
			}
			pool[i] = &ConstantFloat{Value: math.Float32frombits(bits)}

		case TagLong:
			var val int64
			if err := binary.Read(r, binary.BigEndian, &val); err != nil {
				return nil, fmt.Errorf("reading Long at index %d: %w", i, err)
			}
			pool[i] = &ConstantLong{Value: val}
			i++ // long occupies two constant pool slots

		case TagDouble:
			var bits uint64
			if err := binary.Read(r, binary.BigEndian, &bits); err != nil {
				return nil, fmt.Errorf("reading Double at index %d: %w", i, err)
			}
			pool[i] = &ConstantDouble{Value: math.Float64frombits(bits)}
			i++ // double occupies two constant pool slots

		case TagClass:
			var nameIndex uint16
			if err := binary.Read(r, binary.BigEndian, &nameIndex); err != nil {
				return nil, fmt.Errorf("reading Class at index %d: %w", i, err)
			}
			pool[i] = &ConstantClass{NameIndex: nameIndex}

		case TagString:
			var stringIndex uint16
			if err := binary.Read(r, binary.BigEndian, &stringIndex); err != nil {
				return nil, fmt.Errorf("reading String at index %d: %w", i, err)
			}
			pool[i] = &ConstantString{StringIndex: stringIndex}

		case TagFieldref:
			var classIndex, natIndex uint16
			if err := binary.Read(r, binary.BigEndian, &classIndex); err != nil {
				return nil, fmt.Errorf("reading Fieldref class_index at index %d: %w", i, err)
			}
			if err := binary.Read(r, binary.BigEndian, &natIndex); err != nil {
				return nil, fmt.Errorf("reading Fieldref name_and_type_index at index %d: %w", i, err)
			}
			pool[i] = &ConstantFieldref{ClassIndex: classIndex, NameAndTypeIndex: natIndex}

		case TagMethodref:
			var classIndex, natIndex uint16
			if err := binary.Read(r, binary.BigEndian, &classIndex); err != nil {
				return nil, fmt.Errorf("reading Methodref class_index at index %d: %w", i, err)
			}
			if err := binary.Read(r, binary.BigEndian, &natIndex); err != nil {
				return nil, fmt.Errorf("reading Methodref name_and_type_index at index %d: %w", i, err)
			}
			pool[i] = &ConstantMethodref{ClassIndex: classIndex, NameAndTypeIndex: natIndex}

		case TagInterfaceMethodref:
			var classIndex, natIndex uint16
			if err := binary.Read(r, binary.BigEndian, &classIndex); err != nil {
				return nil, fmt.Errorf("reading InterfaceMethodref class_index at index %d: %w", i, err)
			}
			if err := binary.Read(r, binary.BigEndian, &natIndex); err != nil {
				return nil, fmt.Errorf("reading InterfaceMethodref name_and_type_index at index %d: %w", i, err)
			}
			pool[i] = &ConstantInterfaceMethodref{ClassIndex: classIndex, NameAndTypeIndex: natIndex}

		case TagNameAndType:
			var nameIndex, descIndex uint16
			if err := binary.Read(r, binary.BigEndian, &nameIndex); err != nil {
				return nil, fmt.Errorf("reading NameAndType name_index at index %d: %w", i, err)
			}
			if err := binary.Read(r, binary.BigEndian, &descIndex); err != nil {
				return nil, fmt.Errorf("reading NameAndType descriptor_index at index %d: %w", i, err)
			}
			pool[i] = &ConstantNameAndType{NameIndex: nameIndex, DescriptorIndex: descIndex}

		default:
			return nil, fmt.Errorf("unknown constant pool tag %d at index %d", tag, i)
		}
	}

	return pool, nil
}

// GetUtf8 returns the Utf8 string at the given constant pool index.
func GetUtf8(pool []ConstantPoolEntry, index uint16) (string, error) {
	if int(index) >= len(pool) || pool[index] == nil {
		return "", fmt.Errorf("invalid constant pool index %d", index)
	}
	utf8, ok := pool[index].(*ConstantUtf8)
	if !ok {
		return "", fmt.Errorf("constant pool index %d is not Utf8 (tag=%d)", index, pool[index].Tag())
	}
	return utf8.Value, nil
}

// GetClassName returns the class name referenced by a CONSTANT_Class entry.
func GetClassName(pool []ConstantPoolEntry, classIndex uint16) (string, error) {
	if int(classIndex) >= len(pool) || pool[classIndex] == nil {
		return "", fmt.Errorf("invalid constant pool index %d", classIndex)
	}
	class, ok := pool[classIndex].(*ConstantClass)
	if !ok {
		return "", fmt.Errorf("constant pool index %d is not Class", classIndex)
	}
	return GetUtf8(pool, class.NameIndex)
}

// NameAndType resolves a CONSTANT_NameAndType entry into its two strings.
func NameAndType(pool []ConstantPoolEntry, natIndex uint16) (name, descriptor string, err error) {
	if int(natIndex) >= len(pool) || pool[natIndex] == nil {
		return "", "", fmt.Errorf("invalid NameAndType index %d", natIndex)
	}
	nat, ok := pool[natIndex].(*ConstantNameAndType)
	if !ok {
		return "", "", fmt.Errorf("constant pool index %d is not NameAndType", natIndex)
	}
	name, err = GetUtf8(pool, nat.NameIndex)
	if err != nil {
		return "", "", fmt.Errorf("resolving name: %w", err)
	}
	descriptor, err = GetUtf8(pool, nat.DescriptorIndex)
	if err != nil {
		return "", "", fmt.Errorf("resolving descriptor: %w", err)
	}
	return name, descriptor, nil
}
