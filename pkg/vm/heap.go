package vm

// Heap is a flat, 1-indexed value store. Slot 0 is the permanent null
// sentinel and is never overwritten or truncated away.
type Heap struct {
	slots []Value
}

// NewHeap returns a heap with slot 0 already reserved as Void (the null
// sentinel never holds a meaningful Value of its own; it is simply never
// addressed as a live object).
func NewHeap() *Heap {
	return &Heap{slots: []Value{Void()}}
}

// Len reports the current number of slots, including slot 0.
func (h *Heap) Len() int { return len(h.slots) }

// PutValue appends a raw value and returns its slot handle.
func (h *Heap) PutValue(v Value) int {
	h.slots = append(h.slots, v)
	return len(h.slots) - 1
}

// GetValue reads a raw slot. A handle at or past the end of the heap (a
// slot that Free has truncated away) reads as Void.
func (h *Heap) GetValue(handle int) Value {
	if handle >= len(h.slots) {
		return Void()
	}
	return h.slots[handle]
}

// NewObject appends a ClassIndex header slot for an object with fieldsCount
// fields. The caller must immediately append fieldsCount field values with
// PutValue (or NewObjectField) before any other heap mutation.
func (h *Heap) NewObject(classIdx, fieldsCount int) int {
	return h.PutValue(ClassIndexValue(classIdx, fieldsCount))
}

// NewObjectField appends one field slot following a NewObject header.
func (h *Heap) NewObjectField(v Value) {
	h.slots = append(h.slots, v)
}

// NewObjectArray appends an ArrayOf header, a length slot, and length
// null-reference element slots.
func (h *Heap) NewObjectArray(elementClassIdx, length int) int {
	handle := h.PutValue(ArrayOfValue(TReference, elementClassIdx))
	h.slots = append(h.slots, Int(int32(length)))
	for i := 0; i < length; i++ {
		h.slots = append(h.slots, Null())
	}
	return handle
}

// GetField reads object field i (0-based) of the object at handle h.
func (h *Heap) GetField(handle, i int) Value {
	return h.slots[handle+1+i]
}

// SetField writes object field i (0-based) of the object at handle h.
func (h *Heap) SetField(handle, i int, v Value) {
	h.slots[handle+1+i] = v
}

// ArrayLength reads the length slot of the array at handle h.
func (h *Heap) ArrayLength(handle int) int {
	return int(h.slots[handle+1].AsInt32())
}

// GetArrayElement reads array element i (0-based) of the array at handle h.
func (h *Heap) GetArrayElement(handle, i int) Value {
	return h.slots[handle+2+i]
}

// SetArrayElement writes array element i (0-based) of the array at handle h.
func (h *Heap) SetArrayElement(handle, i int, v Value) {
	h.slots[handle+2+i] = v
}

// Free recursively overwrites the object or array rooted at handle with Void,
// following References, ClassIndex field lists, and ArrayOf element lists,
// then truncates trailing Void slots so the heap length tracks the highest
// live slot. Slot 0 is never truncated away.
func (h *Heap) Free(handle int) {
	if handle == 0 {
		return
	}
	h.freeSlot(handle)
	h.truncate()
}

func (h *Heap) freeSlot(handle int) {
	if handle <= 0 || handle >= len(h.slots) {
		return
	}
	v := h.slots[handle]
	switch v.Type {
	case TVoid:
		return // already freed
	case TReference:
		if v.Ref != 0 {
			h.freeSlot(v.Ref)
		}
		h.slots[handle] = Void()
	case TClassIndex:
		fieldsCount := v.Extra
		for i := 0; i < fieldsCount; i++ {
			field := h.slots[handle+1+i]
			if field.Type == TReference && field.Ref != 0 {
				h.freeSlot(field.Ref)
			}
			h.slots[handle+1+i] = Void()
		}
		h.slots[handle] = Void()
	case TArrayOf:
		length := int(h.slots[handle+1].AsInt32())
		for i := 0; i < length; i++ {
			elem := h.slots[handle+2+i]
			if elem.Type == TReference && elem.Ref != 0 {
				h.freeSlot(elem.Ref)
			}
			h.slots[handle+2+i] = Void()
		}
		h.slots[handle+1] = Void()
		h.slots[handle] = Void()
	default:
		h.slots[handle] = Void()
	}
}

func (h *Heap) truncate() {
	end := len(h.slots)
	for end > 1 && h.slots[end-1].Type == TVoid {
		end--
	}
	h.slots = h.slots[:end]
}
