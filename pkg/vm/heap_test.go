package vm

import "testing"

func TestHeapNewObjectInvariant(t *testing.T) {
	h := NewHeap()
	classIdx := 7
	handle := h.NewObject(classIdx, 2)
	h.NewObjectField(Int(0))
	h.NewObjectField(Null())

	header := h.GetValue(handle)
	if header.Type != TClassIndex || header.Ref != classIdx || header.Extra != 2 {
		t.Fatalf("header = %+v, want ClassIndex(%d, 2)", header, classIdx)
	}
	if got := h.GetField(handle, 0); !Equal(got, Int(0)) {
		t.Errorf("field 0 = %+v, want Int(0)", got)
	}
	if got := h.GetField(handle, 1); !Equal(got, Null()) {
		t.Errorf("field 1 = %+v, want Null()", got)
	}
}

func TestHeapNewObjectArrayInvariant(t *testing.T) {
	h := NewHeap()
	elemClass := 3
	handle := h.NewObjectArray(elemClass, 4)

	if got := h.ArrayLength(handle); got != 4 {
		t.Fatalf("ArrayLength = %d, want 4", got)
	}
	header := h.GetValue(handle)
	if header.Type != TArrayOf || header.Ref != elemClass {
		t.Fatalf("header = %+v, want ArrayOf(Reference, %d)", header, elemClass)
	}
	for i := 0; i < 4; i++ {
		if got := h.GetArrayElement(handle, i); !IsNull(got) {
			t.Errorf("element %d = %+v, want null", i, got)
		}
	}
}

func TestHeapNullSentinel(t *testing.T) {
	h := NewHeap()
	if h.Len() != 1 {
		t.Fatalf("fresh heap length = %d, want 1 (slot 0 reserved)", h.Len())
	}
	if got := h.GetValue(0); got.Type != TVoid {
		t.Errorf("slot 0 = %+v, want Void", got)
	}
}

func TestHeapFreeTruncatesTrailingObject(t *testing.T) {
	h := NewHeap()
	a := h.NewObject(1, 1)
	h.NewObjectField(Int(5))
	lenBefore := h.Len()

	h.Free(a)

	if h.Len() != 1 {
		t.Errorf("heap length after freeing the only object = %d, want 1", h.Len())
	}
	_ = lenBefore
}

func TestHeapFreeDoesNotTruncatePastLiveSlot(t *testing.T) {
	h := NewHeap()
	a := h.NewObject(1, 0)
	b := h.NewObject(1, 0)

	h.Free(a)

	// a's header is Void but b is still live right after it, so the heap
	// must not truncate away b's slot.
	if h.Len() <= b {
		t.Fatalf("heap length = %d truncated past live handle %d", h.Len(), b)
	}
	if got := h.GetValue(a); got.Type != TVoid {
		t.Errorf("freed slot %d = %+v, want Void", a, got)
	}
	if got := h.GetValue(b); got.Type != TClassIndex {
		t.Errorf("live slot %d = %+v, want still ClassIndex", b, got)
	}
}

func TestHeapFreeFollowsObjectReferences(t *testing.T) {
	h := NewHeap()
	inner := h.NewObject(2, 0)
	outer := h.NewObject(1, 1)
	h.NewObjectField(Reference(inner))

	h.Free(outer)

	if got := h.GetValue(inner); got.Type != TVoid {
		t.Errorf("inner object at %d = %+v, want Void after outer free", inner, got)
	}
}

func TestHeapFreeFollowsArrayElements(t *testing.T) {
	h := NewHeap()
	elem := h.NewObject(1, 0)
	arr := h.NewObjectArray(1, 1)
	h.SetArrayElement(arr, 0, Reference(elem))

	h.Free(arr)

	if got := h.GetValue(elem); got.Type != TVoid {
		t.Errorf("array element object at %d = %+v, want Void after array free", elem, got)
	}
}

func TestHeapFreeNeverTruncatesSlotZero(t *testing.T) {
	h := NewHeap()
	a := h.NewObject(1, 0)
	h.Free(a)

	if h.Len() < 1 {
		t.Fatalf("heap length = %d, slot 0 must always survive", h.Len())
	}
	if got := h.GetValue(0); got.Type != TVoid {
		t.Errorf("slot 0 = %+v, want Void (its original reserved value)", got)
	}
}

func TestHeapAllocationNeverReusesMiddleHandles(t *testing.T) {
	h := NewHeap()
	a := h.NewObject(1, 0)
	c := h.NewObject(1, 0) // keeps a from being truncated away on free
	h.Free(a)
	b := h.NewObject(1, 0)

	if b == a {
		t.Errorf("handle %d reused a freed middle handle %d; allocation must stay sequential", b, a)
	}
	if b <= c {
		t.Errorf("new handle %d did not allocate past the existing live handle %d", b, c)
	}
}
