package vm

import (
	"fmt"
	"log"
	"time"
)

// NativeInvoker dispatches a native (class, method) call to its intrinsic
// implementation. It returns handled=false when nothing claims the call, so
// the VM can fall back to ErrNativeNotFound with the right symbol attached.
type NativeInvoker interface {
	Invoke(vm *VM, classIdx, methodInClassIdx int, args []Value) (result Value, handled bool, err error)
}

// VM ties together the program image, heap, class loader, and native
// registry, and runs the fetch/decode/dispatch loop over an explicit frame
// stack (not Go call recursion, so interpreter recursion depth never grows
// the host stack).
type VM struct {
	Program *Program
	Heap    *Heap
	Loader  *ClassLoader
	Native  NativeInvoker
	Verbose bool

	Frames []*Frame

	startTime time.Time

	getAnswerCI int
	getAnswerMI int
	memEntryCI  int
}

// NewVM constructs a VM. Native may be nil only for tests that never reach a
// native call.
func NewVM(program *Program, heap *Heap, loader *ClassLoader, native NativeInvoker, verbose bool) *VM {
	return &VM{
		Program:     program,
		Heap:        heap,
		Loader:      loader,
		Native:      native,
		Verbose:     verbose,
		startTime:   time.Now(),
		getAnswerCI: -1,
		memEntryCI:  -1,
	}
}

// TickMillis returns milliseconds elapsed since the VM started, for
// RVM.tick().
func (m *VM) TickMillis() int32 {
	return int32(time.Since(m.startTime).Milliseconds())
}

func (m *VM) topFrame() *Frame {
	return m.Frames[len(m.Frames)-1]
}

// Start locates `main` in rootClassName, pushes its frame, and runs the
// interpreter loop until the frame stack drains or a fatal error occurs.
func (m *VM) Start(rootClassName string) error {
	rootIdx, err := m.Loader.Load(rootClassName)
	if err != nil {
		return fmt.Errorf("loading root class %s: %w", rootClassName, err)
	}
	class := m.Program.Classes[rootIdx]
	mi, ok := class.MethodByName("main")
	if !ok {
		return fmt.Errorf("%s has no main method: %w", rootClassName, ErrUnresolvedMethod)
	}
	method := &class.Methods[mi]
	if method.CodePtr < 0 {
		return fmt.Errorf("%s.main: %w", rootClassName, ErrAbstractMethodInvoked)
	}

	frame := NewFrame(rootIdx, mi, class.ConstantPoolBase, method.MaxStack, method.MaxLocals)
	m.Frames = append(m.Frames, frame)

	return m.run()
}

func (m *VM) run() error {
	for len(m.Frames) > 0 {
		frame := m.topFrame()
		method := m.Program.Method(frame.ClassIdx, frame.MethodInClassIdx)
		code := m.Program.Code[method.CodePtr : method.CodePtr+method.CodeLen]

		result, err := m.step(frame, code)
		if err != nil {
			return err
		}

		switch result.kind {
		case stepNop:
			// continue
		case stepCall:
			if err := m.call(frame, result.classIdx, result.methodIdx); err != nil {
				return err
			}
		case stepReturn:
			if err := m.doReturn(result.value); err != nil {
				return err
			}
		}
	}
	return nil
}

// LogState emits a diagnostic dump of the frame stack, heap, and class
// table when verbose tracing is enabled, for RVM.logState().
func (m *VM) LogState() {
	if !m.Verbose {
		return
	}
	top := m.topFrame()
	log.Printf("logState: frames=%d heap=%d classes=%d top.locals=%v top.stack=%v",
		len(m.Frames), m.Heap.Len(), len(m.Program.Classes), top.Local, top.Stack)
}

// newInstance allocates a fresh object of classIdx with every field set to
// its descriptor-derived zero value, used by both `new` and `anewarray`.
func (m *VM) newInstance(classIdx int) (int, error) {
	class := m.Program.Classes[classIdx]
	handle := m.Heap.NewObject(classIdx, len(class.Fields))
	for _, f := range class.Fields {
		t, _, err := parseFieldType(f.Descriptor, 0)
		if err != nil {
			return 0, fmt.Errorf("zero value for field %s.%s: %w", class.Name, f.Name, err)
		}
		m.Heap.NewObjectField(t.Zero())
	}
	return handle, nil
}

func (m *VM) getAnswerTarget() (ci, mi int, err error) {
	if m.getAnswerCI < 0 {
		ci, err := m.Loader.Load("io/github/rvm/RVM")
		if err != nil {
			return 0, 0, fmt.Errorf("loading io/github/rvm/RVM for memoization: %w", err)
		}
		class := m.Program.Classes[ci]
		mi, ok := class.MethodByName("getAnswer")
		if !ok {
			return 0, 0, fmt.Errorf("io/github/rvm/RVM.getAnswer: %w", ErrUnresolvedMethod)
		}
		m.getAnswerCI = ci
		m.getAnswerMI = mi
	}
	return m.getAnswerCI, m.getAnswerMI, nil
}

func (m *VM) memEntryClassIdx() (int, error) {
	if m.memEntryCI < 0 {
		ci, err := m.Loader.Load("io/github/rvm/MemEntry")
		if err != nil {
			return 0, fmt.Errorf("loading io/github/rvm/MemEntry for memoization: %w", err)
		}
		m.memEntryCI = ci
	}
	return m.memEntryCI, nil
}
