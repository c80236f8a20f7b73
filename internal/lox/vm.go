package lox

import (
	"fmt"
	"strings"
)

// Sizing mirrors clox's vm.h exactly (original_source/src/clox/vm.h):
// 64 call frames deep, each frame good for 256 stack slots.
const (
	framesMax = 64
	stackMax  = framesMax * 256
)

// frame is one call's activation record: the closure being executed, an
// instruction pointer into its chunk, and the base slot of this frame's
// window into the shared value stack (section 4.4).
type frame struct {
	closure *ObjClosure
	ip      int
	base    int
}

// InterpretResult classifies how a Compile+Run attempt ended (section 6).
type InterpretResult int

const (
	ResultOK InterpretResult = iota
	ResultCompileError
	ResultRuntimeError
)

// CompileError aggregates every diagnostic the compiler produced; each
// message is already formatted "[line N] Error ...: reason" (section 7).
type CompileError struct {
	Messages []string
}

func (e *CompileError) Error() string { return strings.Join(e.Messages, "\n") }

// RuntimeError carries the faulting message plus a top-down call-stack
// backtrace rendered the way clox's runtimeError() does (section 7).
type RuntimeError struct {
	Message   string
	Backtrace []string
}

func (e *RuntimeError) Error() string {
	return e.Message + "\n" + strings.Join(e.Backtrace, "\n")
}

// VM executes one chunk of compiled bytecode against a shared heap and
// globals table. A single VM is reused across REPL lines so that global
// variables and interned strings persist between calls (section 5).
type VM struct {
	stack  []Value
	frames []frame

	globals map[*ObjString]Value
	openUps *ObjUpvalue // head of the open-upvalue list, highest slot first

	heap   *Heap
	Stdout stringWriter
}

// stringWriter is the minimal surface `print` needs; *bufio.Writer,
// *os.File and *strings.Builder all satisfy it.
type stringWriter interface {
	WriteString(string) (int, error)
}

func newVM(heap *Heap, out stringWriter) *VM {
	vm := &VM{
		stack:   make([]Value, 0, stackMax),
		frames:  make([]frame, 0, framesMax),
		globals: make(map[*ObjString]Value),
		heap:    heap,
		Stdout:  out,
	}
	heap.vm = vm
	registerNatives(vm)
	return vm
}

func (vm *VM) push(v Value) { vm.stack = append(vm.stack, v) }

func (vm *VM) pop() Value {
	v := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return v
}

// peek looks at the stack without popping, so the operand stays rooted
// across any allocation a binary op's result construction might trigger
// (section 4.5's "peek, don't pop" discipline).
func (vm *VM) peek(distance int) Value {
	return vm.stack[len(vm.stack)-1-distance]
}

func (vm *VM) resetStack() {
	vm.stack = vm.stack[:0]
	vm.frames = vm.frames[:0]
	vm.openUps = nil
}

// markRoots is called by the collector before every sweep: every live
// stack slot, every frame's closure, the open-upvalue chain and the
// globals table are roots (section 4.5).
func (vm *VM) markRoots(h *Heap) {
	for _, v := range vm.stack {
		h.markValue(v)
	}
	for _, f := range vm.frames {
		h.markObject(f.closure)
	}
	for uv := vm.openUps; uv != nil; uv = uv.next {
		h.markObject(uv)
	}
	for k, v := range vm.globals {
		h.markObject(k)
		h.markValue(v)
	}
}

func (vm *VM) currentFrame() *frame { return &vm.frames[len(vm.frames)-1] }

func (vm *VM) runtimeError(format string, args ...interface{}) *RuntimeError {
	msg := fmt.Sprintf(format, args...)

	backtrace := make([]string, 0, len(vm.frames))
	for i := len(vm.frames) - 1; i >= 0; i-- {
		f := &vm.frames[i]
		fn := f.closure.fn
		line := 0
		if f.ip-1 >= 0 && f.ip-1 < len(fn.Chunk.Lines) {
			line = fn.Chunk.Lines[f.ip-1]
		}
		name := "script"
		if fn.Name != nil {
			name = fn.Name.chars + "()"
		}
		backtrace = append(backtrace, fmt.Sprintf("[line %d] in %s", line, name))
	}

	vm.resetStack()
	return &RuntimeError{Message: msg, Backtrace: backtrace}
}

// run is the bytecode dispatch loop, a direct switch over the current
// frame's next byte (section 4.4). It returns on OP_RETURN unwinding the
// outermost frame, or on the first runtime error.
func (vm *VM) run() (Value, *RuntimeError) {
	f := vm.currentFrame()

	readByte := func() byte {
		b := f.closure.fn.Chunk.Code[f.ip]
		f.ip++
		return b
	}
	readShort := func() int {
		hi := readByte()
		lo := readByte()
		return int(hi)<<8 | int(lo)
	}
	readConstant := func() Value {
		return f.closure.fn.Chunk.Constants[readByte()]
	}
	readString := func() *ObjString {
		return readConstant().(*ObjString)
	}

	for {
		op := OpCode(readByte())

		switch op {
		case OpConstant:
			vm.push(readConstant())
		case OpNil:
			vm.push(Nil)
		case OpTrue:
			vm.push(BoolValue(true))
		case OpFalse:
			vm.push(BoolValue(false))
		case OpPop:
			vm.pop()

		case OpGetLocal:
			slot := int(readByte())
			vm.push(vm.stack[f.base+slot])
		case OpSetLocal:
			slot := int(readByte())
			vm.stack[f.base+slot] = vm.peek(0)

		case OpGetGlobal:
			name := readString()
			v, ok := vm.globals[name]
			if !ok {
				return Nil, vm.runtimeError("Undefined variable '%s'.", name.chars)
			}
			vm.push(v)
		case OpDefineGlobal:
			name := readString()
			vm.globals[name] = vm.peek(0)
			vm.pop()
		case OpSetGlobal:
			name := readString()
			if _, ok := vm.globals[name]; !ok {
				return Nil, vm.runtimeError("Undefined variable '%s'.", name.chars)
			}
			vm.globals[name] = vm.peek(0)

		case OpGetUpvalue:
			slot := int(readByte())
			vm.push(f.closure.upvalues[slot].get())
		case OpSetUpvalue:
			slot := int(readByte())
			f.closure.upvalues[slot].set(vm.peek(0))
		case OpCloseUpvalue:
			vm.closeUpvalues(len(vm.stack) - 1)
			vm.pop()

		case OpGetProperty:
			if _, err := vm.getProperty(readString()); err != nil {
				return Nil, err
			}
		case OpSetProperty:
			if err := vm.setProperty(readString()); err != nil {
				return Nil, err
			}
		case OpGetSuper:
			name := readString()
			superclass := vm.pop().(*ObjClass)
			receiver := vm.pop()
			bound, err := vm.resolveBoundMethod(superclass, name, receiver)
			if err != nil {
				return Nil, err
			}
			vm.push(bound)

		case OpEqual:
			b := vm.pop()
			a := vm.pop()
			vm.push(BoolValue(valuesEqual(a, b)))
		case OpGreater:
			if err := vm.binaryNumberOp(op); err != nil {
				return Nil, err
			}
		case OpLess:
			if err := vm.binaryNumberOp(op); err != nil {
				return Nil, err
			}

		case OpAdd:
			if err := vm.add(); err != nil {
				return Nil, err
			}
		case OpSubtract, OpMultiply, OpDivide:
			if err := vm.binaryNumberOp(op); err != nil {
				return Nil, err
			}
		case OpNot:
			vm.push(BoolValue(isFalsey(vm.pop())))
		case OpNegate:
			n, ok := vm.peek(0).(NumberValue)
			if !ok {
				return Nil, vm.runtimeError("Operand must be a number.")
			}
			vm.pop()
			vm.push(-n)

		case OpPrint:
			vm.Stdout.WriteString(vm.pop().String())
			vm.Stdout.WriteString("\n")

		case OpJump:
			offset := readShort()
			f.ip += offset
		case OpJumpIfFalse:
			offset := readShort()
			if isFalsey(vm.peek(0)) {
				f.ip += offset
			}
		case OpLoop:
			offset := readShort()
			f.ip -= offset

		case OpCall:
			argc := int(readByte())
			if err := vm.callValue(vm.peek(argc), argc); err != nil {
				return Nil, err
			}
			f = vm.currentFrame()
		case OpInvoke:
			method := readString()
			argc := int(readByte())
			if err := vm.invoke(method, argc); err != nil {
				return Nil, err
			}
			f = vm.currentFrame()
		case OpSuperInvoke:
			method := readString()
			argc := int(readByte())
			superclass := vm.pop().(*ObjClass)
			if err := vm.invokeFromClass(superclass, method, argc); err != nil {
				return Nil, err
			}
			f = vm.currentFrame()

		case OpClosure:
			fn := readConstant().(*ObjFunction)
			closure := vm.heap.newClosure(fn)
			vm.push(closure) // root it before the capture loop's own allocations run
			for i := 0; i < fn.UpvalueCount; i++ {
				isLocal := readByte()
				index := int(readByte())
				if isLocal != 0 {
					closure.upvalues[i] = vm.captureUpvalue(f.base + index)
				} else {
					closure.upvalues[i] = f.closure.upvalues[index]
				}
			}

		case OpReturn:
			result := vm.pop()
			vm.closeUpvalues(f.base)
			vm.frames = vm.frames[:len(vm.frames)-1]
			if len(vm.frames) == 0 {
				return result, nil
			}
			vm.stack = vm.stack[:f.base]
			vm.push(result)
			f = vm.currentFrame()

		case OpClass:
			name := readString()
			vm.push(vm.heap.newClass(name))
		case OpInherit:
			superVal := vm.peek(1)
			superclass, ok := superVal.(*ObjClass)
			if !ok {
				return Nil, vm.runtimeError("Superclass must be a class.")
			}
			subclass := vm.peek(0).(*ObjClass)
			for name, method := range superclass.Methods {
				subclass.Methods[name] = method
			}
			vm.pop() // subclass
		case OpMethod:
			vm.defineMethod(readString())

		default:
			return Nil, vm.runtimeError("Unknown opcode %d.", op)
		}
	}
}

func (vm *VM) add() *RuntimeError {
	b := vm.peek(0)
	a := vm.peek(1)

	switch av := a.(type) {
	case NumberValue:
		bv, ok := b.(NumberValue)
		if !ok {
			return vm.runtimeError("Operands must be two numbers or two strings.")
		}
		vm.pop()
		vm.pop()
		vm.push(av + bv)
		return nil
	case *ObjString:
		bv, ok := b.(*ObjString)
		if !ok {
			return vm.runtimeError("Operands must be two numbers or two strings.")
		}
		// a and b stay peeked (rooted on the stack) across this allocation,
		// only popped once the result exists (section 4.5's discipline).
		result := vm.heap.internString(av.chars + bv.chars)
		vm.pop()
		vm.pop()
		vm.push(result)
		return nil
	default:
		return vm.runtimeError("Operands must be two numbers or two strings.")
	}
}

func (vm *VM) binaryNumberOp(op OpCode) *RuntimeError {
	bv, bok := vm.peek(0).(NumberValue)
	av, aok := vm.peek(1).(NumberValue)
	if !bok || !aok {
		return vm.runtimeError("Operands must be numbers.")
	}
	vm.pop()
	vm.pop()

	switch op {
	case OpGreater:
		vm.push(BoolValue(av > bv))
	case OpLess:
		vm.push(BoolValue(av < bv))
	case OpSubtract:
		vm.push(av - bv)
	case OpMultiply:
		vm.push(av * bv)
	case OpDivide:
		vm.push(av / bv)
	}
	return nil
}

// captureUpvalue finds or creates the open upvalue for a given absolute
// stack slot, keeping the list sorted by descending slot so a later
// capture of a shallower slot inserts in the right place (section 4.4).
func (vm *VM) captureUpvalue(slot int) *ObjUpvalue {
	var prev *ObjUpvalue
	curr := vm.openUps
	for curr != nil && curr.slot > slot {
		prev = curr
		curr = curr.next
	}
	if curr != nil && curr.slot == slot {
		return curr
	}

	created := vm.heap.newUpvalue(&vm.stack[slot])
	created.slot = slot
	created.next = curr
	if prev == nil {
		vm.openUps = created
	} else {
		prev.next = created
	}
	return created
}

// closeUpvalues hoists every open upvalue at or above the given absolute
// slot into its own closed storage, severing its dependency on the value
// stack before that slot is popped (section 4.4).
func (vm *VM) closeUpvalues(last int) {
	for vm.openUps != nil && vm.openUps.slot >= last {
		uv := vm.openUps
		uv.closed = *uv.location
		uv.location = nil
		vm.openUps = uv.next
	}
}

func (vm *VM) callValue(callee Value, argc int) *RuntimeError {
	switch c := callee.(type) {
	case *ObjClosure:
		return vm.call(c, argc)
	case *ObjNative:
		return vm.callNative(c, argc)
	case *ObjClass:
		inst := vm.heap.newInstance(c)
		vm.stack[len(vm.stack)-1-argc] = inst
		if init, ok := c.Methods["init"]; ok {
			return vm.call(init, argc)
		}
		if argc != 0 {
			return vm.runtimeError("Expected 0 arguments but got %d.", argc)
		}
		return nil
	case *ObjBoundMethod:
		vm.stack[len(vm.stack)-1-argc] = c.Receiver
		return vm.call(c.Method, argc)
	default:
		return vm.runtimeError("Can only call functions and classes.")
	}
}

func (vm *VM) callNative(native *ObjNative, argc int) *RuntimeError {
	if native.arity >= 0 && argc != native.arity {
		return vm.runtimeError("Expected %d arguments but got %d.", native.arity, argc)
	}
	args := make([]Value, argc)
	copy(args, vm.stack[len(vm.stack)-argc:])

	result, err := native.fn(vm, args)
	if err != nil {
		return vm.runtimeError("%s", err.Error())
	}

	vm.stack = vm.stack[:len(vm.stack)-argc-1]
	vm.push(result)
	return nil
}

func (vm *VM) call(closure *ObjClosure, argc int) *RuntimeError {
	if argc != closure.fn.Arity {
		return vm.runtimeError("Expected %d arguments but got %d.", closure.fn.Arity, argc)
	}
	if len(vm.frames) == framesMax {
		return vm.runtimeError("Stack overflow.")
	}
	vm.frames = append(vm.frames, frame{
		closure: closure,
		ip:      0,
		base:    len(vm.stack) - argc - 1,
	})
	return nil
}

func (vm *VM) getProperty(name *ObjString) (Value, *RuntimeError) {
	inst, ok := vm.peek(0).(*ObjInstance)
	if !ok {
		return Nil, vm.runtimeError("Only instances have properties.")
	}

	if field, ok := inst.Fields[name.chars]; ok {
		vm.pop()
		vm.push(field)
		return field, nil
	}

	bound, err := vm.resolveBoundMethod(inst.Class, name, inst)
	if err != nil {
		return Nil, err
	}
	vm.pop() // the instance
	vm.push(bound)
	return bound, nil
}

func (vm *VM) setProperty(name *ObjString) *RuntimeError {
	inst, ok := vm.peek(1).(*ObjInstance)
	if !ok {
		return vm.runtimeError("Only instances have fields.")
	}
	inst.Fields[name.chars] = vm.peek(0)

	value := vm.pop()
	vm.pop()
	vm.push(value)
	return nil
}

// resolveBoundMethod looks up name on class and wraps it with receiver,
// without touching the operand stack — callers decide how many operands
// the bound method replaces (section 4.3, GET_PROPERTY vs GET_SUPER
// leave different numbers of intermediate values behind).
func (vm *VM) resolveBoundMethod(class *ObjClass, name *ObjString, receiver Value) (*ObjBoundMethod, *RuntimeError) {
	method, ok := class.Methods[name.chars]
	if !ok {
		return nil, vm.runtimeError("Undefined property '%s'.", name.chars)
	}
	return vm.heap.newBoundMethod(receiver, method), nil
}

func (vm *VM) invoke(name *ObjString, argc int) *RuntimeError {
	receiver, ok := vm.peek(argc).(*ObjInstance)
	if !ok {
		return vm.runtimeError("Only instances have methods.")
	}

	if field, ok := receiver.Fields[name.chars]; ok {
		vm.stack[len(vm.stack)-1-argc] = field
		return vm.callValue(field, argc)
	}

	return vm.invokeFromClass(receiver.Class, name, argc)
}

func (vm *VM) invokeFromClass(class *ObjClass, name *ObjString, argc int) *RuntimeError {
	method, ok := class.Methods[name.chars]
	if !ok {
		return vm.runtimeError("Undefined property '%s'.", name.chars)
	}
	return vm.call(method, argc)
}

func (vm *VM) defineMethod(name *ObjString) {
	method := vm.pop().(*ObjClosure)
	class := vm.peek(0).(*ObjClass)
	class.Methods[name.chars] = method
}
