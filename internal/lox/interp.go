package lox

import (
	"fmt"
	"io"
	"os"
)

// errWriter is where Run sends formatted diagnostics; overridable by
// tests that want to capture stderr instead of polluting test output.
var errWriter io.Writer = os.Stderr

// Context is a REPL-persistent session: one Heap and one VM shared across
// successive Interpret calls so that globals, classes and interned
// strings survive between lines, the way the teacher's bin/main.go keeps
// one environment alive across a session (section 5).
type Context struct {
	heap *Heap
	vm   *VM

	// DebugBytecode, when set, causes Compile to return the
	// disassembly of the compiled top-level chunk;
	// DebugGC enables collection logging; StressGC forces a collection
	// before every single allocation (section 9's --debug-gc/--gc-stress).
	DebugBytecode bool
	DebugGC       bool
	StressGC      bool
}

// NewContext creates a fresh session writing `print` output to out.
func NewContext(out stringWriter) *Context {
	heap := newHeap()
	vm := newVM(heap, out)
	return &Context{heap: heap, vm: vm}
}

// LiveBytes exposes the collector's live-byte accounting for GC tests.
func (c *Context) LiveBytes() int { return c.heap.LiveBytes() }

// Collections reports how many mark-sweep cycles have run this session.
func (c *Context) Collections() int { return c.heap.Collections }

// Compile runs the scanner+parser+emitter over source without executing
// it, returning the disassembled top-level chunk when DebugBytecode is
// set (section 6's --debug-bytecode entry point).
func (c *Context) Compile(source string) (string, *CompileError) {
	fn, err := compile(source, c.heap)
	if err != nil {
		return "", err
	}
	if c.DebugBytecode {
		return fn.Chunk.Disassemble(fnDisassemblyName(fn)), nil
	}
	return "", nil
}

func fnDisassemblyName(fn *ObjFunction) string {
	if fn.Name == nil {
		return "<script>"
	}
	return fn.Name.chars
}

// Interpret compiles and runs one unit of source, returning its
// InterpretResult and — on error — a formatted diagnostic ready to print
// to stderr (section 6).
func (c *Context) Interpret(source string) (InterpretResult, string) {
	c.heap.stressGC = c.StressGC
	c.heap.debugGC = c.DebugGC

	fn, cerr := compile(source, c.heap)
	if cerr != nil {
		return ResultCompileError, cerr.Error()
	}

	c.vm.push(fn) // root fn across the newClosure allocation
	closure := c.heap.newClosure(fn)
	c.vm.pop()
	c.vm.push(closure) // occupies slot 0 of the new frame, clox's calling convention
	if err := c.vm.call(closure, 0); err != nil {
		return ResultRuntimeError, err.Error()
	}

	_, rerr := c.vm.run()
	if rerr != nil {
		return ResultRuntimeError, rerr.Error()
	}
	// Top level finished cleanly: drop the script closure (and anything
	// a REPL line left on the stack) so the next line starts clean.
	c.vm.stack = c.vm.stack[:0]
	return ResultOK, ""
}

// Run is a convenience wrapper that maps InterpretResult onto the process
// exit codes from section 6: 0 on success, 65 on a compile error, 70 on a
// runtime error.
func Run(c *Context, source string) int {
	result, diagnostic := c.Interpret(source)
	switch result {
	case ResultOK:
		return 0
	case ResultCompileError:
		fmt.Fprintln(errWriter, diagnostic)
		return 65
	case ResultRuntimeError:
		fmt.Fprintln(errWriter, diagnostic)
		return 70
	default:
		return 1
	}
}
