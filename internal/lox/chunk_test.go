package lox

import (
	"strings"
	"testing"
)

func TestChunkConstantPoolOverflow(t *testing.T) {
	c := &Chunk{}
	for i := 0; i < 256; i++ {
		if idx := c.AddConstant(NumberValue(i)); idx != i {
			t.Fatalf("expected constant %d at index %d, got %d", i, i, idx)
		}
	}
	if idx := c.AddConstant(NumberValue(256)); idx != -1 {
		t.Fatalf("expected -1 once the 256-entry pool is full, got %d", idx)
	}
}

func TestDisassembleRoundTripsThroughCompiler(t *testing.T) {
	heap := newHeap()
	fn, err := compile(`print 1 + 2;`, heap)
	if err != nil {
		t.Fatalf("unexpected compile error: %v", err)
	}

	out := fn.Chunk.Disassemble("test")
	for _, want := range []string{"OP_CONSTANT", "OP_ADD", "OP_PRINT", "OP_RETURN"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected disassembly to contain %s, got:\n%s", want, out)
		}
	}
}
