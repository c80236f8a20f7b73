package lox

import "fmt"

// OpCode is a one-byte opcode; operand widths are part of each opcode's
// contract (section 4.3).
type OpCode byte

const (
	OpConstant OpCode = iota
	OpNil
	OpTrue
	OpFalse
	OpPop

	OpGetLocal
	OpSetLocal
	OpGetGlobal
	OpDefineGlobal
	OpSetGlobal
	OpGetUpvalue
	OpSetUpvalue
	OpCloseUpvalue
	OpGetProperty
	OpSetProperty
	OpGetSuper

	OpEqual
	OpGreater
	OpLess

	OpAdd
	OpSubtract
	OpMultiply
	OpDivide
	OpNot
	OpNegate

	OpPrint

	OpJump
	OpJumpIfFalse
	OpLoop

	OpCall
	OpInvoke
	OpSuperInvoke
	OpClosure
	OpReturn

	OpClass
	OpInherit
	OpMethod
)

var opCodeNames = map[OpCode]string{
	OpConstant:     "OP_CONSTANT",
	OpNil:          "OP_NIL",
	OpTrue:         "OP_TRUE",
	OpFalse:        "OP_FALSE",
	OpPop:          "OP_POP",
	OpGetLocal:     "OP_GET_LOCAL",
	OpSetLocal:     "OP_SET_LOCAL",
	OpGetGlobal:    "OP_GET_GLOBAL",
	OpDefineGlobal: "OP_DEFINE_GLOBAL",
	OpSetGlobal:    "OP_SET_GLOBAL",
	OpGetUpvalue:   "OP_GET_UPVALUE",
	OpSetUpvalue:   "OP_SET_UPVALUE",
	OpCloseUpvalue: "OP_CLOSE_UPVALUE",
	OpGetProperty:  "OP_GET_PROPERTY",
	OpSetProperty:  "OP_SET_PROPERTY",
	OpGetSuper:     "OP_GET_SUPER",
	OpEqual:        "OP_EQUAL",
	OpGreater:      "OP_GREATER",
	OpLess:         "OP_LESS",
	OpAdd:          "OP_ADD",
	OpSubtract:     "OP_SUBTRACT",
	OpMultiply:     "OP_MULTIPLY",
	OpDivide:       "OP_DIVIDE",
	OpNot:          "OP_NOT",
	OpNegate:       "OP_NEGATE",
	OpPrint:        "OP_PRINT",
	OpJump:         "OP_JUMP",
	OpJumpIfFalse:  "OP_JUMP_IF_FALSE",
	OpLoop:         "OP_LOOP",
	OpCall:         "OP_CALL",
	OpInvoke:       "OP_INVOKE",
	OpSuperInvoke:  "OP_SUPER_INVOKE",
	OpClosure:      "OP_CLOSURE",
	OpReturn:       "OP_RETURN",
	OpClass:        "OP_CLASS",
	OpInherit:      "OP_INHERIT",
	OpMethod:       "OP_METHOD",
}

func (op OpCode) String() string {
	if name, ok := opCodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("OP_UNKNOWN(%d)", byte(op))
}

// Chunk is a contiguous bytecode array with a matching per-byte line
// table and a local constants pool (section 4.1 of the glossary).
// Constants are addressed with a single byte, so a chunk may hold at
// most 256 of them (section 3 invariant).
type Chunk struct {
	Code      []byte
	Lines     []int
	Constants []Value
}

func (c *Chunk) Write(b byte, line int) {
	c.Code = append(c.Code, b)
	c.Lines = append(c.Lines, line)
}

// AddConstant appends a value to the constant pool and returns its
// index, or -1 if the pool is already full (caller reports the
// compile-time "too many constants" diagnostic).
func (c *Chunk) AddConstant(v Value) int {
	if len(c.Constants) >= 256 {
		return -1
	}
	c.Constants = append(c.Constants, v)
	return len(c.Constants) - 1
}

// Disassemble renders the whole chunk in clox's "%04d LINE OP operands"
// style, used by the --debug-bytecode CLI flag.
func (c *Chunk) Disassemble(name string) string {
	out := fmt.Sprintf("== %s ==\n", name)
	offset := 0
	for offset < len(c.Code) {
		var line string
		offset, line = c.disassembleInstruction(offset)
		out += line + "\n"
	}
	return out
}

func (c *Chunk) disassembleInstruction(offset int) (int, string) {
	lineInfo := fmt.Sprintf("%4d", c.Lines[offset])
	if offset > 0 && c.Lines[offset] == c.Lines[offset-1] {
		lineInfo = "   |"
	}
	header := fmt.Sprintf("%04d %s ", offset, lineInfo)

	op := OpCode(c.Code[offset])
	switch op {
	case OpConstant, OpGetGlobal, OpDefineGlobal, OpSetGlobal, OpGetProperty, OpSetProperty, OpGetSuper, OpClass, OpMethod:
		idx := c.Code[offset+1]
		return offset + 2, fmt.Sprintf("%s%-16s %4d '%s'", header, op, idx, c.Constants[idx])
	case OpGetLocal, OpSetLocal, OpGetUpvalue, OpSetUpvalue, OpCall:
		slot := c.Code[offset+1]
		return offset + 2, fmt.Sprintf("%s%-16s %4d", header, op, slot)
	case OpInvoke, OpSuperInvoke:
		idx := c.Code[offset+1]
		argc := c.Code[offset+2]
		return offset + 3, fmt.Sprintf("%s%-16s (%d args) %4d '%s'", header, op, argc, idx, c.Constants[idx])
	case OpJump, OpJumpIfFalse:
		jump := int(c.Code[offset+1])<<8 | int(c.Code[offset+2])
		return offset + 3, fmt.Sprintf("%s%-16s %4d -> %d", header, op, offset, offset+3+jump)
	case OpLoop:
		jump := int(c.Code[offset+1])<<8 | int(c.Code[offset+2])
		return offset + 3, fmt.Sprintf("%s%-16s %4d -> %d", header, op, offset, offset+3-jump)
	case OpClosure:
		idx := c.Code[offset+1]
		next := offset + 2
		fn, _ := c.Constants[idx].(*ObjFunction)
		line := fmt.Sprintf("%s%-16s %4d '%s'", header, op, idx, c.Constants[idx])
		if fn != nil {
			for i := 0; i < fn.UpvalueCount; i++ {
				isLocal := c.Code[next]
				index := c.Code[next+1]
				kind := "upvalue"
				if isLocal != 0 {
					kind = "local"
				}
				line += fmt.Sprintf("\n%04d      |                     %s %d", next, kind, index)
				next += 2
			}
		}
		return next, line
	default:
		return offset + 1, fmt.Sprintf("%s%s", header, op)
	}
}
