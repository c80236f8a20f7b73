package lox

import (
	"fmt"
	"strconv"
)

// precedence ordering mirrors section 4.2 exactly; parsePrecedence(p)
// consumes a prefix rule then loops over infix rules whose precedence is
// >= p, recursing at p+1 to get left-associativity.
type precedence int

const (
	precNone       precedence = iota
	precAssignment            // =
	precOr                    // or
	precAnd                   // and
	precEquality              // == !=
	precComparison            // < > <= >=
	precTerm                  // + -
	precFactor                // * /
	precUnary                 // ! -
	precCall                  // . ()
	precPrimary
)

type parseFn func(c *Compiler, canAssign bool)

type parseRule struct {
	prefix     parseFn
	infix      parseFn
	precedence precedence
}

var rules map[tokenKind]parseRule

func init() {
	rules = map[tokenKind]parseRule{
		tokenLeftParen:    {prefix: (*Compiler).grouping, infix: (*Compiler).call, precedence: precCall},
		tokenDot:          {infix: (*Compiler).dot, precedence: precCall},
		tokenMinus:        {prefix: (*Compiler).unary, infix: (*Compiler).binary, precedence: precTerm},
		tokenPlus:         {infix: (*Compiler).binary, precedence: precTerm},
		tokenSlash:        {infix: (*Compiler).binary, precedence: precFactor},
		tokenStar:         {infix: (*Compiler).binary, precedence: precFactor},
		tokenBang:         {prefix: (*Compiler).unary},
		tokenBangEqual:    {infix: (*Compiler).binary, precedence: precEquality},
		tokenEqualEqual:   {infix: (*Compiler).binary, precedence: precEquality},
		tokenGreater:      {infix: (*Compiler).binary, precedence: precComparison},
		tokenGreaterEqual: {infix: (*Compiler).binary, precedence: precComparison},
		tokenLess:         {infix: (*Compiler).binary, precedence: precComparison},
		tokenLessEqual:    {infix: (*Compiler).binary, precedence: precComparison},
		tokenIdentifier:   {prefix: (*Compiler).variable},
		tokenString:       {prefix: (*Compiler).string},
		tokenNumber:       {prefix: (*Compiler).number},
		tokenAnd:          {infix: (*Compiler).and, precedence: precAnd},
		tokenOr:           {infix: (*Compiler).or, precedence: precOr},
		tokenFalse:        {prefix: (*Compiler).literal},
		tokenTrue:         {prefix: (*Compiler).literal},
		tokenNil:          {prefix: (*Compiler).literal},
		tokenThis:         {prefix: (*Compiler).this},
		tokenSuper:        {prefix: (*Compiler).super},
	}
}

func (c *Compiler) ruleFor(k tokenKind) parseRule { return rules[k] }

// local tracks a declared variable's stack slot within the enclosing
// function: its name, the scope depth it was declared at (localUninit
// between declaration and initializer completion, per section 4.2), and
// whether any nested function captures it as an upvalue.
type local struct {
	name       string
	depth      int
	isCaptured bool
}

const localUninit = -1

type upvalueRef struct {
	index   byte
	isLocal bool
}

type functionKind int

const (
	fnScript functionKind = iota
	fnFunction
	fnMethod
	fnInitializer
)

// classCompilerState tracks whether the class currently being compiled
// has a superclass, so `super` can be rejected outside inheriting
// classes; chained via enclosing for nested class declarations.
type classCompilerState struct {
	enclosing     *classCompilerState
	hasSuperclass bool
}

// parserState is the scanner-facing half of compilation: shared by every
// nested Compiler (one per function body) so that advancing the token
// stream in a deeply nested function literal is visible to the whole
// chain. Threaded explicitly instead of living in process-wide globals
// (section 9's design note).
type parserState struct {
	scanner *scanner
	heap    *Heap

	current  token
	previous token

	hadError  bool
	panicMode bool
	errors    []string
}

func (p *parserState) errorAt(t token, message string) {
	if p.panicMode {
		return
	}
	p.panicMode = true

	where := ""
	switch t.kind {
	case tokenEOF:
		where = " at end"
	case tokenError:
		// lexeme is already the diagnostic
	default:
		where = fmt.Sprintf(" at '%s'", t.lexeme)
	}

	msg := fmt.Sprintf("[line %d] Error%s: %s", t.line, where, message)
	p.errors = append(p.errors, msg)
	p.hadError = true
}

func (p *parserState) errorAtCurrent(message string) { p.errorAt(p.current, message) }
func (p *parserState) error(message string)          { p.errorAt(p.previous, message) }

func (p *parserState) advance() {
	p.previous = p.current
	for {
		p.current = p.scanner.scanToken()
		if p.current.kind != tokenError {
			break
		}
		p.errorAtCurrent(p.current.lexeme)
	}
}

func (p *parserState) check(kind tokenKind) bool { return p.current.kind == kind }

func (p *parserState) match(kind tokenKind) bool {
	if !p.check(kind) {
		return false
	}
	p.advance()
	return true
}

func (p *parserState) consume(kind tokenKind, message string) {
	if p.current.kind == kind {
		p.advance()
		return
	}
	p.errorAtCurrent(message)
}

// Compiler is one instance per function body (including the implicit
// top-level "script" function); enclosing chains to the function it is
// nested in, which is how local/upvalue resolution walks outward
// (section 4.2).
type Compiler struct {
	p *parserState

	enclosing *Compiler
	function  *ObjFunction
	kind      functionKind

	locals     []local
	scopeDepth int
	upvalues   []upvalueRef

	class *classCompilerState
}

func newCompiler(p *parserState, enclosing *Compiler, kind functionKind, name string) *Compiler {
	c := &Compiler{p: p, enclosing: enclosing, kind: kind}
	c.function = p.heap.newFunction()
	if name != "" {
		c.function.Name = p.heap.internString(name)
	}
	if enclosing != nil {
		c.class = enclosing.class
	}

	// Slot 0 of every frame holds the callee: the closure itself for
	// plain functions, or the receiver for methods/initializers
	// (section 3's local-slot-layout invariant).
	slotName := ""
	if kind == fnMethod || kind == fnInitializer {
		slotName = "this"
	}
	c.locals = append(c.locals, local{name: slotName, depth: 0})

	return c
}

func (c *Compiler) chunk() *Chunk { return &c.function.Chunk }

func (c *Compiler) emitByte(b byte) {
	c.chunk().Write(b, c.p.previous.line)
}

func (c *Compiler) emitOp(op OpCode) { c.emitByte(byte(op)) }

func (c *Compiler) emitOpByte(op OpCode, operand byte) {
	c.emitOp(op)
	c.emitByte(operand)
}

func (c *Compiler) emitJump(op OpCode) int {
	c.emitOp(op)
	c.emitByte(0xff)
	c.emitByte(0xff)
	return len(c.chunk().Code) - 2
}

func (c *Compiler) patchJump(offset int) {
	jump := len(c.chunk().Code) - offset - 2
	if jump > 0xffff {
		c.p.error("Too much code to jump over.")
	}
	c.chunk().Code[offset] = byte(jump >> 8)
	c.chunk().Code[offset+1] = byte(jump)
}

func (c *Compiler) emitLoop(loopStart int) {
	c.emitOp(OpLoop)
	offset := len(c.chunk().Code) - loopStart + 2
	if offset > 0xffff {
		c.p.error("Loop body too large.")
	}
	c.emitByte(byte(offset >> 8))
	c.emitByte(byte(offset))
}

func (c *Compiler) emitConstant(v Value) {
	c.emitOpByte(OpConstant, c.makeConstant(v))
}

func (c *Compiler) makeConstant(v Value) byte {
	idx := c.chunk().AddConstant(v)
	if idx < 0 {
		c.p.error("Too many constants in one chunk.")
		return 0
	}
	return byte(idx)
}

func (c *Compiler) emitReturn() {
	if c.kind == fnInitializer {
		c.emitOpByte(OpGetLocal, 0)
	} else {
		c.emitOp(OpNil)
	}
	c.emitOp(OpReturn)
}

// endCompiler finalizes the current function, implicitly returning nil
// (or `this` for initializers) if the body fell through without an
// explicit return, and yields control back to the enclosing compiler.
func (c *Compiler) endCompiler() *ObjFunction {
	c.emitReturn()
	return c.function
}

func (c *Compiler) beginScope() { c.scopeDepth++ }

func (c *Compiler) endScope() {
	c.scopeDepth--
	for len(c.locals) > 0 && c.locals[len(c.locals)-1].depth > c.scopeDepth {
		last := c.locals[len(c.locals)-1]
		if last.isCaptured {
			c.emitOp(OpCloseUpvalue)
		} else {
			c.emitOp(OpPop)
		}
		c.locals = c.locals[:len(c.locals)-1]
	}
}

// --- expression/statement parsing --------------------------------------

func (c *Compiler) parsePrecedence(prec precedence) {
	c.p.advance()
	rule := c.ruleFor(c.p.previous.kind)
	if rule.prefix == nil {
		c.p.error("Expect expression.")
		return
	}
	canAssign := prec <= precAssignment
	rule.prefix(c, canAssign)

	for prec <= c.ruleFor(c.p.current.kind).precedence {
		c.p.advance()
		infix := c.ruleFor(c.p.previous.kind).infix
		infix(c, canAssign)
	}
}

func (c *Compiler) expression() { c.parsePrecedence(precAssignment) }

func (c *Compiler) number(_ bool) {
	v, err := strconv.ParseFloat(c.p.previous.lexeme, 64)
	if err != nil {
		c.p.error("Invalid number literal.")
		return
	}
	c.emitConstant(NumberValue(v))
}

func (c *Compiler) string(_ bool) {
	lexeme := c.p.previous.lexeme
	str := c.p.heap.internString(lexeme[1 : len(lexeme)-1])
	c.emitConstant(str)
}

func (c *Compiler) literal(_ bool) {
	switch c.p.previous.kind {
	case tokenFalse:
		c.emitOp(OpFalse)
	case tokenTrue:
		c.emitOp(OpTrue)
	case tokenNil:
		c.emitOp(OpNil)
	}
}

func (c *Compiler) grouping(_ bool) {
	c.expression()
	c.p.consume(tokenRightParen, "Expect ')' after expression.")
}

func (c *Compiler) unary(_ bool) {
	opKind := c.p.previous.kind
	c.parsePrecedence(precUnary)
	switch opKind {
	case tokenMinus:
		c.emitOp(OpNegate)
	case tokenBang:
		c.emitOp(OpNot)
	}
}

func (c *Compiler) binary(_ bool) {
	opKind := c.p.previous.kind
	rule := c.ruleFor(opKind)
	c.parsePrecedence(rule.precedence + 1)

	switch opKind {
	case tokenPlus:
		c.emitOp(OpAdd)
	case tokenMinus:
		c.emitOp(OpSubtract)
	case tokenStar:
		c.emitOp(OpMultiply)
	case tokenSlash:
		c.emitOp(OpDivide)
	case tokenBangEqual:
		c.emitOp(OpEqual)
		c.emitOp(OpNot)
	case tokenEqualEqual:
		c.emitOp(OpEqual)
	case tokenGreater:
		c.emitOp(OpGreater)
	case tokenGreaterEqual:
		c.emitOp(OpLess)
		c.emitOp(OpNot)
	case tokenLess:
		c.emitOp(OpLess)
	case tokenLessEqual:
		c.emitOp(OpGreater)
		c.emitOp(OpNot)
	}
}

// and/or keep the determining operand on the stack when short-circuiting
// (section 4.2, "Logical operators").
func (c *Compiler) and(_ bool) {
	endJump := c.emitJump(OpJumpIfFalse)
	c.emitOp(OpPop)
	c.parsePrecedence(precAnd)
	c.patchJump(endJump)
}

func (c *Compiler) or(_ bool) {
	elseJump := c.emitJump(OpJumpIfFalse)
	endJump := c.emitJump(OpJump)
	c.patchJump(elseJump)
	c.emitOp(OpPop)
	c.parsePrecedence(precOr)
	c.patchJump(endJump)
}

func (c *Compiler) argumentList() byte {
	argc := 0
	if !c.p.check(tokenRightParen) {
		for {
			c.expression()
			if argc == 255 {
				c.p.error("Can't have more than 255 arguments.")
			}
			argc++
			if !c.p.match(tokenComma) {
				break
			}
		}
	}
	c.p.consume(tokenRightParen, "Expect ')' after arguments.")
	return byte(argc)
}

func (c *Compiler) call(_ bool) {
	argc := c.argumentList()
	c.emitOpByte(OpCall, argc)
}

func (c *Compiler) dot(canAssign bool) {
	c.p.consume(tokenIdentifier, "Expect property name after '.'.")
	name := c.makeConstant(c.p.heap.internString(c.p.previous.lexeme))

	switch {
	case canAssign && c.p.match(tokenEqual):
		c.expression()
		c.emitOpByte(OpSetProperty, name)
	case c.p.match(tokenLeftParen):
		argc := c.argumentList()
		c.emitOpByte(OpInvoke, name)
		c.emitByte(argc)
	default:
		c.emitOpByte(OpGetProperty, name)
	}
}

func (c *Compiler) this(_ bool) {
	if c.class == nil {
		c.p.error("Can't use 'this' outside of a class.")
		return
	}
	c.variableFromToken(token{kind: tokenThis, lexeme: "this", line: c.p.previous.line}, false)
}

func (c *Compiler) super(_ bool) {
	switch {
	case c.class == nil:
		c.p.error("Can't use 'super' outside of a class.")
	case !c.class.hasSuperclass:
		c.p.error("Can't use 'super' in a class with no superclass.")
	}

	c.p.consume(tokenDot, "Expect '.' after 'super'.")
	c.p.consume(tokenIdentifier, "Expect superclass method name.")
	name := c.makeConstant(c.p.heap.internString(c.p.previous.lexeme))

	c.namedVariable("this", false)
	if c.p.match(tokenLeftParen) {
		argc := c.argumentList()
		c.namedVariable("super", false)
		c.emitOpByte(OpSuperInvoke, name)
		c.emitByte(argc)
	} else {
		c.namedVariable("super", false)
		c.emitOpByte(OpGetSuper, name)
	}
}

func (c *Compiler) variable(canAssign bool) {
	c.variableFromToken(c.p.previous, canAssign)
}

func (c *Compiler) variableFromToken(name token, canAssign bool) {
	c.namedVariableCanAssign(name.lexeme, canAssign)
}

func (c *Compiler) namedVariable(name string, canAssign bool) {
	c.namedVariableCanAssign(name, canAssign)
}

func (c *Compiler) namedVariableCanAssign(name string, canAssign bool) {
	var getOp, setOp OpCode
	var arg int

	if slot := c.resolveLocal(name); slot != -1 {
		getOp, setOp, arg = OpGetLocal, OpSetLocal, slot
	} else if slot := c.resolveUpvalue(name); slot != -1 {
		getOp, setOp, arg = OpGetUpvalue, OpSetUpvalue, slot
	} else {
		arg = int(c.makeConstant(c.p.heap.internString(name)))
		getOp, setOp = OpGetGlobal, OpSetGlobal
	}

	if canAssign && c.p.match(tokenEqual) {
		c.expression()
		c.emitOpByte(setOp, byte(arg))
	} else {
		c.emitOpByte(getOp, byte(arg))
	}
}

func (c *Compiler) resolveLocal(name string) int {
	for i := len(c.locals) - 1; i >= 0; i-- {
		if c.locals[i].name == name {
			if c.locals[i].depth == localUninit {
				c.p.error("Can't read local variable in its own initializer.")
			}
			return i
		}
	}
	return -1
}

func (c *Compiler) addUpvalue(index byte, isLocal bool) int {
	for i, uv := range c.upvalues {
		if uv.index == index && uv.isLocal == isLocal {
			return i
		}
	}
	if len(c.upvalues) >= 256 {
		c.p.error("Too many closure variables in function.")
		return 0
	}
	c.upvalues = append(c.upvalues, upvalueRef{index: index, isLocal: isLocal})
	c.function.UpvalueCount = len(c.upvalues)
	return len(c.upvalues) - 1
}

func (c *Compiler) resolveUpvalue(name string) int {
	if c.enclosing == nil {
		return -1
	}
	if slot := c.enclosing.resolveLocal(name); slot != -1 {
		c.enclosing.locals[slot].isCaptured = true
		return c.addUpvalue(byte(slot), true)
	}
	if slot := c.enclosing.resolveUpvalue(name); slot != -1 {
		return c.addUpvalue(byte(slot), false)
	}
	return -1
}

func (c *Compiler) addLocal(name string) {
	if len(c.locals) >= 256 {
		c.p.error("Too many local variables in function.")
		return
	}
	c.locals = append(c.locals, local{name: name, depth: localUninit})
}

func (c *Compiler) declareVariable() {
	if c.scopeDepth == 0 {
		return
	}
	name := c.p.previous.lexeme
	for i := len(c.locals) - 1; i >= 0; i-- {
		if c.locals[i].depth != localUninit && c.locals[i].depth < c.scopeDepth {
			break
		}
		if c.locals[i].name == name {
			c.p.error("Already a variable with this name in this scope.")
		}
	}
	c.addLocal(name)
}

func (c *Compiler) markInitialized() {
	if c.scopeDepth == 0 {
		return
	}
	c.locals[len(c.locals)-1].depth = c.scopeDepth
}

func (c *Compiler) parseVariable(errMsg string) byte {
	c.p.consume(tokenIdentifier, errMsg)
	c.declareVariable()
	if c.scopeDepth > 0 {
		return 0
	}
	return c.makeConstant(c.p.heap.internString(c.p.previous.lexeme))
}

func (c *Compiler) defineVariable(global byte) {
	if c.scopeDepth > 0 {
		c.markInitialized()
		return
	}
	c.emitOpByte(OpDefineGlobal, global)
}

// --- statements ---------------------------------------------------------

func (c *Compiler) declaration() {
	switch {
	case c.p.match(tokenClass):
		c.classDeclaration()
	case c.p.match(tokenFun):
		c.funDeclaration()
	case c.p.match(tokenVar):
		c.varDeclaration()
	default:
		c.statement()
	}

	if c.p.panicMode {
		c.synchronize()
	}
}

func (c *Compiler) synchronize() {
	c.p.panicMode = false

	for c.p.current.kind != tokenEOF {
		if c.p.previous.kind == tokenSemicolon {
			return
		}
		switch c.p.current.kind {
		case tokenClass, tokenFun, tokenVar, tokenFor, tokenIf, tokenWhile, tokenPrint, tokenReturn:
			return
		}
		c.p.advance()
	}
}

func (c *Compiler) statement() {
	switch {
	case c.p.match(tokenPrint):
		c.printStatement()
	case c.p.match(tokenIf):
		c.ifStatement()
	case c.p.match(tokenReturn):
		c.returnStatement()
	case c.p.match(tokenWhile):
		c.whileStatement()
	case c.p.match(tokenFor):
		c.forStatement()
	case c.p.match(tokenLeftBrace):
		c.beginScope()
		c.block()
		c.endScope()
	default:
		c.expressionStatement()
	}
}

func (c *Compiler) printStatement() {
	c.expression()
	c.p.consume(tokenSemicolon, "Expect ';' after value.")
	c.emitOp(OpPrint)
}

func (c *Compiler) expressionStatement() {
	c.expression()
	c.p.consume(tokenSemicolon, "Expect ';' after expression.")
	c.emitOp(OpPop)
}

func (c *Compiler) block() {
	for !c.p.check(tokenRightBrace) && !c.p.check(tokenEOF) {
		c.declaration()
	}
	c.p.consume(tokenRightBrace, "Expect '}' after block.")
}

func (c *Compiler) ifStatement() {
	c.p.consume(tokenLeftParen, "Expect '(' after 'if'.")
	c.expression()
	c.p.consume(tokenRightParen, "Expect ')' after condition.")

	thenJump := c.emitJump(OpJumpIfFalse)
	c.emitOp(OpPop)
	c.statement()

	elseJump := c.emitJump(OpJump)
	c.patchJump(thenJump)
	c.emitOp(OpPop)

	if c.p.match(tokenElse) {
		c.statement()
	}
	c.patchJump(elseJump)
}

func (c *Compiler) whileStatement() {
	loopStart := len(c.chunk().Code)
	c.p.consume(tokenLeftParen, "Expect '(' after 'while'.")
	c.expression()
	c.p.consume(tokenRightParen, "Expect ')' after condition.")

	exitJump := c.emitJump(OpJumpIfFalse)
	c.emitOp(OpPop)
	c.statement()
	c.emitLoop(loopStart)

	c.patchJump(exitJump)
	c.emitOp(OpPop)
}

// forStatement desugars initializer/condition/increment directly into
// while-loop bytecode with two jumps reordering body and increment, with
// no synthetic AST nodes (section 4.2, "Control flow").
func (c *Compiler) forStatement() {
	c.beginScope()
	c.p.consume(tokenLeftParen, "Expect '(' after 'for'.")

	switch {
	case c.p.match(tokenSemicolon):
		// no initializer
	case c.p.match(tokenVar):
		c.varDeclaration()
	default:
		c.expressionStatement()
	}

	loopStart := len(c.chunk().Code)
	exitJump := -1
	if !c.p.match(tokenSemicolon) {
		c.expression()
		c.p.consume(tokenSemicolon, "Expect ';' after loop condition.")
		exitJump = c.emitJump(OpJumpIfFalse)
		c.emitOp(OpPop)
	}

	if !c.p.match(tokenRightParen) {
		bodyJump := c.emitJump(OpJump)

		incrementStart := len(c.chunk().Code)
		c.expression()
		c.emitOp(OpPop)
		c.p.consume(tokenRightParen, "Expect ')' after for clauses.")

		c.emitLoop(loopStart)
		loopStart = incrementStart
		c.patchJump(bodyJump)
	}

	c.statement()
	c.emitLoop(loopStart)

	if exitJump != -1 {
		c.patchJump(exitJump)
		c.emitOp(OpPop)
	}

	c.endScope()
}

func (c *Compiler) returnStatement() {
	if c.kind == fnScript {
		c.p.error("Can't return from top-level code.")
	}
	if c.p.match(tokenSemicolon) {
		c.emitReturn()
		return
	}
	if c.kind == fnInitializer {
		c.p.error("Can't return a value from an initializer.")
	}
	c.expression()
	c.p.consume(tokenSemicolon, "Expect ';' after return value.")
	c.emitOp(OpReturn)
}

func (c *Compiler) varDeclaration() {
	global := c.parseVariable("Expect variable name.")
	if c.p.match(tokenEqual) {
		c.expression()
	} else {
		c.emitOp(OpNil)
	}
	c.p.consume(tokenSemicolon, "Expect ';' after variable declaration.")
	c.defineVariable(global)
}

func (c *Compiler) compileFunction(kind functionKind, name string) {
	fc := newCompiler(c.p, c, kind, name)

	parent := c.p.heap.compiler
	c.p.heap.compiler = fc
	defer func() { c.p.heap.compiler = parent }()

	fc.beginScope()
	fc.p.consume(tokenLeftParen, "Expect '(' after function name.")
	if !fc.p.check(tokenRightParen) {
		for {
			fc.function.Arity++
			if fc.function.Arity > 255 {
				fc.p.errorAtCurrent("Can't have more than 255 parameters.")
			}
			constant := fc.parseVariable("Expect parameter name.")
			fc.defineVariable(constant)
			if !fc.p.match(tokenComma) {
				break
			}
		}
	}
	fc.p.consume(tokenRightParen, "Expect ')' after parameters.")
	fc.p.consume(tokenLeftBrace, "Expect '{' before function body.")
	fc.block()

	fn := fc.endCompiler()

	c.emitOpByte(OpClosure, c.makeConstant(fn))
	for _, uv := range fc.upvalues {
		if uv.isLocal {
			c.emitByte(1)
		} else {
			c.emitByte(0)
		}
		c.emitByte(uv.index)
	}
}

func (c *Compiler) funDeclaration() {
	global := c.parseVariable("Expect function name.")
	c.markInitialized()
	c.compileFunction(fnFunction, c.p.previous.lexeme)
	c.defineVariable(global)
}

func (c *Compiler) method() {
	c.p.consume(tokenIdentifier, "Expect method name.")
	name := c.p.previous.lexeme
	kind := fnMethod
	if name == "init" {
		kind = fnInitializer
	}
	c.compileFunction(kind, name)
	c.emitOpByte(OpMethod, c.makeConstant(c.p.heap.internString(name)))
}

func (c *Compiler) classDeclaration() {
	c.p.consume(tokenIdentifier, "Expect class name.")
	className := c.p.previous
	nameConstant := c.makeConstant(c.p.heap.internString(className.lexeme))
	c.declareVariable()

	c.emitOpByte(OpClass, nameConstant)
	c.defineVariable(nameConstant)

	classState := &classCompilerState{enclosing: c.class}
	c.class = classState

	if c.p.match(tokenLess) {
		c.p.consume(tokenIdentifier, "Expect superclass name.")
		c.variable(false)
		if className.lexeme == c.p.previous.lexeme {
			c.p.error("A class can't inherit from itself.")
		}

		c.beginScope()
		c.addLocal("super")
		c.defineVariable(0)

		c.namedVariable(className.lexeme, false)
		c.emitOp(OpInherit)
		classState.hasSuperclass = true
	}

	c.namedVariable(className.lexeme, false)
	c.p.consume(tokenLeftBrace, "Expect '{' before class body.")
	for !c.p.check(tokenRightBrace) && !c.p.check(tokenEOF) {
		c.method()
	}
	c.p.consume(tokenRightBrace, "Expect '}' after class body.")
	c.emitOp(OpPop)

	if classState.hasSuperclass {
		c.endScope()
	}

	c.class = c.class.enclosing
}

// compile runs the full program (a list of declarations) at the top
// level, returning the script's ObjFunction or nil plus an aggregate
// *CompileError on any diagnostic (section 4.2).
func compile(source string, heap *Heap) (*ObjFunction, *CompileError) {
	p := &parserState{scanner: newScanner(source), heap: heap}
	c := newCompiler(p, nil, fnScript, "")
	heap.compiler = c

	p.advance()
	for !p.check(tokenEOF) {
		c.declaration()
	}
	p.consume(tokenEOF, "Expect end of expression.")

	fn := c.endCompiler()
	heap.compiler = nil

	if p.hadError {
		return nil, &CompileError{Messages: p.errors}
	}
	return fn, nil
}
