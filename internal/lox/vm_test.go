package lox

import (
	"strings"
	"testing"
)

func run(t *testing.T, src string) (string, InterpretResult) {
	t.Helper()
	var out strings.Builder
	ctx := NewContext(&out)
	result, diagnostic := ctx.Interpret(src)
	if result == ResultRuntimeError {
		t.Logf("runtime error: %s", diagnostic)
	}
	return out.String(), result
}

func runOK(t *testing.T, src string) string {
	t.Helper()
	out, result := run(t, src)
	if result != ResultOK {
		t.Fatalf("expected ResultOK, got %v for source:\n%s", result, src)
	}
	return out
}

func TestArithmeticPrecedence(t *testing.T) {
	out := runOK(t, `print 1 + 2 * 3 - 4 / 2;`)
	if out != "5\n" {
		t.Fatalf("expected 5, got %q", out)
	}
}

func TestStringConcatenation(t *testing.T) {
	out := runOK(t, `print "foo" + "bar";`)
	if out != "foobar\n" {
		t.Fatalf("expected foobar, got %q", out)
	}
}

func TestGlobalAndLocalVariables(t *testing.T) {
	out := runOK(t, `
var a = 1;
{
  var a = 2;
  print a;
}
print a;
`)
	if out != "2\n1\n" {
		t.Fatalf("expected 2\\n1\\n, got %q", out)
	}
}

func TestUndefinedGlobalIsRuntimeError(t *testing.T) {
	_, result := run(t, `print nope;`)
	if result != ResultRuntimeError {
		t.Fatalf("expected ResultRuntimeError, got %v", result)
	}
}

func TestIfElseAndLogicalShortCircuit(t *testing.T) {
	out := runOK(t, `
fun sideEffect() {
  print "called";
  return true;
}
if (false and sideEffect()) {
  print "then";
} else {
  print "else";
}
`)
	if out != "else\n" {
		t.Fatalf("expected short-circuit to skip sideEffect, got %q", out)
	}
}

func TestWhileLoop(t *testing.T) {
	out := runOK(t, `
var i = 0;
var sum = 0;
while (i < 5) {
  sum = sum + i;
  i = i + 1;
}
print sum;
`)
	if out != "10\n" {
		t.Fatalf("expected 10, got %q", out)
	}
}

func TestForLoopDesugaring(t *testing.T) {
	out := runOK(t, `
var sum = 0;
for (var i = 0; i < 5; i = i + 1) {
  sum = sum + i;
}
print sum;
`)
	if out != "10\n" {
		t.Fatalf("expected 10, got %q", out)
	}
}

func TestFunctionCallAndReturn(t *testing.T) {
	out := runOK(t, `
fun add(a, b) {
  return a + b;
}
print add(2, 3);
`)
	if out != "5\n" {
		t.Fatalf("expected 5, got %q", out)
	}
}

func TestClosureCapturesUpvalue(t *testing.T) {
	out := runOK(t, `
fun makeCounter() {
  var count = 0;
  fun counter() {
    count = count + 1;
    return count;
  }
  return counter;
}
var c = makeCounter();
print c();
print c();
print c();
`)
	if out != "1\n2\n3\n" {
		t.Fatalf("expected 1\\n2\\n3\\n, got %q", out)
	}
}

func TestTwoClosuresShareUpvalue(t *testing.T) {
	out := runOK(t, `
fun makePair() {
  var count = 0;
  fun get() { return count; }
  fun inc() { count = count + 1; }
  inc();
  inc();
  print get();
}
makePair();
`)
	if out != "2\n" {
		t.Fatalf("expected 2, got %q", out)
	}
}

func TestClassInstanceFieldsAndMethods(t *testing.T) {
	out := runOK(t, `
class Counter {
  init(start) {
    this.value = start;
  }
  increment() {
    this.value = this.value + 1;
    return this.value;
  }
}
var c = Counter(10);
print c.increment();
print c.increment();
`)
	if out != "11\n12\n" {
		t.Fatalf("expected 11\\n12\\n, got %q", out)
	}
}

func TestSingleInheritanceAndSuper(t *testing.T) {
	out := runOK(t, `
class Animal {
  speak() {
    return "...";
  }
  describe() {
    return "An animal says " + this.speak();
  }
}
class Dog < Animal {
  speak() {
    return "Woof";
  }
  describe() {
    return "A dog says " + super.speak();
  }
}
print Dog().describe();
`)
	if out != "A dog says Woof\n" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestBoundMethodRetainsReceiver(t *testing.T) {
	out := runOK(t, `
class Greeter {
  init(name) {
    this.name = name;
  }
  greet() {
    return "Hi " + this.name;
  }
}
var g = Greeter("Ada");
var m = g.greet;
print m();
`)
	if out != "Hi Ada\n" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestNativeClockIsCallable(t *testing.T) {
	out, result := run(t, `print clock() >= 0;`)
	if result != ResultOK {
		t.Fatalf("expected ResultOK, got %v", result)
	}
	if out != "true\n" {
		t.Fatalf("expected true, got %q", out)
	}
}

func TestMathNatives(t *testing.T) {
	out := runOK(t, `print math_floor(3.7);`)
	if out != "3\n" {
		t.Fatalf("expected 3, got %q", out)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	out := runOK(t, `
var s = json_serialize(42);
print s;
print json_parse(s);
`)
	if out != "42\n42\n" {
		t.Fatalf("expected 42\\n42\\n, got %q", out)
	}
}

func TestReplPersistsGlobalsAcrossCalls(t *testing.T) {
	var out strings.Builder
	ctx := NewContext(&out)

	if result, diag := ctx.Interpret(`var x = 10;`); result != ResultOK {
		t.Fatalf("first line failed: %s", diag)
	}
	if result, diag := ctx.Interpret(`print x + 5;`); result != ResultOK {
		t.Fatalf("second line failed: %s", diag)
	}
	if out.String() != "15\n" {
		t.Fatalf("expected 15, got %q", out.String())
	}
}

func TestRuntimeErrorProducesBacktrace(t *testing.T) {
	var out strings.Builder
	ctx := NewContext(&out)
	_, diagnostic := ctx.Interpret(`
fun inner() {
  return 1 + "two";
}
fun outer() {
  return inner();
}
outer();
`)
	if !strings.Contains(diagnostic, "inner()") {
		t.Fatalf("expected backtrace to mention inner(), got %q", diagnostic)
	}
	if !strings.Contains(diagnostic, "outer()") {
		t.Fatalf("expected backtrace to mention outer(), got %q", diagnostic)
	}
}

func TestCompileErrorOnInvalidSelfReferenceInInitializer(t *testing.T) {
	_, result := run(t, `
{
  var a = a;
}
`)
	if result != ResultCompileError {
		t.Fatalf("expected ResultCompileError, got %v", result)
	}
}
