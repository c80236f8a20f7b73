package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/reeflective/readline"

	"github.com/loxvm/lox/internal/lox"
)

const helpMessage = `lox is a small bytecode-compiled scripting language.

Usage:
  lox [flags] <file>
  lox [flags]            start a REPL
`

var (
	debugBytecode = flag.Bool("debug-bytecode", false, "print compiled bytecode before running")
	debugGC       = flag.Bool("debug-gc", false, "log every garbage collection cycle")
	gcStress      = flag.Bool("gc-stress", false, "collect before every allocation (slow; for GC tests)")
)

func main() {
	flag.Usage = func() {
		fmt.Print(helpMessage)
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) > 1 {
		flag.Usage()
		os.Exit(64)
	}
	if len(args) == 0 {
		os.Exit(repl())
	}
	os.Exit(runFile(args[0]))
}

func newContext(out *bufio.Writer) *lox.Context {
	ctx := lox.NewContext(out)
	ctx.DebugBytecode = *debugBytecode
	ctx.DebugGC = *debugGC
	ctx.StressGC = *gcStress
	return ctx
}

// runFile compiles and runs one script, mapping the result onto the exit
// codes used by clox's CLI (64 usage, 65 compile error, 66 missing/
// unreadable input, 70 runtime error, 74 other I/O failure).
func runFile(path string) int {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Can't open file %q.\n", path)
			return 66
		}
		fmt.Fprintln(os.Stderr, err.Error())
		return 74
	}

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()
	ctx := newContext(out)

	if *debugBytecode {
		disasm, cerr := ctx.Compile(string(content))
		if cerr != nil {
			fmt.Fprintln(os.Stderr, cerr.Error())
			return 65
		}
		fmt.Fprintln(os.Stderr, disasm)
	}

	code := lox.Run(ctx, string(content))
	out.Flush()
	return code
}

// repl runs an interactive read-eval-print loop, persisting globals and
// interned strings across lines via a single long-lived Context
// (section 5), with readline-driven syntax highlighting matching the
// teacher's bin/main.go.
func repl() int {
	rl := readline.NewShell()
	rl.Prompt.Primary(func() string { return "> " })
	rl.SyntaxHighlighter = highlight

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()
	ctx := newContext(out)

	for {
		line, err := rl.Readline()
		if err == io.EOF {
			break
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			break
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		result, diagnostic := ctx.Interpret(line)
		out.Flush()
		switch result {
		case lox.ResultOK:
			// continue
		case lox.ResultCompileError, lox.ResultRuntimeError:
			fmt.Fprintln(os.Stderr, diagnostic)
		}
	}
	return 0
}

// highlight renders one REPL input line with the same string/number
// colouring as the teacher's highlighter, retokenizing with the
// package-private scanner through the exported TokenizeForHighlight helper.
func highlight(line []rune) string {
	tokens := lox.TokenizeForHighlight(string(line))

	var b strings.Builder
	i := 0
	for _, tok := range tokens {
		if tok.Start > i {
			b.WriteString(string(line)[i:tok.Start])
		}
		switch tok.Kind {
		case lox.HighlightString:
			b.WriteString(color.GreenString("%s", tok.Text))
		case lox.HighlightNumber:
			b.WriteString(color.MagentaString("%s", tok.Text))
		case lox.HighlightKeyword:
			b.WriteString(color.CyanString("%s", tok.Text))
		default:
			b.WriteString(tok.Text)
		}
		i = tok.Start + len(tok.Text)
	}
	if i < len(line) {
		b.WriteString(string(line)[i:])
	}
	return b.String()
}
