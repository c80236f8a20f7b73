package lox

import "testing"

func TestScannerBasicTokens(t *testing.T) {
	src := `var a = 1 + 2.5;
if (a >= 1 and a != 3) {
  print "hi";
}`

	expected := []struct {
		kind   tokenKind
		lexeme string
	}{
		{tokenVar, "var"},
		{tokenIdentifier, "a"},
		{tokenEqual, "="},
		{tokenNumber, "1"},
		{tokenPlus, "+"},
		{tokenNumber, "2.5"},
		{tokenSemicolon, ";"},
		{tokenIf, "if"},
		{tokenLeftParen, "("},
		{tokenIdentifier, "a"},
		{tokenGreaterEqual, ">="},
		{tokenNumber, "1"},
		{tokenAnd, "and"},
		{tokenIdentifier, "a"},
		{tokenBangEqual, "!="},
		{tokenNumber, "3"},
		{tokenRightParen, ")"},
		{tokenLeftBrace, "{"},
		{tokenPrint, "print"},
		{tokenString, `"hi"`},
		{tokenSemicolon, ";"},
		{tokenRightBrace, "}"},
		{tokenEOF, ""},
	}

	s := newScanner(src)
	for i, want := range expected {
		got := s.scanToken()
		if got.kind != want.kind || got.lexeme != want.lexeme {
			t.Fatalf("token %d: expected %v %q, got %v %q", i, want.kind, want.lexeme, got.kind, got.lexeme)
		}
	}
}

func TestScannerLineCounting(t *testing.T) {
	src := "var a = 1;\nvar b = 2;\n"
	s := newScanner(src)

	var lastVarLine int
	for {
		tok := s.scanToken()
		if tok.kind == tokenEOF {
			break
		}
		if tok.kind == tokenVar {
			lastVarLine = tok.line
		}
	}
	if lastVarLine != 2 {
		t.Fatalf("expected second 'var' on line 2, got %d", lastVarLine)
	}
}

func TestScannerUnterminatedStringIsErrorToken(t *testing.T) {
	s := newScanner(`"unterminated`)
	tok := s.scanToken()
	if tok.kind != tokenError {
		t.Fatalf("expected ERROR token, got %v", tok.kind)
	}
}

func TestScannerLineCommentsAreSkipped(t *testing.T) {
	s := newScanner("// nothing here\nvar a = 1;")
	tok := s.scanToken()
	if tok.kind != tokenVar {
		t.Fatalf("expected 'var' after comment, got %v %q", tok.kind, tok.lexeme)
	}
}
