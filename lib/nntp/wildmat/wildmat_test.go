package wildmat

import "testing"

func TestCompileEmptyMatchesAll(t *testing.T) {
	p, err := Compile("", false)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !p.Match("overchan.test") {
		t.Fatal("empty pattern should match everything")
	}
}

func TestCompileStar(t *testing.T) {
	p, err := Compile("overchan.*", false)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !p.Match("overchan.test") {
		t.Fatal("expected match")
	}
	if p.Match("other.test") {
		t.Fatal("expected no match")
	}
}

func TestCompileQuestion(t *testing.T) {
	p, err := Compile("overchan.tes?", false)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !p.Match("overchan.test") {
		t.Fatal("expected ? to match single char")
	}
	if p.Match("overchan.tes") {
		t.Fatal("? must match exactly one char")
	}
}

func TestCompileNegation(t *testing.T) {
	p, err := Compile("overchan.*,!overchan.cp", false)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !p.Match("overchan.test") {
		t.Fatal("expected overchan.test to match")
	}
	if p.Match("overchan.cp") {
		t.Fatal("expected overchan.cp to be excluded")
	}
}

func TestCompileCharClass(t *testing.T) {
	p, err := Compile("overchan.[ab]", false)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !p.Match("overchan.a") || !p.Match("overchan.b") {
		t.Fatal("expected a and b to match")
	}
	if p.Match("overchan.c") {
		t.Fatal("expected c not to match")
	}
}

func TestCompileFoldCase(t *testing.T) {
	p, err := Compile("OVERCHAN.TEST", true)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !p.Match("overchan.test") {
		t.Fatal("expected case-folded match")
	}
}
