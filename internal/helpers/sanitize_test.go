package helpers

import "testing"

func TestPlainTextRemovesHighlightMarkup(t *testing.T) {
	input := `Rust is a <span class="highlight">systems</span> language &amp; <b>fast</b><script>alert('x')</script>`
	got := PlainText(input)
	want := "Rust is a systems language & fast"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestPlainTextCollapsesWhitespace(t *testing.T) {
	got := PlainText("  many\n\n  spaces\there  ")
	if got != "many spaces here" {
		t.Fatalf("unexpected %q", got)
	}
	if PlainText("   ") != "" {
		t.Fatalf("expected empty output for blank input")
	}
}

func TestTruncateKeepsRuneBoundaries(t *testing.T) {
	if got := Truncate("héllo", 2); got != "h" {
		t.Fatalf("expected %q, got %q", "h", got)
	}
	if got := Truncate("abc", 10); got != "abc" {
		t.Fatalf("expected untouched string, got %q", got)
	}
	if got := Truncate("abc", 0); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}
