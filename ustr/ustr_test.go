package ustr

import "testing"

func TestTokensDropsEmptyComponents(t *testing.T) {
	toks := Ustr("/a//b/c/").Tokens()
	if len(toks) != 3 {
		t.Fatalf("got %d tokens, want 3: %v", len(toks), toks)
	}
	want := []string{"a", "b", "c"}
	for i, tok := range toks {
		if tok.String() != want[i] {
			t.Fatalf("token %d = %q, want %q", i, tok.String(), want[i])
		}
	}
}

func TestIsdotIsdotdot(t *testing.T) {
	if !MkUstrDot().Isdot() {
		t.Fatal("\".\" should be Isdot")
	}
	if !DotDot.Isdotdot() {
		t.Fatal("\"..\" should be Isdotdot")
	}
	if Ustr("..x").Isdotdot() {
		t.Fatal("\"..x\" should not be Isdotdot")
	}
}

func TestIsAbsoluteAndExtend(t *testing.T) {
	if !MkUstrRoot().IsAbsolute() {
		t.Fatal("root should be absolute")
	}
	if Ustr("rel").IsAbsolute() {
		t.Fatal("relative path reported as absolute")
	}
	got := Ustr("/a").Extend(Ustr("b"))
	if got.String() != "/a/b" {
		t.Fatalf("Extend = %q, want \"/a/b\"", got.String())
	}
}

func TestEq(t *testing.T) {
	if !Ustr("foo").Eq(Ustr("foo")) {
		t.Fatal("equal strings compared unequal")
	}
	if Ustr("foo").Eq(Ustr("foobar")) {
		t.Fatal("unequal-length strings compared equal")
	}
}

func TestNormalizeProducesComposedForm(t *testing.T) {
	// "e" + combining acute accent (decomposed, U+0065 U+0301) should
	// normalize to the same bytes as the precomposed U+00E9, so names
	// that look visually identical compare byte-equal once stored in a
	// fixed-size directory entry.
	decomposed := Ustr("é")
	precomposed := Ustr("é")
	if decomposed.Eq(precomposed) {
		t.Fatal("test fixture bug: decomposed and precomposed forms already byte-equal")
	}
	if !Normalize(decomposed).Eq(Normalize(precomposed)) {
		t.Fatal("decomposed and precomposed forms did not normalize equal")
	}
}
