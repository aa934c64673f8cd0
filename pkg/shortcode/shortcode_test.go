package shortcode

import "testing"

func TestNew(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		c := New()
		if !Valid(c) {
			t.Fatalf("generated invalid code %q", c)
		}
		seen[c] = true
	}
	if len(seen) < 195 {
		t.Errorf("expected mostly unique codes, got %d distinct", len(seen))
	}
}

func TestValid(t *testing.T) {
	tests := map[string]bool{
		"AB12CD34": true,
		"ab12cd34": false,
		"AB12CD3":  false,
		"AB12CD3!": false,
		"":         false,
	}
	for in, want := range tests {
		if got := Valid(in); got != want {
			t.Errorf("Valid(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewFrom(t *testing.T) {
	i := 0
	seq := func(n int) int { i++; return (i * 7) % n }
	a := NewFrom(seq)
	if !Valid(a) {
		t.Fatalf("generated invalid code %q", a)
	}
	i = 0
	if b := NewFrom(seq); b != a {
		t.Errorf("expected same code from same sequence, got %q and %q", a, b)
	}
}
