package tokencount

import "testing"

func TestEmptyStringIsZero(t *testing.T) {
	c := New()
	if got := c.Count(""); got != 0 {
		t.Fatalf("Count(\"\") = %d, want 0", got)
	}
}

func TestDeterministic(t *testing.T) {
	c := New()
	text := "the quick brown fox jumps over the lazy dog"
	a := c.Count(text)
	b := c.Count(text)
	if a != b {
		t.Fatalf("Count not deterministic: %d != %d", a, b)
	}
	if a <= 0 {
		t.Fatalf("Count(%q) = %d, want > 0", text, a)
	}
}

func TestSubadditiveWithSlack(t *testing.T) {
	c := New()
	a := "hello world, this is a "
	b := "longer sentence to test concatenation."
	const slack = 4
	if got, want := c.Count(a+b), c.Count(a)+c.Count(b)+slack; got > want {
		t.Fatalf("Count(a+b) = %d, want <= %d", got, want)
	}
}

func TestCountMessages(t *testing.T) {
	c := New()
	got := c.CountMessages([]string{"hi", "there"})
	want := c.Count("hi") + c.Count("there")
	if got != want {
		t.Fatalf("CountMessages = %d, want %d", got, want)
	}
}
