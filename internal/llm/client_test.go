package llm

import "testing"

func TestCountTokens_ScalesWithInputLength(t *testing.T) {
	c := NewClient("http://unused.invalid/v1", "test-key", "gpt-4o-mini", 1000, 0.3)

	short := c.CountTokens("hello world")
	long := c.CountTokens("hello world, this is a substantially longer piece of text to encode")

	if short <= 0 {
		t.Fatalf("CountTokens(short) = %d, want > 0", short)
	}
	if long <= short {
		t.Fatalf("CountTokens(long) = %d, want more than short text's %d", long, short)
	}
}

func TestCountTokens_EmptyString(t *testing.T) {
	c := NewClient("http://unused.invalid/v1", "test-key", "gpt-4o-mini", 1000, 0.3)

	if got := c.CountTokens(""); got != 0 {
		t.Errorf("CountTokens(\"\") = %d, want 0", got)
	}
}
