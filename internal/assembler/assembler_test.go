package assembler

import (
	"strings"
	"testing"

	"memoryd/internal/tokencount"
)

func newAssembler() *Assembler {
	return New(tokencount.New())
}

func TestBuildInsertMessagesSkipsEmptySections(t *testing.T) {
	a := newAssembler()
	out := a.BuildInsertMessages("", "a summary", nil, 1000)
	if len(out) != 1 {
		t.Fatalf("expected 1 section, got %d: %+v", len(out), out)
	}
	if !strings.HasPrefix(out[0].Content, "## Retrieved Memory Summary\n") {
		t.Fatalf("unexpected content: %q", out[0].Content)
	}
}

func TestBuildInsertMessagesPreservesFixedOrder(t *testing.T) {
	a := newAssembler()
	out := a.BuildInsertMessages("topics", "summary", []string{"raw1"}, 1000)
	if len(out) != 3 {
		t.Fatalf("expected 3 sections, got %d", len(out))
	}
	if !strings.Contains(out[0].Content, "Current Session Topics") {
		t.Fatalf("expected first section to be topics, got %q", out[0].Content)
	}
	if !strings.Contains(out[1].Content, "Retrieved Memory Summary") {
		t.Fatalf("expected second section to be summary, got %q", out[1].Content)
	}
	if !strings.Contains(out[2].Content, "Retrieved Raw Messages") {
		t.Fatalf("expected third section to be raw, got %q", out[2].Content)
	}
}

func TestBuildInsertMessagesTruncatesWhenOverBudget(t *testing.T) {
	a := newAssembler()
	long := strings.Repeat("word ", 2000)
	out := a.BuildInsertMessages(long, "", nil, 20)
	if len(out) != 1 {
		t.Fatalf("expected 1 truncated section, got %d", len(out))
	}
	if a.counter.Count(out[0].Content) > 20 {
		t.Fatalf("section exceeds budget: %d tokens", a.counter.Count(out[0].Content))
	}
	if !strings.HasSuffix(out[0].Content, "…") {
		t.Fatalf("expected ellipsis suffix, got %q", out[0].Content)
	}
}

func TestBuildInsertMessagesStopsAtFirstSectionThatCannotFit(t *testing.T) {
	a := newAssembler()
	out := a.BuildInsertMessages("topics here", strings.Repeat("x", 10000), []string{"raw"}, 5)
	if len(out) == 0 {
		t.Fatalf("expected at least a truncated first section")
	}
	for _, m := range out {
		if a.counter.Count(m.Content) > 5 {
			t.Fatalf("section exceeds budget: %q", m.Content)
		}
	}
}

func TestTruncateToTokensZeroBudgetReturnsEmpty(t *testing.T) {
	a := newAssembler()
	if got := a.truncateToTokens("hello world", 0); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}

func TestTruncateToTokensUnderBudgetReturnsWhole(t *testing.T) {
	a := newAssembler()
	if got := a.truncateToTokens("hi", 1000); got != "hi" {
		t.Fatalf("expected unchanged text, got %q", got)
	}
}

func TestTrimInsertMessagesRoundTrips(t *testing.T) {
	a := newAssembler()
	built := a.BuildInsertMessages("topics", "summary", []string{"raw"}, 1000)
	trimmed := a.TrimInsertMessages(built, 1000)
	if len(trimmed) != len(built) {
		t.Fatalf("expected round trip to preserve sections, got %d vs %d", len(trimmed), len(built))
	}
	for i := range built {
		if trimmed[i].Content != built[i].Content {
			t.Fatalf("section %d mismatch: %q vs %q", i, trimmed[i].Content, built[i].Content)
		}
	}
}
