// Package tokencount provides a deterministic token counter shared by every
// component that budgets tokens: the message stream's active window and the
// context assembler's packing rule.
package tokencount

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// encoding is the tokenizer identity recorded for this build. Every counting,
// truncation, and budgeting call in the orchestrator goes through this one
// encoding so budget invariants (P3, P7) can't silently drift between call
// sites that used different tokenizers.
const encoding = "cl100k_base"

var (
	once    sync.Once
	encoder *tiktoken.Tiktoken
	mu      sync.Mutex
)

func load() {
	enc, err := tiktoken.GetEncoding(encoding)
	if err == nil {
		encoder = enc
	}
}

// Identity returns the tokenizer identity this counter is fixed to.
func Identity() string { return encoding }

// Counter counts tokens of text with the fixed encoding. It is pure and
// stateless from the caller's perspective: the same text always yields the
// same count.
type Counter struct{}

// New returns a Counter. Construction is cheap; the underlying BPE encoder is
// loaded once, lazily, behind a sync.Once.
func New() Counter {
	once.Do(load)
	return Counter{}
}

// Count returns the number of tokens in text. Empty string counts as 0. If
// the BPE encoder failed to load (e.g. offline with no cached ranks), it
// falls back to a char/4 heuristic (roughly 4 characters per BPE token for
// English prose), so callers still get a monotone approximation rather than
// a hard failure.
func (Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	once.Do(load)
	if encoder == nil {
		return heuristic(text)
	}
	mu.Lock()
	tokens := encoder.Encode(text, nil, nil)
	mu.Unlock()
	return len(tokens)
}

// CountMessages returns the sum of Count over each message's content. The
// gateway, session store, and assembler count one text at a time with Count
// and do not call this helper.
func (c Counter) CountMessages(contents []string) int {
	total := 0
	for _, s := range contents {
		total += c.Count(s)
	}
	return total
}

func heuristic(text string) int {
	n := len(strings.TrimSpace(text))
	if n == 0 {
		return 0
	}
	if n < 4 {
		return 1
	}
	return (n + 3) / 4
}
