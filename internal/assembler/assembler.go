// Package assembler implements the context assembler: packing heterogeneous
// text sections into a hard token budget in a fixed, priority order, and the
// tail-safety token-truncation routine every section falls back to.
package assembler

import (
	"strings"

	"memoryd/internal/model"
	"memoryd/internal/tokencount"
)

const (
	titleCurrentSessionTopics = "Current Session Topics"
	titleRetrievedSummary     = "Retrieved Memory Summary"
	titleRetrievedRaw         = "Retrieved Raw Messages"
)

type section struct {
	title   string
	content string
}

// Assembler is the ContextAssembler component.
type Assembler struct {
	counter tokencount.Counter
}

// New returns an Assembler using counter for all token accounting.
func New(counter tokencount.Counter) *Assembler {
	return &Assembler{counter: counter}
}

// BuildInsertMessages packs topicSummaries, memorySummary, and a rendering
// of rawMessages into the three fixed sections, in order, skipping any
// section whose input is empty, and returns the result as a single
// system-role insert message list (one message per emitted section).
func (a *Assembler) BuildInsertMessages(topicSummaries, memorySummary string, rawMessages []string, budgetTokens int) []model.InsertMessage {
	sections := []section{
		{title: titleCurrentSessionTopics, content: topicSummaries},
		{title: titleRetrievedSummary, content: memorySummary},
		{title: titleRetrievedRaw, content: strings.Join(rawMessages, "\n")},
	}
	return a.pack(sections, budgetTokens)
}

// TrimInsertMessages re-packs an already-built insert message list against
// budget, used on the snapshot path where the sections were assembled in an
// earlier request.
func (a *Assembler) TrimInsertMessages(messages []model.InsertMessage, budgetTokens int) []model.InsertMessage {
	sections := make([]section, 0, len(messages))
	for _, m := range messages {
		title, content := splitHeading(m.Content)
		sections = append(sections, section{title: title, content: content})
	}
	return a.pack(sections, budgetTokens)
}

// pack implements the packing rule: for each section in order, compute its
// rendered text and token count; if it would overflow the remaining budget,
// truncate its content to what's left and stop; otherwise emit it whole and
// continue.
func (a *Assembler) pack(sections []section, budgetTokens int) []model.InsertMessage {
	out := make([]model.InsertMessage, 0, len(sections))
	used := 0

	for _, sec := range sections {
		if sec.content == "" {
			continue
		}
		heading := "## " + sec.title + "\n"
		sectionText := heading + sec.content
		sectionTokens := a.counter.Count(sectionText)

		if used+sectionTokens > budgetTokens {
			available := budgetTokens - used - a.counter.Count(heading)
			if available <= 0 {
				break
			}
			truncated := a.truncateToTokens(sec.content, available)
			out = append(out, model.InsertMessage{Role: model.RoleSystem, Content: heading + truncated})
			break
		}

		out = append(out, model.InsertMessage{Role: model.RoleSystem, Content: sectionText})
		used += sectionTokens
	}

	return out
}

// truncateToTokens returns a prefix of text whose token count is <=
// maxTokens, appended with an ellipsis if truncated. It approximates by
// character ratio and then re-measures, trimming one character at a time
// until the count invariant holds, so it never returns over budget even
// when the tokenizer's per-token byte width is uneven.
func (a *Assembler) truncateToTokens(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	total := a.counter.Count(text)
	if total <= maxTokens {
		return text
	}

	runes := []rune(text)
	ratio := float64(maxTokens) / float64(total)
	cut := int(float64(len(runes)) * ratio)
	if cut > len(runes) {
		cut = len(runes)
	}
	if cut < 0 {
		cut = 0
	}

	for cut > 0 {
		candidate := string(runes[:cut]) + "…"
		if a.counter.Count(candidate) <= maxTokens {
			return candidate
		}
		cut--
	}
	return "…"
}

// splitHeading reverses the "## title\ncontent" rendering produced by pack,
// for re-trimming an already-assembled insert message.
func splitHeading(rendered string) (title, content string) {
	rendered = strings.TrimPrefix(rendered, "## ")
	idx := strings.IndexByte(rendered, '\n')
	if idx < 0 {
		return rendered, ""
	}
	return rendered[:idx], rendered[idx+1:]
}
