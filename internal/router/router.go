// Package router implements the memory router: turning a natural-language
// "need" into structured retrieval hints for the memory retriever.
package router

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"memoryd/internal/llmservice"
)

// DefaultMaxThreads and DefaultMaxRawMessages are the configured retrieval
// caps applied when the LLM plan omits them or falls back.
const (
	DefaultMaxThreads     = 5
	DefaultMaxRawMessages = 20
)

// Scope values for Route.Scope.
const (
	ScopeCurrentSession = "current_session"
)

// Route is the structured retrieval plan produced by route().
type Route struct {
	Keywords       []string
	IncludeRaw     bool
	MaxThreads     int
	MaxRawMessages int
	Scope          string
}

// Router is the MemoryRouter component.
type Router struct {
	llm            llmservice.Service
	maxThreads     int
	maxRawMessages int
}

// New returns a Router with the given configured retrieval caps, used by the
// fallback path when the LLM plan can't be parsed.
func New(llm llmservice.Service, maxThreads, maxRawMessages int) *Router {
	if maxThreads <= 0 {
		maxThreads = DefaultMaxThreads
	}
	if maxRawMessages <= 0 {
		maxRawMessages = DefaultMaxRawMessages
	}
	return &Router{llm: llm, maxThreads: maxThreads, maxRawMessages: maxRawMessages}
}

var tokenPattern = regexp.MustCompile(`[A-Za-z0-9]+`)

// Route asks the LLM for a retrieval plan; on any failure it applies the
// fixed fallback: up to 6 alphanumeric tokens of length >= 2 extracted from
// need, includeRaw=true, configured caps, current_session scope.
func (r *Router) Route(ctx context.Context, need string) Route {
	prompt := fmt.Sprintf(`Given the need: %q
Produce a JSON retrieval plan: {"keywords": [string], "includeRaw": bool, "maxThreads": int, "maxRawMessages": int, "scope": string}`, need)

	plan, err := r.llm.GenerateJSON(ctx, prompt)
	if err != nil || plan == nil {
		return r.fallback(need)
	}

	keywords := normalizeKeywords(plan["keywords"])
	includeRaw, _ := plan["includeRaw"].(bool)
	maxThreads := intOrDefault(plan["maxThreads"], r.maxThreads)
	maxRawMessages := intOrDefault(plan["maxRawMessages"], r.maxRawMessages)
	scope, _ := plan["scope"].(string)
	if scope == "" {
		scope = ScopeCurrentSession
	}

	return Route{
		Keywords:       keywords,
		IncludeRaw:     includeRaw,
		MaxThreads:     maxThreads,
		MaxRawMessages: maxRawMessages,
		Scope:          scope,
	}
}

func (r *Router) fallback(need string) Route {
	matches := tokenPattern.FindAllString(need, -1)
	keywords := make([]string, 0, 6)
	for _, m := range matches {
		if len(m) < 2 {
			continue
		}
		keywords = append(keywords, m)
		if len(keywords) == 6 {
			break
		}
	}
	return Route{
		Keywords:       keywords,
		IncludeRaw:     true,
		MaxThreads:     r.maxThreads,
		MaxRawMessages: r.maxRawMessages,
		Scope:          ScopeCurrentSession,
	}
}

// normalizeKeywords accepts either a JSON array or a comma-separated string
// for the keywords field, trims whitespace, and drops empties.
func normalizeKeywords(raw any) []string {
	var candidates []string
	switch v := raw.(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				candidates = append(candidates, s)
			}
		}
	case string:
		candidates = strings.Split(v, ",")
	}
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

func intOrDefault(raw any, def int) int {
	switch v := raw.(type) {
	case float64:
		if v > 0 {
			return int(v)
		}
	case int:
		if v > 0 {
			return v
		}
	}
	return def
}
