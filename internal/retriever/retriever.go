// Package retriever implements the memory retriever: ranking topic/thread
// pairs by a hybrid embedding+lexical score against a router.Route, then
// summarizing the winners and gathering their raw archived messages.
package retriever

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"memoryd/internal/embedding"
	"memoryd/internal/llmservice"
	"memoryd/internal/model"
	"memoryd/internal/router"
	"memoryd/internal/store"
)

// ThreadScore pairs a thread with the score it was ranked by.
type ThreadScore struct {
	TopicID  string
	ThreadID string
	Score    float64
}

// RawMessage is a single archived message surfaced to the caller alongside
// its provenance.
type RawMessage struct {
	MessageID string
	Role      model.Role
	Content   string
	TopicID   string
	ThreadID  string
}

// MatchedThread carries the display fields needed by the caller to build a
// "Current Session Topics" style rendering independent of the summary text.
type MatchedThread struct {
	TopicID     string
	TopicTitle  string
	ThreadID    string
	ThreadTitle string
}

// Result is the output of Retrieve.
type Result struct {
	MatchedThreads []MatchedThread
	ThreadScores   []ThreadScore
	Summary        string
	RawMessages    []RawMessage
}

// Retriever is the MemoryRetriever component.
type Retriever struct {
	persist store.Persistence
	embed   embedding.Service
	llm     llmservice.Service
	mirror  *embedding.QdrantMirror
}

// New returns a Retriever over persist, embed, and llm.
func New(persist store.Persistence, embed embedding.Service, llm llmservice.Service) *Retriever {
	return &Retriever{persist: persist, embed: embed, llm: llm}
}

// WithMirror attaches the optional Qdrant insight-vector mirror. A nil
// mirror is valid and leaves backfilled embeddings in persistence only.
func (r *Retriever) WithMirror(mirror *embedding.QdrantMirror) *Retriever {
	r.mirror = mirror
	return r
}

type candidate struct {
	topic    store.TopicRow
	thread   store.ThreadRow
	insight  *store.InsightRow
	score    float64
	order    int
}

// Retrieve ranks every topic/thread pair by a hybrid embedding+lexical
// score against route, selects the top matches, summarizes them, and
// gathers their raw archived messages when the route asks for it.
func (r *Retriever) Retrieve(ctx context.Context, user, session string, route router.Route) (*Result, error) {
	queryText := strings.Join(route.Keywords, " ")
	queryEmbedding, err := r.embed.EmbedText(ctx, queryText)
	if err != nil {
		log.Warn().Err(err).Msg("retriever_query_embed_failed")
		queryEmbedding = nil
	}

	topics, err := r.persist.GetAllTopics(ctx, user, session)
	if err != nil {
		return nil, fmt.Errorf("get all topics: %w", err)
	}

	candidates := make([]candidate, 0)
	order := 0
	for _, topic := range topics {
		threads, err := r.persist.GetTopicThreads(ctx, user, session, topic.TopicID)
		if err != nil {
			return nil, fmt.Errorf("get topic threads: %w", err)
		}
		for _, thread := range threads {
			insight, err := r.persist.GetLatestInsight(ctx, user, session, topic.TopicID, thread.ThreadID)
			if err != nil {
				return nil, fmt.Errorf("get latest insight: %w", err)
			}
			score := r.scoreCandidate(ctx, user, session, queryEmbedding, route.Keywords, topic, thread, insight)
			candidates = append(candidates, candidate{topic: topic, thread: thread, insight: insight, score: score, order: order})
			order++
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].order < candidates[j].order
	})

	maxThreads := route.MaxThreads
	if maxThreads > len(candidates) {
		maxThreads = len(candidates)
	}
	selected := candidates[:maxThreads]

	matched := make([]MatchedThread, 0, len(selected))
	scores := make([]ThreadScore, 0, len(selected))
	for _, c := range selected {
		matched = append(matched, MatchedThread{
			TopicID:     c.topic.TopicID,
			TopicTitle:  c.topic.Title,
			ThreadID:    c.thread.ThreadID,
			ThreadTitle: c.thread.Title,
		})
		scores = append(scores, ThreadScore{TopicID: c.topic.TopicID, ThreadID: c.thread.ThreadID, Score: c.score})
	}

	var rawMessages []RawMessage
	if route.IncludeRaw {
		rawMessages = r.gatherRaw(ctx, user, session, selected, route.MaxRawMessages)
	}

	summary := r.summarize(ctx, selected, route.Keywords)

	return &Result{
		MatchedThreads: matched,
		ThreadScores:   scores,
		Summary:        summary,
		RawMessages:    rawMessages,
	}, nil
}

// scoreCandidate implements steps 2.b-2.e: best-effort embedding backfill,
// lexical overlap, then hybrid or lexical-only scoring.
func (r *Retriever) scoreCandidate(ctx context.Context, user, session string, queryEmbedding []float32, keywords []string, topic store.TopicRow, thread store.ThreadRow, insight *store.InsightRow) float64 {
	if insight == nil {
		return 0
	}

	if len(insight.Content) > 0 && len(insight.Embedding) == 0 {
		vec, err := r.embed.EmbedText(ctx, insight.Content)
		if err != nil {
			log.Warn().Err(err).Str("insightID", insight.InsightID).Msg("retriever_backfill_embed_failed")
		} else {
			insight.Embedding = vec
			if err := r.persist.UpdateInsightEmbedding(ctx, user, session, topic.TopicID, thread.ThreadID, insight.InsightID, vec); err != nil {
				log.Warn().Err(err).Str("insightID", insight.InsightID).Msg("retriever_backfill_writeback_failed")
			} else if err := r.mirror.Upsert(ctx, insight.InsightID, topic.TopicID, thread.ThreadID, vec); err != nil {
				log.Warn().Err(err).Str("insightID", insight.InsightID).Msg("retriever_backfill_mirror_failed")
			}
		}
	}

	haystack := strings.ToLower(topic.Title + thread.Title + thread.Summary + insight.Content)
	lexical := lexicalOverlap(keywords, haystack)

	if len(queryEmbedding) > 0 && len(insight.Embedding) > 0 {
		return embedding.Cosine(queryEmbedding, insight.Embedding) + 0.1*lexical
	}
	return lexical
}

func lexicalOverlap(keywords []string, haystackLower string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	hits := 0
	for _, kw := range keywords {
		if strings.Contains(haystackLower, strings.ToLower(kw)) {
			hits++
		}
	}
	return float64(hits) / float64(len(keywords))
}

// gatherRaw implements step 5: walk selected threads in rank order, pulling
// archived messages per thread in persistence order, stopping once the
// running total reaches maxRawMessages.
func (r *Retriever) gatherRaw(ctx context.Context, user, session string, selected []candidate, maxRawMessages int) []RawMessage {
	out := make([]RawMessage, 0, maxRawMessages)
	for _, c := range selected {
		if len(out) >= maxRawMessages {
			break
		}
		rows, err := r.persist.GetArchivedMessagesByThread(ctx, user, session, c.thread.ThreadID)
		if err != nil {
			log.Warn().Err(err).Str("threadID", c.thread.ThreadID).Msg("retriever_gather_raw_failed")
			continue
		}
		for _, row := range rows {
			if len(out) >= maxRawMessages {
				break
			}
			out = append(out, RawMessage{
				MessageID: row.MessageID,
				Role:      row.Role,
				Content:   row.Content,
				TopicID:   row.TopicID,
				ThreadID:  row.ThreadID,
			})
		}
	}
	return out
}

// summarize implements step 6: the literal no-match sentinel, an LLM
// summary of the selected threads keyed by the route's keywords, or the raw
// concatenation on LLM failure.
func (r *Retriever) summarize(ctx context.Context, selected []candidate, keywords []string) string {
	if len(selected) == 0 {
		return "No matching memory found."
	}

	var concat strings.Builder
	for _, c := range selected {
		content := ""
		if c.insight != nil {
			content = c.insight.Content
		}
		fmt.Fprintf(&concat, "Topic: %s\nThread: %s\nSummary: %s\nLatest insight: %s\n\n",
			c.topic.Title, c.thread.Title, c.thread.Summary, content)
	}

	prompt := fmt.Sprintf("Summarize the following memory, focusing on relevance to: %s\n\n%s",
		strings.Join(keywords, ", "), concat.String())
	summary, err := r.llm.GenerateSimple(ctx, prompt)
	if err != nil || strings.TrimSpace(summary) == "" {
		return concat.String()
	}
	return summary
}
