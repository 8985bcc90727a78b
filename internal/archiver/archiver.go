// Package archiver implements the truncate archiver: it consumes overflow
// from a message stream, classifies it into a Topic/Thread via the LLM,
// produces a new Insight version, persists everything, and marks the
// messages archived. No LLM call is made while a session mutex is held —
// callers (the scheduler) invoke Process outside any such lock.
package archiver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"memoryd/internal/archivelog"
	"memoryd/internal/llmservice"
	"memoryd/internal/memstream"
	"memoryd/internal/model"
	"memoryd/internal/store"
)

// classificationPromptCap bounds per-message content length fed into the
// classification prompt, not storage or insight extraction.
const classificationPromptCap = 500

// fallbackInsightCap bounds the trivial fallback insight when extraction
// fails.
const fallbackInsightCap = 200

// threadSummaryCap is the target length for the refreshed thread summary.
const threadSummaryCap = 100

// Result describes the outcome of one Process call.
type Result struct {
	NoOp       bool
	TopicID    string
	ThreadID   string
	InsightID  string
	Version    int
	ArchivedID []string
}

// Archiver is the TruncateArchiver component.
type Archiver struct {
	persist   store.Persistence
	llm       llmservice.Service
	publisher *archivelog.Publisher
	sink      *archivelog.Sink
}

// New returns an Archiver over persist and llm.
func New(persist store.Persistence, llm llmservice.Service) *Archiver {
	return &Archiver{persist: persist, llm: llm}
}

// WithArchiveLog attaches the optional Kafka publisher and ClickHouse
// sink for completed archive runs. Either may be nil.
func (a *Archiver) WithArchiveLog(publisher *archivelog.Publisher, sink *archivelog.Sink) *Archiver {
	a.publisher = publisher
	a.sink = sink
	return a
}

// Process runs the archival protocol against stream's current unarchived
// overflow. Returns a no-op Result if there is nothing to archive.
func (a *Archiver) Process(ctx context.Context, stream *memstream.Stream, user, session string) (*Result, error) {
	unarchived := stream.GetUnarchivedOverflow()
	if len(unarchived) == 0 {
		return &Result{NoOp: true}, nil
	}

	// Defensive filter against crash-recovery races: a message stream.
	// believes is unarchived may already be marked archived in
	// persistence.
	pending := make([]model.APIMessage, 0, len(unarchived))
	for _, m := range unarchived {
		archived, err := a.persist.IsMessageArchived(ctx, user, session, m.MessageID)
		if err != nil {
			log.Warn().Err(err).Str("messageID", m.MessageID).Msg("archiver_check_archived_failed")
			pending = append(pending, m)
			continue
		}
		if !archived {
			pending = append(pending, m)
		}
	}
	if len(pending) == 0 {
		return &Result{NoOp: true}, nil
	}

	classification, err := a.classify(ctx, pending, user, session)
	if err != nil {
		log.Warn().Err(err).Msg("archiver_classify_failed")
		classification = fallbackClassification()
	}

	topicID := classification.topicID
	threadID := classification.threadID

	if classification.isNewTopic {
		if err := a.persist.CreateTopic(ctx, user, session, topicID, classification.topicTitle); err != nil {
			return nil, fmt.Errorf("create topic: %w", err)
		}
	}
	if classification.isNewThread {
		if err := a.persist.CreateThread(ctx, user, session, topicID, threadID, classification.threadTitle); err != nil {
			return nil, fmt.Errorf("create thread: %w", err)
		}
	}

	existing, err := a.persist.GetThreadInsights(ctx, user, session, topicID, threadID)
	if err != nil {
		return nil, fmt.Errorf("get thread insights: %w", err)
	}
	version := len(existing) + 1

	insightContent := a.extractInsight(ctx, pending)
	evolutionNote := "initial"
	if len(existing) > 0 {
		evolutionNote = a.generateEvolutionNote(ctx, existing[len(existing)-1].Content, insightContent)
	}

	insightID := "insight_" + uuid.NewString()
	sourceIDs := make([]string, len(pending))
	for i, m := range pending {
		sourceIDs[i] = m.MessageID
	}
	if err := a.persist.CreateInsight(ctx, user, session, topicID, threadID, insightID, version, insightContent, sourceIDs, evolutionNote); err != nil {
		return nil, fmt.Errorf("create insight: %w", err)
	}

	for _, m := range pending {
		if err := a.persist.SaveArchivedMessage(ctx, user, session, m.MessageID, topicID, threadID, m.Role, m.Content); err != nil {
			return nil, fmt.Errorf("save archived message %s: %w", m.MessageID, err)
		}
	}

	if err := a.persist.MarkMessagesArchived(ctx, user, session, sourceIDs, topicID, threadID); err != nil {
		return nil, fmt.Errorf("mark messages archived: %w", err)
	}
	stream.MarkArchived(sourceIDs)

	a.refreshThreadSummary(ctx, user, session, topicID, threadID)

	a.emitArchiveLog(ctx, user, session, topicID, threadID, insightID, version, sourceIDs)

	return &Result{
		TopicID:    topicID,
		ThreadID:   threadID,
		InsightID:  insightID,
		Version:    version,
		ArchivedID: sourceIDs,
	}, nil
}

// emitArchiveLog fans the completed run out to the optional Kafka
// publisher and ClickHouse sink. Failures are logged, never fatal: the
// archive itself already committed.
func (a *Archiver) emitArchiveLog(ctx context.Context, user, session, topicID, threadID, insightID string, version int, messageIDs []string) {
	if a.publisher == nil && a.sink == nil {
		return
	}
	ev := archivelog.Event{
		User:       user,
		Session:    session,
		TopicID:    topicID,
		ThreadID:   threadID,
		InsightID:  insightID,
		Version:    version,
		MessageIDs: messageIDs,
		Timestamp:  time.Now(),
	}
	if err := a.publisher.Publish(ctx, ev); err != nil {
		log.Warn().Err(err).Str("threadID", threadID).Msg("archivelog_publish_failed")
	}
	if err := a.sink.Record(ctx, ev); err != nil {
		log.Warn().Err(err).Str("threadID", threadID).Msg("archivelog_record_failed")
	}
}

type classificationOutcome struct {
	topicID     string
	topicTitle  string
	threadID    string
	threadTitle string
	isNewTopic  bool
	isNewThread bool
}

func fallbackClassification() classificationOutcome {
	return classificationOutcome{
		topicID:     "topic_" + uuid.NewString(),
		topicTitle:  "Unclassified",
		threadID:    "thread_" + uuid.NewString(),
		threadTitle: "General",
		isNewTopic:  true,
		isNewThread: true,
	}
}

func (a *Archiver) classify(ctx context.Context, messages []model.APIMessage, user, session string) (classificationOutcome, error) {
	topics, err := a.persist.GetAllTopics(ctx, user, session)
	if err != nil {
		return classificationOutcome{}, err
	}
	var known strings.Builder
	for _, t := range topics {
		threads, err := a.persist.GetTopicThreads(ctx, user, session, t.TopicID)
		if err != nil {
			return classificationOutcome{}, err
		}
		fmt.Fprintf(&known, "Topic %s (%s):\n", t.TopicID, t.Title)
		for _, th := range threads {
			fmt.Fprintf(&known, "  Thread %s (%s)\n", th.ThreadID, th.Title)
		}
	}

	var batch strings.Builder
	for _, m := range messages {
		batch.WriteString(string(m.Role))
		batch.WriteString(": ")
		batch.WriteString(truncate(m.Content, classificationPromptCap))
		batch.WriteString("\n")
	}

	prompt := fmt.Sprintf(`Classify the following conversation batch into a Topic and Thread.

Known topics and threads:
%s

Conversation batch:
%s

Respond with JSON: {"topicID": string|null, "topicTitle": string, "threadID": string|null, "threadTitle": string, "isNewTopic": bool, "isNewThread": bool}`,
		known.String(), batch.String())

	result, err := a.llm.ClassifyForArchive(ctx, prompt)
	if err != nil {
		return classificationOutcome{}, err
	}
	if result == nil {
		return fallbackClassification(), nil
	}

	out := classificationOutcome{
		topicTitle:  result.TopicTitle,
		threadTitle: result.ThreadTitle,
		isNewTopic:  result.IsNewTopic,
		isNewThread: result.IsNewThread,
	}
	if result.TopicID == nil || *result.TopicID == "" {
		out.topicID = "topic_" + uuid.NewString()
		out.isNewTopic = true
	} else {
		out.topicID = *result.TopicID
	}
	if result.ThreadID == nil || *result.ThreadID == "" {
		out.threadID = "thread_" + uuid.NewString()
		out.isNewThread = true
	} else {
		out.threadID = *result.ThreadID
	}
	if out.topicTitle == "" {
		out.topicTitle = "Unclassified"
	}
	if out.threadTitle == "" {
		out.threadTitle = "General"
	}
	return out, nil
}

// extractInsight distills the full message batch into insight content. No
// 500-char cap is applied here, unlike the classification prompt.
func (a *Archiver) extractInsight(ctx context.Context, messages []model.APIMessage) string {
	var batch strings.Builder
	for _, m := range messages {
		batch.WriteString(string(m.Role))
		batch.WriteString(": ")
		batch.WriteString(m.Content)
		batch.WriteString("\n")
	}
	prompt := fmt.Sprintf("Summarize the user's understanding demonstrated in this conversation segment:\n\n%s", batch.String())
	text, err := a.llm.GenerateSimple(ctx, prompt)
	if err != nil || strings.TrimSpace(text) == "" {
		return fallbackInsight(messages)
	}
	return text
}

func fallbackInsight(messages []model.APIMessage) string {
	for _, m := range messages {
		if m.Role == model.RoleUser {
			return "User discussed: " + truncate(m.Content, fallbackInsightCap)
		}
	}
	if len(messages) > 0 {
		return "User discussed: " + truncate(messages[0].Content, fallbackInsightCap)
	}
	return "User discussed: (no content)"
}

func (a *Archiver) generateEvolutionNote(ctx context.Context, prev, next string) string {
	prompt := fmt.Sprintf("Previous understanding:\n%s\n\nNew understanding:\n%s\n\nIn one sentence, describe how the understanding evolved.", prev, next)
	text, err := a.llm.GenerateSimple(ctx, prompt)
	if err != nil || strings.TrimSpace(text) == "" {
		return "updated"
	}
	return text
}

// refreshThreadSummary is step 8: non-fatal, any failure is logged and
// swallowed without rolling back the archival that already happened.
func (a *Archiver) refreshThreadSummary(ctx context.Context, user, session, topicID, threadID string) {
	insights, err := a.persist.GetThreadInsights(ctx, user, session, topicID, threadID)
	if err != nil {
		log.Warn().Err(err).Msg("archiver_refresh_summary_load_failed")
		return
	}
	var concat strings.Builder
	for _, ins := range insights {
		fmt.Fprintf(&concat, "v%d: %s\n", ins.Version, ins.Content)
	}
	prompt := fmt.Sprintf("Summarize the following in at most %d characters:\n%s", threadSummaryCap, concat.String())
	summary, err := a.llm.GenerateSimple(ctx, prompt)
	if err != nil || strings.TrimSpace(summary) == "" {
		log.Warn().Err(err).Msg("archiver_refresh_summary_generate_failed")
		return
	}
	summary = truncate(summary, threadSummaryCap)
	if err := a.persist.UpdateThreadSummary(ctx, user, session, topicID, threadID, summary); err != nil {
		log.Warn().Err(err).Msg("archiver_refresh_summary_store_failed")
	}
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
