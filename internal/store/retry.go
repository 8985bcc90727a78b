package store

import (
	"context"

	"memoryd/internal/errs"
	"memoryd/internal/model"
)

// retrying decorates a Persistence with the "one silent retry at the call
// site" policy for TransientExternalError, the same decorator shape
// observability.NewHTTPClient uses to wrap an *http.Client with
// instrumentation rather than modifying every call site.
type retrying struct {
	inner Persistence
}

// WithRetry wraps inner so every method retries once on failure before
// returning an error wrapped with errs.Transient.
func WithRetry(inner Persistence) Persistence {
	return &retrying{inner: inner}
}

func (r *retrying) GetRecentMessages(ctx context.Context, user, session string, limit int) ([]model.PersistedMessage, error) {
	return errs.RetryValue(ctx, func() ([]model.PersistedMessage, error) {
		return r.inner.GetRecentMessages(ctx, user, session, limit)
	})
}

func (r *retrying) AddMessage(ctx context.Context, user, session string, msg model.APIMessage) error {
	return errs.Retry(ctx, func() error { return r.inner.AddMessage(ctx, user, session, msg) })
}

func (r *retrying) GetMessageByID(ctx context.Context, user, session, id string) (*model.PersistedMessage, error) {
	return errs.RetryValue(ctx, func() (*model.PersistedMessage, error) {
		return r.inner.GetMessageByID(ctx, user, session, id)
	})
}

func (r *retrying) IsMessageArchived(ctx context.Context, user, session, id string) (bool, error) {
	return errs.RetryValue(ctx, func() (bool, error) { return r.inner.IsMessageArchived(ctx, user, session, id) })
}

func (r *retrying) MarkMessagesArchived(ctx context.Context, user, session string, ids []string, topicID, threadID string) error {
	return errs.Retry(ctx, func() error {
		return r.inner.MarkMessagesArchived(ctx, user, session, ids, topicID, threadID)
	})
}

func (r *retrying) UpdateSessionTimestamp(ctx context.Context, user, session string) error {
	return errs.Retry(ctx, func() error { return r.inner.UpdateSessionTimestamp(ctx, user, session) })
}

func (r *retrying) GetSessionState(ctx context.Context, user, session string) (model.SessionState, error) {
	return errs.RetryValue(ctx, func() (model.SessionState, error) { return r.inner.GetSessionState(ctx, user, session) })
}

func (r *retrying) UpdateSessionState(ctx context.Context, user, session string, state model.SessionState) error {
	return errs.Retry(ctx, func() error { return r.inner.UpdateSessionState(ctx, user, session, state) })
}

func (r *retrying) CreateTopic(ctx context.Context, user, session, topicID, title string) error {
	return errs.Retry(ctx, func() error { return r.inner.CreateTopic(ctx, user, session, topicID, title) })
}

func (r *retrying) GetAllTopics(ctx context.Context, user, session string) ([]TopicRow, error) {
	return errs.RetryValue(ctx, func() ([]TopicRow, error) { return r.inner.GetAllTopics(ctx, user, session) })
}

func (r *retrying) CreateThread(ctx context.Context, user, session, topicID, threadID, title string) error {
	return errs.Retry(ctx, func() error { return r.inner.CreateThread(ctx, user, session, topicID, threadID, title) })
}

func (r *retrying) GetTopicThreads(ctx context.Context, user, session, topicID string) ([]ThreadRow, error) {
	return errs.RetryValue(ctx, func() ([]ThreadRow, error) { return r.inner.GetTopicThreads(ctx, user, session, topicID) })
}

func (r *retrying) UpdateThreadSummary(ctx context.Context, user, session, topicID, threadID, text string) error {
	return errs.Retry(ctx, func() error {
		return r.inner.UpdateThreadSummary(ctx, user, session, topicID, threadID, text)
	})
}

func (r *retrying) CreateInsight(ctx context.Context, user, session, topicID, threadID, insightID string, version int, content string, sourceMessageIDs []string, evolutionNote string) error {
	return errs.Retry(ctx, func() error {
		return r.inner.CreateInsight(ctx, user, session, topicID, threadID, insightID, version, content, sourceMessageIDs, evolutionNote)
	})
}

func (r *retrying) GetThreadInsights(ctx context.Context, user, session, topicID, threadID string) ([]InsightRow, error) {
	return errs.RetryValue(ctx, func() ([]InsightRow, error) {
		return r.inner.GetThreadInsights(ctx, user, session, topicID, threadID)
	})
}

func (r *retrying) GetLatestInsight(ctx context.Context, user, session, topicID, threadID string) (*InsightRow, error) {
	return errs.RetryValue(ctx, func() (*InsightRow, error) {
		return r.inner.GetLatestInsight(ctx, user, session, topicID, threadID)
	})
}

func (r *retrying) UpdateInsightEmbedding(ctx context.Context, user, session, topicID, threadID, insightID string, embedding []float32) error {
	return errs.Retry(ctx, func() error {
		return r.inner.UpdateInsightEmbedding(ctx, user, session, topicID, threadID, insightID, embedding)
	})
}

func (r *retrying) SaveArchivedMessage(ctx context.Context, user, session, messageID, topicID, threadID string, role model.Role, content string) error {
	return errs.Retry(ctx, func() error {
		return r.inner.SaveArchivedMessage(ctx, user, session, messageID, topicID, threadID, role, content)
	})
}

func (r *retrying) GetArchivedMessagesByThread(ctx context.Context, user, session, threadID string) ([]ArchivedRow, error) {
	return errs.RetryValue(ctx, func() ([]ArchivedRow, error) {
		return r.inner.GetArchivedMessagesByThread(ctx, user, session, threadID)
	})
}
