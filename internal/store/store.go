// Package store defines the Persistence adapter boundary the orchestrator's
// core calls through, and ships two implementations: a Postgres-backed one
// for production and an in-memory one for tests and offline development.
package store

import (
	"context"
	"errors"
	"time"

	"memoryd/internal/model"
)

// ErrNotFound is a sentinel for a missing row. Neither implementation returns
// it: single-item lookups (GetMessageByID, GetLatestInsight) report a missing
// row as (nil, nil).
var ErrNotFound = errors.New("store: not found")

// TopicRow, ThreadRow, InsightRow, and ArchivedRow mirror model.Topic,
// model.Thread, model.Insight, and model.ArchivedMessageIndex respectively.
// They are type aliases, not distinct types: the adapter returns the core's
// model types under these names.
type TopicRow = model.Topic
type ThreadRow = model.Thread
type InsightRow = model.Insight
type ArchivedRow = model.ArchivedMessageIndex

// Persistence is the durable storage boundary the core calls through. The
// core calls, and only calls, these nineteen methods. All may return a
// transient transport error; the caller retries at most once.
type Persistence interface {
	GetRecentMessages(ctx context.Context, user, session string, limit int) ([]model.PersistedMessage, error)
	AddMessage(ctx context.Context, user, session string, msg model.APIMessage) error
	GetMessageByID(ctx context.Context, user, session, id string) (*model.PersistedMessage, error)
	IsMessageArchived(ctx context.Context, user, session, id string) (bool, error)
	MarkMessagesArchived(ctx context.Context, user, session string, ids []string, topicID, threadID string) error

	UpdateSessionTimestamp(ctx context.Context, user, session string) error
	GetSessionState(ctx context.Context, user, session string) (model.SessionState, error)
	UpdateSessionState(ctx context.Context, user, session string, state model.SessionState) error

	CreateTopic(ctx context.Context, user, session, topicID, title string) error
	GetAllTopics(ctx context.Context, user, session string) ([]TopicRow, error)

	CreateThread(ctx context.Context, user, session, topicID, threadID, title string) error
	GetTopicThreads(ctx context.Context, user, session, topicID string) ([]ThreadRow, error)
	UpdateThreadSummary(ctx context.Context, user, session, topicID, threadID, text string) error

	CreateInsight(ctx context.Context, user, session, topicID, threadID, insightID string, version int, content string, sourceMessageIDs []string, evolutionNote string) error
	GetThreadInsights(ctx context.Context, user, session, topicID, threadID string) ([]InsightRow, error)
	GetLatestInsight(ctx context.Context, user, session, topicID, threadID string) (*InsightRow, error)
	UpdateInsightEmbedding(ctx context.Context, user, session, topicID, threadID, insightID string, embedding []float32) error

	SaveArchivedMessage(ctx context.Context, user, session, messageID, topicID, threadID string, role model.Role, content string) error
	GetArchivedMessagesByThread(ctx context.Context, user, session, threadID string) ([]ArchivedRow, error)
}

// now is overridable in tests.
var now = time.Now
