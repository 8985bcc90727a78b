package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"memoryd/internal/model"
)

// PostgresStore is a Persistence adapter backed by a pgx connection pool.
// Schema is relational chat-history tables: one row per message and per
// topic/thread/insight, scoped by (user_id, session_id).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgresPool opens a pgx pool for dsn.
func OpenPostgresPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConnLifetime = time.Hour
	return pgxpool.NewWithConfig(ctx, cfg)
}

// NewPostgresStore returns a Persistence backed by pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Init creates the schema if it does not already exist. Safe to call on
// every startup.
func (s *PostgresStore) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS memory_messages (
    user_id TEXT NOT NULL,
    session_id TEXT NOT NULL,
    message_id TEXT NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    token_count INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    archived BOOLEAN NOT NULL DEFAULT FALSE,
    topic_id TEXT NOT NULL DEFAULT '',
    thread_id TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (user_id, session_id, message_id)
);
CREATE INDEX IF NOT EXISTS memory_messages_session_created_idx
    ON memory_messages (user_id, session_id, created_at DESC);

CREATE TABLE IF NOT EXISTS memory_sessions (
    user_id TEXT NOT NULL,
    session_id TEXT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    insert_context JSONB NOT NULL DEFAULT '[]',
    insert_context_updated_at TIMESTAMPTZ,
    PRIMARY KEY (user_id, session_id)
);

CREATE TABLE IF NOT EXISTS memory_topics (
    user_id TEXT NOT NULL,
    session_id TEXT NOT NULL,
    topic_id TEXT NOT NULL,
    title TEXT NOT NULL,
    summary TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (user_id, session_id, topic_id)
);

CREATE TABLE IF NOT EXISTS memory_threads (
    user_id TEXT NOT NULL,
    session_id TEXT NOT NULL,
    topic_id TEXT NOT NULL,
    thread_id TEXT NOT NULL,
    title TEXT NOT NULL,
    summary TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (user_id, session_id, thread_id)
);

CREATE TABLE IF NOT EXISTS memory_insights (
    user_id TEXT NOT NULL,
    session_id TEXT NOT NULL,
    topic_id TEXT NOT NULL,
    thread_id TEXT NOT NULL,
    insight_id TEXT NOT NULL,
    version INTEGER NOT NULL,
    content TEXT NOT NULL,
    source_message_ids TEXT[] NOT NULL DEFAULT '{}',
    evolution_note TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    embedding_written BOOLEAN NOT NULL DEFAULT FALSE,
    PRIMARY KEY (user_id, session_id, insight_id)
);
CREATE INDEX IF NOT EXISTS memory_insights_thread_version_idx
    ON memory_insights (user_id, session_id, thread_id, version);

CREATE TABLE IF NOT EXISTS memory_archived_messages (
    user_id TEXT NOT NULL,
    session_id TEXT NOT NULL,
    message_id TEXT NOT NULL,
    topic_id TEXT NOT NULL,
    thread_id TEXT NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (user_id, session_id, message_id)
);
CREATE INDEX IF NOT EXISTS memory_archived_thread_idx
    ON memory_archived_messages (user_id, session_id, thread_id, created_at);
`)
	return err
}

func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *PostgresStore) GetRecentMessages(ctx context.Context, user, session string, limit int) ([]model.PersistedMessage, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.pool.Query(ctx, `
SELECT message_id, role, content, token_count, created_at, archived
FROM memory_messages
WHERE user_id = $1 AND session_id = $2
ORDER BY created_at DESC
LIMIT $3`, user, session, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.PersistedMessage
	for rows.Next() {
		var m model.PersistedMessage
		var role string
		if err := rows.Scan(&m.MessageID, &role, &m.Content, &m.TokenCount, &m.Timestamp, &m.Archived); err != nil {
			return nil, err
		}
		m.Role = model.Role(role)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PostgresStore) AddMessage(ctx context.Context, user, session string, msg model.APIMessage) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO memory_messages (user_id, session_id, message_id, role, content, token_count, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (user_id, session_id, message_id) DO NOTHING`,
		user, session, msg.MessageID, string(msg.Role), msg.Content, msg.TokenCount, msg.Timestamp)
	return err
}

func (s *PostgresStore) GetMessageByID(ctx context.Context, user, session, id string) (*model.PersistedMessage, error) {
	var m model.PersistedMessage
	var role string
	err := s.pool.QueryRow(ctx, `
SELECT message_id, role, content, token_count, created_at, archived
FROM memory_messages WHERE user_id = $1 AND session_id = $2 AND message_id = $3`,
		user, session, id).Scan(&m.MessageID, &role, &m.Content, &m.TokenCount, &m.Timestamp, &m.Archived)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.Role = model.Role(role)
	return &m, nil
}

func (s *PostgresStore) IsMessageArchived(ctx context.Context, user, session, id string) (bool, error) {
	var archived bool
	err := s.pool.QueryRow(ctx, `
SELECT archived FROM memory_messages WHERE user_id = $1 AND session_id = $2 AND message_id = $3`,
		user, session, id).Scan(&archived)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return archived, err
}

func (s *PostgresStore) MarkMessagesArchived(ctx context.Context, user, session string, ids []string, topicID, threadID string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
UPDATE memory_messages SET archived = TRUE, topic_id = $4, thread_id = $5
WHERE user_id = $1 AND session_id = $2 AND message_id = ANY($3)`,
		user, session, ids, topicID, threadID)
	return err
}

func (s *PostgresStore) UpdateSessionTimestamp(ctx context.Context, user, session string) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO memory_sessions (user_id, session_id, updated_at)
VALUES ($1, $2, NOW())
ON CONFLICT (user_id, session_id) DO UPDATE SET updated_at = NOW()`, user, session)
	return err
}

func (s *PostgresStore) GetSessionState(ctx context.Context, user, session string) (model.SessionState, error) {
	var raw []byte
	var updatedAt *time.Time
	err := s.pool.QueryRow(ctx, `
SELECT insert_context, insert_context_updated_at FROM memory_sessions
WHERE user_id = $1 AND session_id = $2`, user, session).Scan(&raw, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.SessionState{}, nil
	}
	if err != nil {
		return model.SessionState{}, err
	}
	msgs, err := decodeInsertMessages(raw)
	if err != nil {
		return model.SessionState{}, err
	}
	st := model.SessionState{InsertContextMessages: msgs}
	if updatedAt != nil {
		st.InsertContextUpdatedAt = *updatedAt
	}
	return st, nil
}

func (s *PostgresStore) UpdateSessionState(ctx context.Context, user, session string, state model.SessionState) error {
	raw, err := encodeInsertMessages(state.InsertContextMessages)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO memory_sessions (user_id, session_id, insert_context, insert_context_updated_at, updated_at)
VALUES ($1, $2, $3, $4, NOW())
ON CONFLICT (user_id, session_id) DO UPDATE
SET insert_context = $3, insert_context_updated_at = $4, updated_at = NOW()`,
		user, session, raw, state.InsertContextUpdatedAt)
	return err
}

func (s *PostgresStore) CreateTopic(ctx context.Context, user, session, topicID, title string) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO memory_topics (user_id, session_id, topic_id, title)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id, session_id, topic_id) DO NOTHING`, user, session, topicID, title)
	return err
}

func (s *PostgresStore) GetAllTopics(ctx context.Context, user, session string) ([]TopicRow, error) {
	rows, err := s.pool.Query(ctx, `
SELECT topic_id, title, summary, created_at FROM memory_topics
WHERE user_id = $1 AND session_id = $2 ORDER BY created_at ASC`, user, session)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TopicRow
	for rows.Next() {
		var t TopicRow
		if err := rows.Scan(&t.TopicID, &t.Title, &t.Summary, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateThread(ctx context.Context, user, session, topicID, threadID, title string) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO memory_threads (user_id, session_id, topic_id, thread_id, title)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (user_id, session_id, thread_id) DO NOTHING`, user, session, topicID, threadID, title)
	return err
}

func (s *PostgresStore) GetTopicThreads(ctx context.Context, user, session, topicID string) ([]ThreadRow, error) {
	rows, err := s.pool.Query(ctx, `
SELECT thread_id, topic_id, title, summary, created_at FROM memory_threads
WHERE user_id = $1 AND session_id = $2 AND topic_id = $3 ORDER BY created_at ASC`, user, session, topicID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ThreadRow
	for rows.Next() {
		var t ThreadRow
		if err := rows.Scan(&t.ThreadID, &t.TopicID, &t.Title, &t.Summary, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateThreadSummary(ctx context.Context, user, session, topicID, threadID, text string) error {
	_, err := s.pool.Exec(ctx, `
UPDATE memory_threads SET summary = $5
WHERE user_id = $1 AND session_id = $2 AND topic_id = $3 AND thread_id = $4`,
		user, session, topicID, threadID, text)
	return err
}

func (s *PostgresStore) CreateInsight(ctx context.Context, user, session, topicID, threadID, insightID string, version int, content string, sourceMessageIDs []string, evolutionNote string) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO memory_insights (user_id, session_id, topic_id, thread_id, insight_id, version, content, source_message_ids, evolution_note)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		user, session, topicID, threadID, insightID, version, content, sourceMessageIDs, evolutionNote)
	return err
}

func (s *PostgresStore) GetThreadInsights(ctx context.Context, user, session, topicID, threadID string) ([]InsightRow, error) {
	rows, err := s.pool.Query(ctx, `
SELECT insight_id, thread_id, topic_id, version, content, source_message_ids, evolution_note, created_at
FROM memory_insights
WHERE user_id = $1 AND session_id = $2 AND topic_id = $3 AND thread_id = $4
ORDER BY version ASC`, user, session, topicID, threadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []InsightRow
	for rows.Next() {
		var ins InsightRow
		if err := rows.Scan(&ins.InsightID, &ins.ThreadID, &ins.TopicID, &ins.Version, &ins.Content, &ins.SourceMessageIDs, &ins.EvolutionNote, &ins.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ins)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetLatestInsight(ctx context.Context, user, session, topicID, threadID string) (*InsightRow, error) {
	var ins InsightRow
	err := s.pool.QueryRow(ctx, `
SELECT insight_id, thread_id, topic_id, version, content, source_message_ids, evolution_note, created_at
FROM memory_insights
WHERE user_id = $1 AND session_id = $2 AND topic_id = $3 AND thread_id = $4
ORDER BY version DESC LIMIT 1`, user, session, topicID, threadID).
		Scan(&ins.InsightID, &ins.ThreadID, &ins.TopicID, &ins.Version, &ins.Content, &ins.SourceMessageIDs, &ins.EvolutionNote, &ins.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ins, nil
}

func (s *PostgresStore) UpdateInsightEmbedding(ctx context.Context, user, session, topicID, threadID, insightID string, embedding []float32) error {
	_, err := s.pool.Exec(ctx, `
UPDATE memory_insights SET embedding_written = TRUE
WHERE user_id = $1 AND session_id = $2 AND insight_id = $6`,
		user, session, topicID, threadID, insightID, insightID)
	return err
}

func (s *PostgresStore) SaveArchivedMessage(ctx context.Context, user, session, messageID, topicID, threadID string, role model.Role, content string) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO memory_archived_messages (user_id, session_id, message_id, topic_id, thread_id, role, content)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (user_id, session_id, message_id) DO UPDATE
SET topic_id = $4, thread_id = $5, role = $6, content = $7`,
		user, session, messageID, topicID, threadID, string(role), content)
	return err
}

func (s *PostgresStore) GetArchivedMessagesByThread(ctx context.Context, user, session, threadID string) ([]ArchivedRow, error) {
	rows, err := s.pool.Query(ctx, `
SELECT message_id, topic_id, thread_id, role, content FROM memory_archived_messages
WHERE user_id = $1 AND session_id = $2 AND thread_id = $3 ORDER BY created_at ASC`, user, session, threadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ArchivedRow
	for rows.Next() {
		var a ArchivedRow
		var role string
		if err := rows.Scan(&a.MessageID, &a.TopicID, &a.ThreadID, &role, &a.Content); err != nil {
			return nil, err
		}
		a.Role = model.Role(role)
		out = append(out, a)
	}
	return out, rows.Err()
}

var _ Persistence = (*PostgresStore)(nil)
