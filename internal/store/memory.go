package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"memoryd/internal/model"
)

// MemoryStore is an in-memory Persistence implementation, used in tests and
// for offline development. It is safe for concurrent use.
type MemoryStore struct {
	mu sync.Mutex

	messages  map[string]map[string]model.PersistedMessage // "user/session" -> messageID -> msg
	sessions  map[string]model.SessionState
	topics    map[string]map[string]TopicRow
	threads   map[string]map[string]ThreadRow
	insights  map[string][]InsightRow // "user/session/thread" -> insights, oldest first
	archived  map[string][]ArchivedRow
}

// NewMemoryStore returns an empty in-memory Persistence.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages: make(map[string]map[string]model.PersistedMessage),
		sessions: make(map[string]model.SessionState),
		topics:   make(map[string]map[string]TopicRow),
		threads:  make(map[string]map[string]ThreadRow),
		insights: make(map[string][]InsightRow),
		archived: make(map[string][]ArchivedRow),
	}
}

func key(user, session string) string { return user + "/" + session }

func (s *MemoryStore) GetRecentMessages(ctx context.Context, user, session string, limit int) ([]model.PersistedMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket := s.messages[key(user, session)]
	out := make([]model.PersistedMessage, 0, len(bucket))
	for _, m := range bucket {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) AddMessage(ctx context.Context, user, session string, msg model.APIMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(user, session)
	bucket, ok := s.messages[k]
	if !ok {
		bucket = make(map[string]model.PersistedMessage)
		s.messages[k] = bucket
	}
	if _, exists := bucket[msg.MessageID]; exists {
		return nil
	}
	bucket[msg.MessageID] = model.PersistedMessage{
		MessageID:  msg.MessageID,
		Role:       msg.Role,
		Content:    msg.Content,
		Timestamp:  msg.Timestamp,
		TokenCount: msg.TokenCount,
	}
	return nil
}

func (s *MemoryStore) GetMessageByID(ctx context.Context, user, session, id string) (*model.PersistedMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket := s.messages[key(user, session)]
	if m, ok := bucket[id]; ok {
		cp := m
		return &cp, nil
	}
	return nil, nil
}

func (s *MemoryStore) IsMessageArchived(ctx context.Context, user, session, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket := s.messages[key(user, session)]
	if m, ok := bucket[id]; ok {
		return m.Archived, nil
	}
	return false, nil
}

func (s *MemoryStore) MarkMessagesArchived(ctx context.Context, user, session string, ids []string, topicID, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket := s.messages[key(user, session)]
	for _, id := range ids {
		if m, ok := bucket[id]; ok {
			m.Archived = true
			bucket[id] = m
		}
	}
	return nil
}

func (s *MemoryStore) UpdateSessionTimestamp(ctx context.Context, user, session string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(user, session)
	st := s.sessions[k]
	s.sessions[k] = st
	return nil
}

func (s *MemoryStore) GetSessionState(ctx context.Context, user, session string) (model.SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[key(user, session)], nil
}

func (s *MemoryStore) UpdateSessionState(ctx context.Context, user, session string, state model.SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[key(user, session)] = state
	return nil
}

func (s *MemoryStore) CreateTopic(ctx context.Context, user, session, topicID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(user, session)
	bucket, ok := s.topics[k]
	if !ok {
		bucket = make(map[string]TopicRow)
		s.topics[k] = bucket
	}
	if _, exists := bucket[topicID]; exists {
		return nil
	}
	bucket[topicID] = TopicRow{TopicID: topicID, Title: title, CreatedAt: time.Now()}
	return nil
}

func (s *MemoryStore) GetAllTopics(ctx context.Context, user, session string) ([]TopicRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket := s.topics[key(user, session)]
	out := make([]TopicRow, 0, len(bucket))
	for _, t := range bucket {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) CreateThread(ctx context.Context, user, session, topicID, threadID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(user, session)
	bucket, ok := s.threads[k]
	if !ok {
		bucket = make(map[string]ThreadRow)
		s.threads[k] = bucket
	}
	if _, exists := bucket[threadID]; exists {
		return nil
	}
	bucket[threadID] = ThreadRow{ThreadID: threadID, TopicID: topicID, Title: title, CreatedAt: time.Now()}
	return nil
}

func (s *MemoryStore) GetTopicThreads(ctx context.Context, user, session, topicID string) ([]ThreadRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket := s.threads[key(user, session)]
	out := make([]ThreadRow, 0)
	for _, t := range bucket {
		if t.TopicID == topicID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) UpdateThreadSummary(ctx context.Context, user, session, topicID, threadID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket := s.threads[key(user, session)]
	if t, ok := bucket[threadID]; ok {
		t.Summary = text
		bucket[threadID] = t
	}
	return nil
}

func (s *MemoryStore) CreateInsight(ctx context.Context, user, session, topicID, threadID, insightID string, version int, content string, sourceMessageIDs []string, evolutionNote string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(user, session) + "/" + threadID
	s.insights[k] = append(s.insights[k], InsightRow{
		InsightID:        insightID,
		ThreadID:         threadID,
		TopicID:          topicID,
		Version:          version,
		Content:          content,
		SourceMessageIDs: append([]string(nil), sourceMessageIDs...),
		EvolutionNote:    evolutionNote,
		CreatedAt:        time.Now(),
	})
	return nil
}

func (s *MemoryStore) GetThreadInsights(ctx context.Context, user, session, topicID, threadID string) ([]InsightRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(user, session) + "/" + threadID
	out := make([]InsightRow, len(s.insights[k]))
	copy(out, s.insights[k])
	return out, nil
}

func (s *MemoryStore) GetLatestInsight(ctx context.Context, user, session, topicID, threadID string) (*InsightRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(user, session) + "/" + threadID
	list := s.insights[k]
	if len(list) == 0 {
		return nil, nil
	}
	latest := list[len(list)-1]
	return &latest, nil
}

func (s *MemoryStore) UpdateInsightEmbedding(ctx context.Context, user, session, topicID, threadID, insightID string, embedding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(user, session) + "/" + threadID
	list := s.insights[k]
	for i, ins := range list {
		if ins.InsightID == insightID {
			list[i].Embedding = embedding
		}
	}
	return nil
}

func (s *MemoryStore) SaveArchivedMessage(ctx context.Context, user, session, messageID, topicID, threadID string, role model.Role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(user, session) + "/" + threadID
	for i, a := range s.archived[k] {
		if a.MessageID == messageID {
			s.archived[k][i] = ArchivedRow{MessageID: messageID, TopicID: topicID, ThreadID: threadID, Role: role, Content: content}
			return nil
		}
	}
	s.archived[k] = append(s.archived[k], ArchivedRow{MessageID: messageID, TopicID: topicID, ThreadID: threadID, Role: role, Content: content})
	return nil
}

func (s *MemoryStore) GetArchivedMessagesByThread(ctx context.Context, user, session, threadID string) ([]ArchivedRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(user, session) + "/" + threadID
	out := make([]ArchivedRow, len(s.archived[k]))
	copy(out, s.archived[k])
	return out, nil
}

var _ Persistence = (*MemoryStore)(nil)
