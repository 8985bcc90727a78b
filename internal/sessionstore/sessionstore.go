// Package sessionstore implements the session-scoped caching layer: live
// message streams, the cached insert-message block, and the per-session
// mutexes the gateway and scheduler serialize on. Everything here is
// in-process and lazily rebuilt from persistence on a TTL miss.
package sessionstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"memoryd/internal/memstream"
	"memoryd/internal/model"
	"memoryd/internal/store"
	"memoryd/internal/tokencount"
)

// DefaultTTL is how long a cached stream or insert-message list is trusted
// before being rebuilt from persistence on next access.
const DefaultTTL = 10 * time.Minute

// DefaultLoadLimit bounds how many recent messages are read back from
// persistence when rebuilding a stream.
const DefaultLoadLimit = 200

func sessionKey(user, session string) string {
	return user + "/" + session
}

// Store is the SessionContextStore component: in-memory maps keyed by
// session, each guarded either by its own mutex (session/archive mutexes) or
// the store's map-level lock (for lookup/insert of those mutexes and the
// cached data itself).
type Store struct {
	persist   store.Persistence
	counter   tokencount.Counter
	ttl       time.Duration
	loadLimit int

	mapMu sync.Mutex

	streams        map[string]*memstream.Stream
	insertMessages map[string][]model.InsertMessage
	lastAccess     map[string]time.Time

	sessionMutexes map[string]*sync.Mutex
	archiveMutexes map[string]*sync.Mutex
	archivePending map[string]bool
}

// New returns a Store backed by persist, using counter to compute token
// counts for messages rebuilt from persistence without a stored count.
func New(persist store.Persistence, counter tokencount.Counter) *Store {
	return &Store{
		persist:        persist,
		counter:        counter,
		ttl:            DefaultTTL,
		loadLimit:      DefaultLoadLimit,
		streams:        make(map[string]*memstream.Stream),
		insertMessages: make(map[string][]model.InsertMessage),
		lastAccess:     make(map[string]time.Time),
		sessionMutexes: make(map[string]*sync.Mutex),
		archiveMutexes: make(map[string]*sync.Mutex),
		archivePending: make(map[string]bool),
	}
}

// SessionMutex returns the per-session mutex for (user, session), creating
// it if absent. The mutex is never deleted: session state lives for the
// process lifetime once touched.
func (s *Store) SessionMutex(user, session string) *sync.Mutex {
	key := sessionKey(user, session)
	s.mapMu.Lock()
	defer s.mapMu.Unlock()
	m, ok := s.sessionMutexes[key]
	if !ok {
		m = &sync.Mutex{}
		s.sessionMutexes[key] = m
	}
	return m
}

// ArchiveMutex returns the per-session archive mutex for (user, session),
// creating it if absent.
func (s *Store) ArchiveMutex(user, session string) *sync.Mutex {
	key := sessionKey(user, session)
	s.mapMu.Lock()
	defer s.mapMu.Unlock()
	m, ok := s.archiveMutexes[key]
	if !ok {
		m = &sync.Mutex{}
		s.archiveMutexes[key] = m
	}
	return m
}

// SetArchivePending sets the re-run flag consulted by the scheduler's
// detached loop.
func (s *Store) SetArchivePending(user, session string, pending bool) {
	key := sessionKey(user, session)
	s.mapMu.Lock()
	defer s.mapMu.Unlock()
	s.archivePending[key] = pending
}

// ArchivePending reads the re-run flag.
func (s *Store) ArchivePending(user, session string) bool {
	key := sessionKey(user, session)
	s.mapMu.Lock()
	defer s.mapMu.Unlock()
	return s.archivePending[key]
}

// GetStream returns the cached stream for (user, session), rebuilding it
// from persistence if absent or stale. Callers must hold the session mutex.
func (s *Store) GetStream(ctx context.Context, user, session string, windowTokens int) (*memstream.Stream, error) {
	key := sessionKey(user, session)

	s.mapMu.Lock()
	stream, ok := s.streams[key]
	last, seen := s.lastAccess[key]
	s.mapMu.Unlock()

	if ok && seen && time.Since(last) <= s.ttl {
		return stream, nil
	}

	rebuilt, err := s.loadStream(ctx, user, session, windowTokens)
	if err != nil {
		return nil, fmt.Errorf("rebuild stream for %s: %w", key, err)
	}

	s.mapMu.Lock()
	s.streams[key] = rebuilt
	s.lastAccess[key] = time.Now()
	s.mapMu.Unlock()

	return rebuilt, nil
}

// loadStream reads the most recent loadLimit messages from persistence
// (newest-first), reverses them to chronological order, appends each as an
// APIMessage (computing a token count when absent), and re-marks the ones
// persistence reports as archived.
func (s *Store) loadStream(ctx context.Context, user, session string, windowTokens int) (*memstream.Stream, error) {
	recent, err := s.persist.GetRecentMessages(ctx, user, session, s.loadLimit)
	if err != nil {
		return nil, err
	}

	stream := memstream.New(session, windowTokens)
	archivedIDs := make([]string, 0, len(recent))
	for i := len(recent) - 1; i >= 0; i-- {
		m := recent[i]
		tokenCount := m.TokenCount
		if tokenCount == 0 {
			tokenCount = s.counter.Count(m.Content)
		}
		err := stream.Append(model.APIMessage{
			MessageID:  m.MessageID,
			Role:       m.Role,
			Content:    m.Content,
			Timestamp:  m.Timestamp,
			TokenCount: tokenCount,
		})
		if err != nil {
			continue
		}
		if m.Archived {
			archivedIDs = append(archivedIDs, m.MessageID)
		}
	}
	stream.MarkArchived(archivedIDs)
	return stream, nil
}

// GetInsertMessages returns the cached insert-message block, rebuilding it
// from SessionState if absent or stale. Callers must hold the session mutex.
func (s *Store) GetInsertMessages(ctx context.Context, user, session string) ([]model.InsertMessage, error) {
	key := sessionKey(user, session)

	s.mapMu.Lock()
	cached, ok := s.insertMessages[key]
	last, seen := s.lastAccess[key]
	s.mapMu.Unlock()

	if ok && seen && time.Since(last) <= s.ttl {
		return cached, nil
	}

	state, err := s.persist.GetSessionState(ctx, user, session)
	if err != nil {
		return nil, fmt.Errorf("load session state for %s: %w", key, err)
	}

	s.mapMu.Lock()
	s.insertMessages[key] = state.InsertContextMessages
	s.mapMu.Unlock()

	return state.InsertContextMessages, nil
}

// SetInsertMessages updates the cache and persists the new insert-message
// block along with its update timestamp. Callers must hold the session
// mutex.
func (s *Store) SetInsertMessages(ctx context.Context, user, session string, messages []model.InsertMessage) error {
	key := sessionKey(user, session)
	now := time.Now()

	if err := s.persist.UpdateSessionState(ctx, user, session, model.SessionState{
		InsertContextMessages:  messages,
		InsertContextUpdatedAt: now,
	}); err != nil {
		return fmt.Errorf("persist insert messages for %s: %w", key, err)
	}

	s.mapMu.Lock()
	s.insertMessages[key] = messages
	s.mapMu.Unlock()

	return nil
}
