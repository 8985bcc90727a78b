package sessionstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"memoryd/internal/model"
	"memoryd/internal/store"
	"memoryd/internal/tokencount"
)

func TestGetStreamRebuildsFromPersistenceInChronologicalOrder(t *testing.T) {
	ctx := context.Background()
	persist := store.NewMemoryStore()
	base := time.Now()
	require.NoError(t, persist.AddMessage(ctx, "u1", "s1", model.APIMessage{MessageID: "m1", Role: model.RoleUser, Content: "first", Timestamp: base, TokenCount: 2}))
	require.NoError(t, persist.AddMessage(ctx, "u1", "s1", model.APIMessage{MessageID: "m2", Role: model.RoleAssistant, Content: "second", Timestamp: base.Add(time.Second), TokenCount: 2}))
	require.NoError(t, persist.MarkMessagesArchived(ctx, "u1", "s1", []string{"m1"}, "t1", "th1"))

	s := New(persist, tokencount.New())
	stream, err := s.GetStream(ctx, "u1", "s1", 1000)
	require.NoError(t, err)

	all := stream.GetAll()
	require.Len(t, all, 2)
	require.Equal(t, "m1", all[0].MessageID)
	require.Equal(t, "m2", all[1].MessageID)
	require.True(t, stream.IsArchived("m1"))
	require.False(t, stream.IsArchived("m2"))
}

func TestGetStreamCachedWithinTTL(t *testing.T) {
	ctx := context.Background()
	persist := store.NewMemoryStore()
	s := New(persist, tokencount.New())

	first, err := s.GetStream(ctx, "u1", "s1", 1000)
	require.NoError(t, err)
	require.NoError(t, first.Append(model.APIMessage{MessageID: "m1", Role: model.RoleUser, Content: "hi", TokenCount: 1, Timestamp: time.Now()}))

	second, err := s.GetStream(ctx, "u1", "s1", 1000)
	require.NoError(t, err)
	require.Same(t, first, second)
}

func TestSetInsertMessagesPersistsAndCaches(t *testing.T) {
	ctx := context.Background()
	persist := store.NewMemoryStore()
	s := New(persist, tokencount.New())

	msgs := []model.InsertMessage{{Role: model.RoleSystem, Content: "summary"}}
	require.NoError(t, s.SetInsertMessages(ctx, "u1", "s1", msgs))

	got, err := s.GetInsertMessages(ctx, "u1", "s1")
	require.NoError(t, err)
	require.Equal(t, msgs, got)

	state, err := persist.GetSessionState(ctx, "u1", "s1")
	require.NoError(t, err)
	require.Equal(t, msgs, state.InsertContextMessages)
}

func TestSessionMutexIsStableAcrossCalls(t *testing.T) {
	persist := store.NewMemoryStore()
	s := New(persist, tokencount.New())
	require.Same(t, s.SessionMutex("u1", "s1"), s.SessionMutex("u1", "s1"))
	require.NotSame(t, s.SessionMutex("u1", "s1"), s.SessionMutex("u1", "s2"))
}

func TestArchivePendingFlag(t *testing.T) {
	persist := store.NewMemoryStore()
	s := New(persist, tokencount.New())
	require.False(t, s.ArchivePending("u1", "s1"))
	s.SetArchivePending("u1", "s1", true)
	require.True(t, s.ArchivePending("u1", "s1"))
}
