package retriever

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"memoryd/internal/embedding/embedtest"
	"memoryd/internal/llmservice/llmtest"
	"memoryd/internal/router"
	"memoryd/internal/store"
)

func seedThread(t *testing.T, persist store.Persistence, ctx context.Context, user, session, topicID, topicTitle, threadID, threadTitle, insightContent string) {
	t.Helper()
	require.NoError(t, persist.CreateTopic(ctx, user, session, topicID, topicTitle))
	require.NoError(t, persist.CreateThread(ctx, user, session, topicID, threadID, threadTitle))
	require.NoError(t, persist.CreateInsight(ctx, user, session, topicID, threadID, "insight_"+threadID, 1, insightContent, []string{"m1"}, "initial"))
}

func TestRetrieveNoThreadsReturnsSentinelSummary(t *testing.T) {
	ctx := context.Background()
	persist := store.NewMemoryStore()
	r := New(persist, &embedtest.Fake{}, &llmtest.Fake{})

	route := router.Route{Keywords: []string{"rust"}, IncludeRaw: true, MaxThreads: 5, MaxRawMessages: 20, Scope: router.ScopeCurrentSession}
	result, err := r.Retrieve(ctx, "u1", "s1", route)
	require.NoError(t, err)
	require.Equal(t, "No matching memory found.", result.Summary)
	require.Empty(t, result.MatchedThreads)
}

func TestRetrieveRanksByLexicalScoreWithoutEmbeddings(t *testing.T) {
	ctx := context.Background()
	persist := store.NewMemoryStore()
	seedThread(t, persist, ctx, "u1", "s1", "t1", "Rust", "th1", "Borrow checker", "The borrow checker enforces ownership rules in rust")
	seedThread(t, persist, ctx, "u1", "s1", "t2", "Cooking", "th2", "Pasta", "Boil pasta in salted water")

	r := New(persist, &embedtest.Fake{}, &llmtest.Fake{
		SimpleFn: func(ctx context.Context, prompt string) (string, error) { return "summary", nil },
	})
	route := router.Route{Keywords: []string{"rust", "borrow"}, IncludeRaw: true, MaxThreads: 1, MaxRawMessages: 20, Scope: router.ScopeCurrentSession}
	result, err := r.Retrieve(ctx, "u1", "s1", route)
	require.NoError(t, err)
	require.Len(t, result.MatchedThreads, 1)
	require.Equal(t, "th1", result.MatchedThreads[0].ThreadID)
	require.Equal(t, "summary", result.Summary)
}

func TestRetrieveHybridScoreUsesCosineWhenBothEmbeddingsExist(t *testing.T) {
	ctx := context.Background()
	persist := store.NewMemoryStore()
	seedThread(t, persist, ctx, "u1", "s1", "t1", "Rust", "th1", "Borrow checker", "ownership rules")
	require.NoError(t, persist.UpdateInsightEmbedding(ctx, "u1", "s1", "t1", "th1", "insight_th1", []float32{1, 0, 0}))

	fakeEmbed := &embedtest.Fake{Default: []float32{1, 0, 0}}
	r := New(persist, fakeEmbed, &llmtest.Fake{})
	route := router.Route{Keywords: []string{"ownership"}, IncludeRaw: false, MaxThreads: 1, MaxRawMessages: 20, Scope: router.ScopeCurrentSession}
	result, err := r.Retrieve(ctx, "u1", "s1", route)
	require.NoError(t, err)
	require.Len(t, result.ThreadScores, 1)
	require.InDelta(t, 1.1, result.ThreadScores[0].Score, 0.01)
}

func TestRetrieveGatherRawRespectsMaxAndIncludeRawFlag(t *testing.T) {
	ctx := context.Background()
	persist := store.NewMemoryStore()
	seedThread(t, persist, ctx, "u1", "s1", "t1", "Rust", "th1", "Borrow checker", "ownership rules")
	require.NoError(t, persist.SaveArchivedMessage(ctx, "u1", "s1", "m1", "t1", "th1", "user", "what is a borrow"))
	require.NoError(t, persist.SaveArchivedMessage(ctx, "u1", "s1", "m2", "t1", "th1", "assistant", "it's a reference"))

	r := New(persist, &embedtest.Fake{}, &llmtest.Fake{})
	route := router.Route{Keywords: []string{"borrow"}, IncludeRaw: true, MaxThreads: 5, MaxRawMessages: 1, Scope: router.ScopeCurrentSession}
	result, err := r.Retrieve(ctx, "u1", "s1", route)
	require.NoError(t, err)
	require.Len(t, result.RawMessages, 1)

	route.IncludeRaw = false
	result, err = r.Retrieve(ctx, "u1", "s1", route)
	require.NoError(t, err)
	require.Empty(t, result.RawMessages)
}
