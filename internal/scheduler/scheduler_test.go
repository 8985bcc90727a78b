package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"memoryd/internal/archiver"
	"memoryd/internal/llmservice"
	"memoryd/internal/llmservice/llmtest"
	"memoryd/internal/memstream"
	"memoryd/internal/model"
	"memoryd/internal/sessionstore"
	"memoryd/internal/store"
	"memoryd/internal/tokencount"
)

func overflowingStream(t *testing.T, id string) *memstream.Stream {
	t.Helper()
	s := memstream.New("sess1", 5)
	require.NoError(t, s.Append(model.APIMessage{MessageID: "m1-" + id, Role: model.RoleUser, Content: "content about rust", TokenCount: 6, Timestamp: time.Now()}))
	require.NoError(t, s.Append(model.APIMessage{MessageID: "m2-" + id, Role: model.RoleAssistant, Content: "more about rust", TokenCount: 6, Timestamp: time.Now()}))
	return s
}

func TestScheduleArchiveCoalescesConcurrentRequests(t *testing.T) {
	ctx := context.Background()
	persist := store.NewMemoryStore()

	var runCount int32
	release := make(chan struct{})
	started := make(chan struct{}, 1)

	fake := &llmtest.Fake{
		ClassifyFn: func(ctx context.Context, prompt string) (*llmservice.ClassificationResult, error) {
			n := atomic.AddInt32(&runCount, 1)
			if n == 1 {
				started <- struct{}{}
				<-release
			}
			return nil, nil
		},
		SimpleFn: func(ctx context.Context, prompt string) (string, error) { return "", nil },
	}
	arch := archiver.New(persist, fake)
	sessions := sessionstore.New(persist, tokencount.New())
	sched := New(sessions, arch)

	s1 := overflowingStream(t, "a")
	sched.ScheduleArchive(ctx, "u1", "s1", s1)
	<-started // first run is now blocked inside classify, holding the archive mutex

	s2 := overflowingStream(t, "b")
	sched.ScheduleArchive(ctx, "u1", "s2", s2) // different session: must not coalesce
	sched.ScheduleArchive(ctx, "u1", "s1", s1) // same session, in flight: must coalesce

	require.True(t, sessions.ArchivePending("u1", "s1"))

	close(release)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&runCount) >= 2
	}, time.Second, time.Millisecond)

	require.Eventually(t, func() bool {
		mu := sessions.ArchiveMutex("u1", "s1")
		if mu.TryLock() {
			mu.Unlock()
			return true
		}
		return false
	}, time.Second, time.Millisecond)

	require.False(t, sessions.ArchivePending("u1", "s1"))
	require.LessOrEqual(t, atomic.LoadInt32(&runCount), int32(2))
}

func TestScheduleArchiveNonBlockingWhenNoOverflow(t *testing.T) {
	ctx := context.Background()
	persist := store.NewMemoryStore()
	arch := archiver.New(persist, &llmtest.Fake{})
	sessions := sessionstore.New(persist, tokencount.New())
	sched := New(sessions, arch)

	s := memstream.New("sess1", 1000)
	require.NoError(t, s.Append(model.APIMessage{MessageID: "m1", Role: model.RoleUser, Content: "hi", TokenCount: 1, Timestamp: time.Now()}))

	done := make(chan struct{})
	go func() {
		sched.ScheduleArchive(ctx, "u1", "s1", s)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ScheduleArchive blocked")
	}
}
