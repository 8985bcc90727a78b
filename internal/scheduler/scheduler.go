// Package scheduler implements the per-session archive scheduler: at most
// one archive run in flight per session, with a coalescing re-run flag so a
// burst of schedule requests collapses into one or two runs instead of N.
package scheduler

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"memoryd/internal/archiver"
	"memoryd/internal/memstream"
	"memoryd/internal/sessionstore"
)

// Scheduler is the ArchiveScheduler component.
type Scheduler struct {
	sessions *sessionstore.Store
	archiver *archiver.Archiver
}

// New returns a Scheduler over sessions and arch.
func New(sessions *sessionstore.Store, arch *archiver.Archiver) *Scheduler {
	return &Scheduler{sessions: sessions, archiver: arch}
}

// ScheduleArchive requests an archive run for (user, session) against
// stream's current state. It never blocks the caller: if a run is already
// in flight, it sets the re-run flag and returns immediately; otherwise it
// spawns a detached goroutine that loops until no re-run was requested
// during its last pass.
func (s *Scheduler) ScheduleArchive(ctx context.Context, user, session string, stream *memstream.Stream) {
	mu := s.sessions.ArchiveMutex(user, session)
	if !mu.TryLock() {
		s.sessions.SetArchivePending(user, session, true)
		return
	}

	// Detach from the caller's context: the archive run must outlive the
	// request that triggered it, not be cancelled when that request
	// completes or its HTTP connection closes.
	go s.run(context.WithoutCancel(ctx), user, session, stream, mu)
}

// run holds the archive mutex for the duration of the coalescing loop.
// Archive runs are never mid-flight cancelled: a caller's ctx cancellation
// only affects calls already in progress inside the current Process call.
func (s *Scheduler) run(ctx context.Context, user, session string, stream *memstream.Stream, mu *sync.Mutex) {
	defer mu.Unlock()
	for {
		s.sessions.SetArchivePending(user, session, false)

		if _, err := s.archiver.Process(ctx, stream, user, session); err != nil {
			log.Error().Err(err).Str("user", user).Str("session", session).Msg("scheduler_archive_run_failed")
		}

		if !s.sessions.ArchivePending(user, session) {
			return
		}
	}
}
