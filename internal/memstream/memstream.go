// Package memstream implements the per-session, append-only message log:
// active-window selection by token budget, overflow detection, and the
// archived-ID set the truncate archiver consumes.
package memstream

import (
	"errors"

	"memoryd/internal/errs"
	"memoryd/internal/model"
)

// ErrDuplicateID is returned by Append when messageID is already present.
// It is a programming error, not a transient condition: callers must
// de-duplicate before appending.
var ErrDuplicateID = errors.New("memstream: duplicate message id")

// DefaultActiveWindowBudget is the default active-window token budget.
const DefaultActiveWindowBudget = 32000

// Stream is a per-session, append-only sequence of messages.
//
// A Stream is not safe for concurrent use by itself; callers (see
// sessionstore) serialize access with a per-session mutex.
type Stream struct {
	sessionID          string
	activeWindowBudget int
	messages           []model.APIMessage
	index              map[string]int
	totalTokens        int
	archivedIDs        map[string]struct{}
}

// New returns an empty stream for sessionID with the given active-window
// token budget. A budget <= 0 is replaced with DefaultActiveWindowBudget.
func New(sessionID string, activeWindowBudget int) *Stream {
	if activeWindowBudget <= 0 {
		activeWindowBudget = DefaultActiveWindowBudget
	}
	return &Stream{
		sessionID:          sessionID,
		activeWindowBudget: activeWindowBudget,
		index:              make(map[string]int),
		archivedIDs:        make(map[string]struct{}),
	}
}

// SessionID returns the session this stream belongs to.
func (s *Stream) SessionID() string { return s.sessionID }

// ActiveWindowBudget returns the configured active-window token budget.
func (s *Stream) ActiveWindowBudget() int { return s.activeWindowBudget }

// Append adds msg to the stream. O(1). Returns ErrDuplicateID if msg.MessageID
// is already present.
func (s *Stream) Append(msg model.APIMessage) error {
	if _, exists := s.index[msg.MessageID]; exists {
		return ErrDuplicateID
	}
	s.index[msg.MessageID] = len(s.messages)
	s.messages = append(s.messages, msg)
	s.totalTokens += msg.TokenCount
	return nil
}

// Contains reports whether messageID is already present in the stream.
func (s *Stream) Contains(messageID string) bool {
	_, ok := s.index[messageID]
	return ok
}

// GetAll returns a defensive copy of every message in the stream, in append order.
func (s *Stream) GetAll() []model.APIMessage {
	out := make([]model.APIMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// GetActiveWindow returns the maximal suffix whose token sum is <=
// activeWindowBudget, in original order. If totalTokens <= budget, it
// returns the whole stream.
func (s *Stream) GetActiveWindow() []model.APIMessage {
	start := s.windowStart()
	out := make([]model.APIMessage, len(s.messages)-start)
	copy(out, s.messages[start:])
	return out
}

// GetOverflow returns the prefix not part of the active window. activeWindow
// and overflow partition the stream.
func (s *Stream) GetOverflow() []model.APIMessage {
	start := s.windowStart()
	out := make([]model.APIMessage, start)
	copy(out, s.messages[:start])
	return out
}

// windowStart returns the index of the first message in the active window,
// walking from the tail until including one more message would exceed the
// budget.
func (s *Stream) windowStart() int {
	if s.totalTokens <= s.activeWindowBudget {
		return 0
	}
	sum := 0
	i := len(s.messages)
	for i > 0 {
		next := s.messages[i-1]
		if sum+next.TokenCount > s.activeWindowBudget {
			break
		}
		sum += next.TokenCount
		i--
	}
	return i
}

// GetUnarchivedOverflow returns the overflow messages whose ID is not in
// archivedIDs.
func (s *Stream) GetUnarchivedOverflow() []model.APIMessage {
	overflow := s.GetOverflow()
	out := make([]model.APIMessage, 0, len(overflow))
	for _, m := range overflow {
		if _, archived := s.archivedIDs[m.MessageID]; !archived {
			out = append(out, m)
		}
	}
	return out
}

// MarkArchived idempotently unions ids into archivedIDs.
func (s *Stream) MarkArchived(ids []string) {
	for _, id := range ids {
		s.archivedIDs[id] = struct{}{}
	}
}

// IsArchived reports whether messageID has been marked archived.
func (s *Stream) IsArchived(messageID string) bool {
	_, ok := s.archivedIDs[messageID]
	return ok
}

// CheckInvariant reports errs.ErrFatalInvariant if totalTokens has diverged
// from the sum of the messages' individual token counts (P1). This can only
// happen from a programming error elsewhere in the stream's mutation path,
// never from caller input.
func (s *Stream) CheckInvariant() error {
	sum := 0
	for _, m := range s.messages {
		sum += m.TokenCount
	}
	if sum != s.totalTokens {
		return errs.Fatal("stream total tokens diverged from sum of message token counts")
	}
	return nil
}

// GetStats returns a point-in-time summary of the stream.
func (s *Stream) GetStats() model.StreamStats {
	overflow := s.GetOverflow()
	overflowTokens := 0
	for _, m := range overflow {
		overflowTokens += m.TokenCount
	}
	return model.StreamStats{
		TotalMessages:      len(s.messages),
		TotalTokens:        s.totalTokens,
		ActiveWindowTokens: s.totalTokens - overflowTokens,
		OverflowTokens:     overflowTokens,
		ArchivedCount:      len(s.archivedIDs),
		HasOverflow:        len(overflow) > 0,
	}
}
