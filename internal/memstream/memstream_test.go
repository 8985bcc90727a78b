package memstream

import (
	"errors"
	"testing"
	"time"

	"memoryd/internal/errs"
	"memoryd/internal/model"
)

func msg(id string, tokens int) model.APIMessage {
	return model.APIMessage{
		MessageID:  id,
		Role:       model.RoleUser,
		Content:    id,
		Timestamp:  time.Now(),
		TokenCount: tokens,
	}
}

func TestCheckInvariantPassesAfterAppends(t *testing.T) {
	s := New("s1", 100)
	_ = s.Append(msg("m1", 5))
	_ = s.Append(msg("m2", 7))
	if err := s.CheckInvariant(); err != nil {
		t.Fatalf("unexpected invariant failure: %v", err)
	}
}

func TestCheckInvariantCatchesDivergedTotal(t *testing.T) {
	s := New("s1", 100)
	_ = s.Append(msg("m1", 5))
	s.totalTokens = 999
	err := s.CheckInvariant()
	if !errors.Is(err, errs.ErrFatalInvariant) {
		t.Fatalf("expected ErrFatalInvariant, got %v", err)
	}
}

func TestAppendDuplicateID(t *testing.T) {
	s := New("sess1", 100)
	if err := s.Append(msg("m1", 5)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Append(msg("m1", 5)); err != ErrDuplicateID {
		t.Fatalf("got %v, want ErrDuplicateID", err)
	}
}

func TestEmptyStreamBoundary(t *testing.T) {
	s := New("sess1", 100)
	if len(s.GetActiveWindow()) != 0 || len(s.GetOverflow()) != 0 {
		t.Fatalf("empty stream should have empty window and overflow")
	}
	stats := s.GetStats()
	if stats.HasOverflow || stats.TotalMessages != 0 {
		t.Fatalf("unexpected stats on empty stream: %+v", stats)
	}
}

func TestOverflowTrigger(t *testing.T) {
	s := New("sess1", 10)
	_ = s.Append(msg("m1", 6))
	_ = s.Append(msg("m2", 6))

	stats := s.GetStats()
	if !stats.HasOverflow {
		t.Fatalf("expected overflow")
	}
	overflow := s.GetOverflow()
	window := s.GetActiveWindow()
	if len(overflow) != 1 || overflow[0].MessageID != "m1" {
		t.Fatalf("overflow = %+v, want [m1]", overflow)
	}
	if len(window) != 1 || window[0].MessageID != "m2" {
		t.Fatalf("window = %+v, want [m2]", window)
	}
}

func TestTotalTokensEqualsBudgetHasNoOverflow(t *testing.T) {
	s := New("sess1", 12)
	_ = s.Append(msg("m1", 6))
	_ = s.Append(msg("m2", 6))
	if s.GetStats().HasOverflow {
		t.Fatalf("totalTokens == budget must not overflow")
	}
}

func TestPartitionInvariant(t *testing.T) {
	s := New("sess1", 10)
	for i, id := range []string{"a", "b", "c", "d"} {
		_ = s.Append(msg(id, i+3))
	}
	all := s.GetAll()
	window := s.GetActiveWindow()
	overflow := s.GetOverflow()
	if len(window)+len(overflow) != len(all) {
		t.Fatalf("window ∪ overflow must equal stream")
	}
	seen := make(map[string]bool)
	for _, m := range overflow {
		seen[m.MessageID] = true
	}
	for _, m := range window {
		if seen[m.MessageID] {
			t.Fatalf("window and overflow overlap on %s", m.MessageID)
		}
	}
	sum := 0
	for _, m := range window {
		sum += m.TokenCount
	}
	if sum > s.ActiveWindowBudget() {
		t.Fatalf("active window exceeds budget: %d > %d", sum, s.ActiveWindowBudget())
	}
}

func TestMarkArchivedIdempotentAndUnarchivedOverflow(t *testing.T) {
	s := New("sess1", 10)
	_ = s.Append(msg("m1", 6))
	_ = s.Append(msg("m2", 6))

	unarchived := s.GetUnarchivedOverflow()
	if len(unarchived) != 1 || unarchived[0].MessageID != "m1" {
		t.Fatalf("unarchived overflow = %+v", unarchived)
	}

	s.MarkArchived([]string{"m1"})
	s.MarkArchived([]string{"m1"}) // idempotent
	if !s.IsArchived("m1") {
		t.Fatalf("m1 should be archived")
	}
	if len(s.GetUnarchivedOverflow()) != 0 {
		t.Fatalf("expected no unarchived overflow after marking")
	}
}
