package dedupe

import (
	"context"
	"testing"
)

func TestNewDisabledWhenAddrEmpty(t *testing.T) {
	s, err := New("", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s != nil {
		t.Fatalf("expected nil store when addr is empty")
	}
}

func TestNilStoreTreatsEveryIDAsUnseen(t *testing.T) {
	var s *Store
	firstSeen, err := s.SeenOrMark(context.Background(), "user1", "session1", "msg1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !firstSeen {
		t.Fatalf("expected nil store to report every ID as first-seen")
	}
	firstSeen, err = s.SeenOrMark(context.Background(), "user1", "session1", "msg1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !firstSeen {
		t.Fatalf("expected nil store to report every ID as first-seen, even repeated")
	}
}

func TestNilStoreCloseIsNoOp(t *testing.T) {
	var s *Store
	if err := s.Close(); err != nil {
		t.Fatalf("expected nil-receiver Close to be a no-op: %v", err)
	}
}

func TestKeyIncludesUserSessionAndMessageID(t *testing.T) {
	got := key("user1", "session1", "msg1")
	want := "memoryd:commit:user1:session1:msg1"
	if got != want {
		t.Fatalf("key() = %q, want %q", got, want)
	}
}
