package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"memoryd/internal/archiver"
	"memoryd/internal/assembler"
	"memoryd/internal/embedding/embedtest"
	"memoryd/internal/gateway"
	"memoryd/internal/llmservice/llmtest"
	"memoryd/internal/retriever"
	"memoryd/internal/router"
	"memoryd/internal/scheduler"
	"memoryd/internal/sessionstore"
	"memoryd/internal/store"
	"memoryd/internal/tokencount"
)

func newTestServer() *Server {
	persist := store.NewMemoryStore()
	counter := tokencount.New()
	llm := &llmtest.Fake{}
	sessions := sessionstore.New(persist, counter)
	arch := archiver.New(persist, llm)
	sched := scheduler.New(sessions, arch)
	rtr := router.New(llm, 5, 20)
	retr := retriever.New(persist, &embedtest.Fake{}, llm)
	asm := assembler.New(counter)
	cfg := gateway.DefaultConfig()
	gw := gateway.New(persist, sessions, counter, rtr, retr, asm, sched, cfg)
	return NewServer(gw)
}

func TestCommitThenSnapshotOverHTTP(t *testing.T) {
	s := newTestServer()

	commitBody, _ := json.Marshal(memoryCommitBody{
		Messages: []commitMessageBody{
			{Role: "user", Content: "hello there", MessageID: "m1"},
		},
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/users/alice/sessions/s1/memory-commit", bytes.NewReader(commitBody))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("commit status = %d, body = %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/users/alice/sessions/s1/snapshot", nil)
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("snapshot status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var snapshot gateway.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snapshot); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if len(snapshot.Context.CurrentWindowMessages) != 1 {
		t.Fatalf("expected 1 window message, got %d", len(snapshot.Context.CurrentWindowMessages))
	}
}

func TestMemoryRequestOverHTTP(t *testing.T) {
	s := newTestServer()

	reqBody, _ := json.Marshal(memoryRequestBody{Need: "what did we discuss about rust"})
	req := httptest.NewRequest(http.MethodPost, "/v1/users/alice/sessions/s1/memory-request", bytes.NewReader(reqBody))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("memory-request status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestMemoryRequestMissingNeedReturnsBadRequest(t *testing.T) {
	s := newTestServer()
	reqBody, _ := json.Marshal(memoryRequestBody{})
	req := httptest.NewRequest(http.MethodPost, "/v1/users/alice/sessions/s1/memory-request", bytes.NewReader(reqBody))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestMemoryCommitBadJSONReturnsBadRequest(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/v1/users/alice/sessions/s1/memory-commit", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
