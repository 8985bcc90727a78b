package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"memoryd/internal/errs"
	"memoryd/internal/gateway"
	"memoryd/internal/model"
)

type memoryRequestBody struct {
	Need               string  `json:"need"`
	UserMessage        *string `json:"userMessage,omitempty"`
	WindowTokens       int     `json:"windowTokens,omitempty"`
	InsertBudgetTokens int     `json:"insertBudgetTokens,omitempty"`
}

type commitMessageBody struct {
	Role      model.Role `json:"role"`
	Content   string     `json:"content"`
	MessageID string     `json:"messageID,omitempty"`
}

type memoryCommitBody struct {
	Messages     []commitMessageBody `json:"messages"`
	WindowTokens int                 `json:"windowTokens,omitempty"`
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := r.PathValue("user")
	session := r.PathValue("session")
	windowTokens, _ := strconv.Atoi(r.URL.Query().Get("windowTokens"))
	insertBudgetTokens, _ := strconv.Atoi(r.URL.Query().Get("insertBudgetTokens"))

	snapshot, err := s.gw.SessionSnapshot(ctx, user, session, windowTokens, insertBudgetTokens)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleMemoryRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := r.PathValue("user")
	session := r.PathValue("session")

	var body memoryRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(body.Need) == "" {
		respondError(w, http.StatusBadRequest, errs.InvalidInput("need"))
		return
	}

	snapshot, err := s.gw.MemoryRequest(ctx, user, session, body.Need, body.UserMessage, body.WindowTokens, body.InsertBudgetTokens)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleMemoryCommit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := r.PathValue("user")
	session := r.PathValue("session")

	var body memoryCommitBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	messages := make([]gateway.IncomingMessage, 0, len(body.Messages))
	for _, m := range body.Messages {
		messages = append(messages, gateway.IncomingMessage{Role: m.Role, Content: m.Content, MessageID: m.MessageID})
	}

	report, err := s.gw.MemoryCommit(ctx, user, session, messages, body.WindowTokens)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, map[string]any{"error": err.Error()})
}
