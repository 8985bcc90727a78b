// Package gateway implements the MemoryGateway: the three externally
// visible operations (sessionSnapshot, memoryRequest, memoryCommit) that
// wire the stream, archiver, router, retriever, assembler, and scheduler
// together under the concurrency rules described for the per-session
// mutex.
package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"memoryd/internal/assembler"
	"memoryd/internal/dedupe"
	"memoryd/internal/memstream"
	"memoryd/internal/model"
	"memoryd/internal/retriever"
	"memoryd/internal/router"
	"memoryd/internal/scheduler"
	"memoryd/internal/sessionstore"
	"memoryd/internal/store"
	"memoryd/internal/tokencount"
)

// SystemPrompt is the fixed system-role content prepended to every
// assembled message list.
const SystemPrompt = "You are the main assistant. Use memory sections as supplemental context. If memory conflicts with recent messages, prioritize the recent messages."

// Config holds the defaulted, overridable budgets the gateway reads on
// every call when the caller does not supply one explicitly.
type Config struct {
	WindowTokens       int
	InsertBudgetTokens int
	MaxThreads         int
	MaxRawMessages     int
}

// DefaultConfig returns the configuration defaults.
func DefaultConfig() Config {
	return Config{
		WindowTokens:       memstream.DefaultActiveWindowBudget,
		InsertBudgetTokens: 4000,
		MaxThreads:         router.DefaultMaxThreads,
		MaxRawMessages:     router.DefaultMaxRawMessages,
	}
}

// Message is a role/content pair as rendered in an external response.
type Message struct {
	Role    model.Role
	Content string
}

// WindowMessage is a currentWindowMessages entry.
type WindowMessage struct {
	MessageID string
	Role      model.Role
	Content   string
	Timestamp time.Time
}

// RawMessage is a retrievedRawMessages entry.
type RawMessage struct {
	MessageID string
	Role      model.Role
	Content   string
	TopicID   string
	ThreadID  string
}

// Context is the context block of a Snapshot.
type Context struct {
	SystemMessage                Message
	CurrentWindowMessages        []WindowMessage
	UserMessage                  *Message
	CurrentSessionTopicSummaries string
	RetrievedMemorySummary       string
	RetrievedRawMessages         []RawMessage
	OtherSessionsTopicSummaries  TodoStub
}

// TodoStub renders the stubbed {status:"todo", data:[]} field; cross-session
// retrieval is out of scope.
type TodoStub struct {
	Status string
	Data   []any
}

// Trace carries the diagnostic fields returned alongside a Snapshot.
type Trace struct {
	WindowTokens       int
	InsertBudgetTokens int
	InsertTokens       int
	WindowMessageCount int
	Route              *router.Route
	MatchedThreads     []retriever.MatchedThread
	ThreadScores       []retriever.ThreadScore
}

// Snapshot is the response shape shared by sessionSnapshot and
// memoryRequest.
type Snapshot struct {
	SessionID         string
	Context           Context
	InsertMessages    []model.InsertMessage
	AssembledMessages []Message
	Trace             Trace
}

// CommitReport is the response shape of memoryCommit.
type CommitReport struct {
	SessionID        string
	StoredMessageIDs []string
	StreamStats      model.StreamStats
}

// IncomingMessage is one entry of a memoryCommit request.
type IncomingMessage struct {
	Role      model.Role
	Content   string
	MessageID string
}

// Gateway is the MemoryGateway component.
type Gateway struct {
	persist  store.Persistence
	sessions *sessionstore.Store
	counter  tokencount.Counter
	rtr      *router.Router
	retr     *retriever.Retriever
	asm      *assembler.Assembler
	sched    *scheduler.Scheduler
	cfg      Config
	dedupe   *dedupe.Store
}

// New wires the session store, router, retriever, assembler, and scheduler
// into one Gateway.
func New(
	persist store.Persistence,
	sessions *sessionstore.Store,
	counter tokencount.Counter,
	rtr *router.Router,
	retr *retriever.Retriever,
	asm *assembler.Assembler,
	sched *scheduler.Scheduler,
	cfg Config,
) *Gateway {
	return &Gateway{
		persist:  persist,
		sessions: sessions,
		counter:  counter,
		rtr:      rtr,
		retr:     retr,
		asm:      asm,
		sched:    sched,
		cfg:      cfg,
	}
}

// WithDedupe attaches an optional cross-instance commit-idempotency store.
// A nil store is valid and leaves dedupe behavior purely in-process.
func (g *Gateway) WithDedupe(d *dedupe.Store) *Gateway {
	g.dedupe = d
	return g
}

func (g *Gateway) windowTokens(override int) int {
	if override > 0 {
		return override
	}
	return g.cfg.WindowTokens
}

func (g *Gateway) insertBudget(override int) int {
	if override > 0 {
		return override
	}
	return g.cfg.InsertBudgetTokens
}

// SessionSnapshot implements 4.12.1: fetch stream and cached insert
// messages under the session mutex, then assemble the response outside it.
func (g *Gateway) SessionSnapshot(ctx context.Context, user, session string, windowTokens, insertBudgetTokens int) (*Snapshot, error) {
	windowTokens = g.windowTokens(windowTokens)
	insertBudget := g.insertBudget(insertBudgetTokens)

	mu := g.sessions.SessionMutex(user, session)
	mu.Lock()
	stream, err := g.sessions.GetStream(ctx, user, session, windowTokens)
	if err != nil {
		mu.Unlock()
		return nil, fmt.Errorf("get stream: %w", err)
	}
	cachedInsert, err := g.sessions.GetInsertMessages(ctx, user, session)
	if err != nil {
		mu.Unlock()
		return nil, fmt.Errorf("get insert messages: %w", err)
	}
	mu.Unlock()

	topicSummaries, err := g.buildTopicSummaries(ctx, user, session)
	if err != nil {
		return nil, fmt.Errorf("build topic summaries: %w", err)
	}

	trimmed := g.asm.TrimInsertMessages(cachedInsert, insertBudget)
	insertTokens := 0
	for _, m := range trimmed {
		insertTokens += g.counter.Count(m.Content)
	}

	activeWindow := stream.GetActiveWindow()
	windowMessages := make([]WindowMessage, len(activeWindow))
	for i, m := range activeWindow {
		windowMessages[i] = WindowMessage{MessageID: m.MessageID, Role: m.Role, Content: m.Content, Timestamp: m.Timestamp}
	}

	assembled := g.assembleMessages(trimmed, activeWindow, nil)

	return &Snapshot{
		SessionID: session,
		Context: Context{
			SystemMessage:                Message{Role: model.RoleSystem, Content: SystemPrompt},
			CurrentWindowMessages:        windowMessages,
			CurrentSessionTopicSummaries: topicSummaries,
			OtherSessionsTopicSummaries:  TodoStub{Status: "todo", Data: []any{}},
		},
		InsertMessages:    trimmed,
		AssembledMessages: assembled,
		Trace: Trace{
			WindowTokens:       windowTokens,
			InsertBudgetTokens: insertBudget,
			InsertTokens:       insertTokens,
			WindowMessageCount: len(activeWindow),
		},
	}, nil
}

// MemoryRequest implements 4.12.2.
func (g *Gateway) MemoryRequest(ctx context.Context, user, session, need string, userMessage *string, windowTokens, insertBudgetTokens int) (*Snapshot, error) {
	windowTokens = g.windowTokens(windowTokens)
	insertBudget := g.insertBudget(insertBudgetTokens)

	route := g.rtr.Route(ctx, need)
	retrieval, err := g.retr.Retrieve(ctx, user, session, route)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}

	topicSummaries, err := g.buildTopicSummaries(ctx, user, session)
	if err != nil {
		return nil, fmt.Errorf("build topic summaries: %w", err)
	}

	rawLines := make([]string, 0, len(retrieval.RawMessages))
	rawMessages := make([]RawMessage, 0, len(retrieval.RawMessages))
	for _, rm := range retrieval.RawMessages {
		rawLines = append(rawLines, fmt.Sprintf("%s: %s", rm.Role, rm.Content))
		rawMessages = append(rawMessages, RawMessage{MessageID: rm.MessageID, Role: rm.Role, Content: rm.Content, TopicID: rm.TopicID, ThreadID: rm.ThreadID})
	}

	insertMessages := g.asm.BuildInsertMessages(topicSummaries, retrieval.Summary, rawLines, insertBudget)

	mu := g.sessions.SessionMutex(user, session)
	mu.Lock()
	if err := g.sessions.SetInsertMessages(ctx, user, session, insertMessages); err != nil {
		mu.Unlock()
		return nil, fmt.Errorf("set insert messages: %w", err)
	}
	stream, err := g.sessions.GetStream(ctx, user, session, windowTokens)
	if err != nil {
		mu.Unlock()
		return nil, fmt.Errorf("get stream: %w", err)
	}
	mu.Unlock()

	g.sched.ScheduleArchive(ctx, user, session, stream)

	activeWindow := stream.GetActiveWindow()

	var userMsg *Message
	if userMessage != nil {
		userMsg = &Message{Role: model.RoleUser, Content: *userMessage}
	}

	assembled := g.assembleMessages(insertMessages, activeWindow, userMsg)

	insertTokens := 0
	for _, m := range insertMessages {
		insertTokens += g.counter.Count(m.Content)
	}

	return &Snapshot{
		SessionID: session,
		Context: Context{
			SystemMessage:                Message{Role: model.RoleSystem, Content: SystemPrompt},
			UserMessage:                  userMsg,
			CurrentSessionTopicSummaries: topicSummaries,
			RetrievedMemorySummary:       retrieval.Summary,
			RetrievedRawMessages:         rawMessages,
			OtherSessionsTopicSummaries:  TodoStub{Status: "todo", Data: []any{}},
		},
		InsertMessages:    insertMessages,
		AssembledMessages: assembled,
		Trace: Trace{
			WindowTokens:       windowTokens,
			InsertBudgetTokens: insertBudget,
			InsertTokens:       insertTokens,
			WindowMessageCount: len(activeWindow),
			Route:              &route,
			MatchedThreads:     retrieval.MatchedThreads,
			ThreadScores:       retrieval.ThreadScores,
		},
	}, nil
}

// MemoryCommit implements 4.12.3.
func (g *Gateway) MemoryCommit(ctx context.Context, user, session string, messages []IncomingMessage, windowTokens int) (*CommitReport, error) {
	windowTokens = g.windowTokens(windowTokens)

	mu := g.sessions.SessionMutex(user, session)
	mu.Lock()

	stream, err := g.sessions.GetStream(ctx, user, session, windowTokens)
	if err != nil {
		mu.Unlock()
		return nil, fmt.Errorf("get stream: %w", err)
	}

	stored := make([]string, 0, len(messages))
	for _, in := range messages {
		if strings.TrimSpace(string(in.Role)) == "" || strings.TrimSpace(in.Content) == "" {
			continue
		}
		messageID := in.MessageID
		if messageID == "" {
			messageID = uuid.NewString()
		}

		if stream.Contains(messageID) {
			continue
		}
		existing, err := g.persist.GetMessageByID(ctx, user, session, messageID)
		if err != nil {
			mu.Unlock()
			return nil, fmt.Errorf("check existing %s: %w", messageID, err)
		}
		if existing != nil {
			continue
		}
		if firstSeen, err := g.dedupe.SeenOrMark(ctx, user, session, messageID); err != nil {
			mu.Unlock()
			return nil, fmt.Errorf("dedupe check %s: %w", messageID, err)
		} else if !firstSeen {
			continue
		}

		tokenCount := g.counter.Count(in.Content)
		msg := model.APIMessage{MessageID: messageID, Role: in.Role, Content: in.Content, Timestamp: time.Now(), TokenCount: tokenCount}
		if err := stream.Append(msg); err != nil {
			continue
		}
		if err := g.persist.AddMessage(ctx, user, session, msg); err != nil {
			mu.Unlock()
			return nil, fmt.Errorf("add message %s: %w", messageID, err)
		}
		stored = append(stored, messageID)
	}

	if err := g.persist.UpdateSessionTimestamp(ctx, user, session); err != nil {
		mu.Unlock()
		return nil, fmt.Errorf("update session timestamp: %w", err)
	}
	mu.Unlock()

	if err := stream.CheckInvariant(); err != nil {
		return nil, err
	}

	g.sched.ScheduleArchive(ctx, user, session, stream)

	return &CommitReport{
		SessionID:        session,
		StoredMessageIDs: stored,
		StreamStats:      stream.GetStats(),
	}, nil
}

// buildTopicSummaries renders the "Current Session Topics" section text by
// iterating every topic and its threads.
func (g *Gateway) buildTopicSummaries(ctx context.Context, user, session string) (string, error) {
	topics, err := g.persist.GetAllTopics(ctx, user, session)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, t := range topics {
		threads, err := g.persist.GetTopicThreads(ctx, user, session, t.TopicID)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "%s: %s\n", t.Title, t.Summary)
		for _, th := range threads {
			fmt.Fprintf(&b, "  - %s: %s\n", th.Title, th.Summary)
		}
	}
	return strings.TrimSpace(b.String()), nil
}

// assembleMessages composes [systemPrompt] ++ insertMessages ++
// activeWindow(as role/content) ++ optional trailing userMessage.
func (g *Gateway) assembleMessages(insertMessages []model.InsertMessage, activeWindow []model.APIMessage, userMessage *Message) []Message {
	out := make([]Message, 0, len(insertMessages)+len(activeWindow)+2)
	out = append(out, Message{Role: model.RoleSystem, Content: SystemPrompt})
	for _, m := range insertMessages {
		out = append(out, Message{Role: m.Role, Content: m.Content})
	}
	for _, m := range activeWindow {
		out = append(out, Message{Role: m.Role, Content: m.Content})
	}
	if userMessage != nil {
		out = append(out, *userMessage)
	}
	return out
}
