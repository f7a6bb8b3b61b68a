package chat

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jask/railchat/internal/api"
	"github.com/jask/railchat/internal/guardrails"
	"github.com/jask/railchat/internal/kv"
	"github.com/jask/railchat/internal/session"
)

// fakeBackend scripts one Chat call. When block is set it waits for the
// context to be cancelled and returns ctx.Err(), like an aborted HTTP call.
type fakeBackend struct {
	mu    sync.Mutex
	resp  *api.ChatResponse
	err   error
	block bool
	got   api.ChatRequest
}

func (f *fakeBackend) Chat(ctx context.Context, req api.ChatRequest) (*api.ChatResponse, error) {
	f.mu.Lock()
	f.got = req
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.resp, f.err
}

func (f *fakeBackend) request() api.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.got
}

func newTestOrchestrator(t *testing.T, backend Backend) (*Orchestrator, *session.Store, *guardrails.Store) {
	t.Helper()
	mem := kv.NewMemStore()
	sessions := session.NewStore(mem, nil)
	sessions.EnsureSession()
	rails := guardrails.NewStore(mem, nil)
	rails.Load()
	return New(sessions, rails, backend, "default", nil), sessions, rails
}

// ---------------------------------------------------------------------------
// Send + Resolve
// ---------------------------------------------------------------------------

func TestSendAppendsUserAndPlaceholder(t *testing.T) {
	backend := &fakeBackend{block: true}
	orch, sessions, _ := newTestOrchestrator(t, backend)

	p, err := orch.Send("  What is 2+2?  ")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	defer orch.Cancel()

	msgs := sessions.CurrentMessages()
	if len(msgs) != 2 {
		t.Fatalf("expected user + placeholder, got %d messages", len(msgs))
	}
	user, assistant := msgs[0], msgs[1]
	if user.Role != session.RoleUser || user.Content != "What is 2+2?" || user.Status != session.StatusOK {
		t.Errorf("unexpected user message: %+v", user)
	}
	if assistant.Role != session.RoleAssistant || assistant.Content != "" || assistant.Status != session.StatusSending {
		t.Errorf("unexpected placeholder: %+v", assistant)
	}
	if p.MessageID != assistant.ID {
		t.Errorf("Pending points at %q, placeholder is %q", p.MessageID, assistant.ID)
	}
	if !orch.InFlight() {
		t.Errorf("expected in-flight after Send")
	}
}

func TestResolveSuccessUpdatesPlaceholder(t *testing.T) {
	backend := &fakeBackend{resp: &api.ChatResponse{
		AssistantMessage: "4",
		Status:           "ok",
		TraceID:          "t1",
	}}
	orch, sessions, _ := newTestOrchestrator(t, backend)

	p, err := orch.Send("What is 2+2?")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	res := p.Resolve()
	if res.Status != session.StatusOK || res.Err != nil {
		t.Fatalf("unexpected result: %+v", res)
	}

	msgs := sessions.CurrentMessages()
	got := msgs[len(msgs)-1]
	if got.Content != "4" || got.Status != session.StatusOK || got.TraceID != "t1" {
		t.Errorf("placeholder not reconciled: %+v", got)
	}
	if orch.InFlight() {
		t.Errorf("in-flight not cleared after Resolve")
	}
}

func TestResolveCarriesRailAndToolPayloads(t *testing.T) {
	backend := &fakeBackend{resp: &api.ChatResponse{
		AssistantMessage: "done",
		Status:           "regenerated",
		TraceID:          "t2",
		RailEvents:       []session.RailEvent{{RailName: "output.pii", Stage: "output", Severity: "block", Reason: "email"}},
		ToolCalls:        []session.ToolCall{{Tool: "read_file", Status: "ok"}},
		GeneratedRails:   &session.GeneratedRails{NewRules: []session.RuleDetail{{RuleID: "r-9"}}},
	}}
	orch, sessions, _ := newTestOrchestrator(t, backend)

	p, _ := orch.Send("summarize")
	res := p.Resolve()
	if res.Status != session.StatusRegenerated {
		t.Fatalf("unexpected status: %v", res.Status)
	}

	msgs := sessions.CurrentMessages()
	got := msgs[len(msgs)-1]
	if len(got.RailEvents) != 1 || got.RailEvents[0].RailName != "output.pii" {
		t.Errorf("rail events lost: %+v", got.RailEvents)
	}
	if len(got.ToolCalls) != 1 || got.ToolCalls[0].Tool != "read_file" {
		t.Errorf("tool calls lost: %+v", got.ToolCalls)
	}
	if got.GeneratedRails == nil || len(got.GeneratedRails.NewRules) != 1 {
		t.Errorf("generated rails lost: %+v", got.GeneratedRails)
	}
}

func TestResolveTransportErrorSetsErrorStatus(t *testing.T) {
	backend := &fakeBackend{err: errors.New("connection refused")}
	orch, sessions, _ := newTestOrchestrator(t, backend)

	p, _ := orch.Send("hello")
	res := p.Resolve()
	if res.Status != session.StatusError || res.Err == nil {
		t.Fatalf("unexpected result: %+v", res)
	}

	msgs := sessions.CurrentMessages()
	got := msgs[len(msgs)-1]
	if got.Status != session.StatusError {
		t.Errorf("placeholder status = %v, want error", got.Status)
	}
	if got.Content != "Request failed: connection refused" {
		t.Errorf("unexpected error notice: %q", got.Content)
	}
}

func TestCancelBeforeResponse(t *testing.T) {
	backend := &fakeBackend{block: true}
	orch, sessions, _ := newTestOrchestrator(t, backend)

	p, err := orch.Send("long running question")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	done := make(chan Result, 1)
	go func() { done <- p.Resolve() }()

	orch.Cancel()
	res := <-done

	if res.Status != session.StatusCancelled || res.Err != nil {
		t.Fatalf("unexpected result: %+v", res)
	}
	msgs := sessions.CurrentMessages()
	got := msgs[len(msgs)-1]
	if got.Status != session.StatusCancelled || got.Content != "Request cancelled." {
		t.Errorf("placeholder not cancelled: %+v", got)
	}
	if orch.InFlight() {
		t.Errorf("in-flight survives Cancel")
	}
}

func TestLateResponseAfterCancelIsDiscarded(t *testing.T) {
	backend := &fakeBackend{block: true}
	orch, sessions, _ := newTestOrchestrator(t, backend)

	p, _ := orch.Send("question")

	// Simulate the abort winning the race: the cancelled outcome is applied
	// before the backend's response is reconciled.
	status := session.StatusCancelled
	notice := "Request cancelled."
	sessions.UpdateMessage(p.SessionID, p.MessageID, session.MessageUpdate{Content: &notice, Status: &status})
	orch.Cancel()

	content := "too late"
	ok := session.StatusOK
	sessions.UpdateMessage(p.SessionID, p.MessageID, session.MessageUpdate{Content: &content, Status: &ok})

	msgs := sessions.CurrentMessages()
	got := msgs[len(msgs)-1]
	if got.Status != session.StatusCancelled || got.Content != "Request cancelled." {
		t.Errorf("late response overwrote cancelled outcome: %+v", got)
	}
}

// sequencedBackend scripts two Chat calls. The first waits for its
// context to die and then parks on gate before returning, so the test can
// hold a cancelled send's Resolve open while a second send proceeds. The
// second call waits for a response on respond.
type sequencedBackend struct {
	mu      sync.Mutex
	calls   int
	gate    chan struct{}
	respond chan *api.ChatResponse
}

func (b *sequencedBackend) Chat(ctx context.Context, req api.ChatRequest) (*api.ChatResponse, error) {
	b.mu.Lock()
	b.calls++
	n := b.calls
	b.mu.Unlock()
	if n == 1 {
		<-ctx.Done()
		<-b.gate
		return nil, ctx.Err()
	}
	select {
	case resp := <-b.respond:
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestStaleResolveDoesNotCancelNextSend(t *testing.T) {
	backend := &sequencedBackend{
		gate:    make(chan struct{}),
		respond: make(chan *api.ChatResponse, 1),
	}
	orch, sessions, _ := newTestOrchestrator(t, backend)

	p1, err := orch.Send("first")
	if err != nil {
		t.Fatalf("Send #1: %v", err)
	}
	done1 := make(chan Result, 1)
	go func() { done1 <- p1.Resolve() }()

	// Cancel frees the in-flight slot while send #1's Resolve is still
	// held open inside the backend call.
	orch.Cancel()

	p2, err := orch.Send("second")
	if err != nil {
		t.Fatalf("Send #2 after cancel: %v", err)
	}
	done2 := make(chan Result, 1)
	go func() { done2 <- p2.Resolve() }()

	// Let send #1's Resolve unwind. Its cleanup must not tear down the
	// context or in-flight marker now owned by send #2.
	close(backend.gate)
	res1 := <-done1
	if res1.Status != session.StatusCancelled {
		t.Fatalf("send #1 result = %+v, want cancelled", res1)
	}

	if !orch.InFlight() {
		t.Errorf("in-flight marker cleared by the stale Resolve")
	}
	msgs := sessions.CurrentMessages()
	second := msgs[len(msgs)-1]
	if second.ID != p2.MessageID || second.Status != session.StatusSending {
		t.Fatalf("live send disturbed by stale cleanup: %+v", second)
	}

	backend.respond <- &api.ChatResponse{AssistantMessage: "still here", Status: "ok", TraceID: "t2"}
	res2 := <-done2
	if res2.Status != session.StatusOK || res2.Err != nil {
		t.Fatalf("send #2 result = %+v, want ok", res2)
	}
	msgs = sessions.CurrentMessages()
	second = msgs[len(msgs)-1]
	if second.Content != "still here" || second.Status != session.StatusOK {
		t.Errorf("send #2 outcome not applied: %+v", second)
	}
	if orch.InFlight() {
		t.Errorf("in-flight marker not cleared after send #2 settled")
	}
}

// ---------------------------------------------------------------------------
// Input validation and in-flight gating
// ---------------------------------------------------------------------------

func TestSendRejectsEmptyInput(t *testing.T) {
	orch, sessions, _ := newTestOrchestrator(t, &fakeBackend{})
	if _, err := orch.Send("   \n\t "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if n := len(sessions.CurrentMessages()); n != 0 {
		t.Errorf("rejected send mutated the session: %d messages", n)
	}
}

func TestSendRejectsSecondInFlight(t *testing.T) {
	backend := &fakeBackend{block: true}
	orch, _, _ := newTestOrchestrator(t, backend)

	if _, err := orch.Send("first"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	defer orch.Cancel()

	if _, err := orch.Send("second"); !errors.Is(err, ErrSendInFlight) {
		t.Fatalf("expected ErrSendInFlight, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Request construction
// ---------------------------------------------------------------------------

func TestHistoryExcludesNonOKTurns(t *testing.T) {
	backend := &fakeBackend{resp: &api.ChatResponse{AssistantMessage: "ok", Status: "ok"}}
	orch, sessions, _ := newTestOrchestrator(t, backend)
	sid := sessions.CurrentSessionID()

	seed := []session.Message{
		{ID: "m1", SessionID: sid, Role: session.RoleUser, Content: "keep me", Status: session.StatusOK},
		{ID: "m2", SessionID: sid, Role: session.RoleAssistant, Content: "kept reply", Status: session.StatusOK},
		{ID: "m3", SessionID: sid, Role: session.RoleUser, Content: "refused input", Status: session.StatusRefused},
		{ID: "m4", SessionID: sid, Role: session.RoleAssistant, Content: "", Status: session.StatusOK},
		{ID: "m5", SessionID: sid, Role: session.RoleAssistant, Content: "half done", Status: session.StatusSending},
	}
	for _, m := range seed {
		sessions.AddMessage(m)
	}

	p, _ := orch.Send("new question")
	p.Resolve()

	got := backend.request()
	want := []api.HistoryMessage{
		{Role: "user", Content: "keep me"},
		{Role: "assistant", Content: "kept reply"},
	}
	if len(got.History) != len(want) {
		t.Fatalf("history = %+v, want %+v", got.History, want)
	}
	for i := range want {
		if got.History[i] != want[i] {
			t.Errorf("history[%d] = %+v, want %+v", i, got.History[i], want[i])
		}
	}
	if got.UserMessage != "new question" || got.AgentProfile != "default" {
		t.Errorf("unexpected request fields: %+v", got)
	}
}

func TestGuardrailsPayloadTracksConfig(t *testing.T) {
	backend := &fakeBackend{resp: &api.ChatResponse{AssistantMessage: "ok", Status: "ok"}}
	orch, _, rails := newTestOrchestrator(t, backend)

	p, _ := orch.Send("with rails")
	p.Resolve()
	req := backend.request()
	if req.Guardrails == nil {
		t.Fatalf("guardrails payload missing while enabled")
	}
	if !req.Guardrails.Enabled || req.Guardrails.MonitorOnly {
		t.Errorf("unexpected payload flags: %+v", req.Guardrails)
	}
	if len(req.Guardrails.Toggles) != len(guardrails.AllRailKeys()) {
		t.Errorf("toggles = %d keys, want %d", len(req.Guardrails.Toggles), len(guardrails.AllRailKeys()))
	}

	rails.SetEnabled(false)
	p, _ = orch.Send("without rails")
	p.Resolve()
	if backend.request().Guardrails != nil {
		t.Errorf("guardrails payload sent while disabled")
	}
}

// ---------------------------------------------------------------------------
// Status mapping
// ---------------------------------------------------------------------------

func TestMapStatus(t *testing.T) {
	cases := []struct {
		wire string
		want session.Status
	}{
		{"ok", session.StatusOK},
		{"refused", session.StatusRefused},
		{"blocked", session.StatusBlocked},
		{"regenerated", session.StatusRegenerated},
		{"escalated", session.StatusOK},
		{"", session.StatusOK},
	}
	for _, tc := range cases {
		if got := mapStatus(tc.wire); got != tc.want {
			t.Errorf("mapStatus(%q) = %v, want %v", tc.wire, got, tc.want)
		}
	}
}
