// Package chat drives the message lifecycle: it appends the user turn and
// the assistant placeholder, issues the cancellable backend call, and
// reconciles exactly one outcome back into the session store.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jask/railchat/internal/api"
	"github.com/jask/railchat/internal/guardrails"
	"github.com/jask/railchat/internal/session"
)

// ErrSendInFlight is returned when Send is called while another request is
// outstanding. The composer disables itself during a send, so hitting this
// means the caller broke the one-in-flight precondition; nothing is mutated.
var ErrSendInFlight = errors.New("chat: send already in flight")

// ErrNoSession is returned when no session is current.
var ErrNoSession = errors.New("chat: no current session")

// ErrEmptyMessage is returned for input that is empty after trimming.
var ErrEmptyMessage = errors.New("chat: empty message")

const (
	cancelledNotice = "Request cancelled."
	errorNotice     = "Request failed: "
)

// Backend is the slice of the api client the orchestrator needs.
type Backend interface {
	Chat(ctx context.Context, req api.ChatRequest) (*api.ChatResponse, error)
}

// Result is the terminal outcome of one send, delivered after the backend
// call settles. Err is non-nil only for transport/API failures (taxonomy
// (b)); cancellation is a status, not an error.
type Result struct {
	SessionID string
	MessageID string
	Status    session.Status
	Err       error
}

// Pending is an accepted send whose backend call has not run yet. Resolve
// performs the call and applies the outcome; it is intended to run off the
// main line of control (a tea.Cmd goroutine in this client). Each Pending
// carries its own cancel and a generation token so a slow Resolve cannot
// tear down a later send's state.
type Pending struct {
	SessionID string
	MessageID string

	orch   *Orchestrator
	ctx    context.Context
	cancel context.CancelFunc
	gen    uint64
	req    api.ChatRequest
}

// Orchestrator owns the send/cancel state machine for the current session.
// gen identifies the send that currently owns the in-flight slot.
type Orchestrator struct {
	mu       sync.Mutex
	inFlight bool
	cancel   context.CancelFunc
	gen      uint64

	sessions *session.Store
	rails    *guardrails.Store
	backend  Backend
	profile  string
	log      *zap.Logger
}

// New builds an orchestrator. profile is the agent_profile sent upstream.
func New(sessions *session.Store, rails *guardrails.Store, backend Backend, profile string, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		sessions: sessions,
		rails:    rails,
		backend:  backend,
		profile:  profile,
		log:      log,
	}
}

// Send runs steps 1–4 of the send protocol synchronously: it appends the
// user message (status ok) and the assistant placeholder (status sending)
// to the current session, builds the upstream request from the filtered
// history and the guardrails config, and arms the cancellable context.
// The returned Pending's Resolve finishes the protocol.
func (o *Orchestrator) Send(content string) (*Pending, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}
	sessionID := o.sessions.CurrentSessionID()
	if sessionID == "" {
		return nil, ErrNoSession
	}

	o.mu.Lock()
	if o.inFlight {
		o.mu.Unlock()
		return nil, ErrSendInFlight
	}
	o.inFlight = true
	ctx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	o.gen++
	gen := o.gen
	o.mu.Unlock()

	history := buildHistory(o.sessions.Messages(sessionID))

	// The user turn itself is not validated by the client, so it lands
	// terminal immediately.
	o.sessions.AddMessage(session.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      session.RoleUser,
		Content:   content,
		Status:    session.StatusOK,
	})

	assistantID := uuid.NewString()
	o.sessions.AddMessage(session.Message{
		ID:        assistantID,
		SessionID: sessionID,
		Role:      session.RoleAssistant,
		Status:    session.StatusSending,
	})

	req := api.ChatRequest{
		SessionID:    sessionID,
		UserMessage:  content,
		AgentProfile: o.profile,
		History:      history,
	}
	if cfg := o.rails.Snapshot(); cfg.Enabled {
		req.Guardrails = &api.GuardrailsPayload{
			Enabled:     true,
			MonitorOnly: cfg.MonitorOnly,
			Toggles:     cfg.WireToggles(),
		}
	}

	return &Pending{
		SessionID: sessionID,
		MessageID: assistantID,
		orch:      o,
		ctx:       ctx,
		cancel:    cancel,
		gen:       gen,
		req:       req,
	}, nil
}

// Resolve issues the backend call and applies exactly one outcome to the
// assistant placeholder. A response that lands before an abort takes
// effect wins; the store drops whichever update arrives second.
func (p *Pending) Resolve() Result {
	o := p.orch
	defer o.clearInFlight(p)

	resp, err := o.backend.Chat(p.ctx, p.req)
	switch {
	case err == nil:
		return o.applySuccess(p, resp)
	case errors.Is(err, context.Canceled):
		return o.applyCancelled(p)
	default:
		return o.applyError(p, err)
	}
}

// Cancel aborts the outstanding request, if any, and clears the in-flight
// marker. It does not touch the message: the aborted call's Resolve
// applies the cancelled outcome, and if the response already won the race
// this is a no-op.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	cancel := o.cancel
	o.cancel = nil
	o.inFlight = false
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// InFlight reports whether a send is outstanding. The composer uses this
// to disable input.
func (o *Orchestrator) InFlight() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.inFlight
}

// clearInFlight releases p's context and, only while p still owns the
// in-flight slot, clears the orchestrator's marker. A stale Resolve
// unwinding after Cancel and a subsequent Send must not touch the newer
// send's cancel or marker.
func (o *Orchestrator) clearInFlight(p *Pending) {
	p.cancel()
	o.mu.Lock()
	if o.gen == p.gen {
		o.cancel = nil
		o.inFlight = false
	}
	o.mu.Unlock()
}

// ---------------------------------------------------------------------------
// Outcome application
// ---------------------------------------------------------------------------

func (o *Orchestrator) applySuccess(p *Pending, resp *api.ChatResponse) Result {
	status := mapStatus(resp.Status)
	upd := session.MessageUpdate{
		Content: &resp.AssistantMessage,
		Status:  &status,
		TraceID: &resp.TraceID,
	}
	if len(resp.RailEvents) > 0 {
		upd.RailEvents = resp.RailEvents
	}
	if len(resp.ToolCalls) > 0 {
		upd.ToolCalls = resp.ToolCalls
	}
	if resp.GeneratedRails != nil {
		upd.GeneratedRails = resp.GeneratedRails
	}
	o.applyIfSending(p, upd)
	o.log.Info("chat turn completed",
		zap.String("session", p.SessionID),
		zap.String("trace", resp.TraceID),
		zap.String("status", string(status)))
	return Result{SessionID: p.SessionID, MessageID: p.MessageID, Status: status}
}

func (o *Orchestrator) applyCancelled(p *Pending) Result {
	status := session.StatusCancelled
	notice := cancelledNotice
	o.applyIfSending(p, session.MessageUpdate{Content: &notice, Status: &status})
	o.log.Info("chat turn cancelled", zap.String("session", p.SessionID))
	return Result{SessionID: p.SessionID, MessageID: p.MessageID, Status: status}
}

func (o *Orchestrator) applyError(p *Pending, err error) Result {
	status := session.StatusError
	notice := errorNotice + err.Error()
	o.applyIfSending(p, session.MessageUpdate{Content: &notice, Status: &status})
	o.log.Warn("chat turn failed", zap.String("session", p.SessionID), zap.Error(err))
	return Result{SessionID: p.SessionID, MessageID: p.MessageID, Status: status, Err: err}
}

// applyIfSending applies upd only while the placeholder is still in the
// sending state. The check and the set both happen under the store's
// mutation path, so a lost race is dropped in one place.
func (o *Orchestrator) applyIfSending(p *Pending, upd session.MessageUpdate) {
	for _, m := range o.sessions.Messages(p.SessionID) {
		if m.ID == p.MessageID {
			if m.Status != session.StatusSending {
				return
			}
			break
		}
	}
	o.sessions.UpdateMessage(p.SessionID, p.MessageID, upd)
}

// buildHistory filters prior turns to terminal-ok user/assistant messages
// with non-empty content, preserving order. Refused, errored, cancelled
// and in-flight turns never leak into future context.
func buildHistory(msgs []session.Message) []api.HistoryMessage {
	var out []api.HistoryMessage
	for _, m := range msgs {
		if m.Status != session.StatusOK {
			continue
		}
		if m.Role != session.RoleUser && m.Role != session.RoleAssistant {
			continue
		}
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		out = append(out, api.HistoryMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}

// mapStatus maps a wire status onto the message state machine. The client
// is permissive: anything it does not recognize collapses to ok.
func mapStatus(wire string) session.Status {
	switch wire {
	case "ok":
		return session.StatusOK
	case "refused":
		return session.StatusRefused
	case "blocked":
		return session.StatusBlocked
	case "regenerated":
		return session.StatusRegenerated
	default:
		return session.StatusOK
	}
}
