// Package session implements the per-turn execution loop: it pulls parsed
// segments off the model stream, validates and gates each invocation,
// dispatches approved calls one at a time, checkpoints after every
// dispatch, and escalates to a human when consecutive failures hit the
// ceiling.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/flemzord/streamexec/internal/approval"
	"github.com/flemzord/streamexec/internal/capability"
	"github.com/flemzord/streamexec/internal/checkpoint"
	"github.com/flemzord/streamexec/internal/dispatch"
	"github.com/flemzord/streamexec/internal/metrics"
	"github.com/flemzord/streamexec/internal/parse"
	"github.com/flemzord/streamexec/internal/security"
	"github.com/flemzord/streamexec/pkg/segment"
)

// ErrEscalated is returned by Run when the consecutive-failure ceiling is
// reached and autonomous execution stops.
var ErrEscalated = errors.New("session escalated: consecutive failure ceiling reached")

// DefaultFailureCeiling is the consecutive-failure count that triggers
// escalation when the configuration does not override it.
const DefaultFailureCeiling = 3

// readChunkSize is the stream read buffer size. Small enough that live
// display stays responsive.
const readChunkSize = 4096

// Status is the orchestrator's state machine position.
type Status string

// Session states. Validating, Approving, and Dispatching are the inner
// per-call states; Escalated and Completed are terminal.
const (
	StatusIdle        Status = "idle"
	StatusStreaming   Status = "streaming"
	StatusValidating  Status = "validating"
	StatusApproving   Status = "approving"
	StatusDispatching Status = "dispatching"
	StatusCompleted   Status = "completed"
	StatusEscalated   Status = "escalated"
)

// Display receives text segments, live invocation segments, and per-call
// results for incremental rendering.
type Display interface {
	ShowText(text string)
	ShowInvocation(seg *segment.Segment)
	ShowResult(callID int64, capabilityName string, res dispatch.Result)
}

// nopDisplay drops everything. Used when no display surface is attached.
type nopDisplay struct{}

func (nopDisplay) ShowText(string)                           {}
func (nopDisplay) ShowInvocation(*segment.Segment)           {}
func (nopDisplay) ShowResult(int64, string, dispatch.Result) {}

// Config holds the session's collaborators. Registry, Validator, and
// Dispatcher are required.
type Config struct {
	// ID identifies the session in checkpoints and logs. Generated if
	// empty.
	ID string

	Registry   *capability.Registry
	Validator  *capability.Validator
	Dispatcher *dispatch.Dispatcher

	// Boundary is the declared root that separates local-scoped calls
	// from external-scoped ones. Optional; without it every call is
	// local-scoped.
	Boundary *security.Boundary

	// Policy supplies the approval policy, read fresh per decision.
	Policy func() approval.Policy

	// Requester delivers interactive approval requests. Without one,
	// calls needing confirmation are rejected.
	Requester approval.Requester

	// ApprovalWait bounds a single approval suspension. Zero waits
	// indefinitely; expiry denies by default.
	ApprovalWait time.Duration

	// Checkpoints persists progress after each dispatch. Optional.
	Checkpoints checkpoint.Store

	// Display receives segments and results. Optional.
	Display Display

	// FailureCeiling overrides DefaultFailureCeiling when positive.
	FailureCeiling int

	Audit   *security.AuditLogger
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Summary is the terminal snapshot of a finished session turn.
type Summary struct {
	SessionID string
	Calls     int64
	Failures  int
	Status    Status
}

// Session runs one conversation turn. Not safe for concurrent use; one
// goroutine owns a Session.
type Session struct {
	id      string
	ceiling int

	reg        *capability.Registry
	validator  *capability.Validator
	dispatcher *dispatch.Dispatcher
	boundary   *security.Boundary
	policy     func() approval.Policy
	requester  approval.Requester
	wait       time.Duration
	store      checkpoint.Store
	display    Display
	audit      *security.AuditLogger
	metrics    *metrics.Metrics
	logger     *slog.Logger

	pending *approval.Pending
	parser  *parse.Parser
	queue   []*segment.Segment

	status         Status
	callSeq        int64
	failures       int
	lastCheckpoint int64
}

// New creates a session.
func New(cfg Config) *Session {
	id := cfg.ID
	if id == "" {
		id = uuid.NewString()
	}
	ceiling := cfg.FailureCeiling
	if ceiling <= 0 {
		ceiling = DefaultFailureCeiling
	}
	display := cfg.Display
	if display == nil {
		display = nopDisplay{}
	}
	policy := cfg.Policy
	if policy == nil {
		policy = func() approval.Policy { return approval.Policy{} }
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Session{
		id:         id,
		ceiling:    ceiling,
		reg:        cfg.Registry,
		validator:  cfg.Validator,
		dispatcher: cfg.Dispatcher,
		boundary:   cfg.Boundary,
		policy:     policy,
		requester:  cfg.Requester,
		wait:       cfg.ApprovalWait,
		store:      cfg.Checkpoints,
		display:    display,
		audit:      cfg.Audit,
		metrics:    cfg.Metrics,
		logger:     logger.With("session", id),
		pending:    approval.NewPending(),
		status:     StatusIdle,
	}
	s.parser = parse.New(parse.Config{
		IsKnown:  cfg.Registry.IsKnown,
		OnRevise: s.onRevise,
		OnComplete: func(seg *segment.Segment) {
			s.queue = append(s.queue, seg)
		},
	})
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Status returns the current state machine position.
func (s *Session) Status() Status { return s.status }

// ConsecutiveFailures returns the current failure counter.
func (s *Session) ConsecutiveFailures() int { return s.failures }

// Run consumes the stream until end-of-stream, processing segments in
// order, one call at a time. It returns ErrEscalated when the failure
// ceiling stops the turn, or the context error on cancellation.
func (s *Session) Run(ctx context.Context, stream io.Reader) (Summary, error) {
	s.status = StatusStreaming
	buf := make([]byte, readChunkSize)

	for {
		if err := ctx.Err(); err != nil {
			s.status = StatusCompleted
			return s.summary(), err
		}

		n, readErr := stream.Read(buf)
		if n > 0 {
			s.parser.Feed(string(buf[:n]))
			if err := s.drain(ctx); err != nil {
				return s.summary(), err
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			s.status = StatusCompleted
			return s.summary(), fmt.Errorf("session %s: read stream: %w", s.id, readErr)
		}
	}

	s.parser.Finish()
	if err := s.drain(ctx); err != nil {
		return s.summary(), err
	}

	s.status = StatusCompleted
	return s.summary(), nil
}

func (s *Session) summary() Summary {
	return Summary{
		SessionID: s.id,
		Calls:     s.callSeq,
		Failures:  s.failures,
		Status:    s.status,
	}
}

// drain processes queued finalized segments in stream order.
func (s *Session) drain(ctx context.Context) error {
	for len(s.queue) > 0 {
		seg := s.queue[0]
		s.queue = s.queue[1:]
		if err := s.process(ctx, seg); err != nil {
			return err
		}
	}
	return nil
}

// onRevise forwards live segment updates to the display.
func (s *Session) onRevise(seg *segment.Segment) {
	if seg.Kind == segment.KindInvocation {
		s.display.ShowInvocation(seg)
	}
}

// process handles one finalized segment.
func (s *Session) process(ctx context.Context, seg *segment.Segment) error {
	switch seg.Kind {
	case segment.KindText:
		s.metrics.ObserveSegment("text")
		s.display.ShowText(seg.Text)
		return nil
	case segment.KindInvocation:
		s.metrics.ObserveSegment("invocation")
		return s.processInvocation(ctx, seg)
	}
	return nil
}

// processInvocation runs the per-call pipeline: validate, gate, dispatch,
// checkpoint.
func (s *Session) processInvocation(ctx context.Context, seg *segment.Segment) error {
	s.callSeq++
	callID := s.callSeq

	if seg.Faulted {
		res := dispatch.Failuref(dispatch.FailureStructural,
			"invocation %s was not terminated before end of stream", seg.Name)
		s.display.ShowResult(callID, seg.Name, res)
		s.status = StatusStreaming
		return nil
	}

	s.status = StatusValidating
	call, err := s.validator.Validate(seg, callID)
	if err != nil {
		// Surface the error as the call's result so the agent can
		// self-correct; never dispatch.
		res := dispatch.Failure(dispatch.FailureInvalidParams, err.Error())
		s.display.ShowResult(callID, seg.Name, res)
		return s.recordFailure()
	}

	desc, err := s.reg.Lookup(call.Name)
	if err != nil {
		res := dispatch.Failure(dispatch.FailureInvalidParams, err.Error())
		s.display.ShowResult(callID, call.Name, res)
		return s.recordFailure()
	}

	scope := s.scopeFor(desc, call)
	decision := approval.Decide(desc, scope, s.policy())
	s.metrics.ObserveApproval(string(decision.Outcome))

	switch decision.Outcome {
	case approval.Deny:
		s.audit.Log(security.AuditEvent{
			Type:       security.EventDenied,
			SessionID:  s.id,
			CallID:     callID,
			Capability: call.Name,
			Detail:     decision.Reason,
		})
		res := dispatch.Failure(dispatch.FailureDenied, decision.Reason)
		s.display.ShowResult(callID, call.Name, res)
		s.status = StatusStreaming
		return nil

	case approval.RequireInteractive:
		approved, reason, err := s.awaitApproval(ctx, call, scope)
		if err != nil {
			// Session teardown while suspended.
			s.status = StatusCompleted
			return err
		}
		if !approved {
			res := dispatch.Failure(dispatch.FailureDenied, reason)
			s.display.ShowResult(callID, call.Name, res)
			s.status = StatusStreaming
			return nil
		}
	}

	return s.dispatchCall(ctx, call)
}

// awaitApproval is the session's one suspension point.
func (s *Session) awaitApproval(ctx context.Context, call capability.ValidatedCall, scope approval.Scope) (bool, string, error) {
	s.status = StatusApproving
	s.audit.Log(security.AuditEvent{
		Type:       security.EventApproval,
		SessionID:  s.id,
		CallID:     call.CallID,
		Capability: call.Name,
		Detail:     "interactive approval requested",
	})

	waitCtx := ctx
	if s.wait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, s.wait)
		defer cancel()
	}

	req := approval.Request{
		ID:         uuid.NewString(),
		CallID:     call.CallID,
		Capability: call.Name,
		Summary:    summarizeCall(call),
		Params:     call.Params,
		Scope:      scope,
	}

	resp, err := s.pending.Begin(waitCtx, s.requester, req)
	switch {
	case errors.Is(err, approval.ErrTimeout):
		return false, "approval timed out, denied by default", nil
	case errors.Is(err, approval.ErrNoRequester):
		return false, "no approval surface attached", nil
	case err != nil:
		return false, "", err
	}

	if !resp.Approved {
		reason := resp.Reason
		if reason == "" {
			reason = "rejected by operator"
		}
		return false, reason, nil
	}
	return true, "", nil
}

// dispatchCall runs the approved call and checkpoints the outcome.
func (s *Session) dispatchCall(ctx context.Context, call capability.ValidatedCall) error {
	s.status = StatusDispatching
	res := s.dispatcher.Dispatch(ctx, call)

	// A turn torn down mid-dispatch skips the checkpoint for the aborted
	// call; its side effects are not trustworthy.
	if ctx.Err() != nil {
		s.display.ShowResult(call.CallID, call.Name, dispatch.Failure(dispatch.FailureCancelled, "session cancelled"))
		s.status = StatusCompleted
		return ctx.Err()
	}

	if res.OK {
		s.failures = 0
	} else {
		s.failures++
	}

	s.checkpoint(ctx, call, res)
	s.display.ShowResult(call.CallID, call.Name, res)

	if !res.OK {
		return s.failureCeilingCheck()
	}
	s.status = StatusStreaming
	return nil
}

// recordFailure bumps the counter for a call that never dispatched and
// checks the ceiling.
func (s *Session) recordFailure() error {
	s.failures++
	return s.failureCeilingCheck()
}

func (s *Session) failureCeilingCheck() error {
	if s.failures < s.ceiling {
		s.status = StatusStreaming
		return nil
	}

	s.status = StatusEscalated
	s.metrics.ObserveEscalation()
	s.audit.Log(security.AuditEvent{
		Type:      security.EventEscalation,
		SessionID: s.id,
		Detail:    fmt.Sprintf("%d consecutive failures", s.failures),
	})
	s.logger.Warn("escalating to human", "consecutive_failures", s.failures)
	return ErrEscalated
}

// checkpoint persists the call outcome. Write failures are logged, never
// fatal: losing a checkpoint degrades recovery, not correctness.
func (s *Session) checkpoint(ctx context.Context, call capability.ValidatedCall, res dispatch.Result) {
	if s.store == nil {
		return
	}

	rec := checkpoint.Record{
		SessionID:  s.id,
		CallID:     call.CallID,
		Capability: call.Name,
		Params:     call.Params,
		OK:         res.OK,
		Output:     res.Text,
		State:      string(s.status),
	}
	if !res.OK {
		rec.Failure = string(res.Kind)
		rec.Output = res.Message
	}

	if err := s.store.Save(ctx, rec); err != nil {
		s.logger.Error("checkpoint write failed", "call_id", call.CallID, "error", err)
		return
	}
	s.lastCheckpoint = call.CallID
	s.metrics.ObserveCheckpoint()
}

// scopeFor computes the boundary scope of a call. A call is external when
// its path parameter escapes the boundary root; calls without a path
// parameter are local-scoped and governed by their class toggle alone.
func (s *Session) scopeFor(desc capability.Descriptor, call capability.ValidatedCall) approval.Scope {
	if desc.Kind == capability.KindRemote {
		return approval.ScopeExternal
	}
	if desc.PathParam == "" || s.boundary == nil {
		return approval.ScopeLocal
	}
	if _, inside := s.boundary.Resolve(call.Param(desc.PathParam)); !inside {
		return approval.ScopeExternal
	}
	return approval.ScopeLocal
}

// summarizeCall renders a one-line description for approval prompts.
func summarizeCall(call capability.ValidatedCall) string {
	var b strings.Builder
	b.WriteString(call.Name)
	for i, p := range call.Ordered {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString(", ")
		}
		val := p.Value
		if len(val) > 80 {
			val = val[:80] + "..."
		}
		fmt.Fprintf(&b, "%s=%q", p.Name, val)
	}
	return b.String()
}
