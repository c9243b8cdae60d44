package approval

import (
	"context"
	"errors"
	"sync"
)

// State is the pending-approval state machine position.
type State int

// Pending approval states.
const (
	StateIdle    State = iota // no approval in flight
	StatePending              // waiting for a human response
	StateExpired              // timed out, denied by default
)

// Pending manages one approval flow at a time. It transitions
// idle → pending → (response | expiry → deny-by-default) and back to idle.
// The session has exactly one suspension point, so one flow at a time is
// an invariant, not a limitation.
type Pending struct {
	mu    sync.Mutex
	state State
}

// NewPending creates a Pending in the idle state.
func NewPending() *Pending {
	return &Pending{}
}

// State returns the current state.
func (p *Pending) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Begin delivers req through the requester and blocks until a response, the
// wait deadline (from ctx), or cancellation. A deadline expiry denies by
// default and returns ErrTimeout. Begin returns ErrBusy when a flow is
// already pending.
func (p *Pending) Begin(ctx context.Context, requester Requester, req Request) (Response, error) {
	if requester == nil {
		return Response{}, ErrNoRequester
	}

	p.mu.Lock()
	if p.state == StatePending {
		p.mu.Unlock()
		return Response{}, ErrBusy
	}
	p.state = StatePending
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		if p.state == StatePending {
			p.state = StateIdle
		}
		p.mu.Unlock()
	}()

	type result struct {
		resp Response
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		resp, err := requester.RequestApproval(ctx, req)
		ch <- result{resp, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return Response{}, r.err
		}
		p.mu.Lock()
		p.state = StateIdle
		p.mu.Unlock()
		return r.resp, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			p.mu.Lock()
			p.state = StateExpired
			p.mu.Unlock()
			return Response{Approved: false, Reason: "timed out"}, ErrTimeout
		}
		return Response{}, ctx.Err()
	}
}
