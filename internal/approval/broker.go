package approval

import (
	"context"
	"fmt"
	"sync"
)

// Broker is a Requester that parks requests until an out-of-band answer
// arrives, keyed by request ID. The admin gateway resolves requests over
// HTTP; any number of goroutines may call Resolve.
type Broker struct {
	mu      sync.Mutex
	waiting map[string]*brokerEntry
}

type brokerEntry struct {
	req  Request
	resp chan Response
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{waiting: make(map[string]*brokerEntry)}
}

// RequestApproval parks the request until Resolve is called with its ID or
// the context is cancelled.
func (b *Broker) RequestApproval(ctx context.Context, req Request) (Response, error) {
	entry := &brokerEntry{req: req, resp: make(chan Response, 1)}

	b.mu.Lock()
	if _, dup := b.waiting[req.ID]; dup {
		b.mu.Unlock()
		return Response{}, fmt.Errorf("%w: duplicate id %s", ErrBusy, req.ID)
	}
	b.waiting[req.ID] = entry
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.waiting, req.ID)
		b.mu.Unlock()
	}()

	select {
	case resp := <-entry.resp:
		return resp, nil
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

// Resolve answers a pending request. Returns ErrUnknownRequest when no
// request with that ID is waiting.
func (b *Broker) Resolve(id string, resp Response) error {
	b.mu.Lock()
	entry, ok := b.waiting[id]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRequest, id)
	}

	select {
	case entry.resp <- resp:
		return nil
	default:
		// Already resolved; at-most-once delivery per request.
		return fmt.Errorf("%w: %s", ErrUnknownRequest, id)
	}
}

// PendingRequests returns a snapshot of requests currently awaiting an
// answer, for the admin gateway's approvals listing.
func (b *Broker) PendingRequests() []Request {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Request, 0, len(b.waiting))
	for _, entry := range b.waiting {
		out = append(out, entry.req)
	}
	return out
}
