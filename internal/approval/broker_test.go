package approval

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBroker_ResolveApproves(t *testing.T) {
	t.Parallel()

	b := NewBroker()
	done := make(chan Response, 1)

	go func() {
		resp, err := b.RequestApproval(context.Background(), Request{ID: "r1", CallID: 3})
		if err != nil {
			t.Errorf("request: %v", err)
		}
		done <- resp
	}()

	// Wait until the request is parked.
	deadline := time.Now().Add(time.Second)
	for len(b.PendingRequests()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("request never parked")
		}
		time.Sleep(time.Millisecond)
	}

	if err := b.Resolve("r1", Response{Approved: true}); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	select {
	case resp := <-done:
		if !resp.Approved {
			t.Fatal("expected approval")
		}
	case <-time.After(time.Second):
		t.Fatal("request never returned")
	}

	if len(b.PendingRequests()) != 0 {
		t.Fatal("resolved request still listed as pending")
	}
}

func TestBroker_ResolveUnknownID(t *testing.T) {
	t.Parallel()

	b := NewBroker()
	if err := b.Resolve("nope", Response{Approved: true}); !errors.Is(err, ErrUnknownRequest) {
		t.Fatalf("expected ErrUnknownRequest, got %v", err)
	}
}

func TestBroker_ContextCancellation(t *testing.T) {
	t.Parallel()

	b := NewBroker()
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := b.RequestApproval(ctx, Request{ID: "r2"})
		errCh <- err
	}()

	deadline := time.Now().Add(time.Second)
	for len(b.PendingRequests()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("request never parked")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled request never returned")
	}
}

func TestPending_TimeoutDeniesByDefault(t *testing.T) {
	t.Parallel()

	p := NewPending()
	b := NewBroker()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	resp, err := p.Begin(ctx, b, Request{ID: "r3"})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if resp.Approved {
		t.Fatal("timeout must deny by default")
	}
	if p.State() != StateExpired {
		t.Fatalf("state = %d, want StateExpired", p.State())
	}
}

func TestPending_NoRequester(t *testing.T) {
	t.Parallel()

	p := NewPending()
	if _, err := p.Begin(context.Background(), nil, Request{ID: "r4"}); !errors.Is(err, ErrNoRequester) {
		t.Fatalf("expected ErrNoRequester, got %v", err)
	}
}
