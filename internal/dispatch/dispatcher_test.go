package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/flemzord/streamexec/internal/capability"
	"github.com/flemzord/streamexec/internal/security"
)

type stubHandler struct {
	desc capability.Descriptor
	fn   func(ctx context.Context, call capability.ValidatedCall) (Result, error)
}

func (h *stubHandler) Descriptor() capability.Descriptor { return h.desc }

func (h *stubHandler) Execute(ctx context.Context, call capability.ValidatedCall) (Result, error) {
	return h.fn(ctx, call)
}

type stubRemote struct {
	lastProvider string
	lastName     string
	result       Result
}

func (r *stubRemote) Invoke(_ context.Context, providerID, name string, _ map[string]string) Result {
	r.lastProvider = providerID
	r.lastName = name
	return r.result
}

func newTestDispatcher(t *testing.T, cfg Config) *Dispatcher {
	t.Helper()
	if cfg.Registry == nil {
		cfg.Registry = capability.NewRegistry()
	}
	return New(cfg)
}

func TestDispatch_LocalSuccess(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t, Config{})
	err := d.RegisterHandler(&stubHandler{
		desc: capability.Descriptor{Name: "echo", Kind: capability.KindLocal, Risk: capability.RiskReadOnly},
		fn: func(_ context.Context, call capability.ValidatedCall) (Result, error) {
			return Success("got " + call.Param("msg")), nil
		},
	})
	if err != nil {
		t.Fatalf("RegisterHandler: %v", err)
	}

	res := d.Dispatch(context.Background(), capability.ValidatedCall{
		Name:   "echo",
		CallID: 1,
		Params: map[string]string{"msg": "hi"},
	})
	if !res.OK {
		t.Fatalf("expected success, got %s", res)
	}
	if res.Text != "got hi" {
		t.Errorf("Text = %q, want %q", res.Text, "got hi")
	}
}

func TestDispatch_HandlerError(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t, Config{})
	_ = d.RegisterHandler(&stubHandler{
		desc: capability.Descriptor{Name: "broken", Kind: capability.KindLocal},
		fn: func(context.Context, capability.ValidatedCall) (Result, error) {
			return Result{}, errors.New("disk on fire")
		},
	})

	res := d.Dispatch(context.Background(), capability.ValidatedCall{Name: "broken", CallID: 2})
	if res.OK {
		t.Fatal("expected failure")
	}
	if res.Kind != FailureExecution {
		t.Errorf("Kind = %q, want %q", res.Kind, FailureExecution)
	}
}

func TestDispatch_HandlerPanicRecovered(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t, Config{})
	_ = d.RegisterHandler(&stubHandler{
		desc: capability.Descriptor{Name: "boom", Kind: capability.KindLocal},
		fn: func(context.Context, capability.ValidatedCall) (Result, error) {
			panic("unexpected nil")
		},
	})

	res := d.Dispatch(context.Background(), capability.ValidatedCall{Name: "boom", CallID: 3})
	if res.OK {
		t.Fatal("expected failure after panic")
	}
	if res.Kind != FailureExecution {
		t.Errorf("Kind = %q, want %q", res.Kind, FailureExecution)
	}
}

func TestDispatch_RemoteRouting(t *testing.T) {
	t.Parallel()

	reg := capability.NewRegistry()
	reg.ReplaceProvider("weather-svc", []capability.Descriptor{
		{Name: "get_forecast", Kind: capability.KindRemote, ProviderID: "weather-svc"},
	})
	remote := &stubRemote{result: Success("sunny")}
	d := newTestDispatcher(t, Config{Registry: reg, Remote: remote})

	res := d.Dispatch(context.Background(), capability.ValidatedCall{
		Name:   "get_forecast",
		CallID: 4,
		Params: map[string]string{"city": "Paris"},
	})
	if !res.OK || res.Text != "sunny" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if remote.lastProvider != "weather-svc" {
		t.Errorf("provider = %q, want weather-svc", remote.lastProvider)
	}
	if remote.lastName != "get_forecast" {
		t.Errorf("name = %q, want get_forecast", remote.lastName)
	}
}

func TestDispatch_RemoteWithoutGateway(t *testing.T) {
	t.Parallel()

	reg := capability.NewRegistry()
	reg.ReplaceProvider("p1", []capability.Descriptor{
		{Name: "remote_thing", Kind: capability.KindRemote, ProviderID: "p1"},
	})
	d := newTestDispatcher(t, Config{Registry: reg})

	res := d.Dispatch(context.Background(), capability.ValidatedCall{Name: "remote_thing", CallID: 5})
	if res.OK || res.Kind != FailureUnroutable {
		t.Fatalf("expected unroutable failure, got %+v", res)
	}
}

func TestDispatch_UnknownCapability(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t, Config{})
	res := d.Dispatch(context.Background(), capability.ValidatedCall{Name: "ghost", CallID: 6})
	if res.OK || res.Kind != FailureUnroutable {
		t.Fatalf("expected unroutable failure, got %+v", res)
	}
}

func TestDispatch_RateLimited(t *testing.T) {
	t.Parallel()

	var events []security.AuditEvent
	audit := security.NewAuditLogger(security.AuditLoggerConfig{
		OnEvent: func(e security.AuditEvent) { events = append(events, e) },
	})
	limiter := security.NewRateLimiter(security.RateLimitConfig{DispatchesPerMin: 1})
	d := newTestDispatcher(t, Config{Audit: audit, Limiter: limiter})
	_ = d.RegisterHandler(&stubHandler{
		desc: capability.Descriptor{Name: "noop", Kind: capability.KindLocal},
		fn: func(context.Context, capability.ValidatedCall) (Result, error) {
			return Success(""), nil
		},
	})

	first := d.Dispatch(context.Background(), capability.ValidatedCall{Name: "noop", CallID: 7})
	if !first.OK {
		t.Fatalf("first dispatch should pass, got %s", first)
	}
	second := d.Dispatch(context.Background(), capability.ValidatedCall{Name: "noop", CallID: 8})
	if second.OK || second.Kind != FailureRateLimited {
		t.Fatalf("expected rate limit failure, got %+v", second)
	}

	var sawLimit bool
	for _, e := range events {
		if e.Type == security.EventRateLimit {
			sawLimit = true
		}
	}
	if !sawLimit {
		t.Error("rate limit event not audited")
	}
}

func TestDispatch_DuplicateHandler(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t, Config{})
	h := &stubHandler{
		desc: capability.Descriptor{Name: "dup", Kind: capability.KindLocal},
		fn: func(context.Context, capability.ValidatedCall) (Result, error) {
			return Success(""), nil
		},
	}
	if err := d.RegisterHandler(h); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := d.RegisterHandler(h); err == nil {
		t.Fatal("expected error on duplicate registration")
	}
}
