package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/flemzord/streamexec/internal/capability"
	"github.com/flemzord/streamexec/internal/metrics"
	"github.com/flemzord/streamexec/internal/security"
)

// Dispatcher errors.
var (
	// ErrDuplicateHandler is returned when a handler name is registered twice.
	ErrDuplicateHandler = errors.New("handler already registered")

	// ErrNoRemoteGateway is returned when a remote call arrives but no
	// gateway is configured.
	ErrNoRemoteGateway = errors.New("no remote gateway configured")
)

// Handler is a local capability implementation. The call it receives is
// already validated and approved; the handler's own duty is the hard
// safety backstop (boundary, URL filter), returning a security-violation
// result rather than performing the side effect.
type Handler interface {
	// Descriptor returns the capability this handler implements.
	Descriptor() capability.Descriptor

	// Execute performs the call. Expected failures are expressed in the
	// Result; the error return is reserved for unexpected internal
	// failures and is folded into an execution failure by the dispatcher.
	Execute(ctx context.Context, call capability.ValidatedCall) (Result, error)
}

// RemoteInvoker forwards a call to a remote capability provider. The
// remote gateway implements it; the indirection keeps this package free of
// a dependency cycle and the gateway free of any reference back to the
// session.
type RemoteInvoker interface {
	Invoke(ctx context.Context, providerID, name string, args map[string]string) Result
}

// Config holds the dispatcher's collaborators. Registry is required; the
// rest are optional.
type Config struct {
	Registry *capability.Registry
	Remote   RemoteInvoker
	Audit    *security.AuditLogger
	Limiter  *security.RateLimiter
	Metrics  *metrics.Metrics
	Tracer   trace.Tracer
	Logger   *slog.Logger
}

// Dispatcher routes validated calls. It holds no mutable state beyond the
// handler table, which is write-only during startup.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler

	reg     *capability.Registry
	remote  RemoteInvoker
	audit   *security.AuditLogger
	limiter *security.RateLimiter
	metrics *metrics.Metrics
	tracer  trace.Tracer
	logger  *slog.Logger
}

// New creates a dispatcher.
func New(cfg Config) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("dispatch")
	}
	return &Dispatcher{
		handlers: make(map[string]Handler),
		reg:      cfg.Registry,
		remote:   cfg.Remote,
		audit:    cfg.Audit,
		limiter:  cfg.Limiter,
		metrics:  cfg.Metrics,
		tracer:   tracer,
		logger:   logger,
	}
}

// RegisterHandler adds a local handler and registers its descriptor with
// the capability registry.
func (d *Dispatcher) RegisterHandler(h Handler) error {
	desc := h.Descriptor()
	if err := d.reg.RegisterLocal(desc); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.handlers[desc.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateHandler, desc.Name)
	}
	d.handlers[desc.Name] = h
	return nil
}

// Dispatch routes one validated, approved call and returns its normalized
// result. Panics in local handlers are recovered and reported as
// execution failures.
func (d *Dispatcher) Dispatch(ctx context.Context, call capability.ValidatedCall) Result {
	desc, err := d.reg.Lookup(call.Name)
	if err != nil {
		return Failuref(FailureUnroutable, "capability %s disappeared from the registry", call.Name)
	}

	if d.limiter != nil {
		if err := d.limiter.Allow(security.RateDispatch); err != nil {
			d.auditEvent(security.EventRateLimit, call, "dispatch rate limit exceeded")
			return Failuref(FailureRateLimited, "dispatch rate limit exceeded, retry later")
		}
	}

	d.auditEvent(security.EventDispatch, call, truncateForAudit(paramsDigest(call)))

	ctx, span := d.tracer.Start(ctx, "dispatch",
		trace.WithAttributes(
			attribute.String("capability", call.Name),
			attribute.Int64("call_id", call.CallID),
			attribute.String("kind", string(desc.Kind)),
		))
	defer span.End()

	start := time.Now()
	var result Result
	switch desc.Kind {
	case capability.KindRemote:
		result = d.dispatchRemote(ctx, desc, call)
	default:
		result = d.dispatchLocal(ctx, call)
	}
	elapsed := time.Since(start)

	outcome := "success"
	if !result.OK {
		outcome = string(result.Kind)
	}
	d.metrics.ObserveDispatch(call.Name, outcome, elapsed)

	detail := truncateForAudit(result.Text)
	if !result.OK {
		detail = truncateForAudit(result.String())
	}
	d.audit.Log(security.AuditEvent{
		Type:       security.EventDispatchDone,
		CallID:     call.CallID,
		Capability: call.Name,
		Detail:     detail,
		Metadata:   map[string]string{"outcome": outcome, "duration": elapsed.String()},
	})
	if !result.OK && result.Kind == FailureSecurity {
		d.auditEvent(security.EventViolation, call, result.Message)
		d.logger.Warn("security violation blocked",
			"capability", call.Name,
			"call_id", call.CallID,
			"message", result.Message)
	}

	return result
}

// dispatchLocal invokes the statically bound handler with panic recovery.
func (d *Dispatcher) dispatchLocal(ctx context.Context, call capability.ValidatedCall) (result Result) {
	d.mu.RLock()
	h, ok := d.handlers[call.Name]
	d.mu.RUnlock()
	if !ok {
		return Failuref(FailureUnroutable, "no handler bound for %s", call.Name)
	}

	defer func() {
		if r := recover(); r != nil {
			result = Failuref(FailureExecution, "handler panic: %v", r)
		}
	}()

	out, err := h.Execute(ctx, call)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return Failure(FailureCancelled, "call cancelled")
		}
		return Failure(FailureExecution, err.Error())
	}
	return out
}

// dispatchRemote forwards to the gateway.
func (d *Dispatcher) dispatchRemote(ctx context.Context, desc capability.Descriptor, call capability.ValidatedCall) Result {
	if d.remote == nil {
		return Failure(FailureUnroutable, ErrNoRemoteGateway.Error())
	}
	if d.limiter != nil {
		if err := d.limiter.Allow(security.RateRemote); err != nil {
			return Failuref(FailureRateLimited, "remote invocation rate limit exceeded")
		}
	}
	return d.remote.Invoke(ctx, desc.ProviderID, call.Name, call.Params)
}

func (d *Dispatcher) auditEvent(t security.EventType, call capability.ValidatedCall, detail string) {
	d.audit.Log(security.AuditEvent{
		Type:       t,
		CallID:     call.CallID,
		Capability: call.Name,
		Detail:     detail,
	})
}

// paramsDigest renders call parameters in stream order for audit logs.
func paramsDigest(call capability.ValidatedCall) string {
	var b strings.Builder
	for i, p := range call.Ordered {
		if i > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "%s=%q", p.Name, p.Value)
	}
	return b.String()
}

// maxAuditDetailLen bounds audit detail strings so large outputs do not
// bloat the log.
const maxAuditDetailLen = 4096

// truncateForAudit cuts s at maxAuditDetailLen on a rune boundary.
func truncateForAudit(s string) string {
	if len(s) <= maxAuditDetailLen {
		return s
	}
	i := maxAuditDetailLen
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return s[:i] + "...(truncated)"
}
