package remote

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/flemzord/streamexec/internal/capability"
	"github.com/flemzord/streamexec/internal/dispatch"
	"github.com/flemzord/streamexec/internal/metrics"
	"github.com/flemzord/streamexec/internal/security"
)

// connection is the gateway's view of one provider link.
type connection struct {
	spec   ProviderSpec
	client mcpClient
	state  State
}

// maxRedialAttempts bounds how often the health check redials a broken
// provider before disabling it.
const maxRedialAttempts = 3

// Gateway owns all provider connections. It implements
// dispatch.RemoteInvoker so the dispatcher can route remote calls without
// importing this package's types.
type Gateway struct {
	mu      sync.RWMutex
	conns   map[string]*connection
	dropped map[string]struct{}
	redials map[string]int
	reg     *capability.Registry
	audit   *security.AuditLogger
	metrics *metrics.Metrics
	logger  *slog.Logger
	factory clientFactory
}

// GatewayConfig holds the gateway's collaborators.
type GatewayConfig struct {
	Registry *capability.Registry
	Audit    *security.AuditLogger
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// NewGateway creates a gateway with no connections.
func NewGateway(cfg GatewayConfig) *Gateway {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		conns:   make(map[string]*connection),
		dropped: make(map[string]struct{}),
		redials: make(map[string]int),
		reg:     cfg.Registry,
		audit:   cfg.Audit,
		metrics: cfg.Metrics,
		logger:  logger,
		factory: newMCPClient,
	}
}

// Connect establishes a provider connection, performs the MCP handshake,
// and publishes the provider's tools into the capability registry.
func (g *Gateway) Connect(ctx context.Context, spec ProviderSpec) error {
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("remote: provider %s: %w", spec.ID, err)
	}

	g.mu.Lock()
	if existing, ok := g.conns[spec.ID]; ok && existing.state == StateReady {
		g.mu.Unlock()
		return fmt.Errorf("remote: %w: %s", ErrAlreadyConnected, spec.ID)
	}
	g.conns[spec.ID] = &connection{spec: spec, state: StateConnecting}
	delete(g.dropped, spec.ID)
	g.mu.Unlock()

	c, err := g.dial(ctx, spec)
	if err != nil {
		g.setState(spec.ID, StateBroken)
		return err
	}

	tools, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		_ = c.Close()
		g.setState(spec.ID, StateBroken)
		return fmt.Errorf("remote: list tools on %s: %w", spec.ID, err)
	}

	descs := descriptorsFromTools(spec, tools.Tools)
	g.reg.ReplaceProvider(spec.ID, descs)

	g.mu.Lock()
	conn := g.conns[spec.ID]
	conn.client = c
	conn.state = StateReady
	delete(g.redials, spec.ID)
	g.mu.Unlock()

	g.audit.Log(security.AuditEvent{
		Type:     security.EventRemoteConnect,
		Provider: spec.ID,
		Detail:   fmt.Sprintf("%d tool(s) via %s", len(descs), spec.Transport),
	})
	g.logger.Info("provider connected",
		"provider", spec.ID,
		"transport", string(spec.Transport),
		"tools", len(descs))
	return nil
}

// dial builds and handshakes a client. The stdio constructor starts its
// subprocess itself; the HTTP transports need an explicit Start.
func (g *Gateway) dial(ctx context.Context, spec ProviderSpec) (mcpClient, error) {
	c, err := g.factory(spec)
	if err != nil {
		return nil, err
	}
	if spec.Transport != TransportStdio {
		if err := c.Start(ctx); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("remote: start %s: %w", spec.ID, err)
		}
	}
	if _, err := c.Initialize(ctx, initializeRequest()); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("remote: handshake with %s: %w", spec.ID, err)
	}
	return c, nil
}

// Disconnect removes a provider connection and withdraws its capabilities.
// The provider ID is remembered so later invokes fail as disconnected
// rather than unknown until Connect is called again.
func (g *Gateway) Disconnect(providerID string) error {
	g.mu.Lock()
	conn, ok := g.conns[providerID]
	if !ok {
		g.mu.Unlock()
		return fmt.Errorf("remote: %w: %s", ErrNoSuchProvider, providerID)
	}
	client := conn.client
	delete(g.conns, providerID)
	delete(g.redials, providerID)
	g.dropped[providerID] = struct{}{}
	g.mu.Unlock()

	g.reg.RemoveProvider(providerID)
	if client != nil {
		_ = client.Close()
	}

	g.audit.Log(security.AuditEvent{
		Type:     security.EventRemoteDrop,
		Provider: providerID,
		Detail:   "disconnected",
	})
	g.logger.Info("provider disconnected", "provider", providerID)
	return nil
}

// Close disconnects every provider.
func (g *Gateway) Close() {
	for _, id := range g.providerIDs() {
		_ = g.Disconnect(id)
	}
}

// Invoke forwards one call to its provider. Failures are normalized into
// the dispatch failure taxonomy; a transport error flips the connection to
// Broken so the health check can attempt recovery.
func (g *Gateway) Invoke(ctx context.Context, providerID, name string, args map[string]string) dispatch.Result {
	g.mu.RLock()
	conn, ok := g.conns[providerID]
	_, wasDropped := g.dropped[providerID]
	var (
		client mcpClient
		state  State
		spec   ProviderSpec
	)
	if ok {
		client = conn.client
		state = conn.state
		spec = conn.spec
	}
	g.mu.RUnlock()

	switch {
	case !ok && wasDropped:
		g.metrics.ObserveRemote(providerID, "disconnected")
		return dispatch.Failuref(dispatch.FailureDisconnected, "provider %s is disconnected", providerID)
	case !ok:
		g.metrics.ObserveRemote(providerID, "no_such_provider")
		return dispatch.Failuref(dispatch.FailureNoSuchProvider, "no provider %s", providerID)
	case state == StateDisabled:
		g.metrics.ObserveRemote(providerID, "disabled")
		return dispatch.Failuref(dispatch.FailureProviderDisabled, "provider %s is disabled", providerID)
	case state != StateReady || client == nil:
		g.metrics.ObserveRemote(providerID, "disconnected")
		return dispatch.Failuref(dispatch.FailureDisconnected, "provider %s is not connected", providerID)
	}

	callCtx, cancel := context.WithTimeout(ctx, spec.InvokeTimeout())
	defer cancel()

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = toAnyMap(args)

	res, err := client.CallTool(callCtx, req)
	if err != nil {
		switch {
		case errors.Is(callCtx.Err(), context.DeadlineExceeded):
			g.metrics.ObserveRemote(providerID, "timeout")
			return dispatch.Failuref(dispatch.FailureTimeout, "call to %s on %s timed out", name, providerID)
		case errors.Is(ctx.Err(), context.Canceled):
			g.metrics.ObserveRemote(providerID, "cancelled")
			return dispatch.Failure(dispatch.FailureCancelled, "call cancelled")
		}
		g.setState(providerID, StateBroken)
		g.metrics.ObserveRemote(providerID, "disconnected")
		g.logger.Warn("provider call failed", "provider", providerID, "tool", name, "error", err)
		return dispatch.Failuref(dispatch.FailureDisconnected, "call to %s on %s failed: %v", name, providerID, err)
	}

	g.metrics.ObserveRemote(providerID, "success")
	return resultFromCallTool(res)
}

// HealthCheck pings every non-disabled provider. Ready connections that
// fail the ping flip to Broken; broken ones are redialed. A provider that
// fails maxRedialAttempts consecutive redials is disabled.
func (g *Gateway) HealthCheck(ctx context.Context) {
	for _, id := range g.providerIDs() {
		g.mu.RLock()
		conn, ok := g.conns[id]
		var (
			state  State
			client mcpClient
			spec   ProviderSpec
		)
		if ok {
			state = conn.state
			client = conn.client
			spec = conn.spec
		}
		g.mu.RUnlock()
		if !ok || state == StateDisabled {
			continue
		}

		switch state {
		case StateReady:
			if client == nil || client.Ping(ctx) != nil {
				g.setState(id, StateBroken)
				g.logger.Warn("provider ping failed", "provider", id)
			}
		case StateBroken:
			g.mu.Lock()
			delete(g.conns, id)
			g.mu.Unlock()
			if err := g.Connect(ctx, spec); err != nil {
				g.logger.Warn("provider reconnect failed", "provider", id, "error", err)
				g.recordRedialFailure(id)
			}
		}
	}
}

// States returns a snapshot of provider states keyed by provider ID.
func (g *Gateway) States() map[string]State {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make(map[string]State, len(g.conns))
	for id, conn := range g.conns {
		out[id] = conn.state
	}
	return out
}

func (g *Gateway) providerIDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ids := make([]string, 0, len(g.conns))
	for id := range g.conns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// setState moves a connection to s. A Disabled connection stays Disabled;
// only a fresh Connect brings the provider back.
func (g *Gateway) setState(providerID string, s State) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if conn, ok := g.conns[providerID]; ok && conn.state != StateDisabled {
		conn.state = s
	}
}

// recordRedialFailure counts consecutive failed reconnects and disables
// the provider once the attempt budget is exhausted.
func (g *Gateway) recordRedialFailure(providerID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.redials[providerID]++
	if g.redials[providerID] < maxRedialAttempts {
		return
	}
	delete(g.redials, providerID)
	if conn, ok := g.conns[providerID]; ok {
		conn.state = StateDisabled
		g.logger.Warn("provider disabled after repeated reconnect failures",
			"provider", providerID,
			"attempts", maxRedialAttempts)
	}
}

// descriptorsFromTools converts the provider's advertised tools into
// registry descriptors. Everything remote is treated as an external write
// unless the provider marks the tool read-only.
func descriptorsFromTools(spec ProviderSpec, tools []mcp.Tool) []capability.Descriptor {
	descs := make([]capability.Descriptor, 0, len(tools))
	for _, t := range tools {
		risk := capability.RiskWriteExternal
		if t.Annotations.ReadOnlyHint != nil && *t.Annotations.ReadOnlyHint {
			risk = capability.RiskReadOnly
		}

		var schema json.RawMessage
		if raw, err := json.Marshal(t.InputSchema); err == nil {
			schema = raw
		}

		descs = append(descs, capability.Descriptor{
			Name:        t.Name,
			Kind:        capability.KindRemote,
			Risk:        risk,
			Required:    append([]string(nil), t.InputSchema.Required...),
			Schema:      schema,
			ProviderID:  spec.ID,
			AutoApprove: spec.autoApproves(t.Name),
		})
	}
	return descs
}

// resultFromCallTool flattens MCP content into a dispatch result. Text
// parts are concatenated; binary parts become attachments.
func resultFromCallTool(res *mcp.CallToolResult) dispatch.Result {
	var (
		text        string
		attachments []dispatch.Attachment
	)
	for _, part := range res.Content {
		switch c := part.(type) {
		case mcp.TextContent:
			if text != "" {
				text += "\n"
			}
			text += c.Text
		case mcp.ImageContent:
			// Image payloads arrive base64-encoded.
			data, err := base64.StdEncoding.DecodeString(c.Data)
			if err != nil {
				continue
			}
			attachments = append(attachments, dispatch.Attachment{
				MIMEType: c.MIMEType,
				Data:     data,
			})
		}
	}

	if res.IsError {
		if text == "" {
			text = "provider reported an error"
		}
		return dispatch.Failure(dispatch.FailureExecution, text)
	}
	return dispatch.Success(text, attachments...)
}

func toAnyMap(args map[string]string) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	return out
}
