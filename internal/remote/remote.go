// Package remote connects to external capability providers over the Model
// Context Protocol and exposes their tools as remote capabilities. Three
// transports are supported: a spawned subprocess speaking stdio, SSE, and
// streamable HTTP. The gateway tracks one connection per provider and
// mirrors each provider's tool list into the capability registry.
package remote

import (
	"errors"
	"time"
)

// Gateway errors.
var (
	ErrNoSuchProvider   = errors.New("unknown provider")
	ErrProviderDisabled = errors.New("provider disabled")
	ErrBadTransport     = errors.New("unsupported transport")
	ErrAlreadyConnected = errors.New("provider already connected")
)

// Transport identifies how a provider is reached.
type Transport string

// Supported transports.
const (
	TransportStdio          Transport = "stdio"
	TransportSSE            Transport = "sse"
	TransportStreamableHTTP Transport = "streamable_http"
)

// State is the lifecycle state of one provider connection.
type State string

// Connection states. Ready and Broken alternate as the link drops and
// recovers. A provider whose redials keep failing is Disabled, which is
// terminal until an explicit Connect; an explicit Disconnect removes the
// connection entry entirely.
const (
	StateConnecting State = "connecting"
	StateReady      State = "ready"
	StateBroken     State = "broken"
	StateDisabled   State = "disabled"
)

// DefaultInvokeTimeout bounds a single remote invocation when the provider
// spec does not set its own.
const DefaultInvokeTimeout = 60 * time.Second

// ProviderSpec describes one remote capability provider.
type ProviderSpec struct {
	// ID uniquely names the provider. Registry entries carry it.
	ID string `yaml:"id"`

	// Transport selects stdio, sse, or streamable_http.
	Transport Transport `yaml:"transport"`

	// Command and Args launch the subprocess for the stdio transport.
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`

	// Env holds extra KEY=VALUE pairs for the stdio subprocess.
	Env []string `yaml:"env"`

	// URL is the endpoint for the sse and streamable_http transports.
	URL string `yaml:"url"`

	// Timeout bounds a single invocation. Zero means DefaultInvokeTimeout.
	Timeout time.Duration `yaml:"-"`

	// AutoApprove lists tool names the policy may auto-approve without
	// interaction. "*" covers every tool the provider advertises.
	AutoApprove []string `yaml:"auto_approve"`
}

// Validate checks the provider spec for the selected transport.
func (s ProviderSpec) Validate() error {
	if s.ID == "" {
		return errors.New("provider id must not be empty")
	}
	switch s.Transport {
	case TransportStdio:
		if s.Command == "" {
			return errors.New("stdio transport requires a command")
		}
	case TransportSSE, TransportStreamableHTTP:
		if s.URL == "" {
			return errors.New("http transports require a url")
		}
	default:
		return ErrBadTransport
	}
	return nil
}

// InvokeTimeout returns the effective per-call timeout.
func (s ProviderSpec) InvokeTimeout() time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return DefaultInvokeTimeout
}

// autoApproves reports whether tool is on the provider's auto-approve list.
func (s ProviderSpec) autoApproves(tool string) bool {
	for _, name := range s.AutoApprove {
		if name == "*" || name == tool {
			return true
		}
	}
	return false
}
