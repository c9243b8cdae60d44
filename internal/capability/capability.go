// Package capability defines capability descriptors, the registry that
// routes names to local or remote implementations, and the invocation
// validator. Capabilities are the security boundary: every action the
// engine takes is described by a registered capability.
package capability

import (
	"encoding/json"

	"github.com/flemzord/streamexec/pkg/segment"
)

// Kind distinguishes locally implemented capabilities from ones forwarded
// to a remote provider.
type Kind string

// Capability kinds.
const (
	KindLocal  Kind = "local"
	KindRemote Kind = "remote"
)

// RiskClass categorizes what a capability can do, for approval policy.
type RiskClass string

// Risk classes, from least to most invasive.
const (
	RiskReadOnly      RiskClass = "read_only"
	RiskWriteLocal    RiskClass = "write_local"
	RiskWriteExternal RiskClass = "write_external"
	RiskExecute       RiskClass = "execute"
	RiskNetwork       RiskClass = "network"
)

// Descriptor describes one invocable capability.
type Descriptor struct {
	Name string
	Kind Kind
	Risk RiskClass

	// Required lists parameters that must be present and non-empty.
	Required []string

	// Optional lists parameters the capability understands but does not
	// require. Parameters outside both lists still pass through.
	Optional []string

	// Schema is an optional JSON Schema for the parameter map. When set,
	// the validator checks parameters against it after the required pass.
	Schema json.RawMessage

	// PathParam names the parameter holding the filesystem path or URL
	// that determines the call's boundary scope. Empty when the
	// capability has no scoped target.
	PathParam string

	// ProviderID and AutoApprove are set for remote descriptors only.
	// AutoApprove mirrors the provider's advertised auto-approve flag.
	ProviderID  string
	AutoApprove bool
}

// ValidatedCall is one invocation that passed validation. Immutable after
// construction; owned by the execution session for the duration of one
// dispatch.
type ValidatedCall struct {
	Name   string
	CallID int64

	// Ordered preserves stream order for diagnostics.
	Ordered []segment.Param

	// Params is the same data keyed by name.
	Params map[string]string
}

// Param returns a parameter value, or "" when absent.
func (c ValidatedCall) Param(name string) string {
	return c.Params[name]
}
