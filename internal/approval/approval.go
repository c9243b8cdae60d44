// Package approval implements the approval gate: a pure decision function
// over a capability call, the configured policy, and the provider-advertised
// trust flag, plus the machinery for interactive confirmation when the
// decision requires a human.
package approval

import (
	"context"
	"time"

	"github.com/flemzord/streamexec/internal/capability"
)

// Outcome is the gate's verdict for one call.
type Outcome string

// Gate outcomes.
const (
	// AutoApprove dispatches without confirmation.
	AutoApprove Outcome = "auto_approve"

	// RequireInteractive suspends the session until a human answers.
	RequireInteractive Outcome = "require_interactive"

	// Deny blocks the call outright; the capability is disabled.
	Deny Outcome = "deny"
)

// Scope distinguishes calls that stay inside the boundary root from calls
// that escape it.
type Scope string

// Call scopes.
const (
	ScopeLocal    Scope = "local"
	ScopeExternal Scope = "external"
)

// Decision is the gate's output. Derived, never persisted; recomputed per
// call from fresh policy.
type Decision struct {
	Outcome Outcome
	Scope   Scope
	Reason  string
}

// ClassPolicy holds the two-axis toggle for one risk class: Local permits
// auto-approval inside the boundary, External extends it outside. External
// is never sufficient alone; it is a superset grant on top of Local.
type ClassPolicy struct {
	Local    bool `yaml:"local"`
	External bool `yaml:"external"`
}

// Policy is the auto-approval policy. It is supplied fresh per decision by
// the config collaborator; the gate never caches it.
type Policy struct {
	// Enabled is the master switch. When false every call requires
	// interactive approval (disabled capabilities are still denied).
	Enabled bool `yaml:"enabled"`

	Read    ClassPolicy `yaml:"read"`
	Write   ClassPolicy `yaml:"write"`
	Execute ClassPolicy `yaml:"execute"`
	Network ClassPolicy `yaml:"network"`

	// Remote permits auto-approval of remote capabilities. Even then a
	// remote capability must also carry its provider's advertised
	// auto-approve flag; local policy alone never suffices.
	Remote bool `yaml:"remote"`

	// Disabled lists capability names that are denied outright.
	Disabled []string `yaml:"disabled"`
}

// Decide evaluates the gate for one call. Pure: policy lookup only, no
// filesystem, no network, no stored state.
func Decide(desc capability.Descriptor, scope Scope, pol Policy) Decision {
	for _, name := range pol.Disabled {
		if name == desc.Name {
			return Decision{Outcome: Deny, Scope: scope, Reason: "capability disabled by configuration"}
		}
	}

	if !pol.Enabled {
		return Decision{Outcome: RequireInteractive, Scope: scope, Reason: "auto-approval disabled"}
	}

	if desc.Kind == capability.KindRemote {
		if desc.AutoApprove && pol.Remote {
			return Decision{Outcome: AutoApprove, Scope: scope}
		}
		return Decision{Outcome: RequireInteractive, Scope: scope, Reason: "remote capability requires confirmation"}
	}

	cls := classFor(desc.Risk, pol)
	switch scope {
	case ScopeLocal:
		if cls.Local {
			return Decision{Outcome: AutoApprove, Scope: scope}
		}
	case ScopeExternal:
		// External approval is intentionally a superset grant: it only
		// applies when local approval is also enabled.
		if cls.Local && cls.External {
			return Decision{Outcome: AutoApprove, Scope: scope}
		}
	}
	return Decision{Outcome: RequireInteractive, Scope: scope, Reason: "not covered by auto-approval policy"}
}

// classFor maps a risk class to its policy toggles.
func classFor(risk capability.RiskClass, pol Policy) ClassPolicy {
	switch risk {
	case capability.RiskReadOnly:
		return pol.Read
	case capability.RiskWriteLocal, capability.RiskWriteExternal:
		return pol.Write
	case capability.RiskExecute:
		return pol.Execute
	case capability.RiskNetwork:
		return pol.Network
	default:
		return ClassPolicy{}
	}
}

// Request is sent to a Requester when a call needs confirmation.
type Request struct {
	// ID is a unique identifier for this approval request.
	ID string

	// CallID correlates the request with the session's call sequence.
	CallID int64

	// Capability is the name of the capability awaiting approval.
	Capability string

	// Summary is a human-readable description of what the call will do.
	Summary string

	// Params are the call parameters, possibly truncated for display.
	Params map[string]string

	// Scope is the boundary scope the gate computed for the call.
	Scope Scope
}

// Response is the human's answer to a Request.
type Response struct {
	Approved bool
	Reason   string
}

// Requester delivers an approval request and blocks until a response
// arrives or the context is cancelled. Implementations provide different
// surfaces: terminal form, admin HTTP endpoint.
type Requester interface {
	RequestApproval(ctx context.Context, req Request) (Response, error)
}

// DefaultWait bounds how long an approval request may stay pending when the
// configuration does not say otherwise. Zero means wait indefinitely.
const DefaultWait = 0 * time.Second
