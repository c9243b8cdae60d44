package capability

import (
	"errors"
	"fmt"
)

// Registry errors.
var (
	// ErrEmptyName is returned when registering a capability without a name.
	ErrEmptyName = errors.New("capability name must not be empty")

	// ErrDuplicate is returned when registering a name that already exists.
	ErrDuplicate = errors.New("capability already registered")

	// ErrNotFound is returned when a capability is not in the registry.
	ErrNotFound = errors.New("capability not found")

	// ErrBadSchema is returned when a capability's JSON Schema does not compile.
	ErrBadSchema = errors.New("capability schema does not compile")
)

// ParamErrorKind classifies validation failures.
type ParamErrorKind string

// Validation failure kinds.
const (
	// ParamMissing means a required parameter was absent or empty.
	ParamMissing ParamErrorKind = "missing_param"

	// ParamInvalid means a parameter was present but rejected by the
	// capability's schema.
	ParamInvalid ParamErrorKind = "invalid_param"

	// UnknownCapability means the invocation named a capability that is
	// neither registered locally nor advertised by a live provider.
	UnknownCapability ParamErrorKind = "unknown_capability"
)

// ParamError is a structured validation failure. It is surfaced to the
// agent as a call result so it can self-correct; it is never fatal.
type ParamError struct {
	CallName string
	Param    string
	Kind     ParamErrorKind
	Detail   string
}

// Error implements the error interface.
func (e *ParamError) Error() string {
	switch e.Kind {
	case ParamMissing:
		return fmt.Sprintf("%s: missing required parameter %q", e.CallName, e.Param)
	case ParamInvalid:
		return fmt.Sprintf("%s: invalid parameter %q: %s", e.CallName, e.Param, e.Detail)
	case UnknownCapability:
		return fmt.Sprintf("unknown capability %q", e.CallName)
	default:
		return fmt.Sprintf("%s: validation failed", e.CallName)
	}
}
