// Package dispatch routes validated capability calls to exactly one
// implementation: a local handler or the remote capability gateway. It
// normalizes every outcome into a Result the session can branch on;
// failures never cross this boundary as errors or panics.
package dispatch

import "fmt"

// FailureKind classifies dispatch failures. Kinds map one-to-one onto the
// engine's error taxonomy so callers can branch without string matching.
type FailureKind string

// Failure kinds.
const (
	FailureExecution        FailureKind = "execution"
	FailureSecurity         FailureKind = "security_violation"
	FailureRateLimited      FailureKind = "rate_limited"
	FailureTimeout          FailureKind = "timeout"
	FailureDisconnected     FailureKind = "disconnected"
	FailureNoSuchProvider   FailureKind = "no_such_provider"
	FailureProviderDisabled FailureKind = "provider_disabled"
	FailureInvalidParams    FailureKind = "invalid_params"
	FailureDenied           FailureKind = "denied"
	FailureStructural       FailureKind = "structural"
	FailureCancelled        FailureKind = "cancelled"
	FailureUnroutable       FailureKind = "unroutable"
)

// Attachment is a binary artifact returned by a capability (an image from
// a remote provider, for example).
type Attachment struct {
	MIMEType string
	Data     []byte
}

// Result is the normalized outcome of one dispatch.
type Result struct {
	OK          bool
	Text        string
	Attachments []Attachment

	// Kind and Message describe the failure when OK is false.
	Kind    FailureKind
	Message string
}

// Success builds a successful result carrying text output.
func Success(text string, attachments ...Attachment) Result {
	return Result{OK: true, Text: text, Attachments: attachments}
}

// Failure builds a failed result.
func Failure(kind FailureKind, message string) Result {
	return Result{Kind: kind, Message: message}
}

// Failuref builds a failed result with a formatted message.
func Failuref(kind FailureKind, format string, args ...any) Result {
	return Result{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// String renders the result the way it is fed back into the conversation.
func (r Result) String() string {
	if r.OK {
		return r.Text
	}
	return fmt.Sprintf("[%s] %s", r.Kind, r.Message)
}
