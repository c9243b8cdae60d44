package approval

import "errors"

var (
	// ErrRejected is returned when the human rejects a call.
	ErrRejected = errors.New("approval rejected")

	// ErrTimeout is returned when an approval request expires unanswered.
	// Expiry denies by default.
	ErrTimeout = errors.New("approval request timed out")

	// ErrBusy is returned when a pending approval is already in flight.
	ErrBusy = errors.New("approval already pending")

	// ErrNoRequester is returned when a call requires confirmation but no
	// requester is configured.
	ErrNoRequester = errors.New("no approval requester configured")

	// ErrUnknownRequest is returned when resolving an approval ID that is
	// not pending.
	ErrUnknownRequest = errors.New("unknown approval request")
)
