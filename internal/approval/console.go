package approval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/huh"
)

// maxParamPreview bounds how much of a parameter value the terminal prompt
// shows. Full values stay available through the admin gateway.
const maxParamPreview = 200

// ConsoleRequester asks for approval with an interactive terminal form.
type ConsoleRequester struct{}

// NewConsoleRequester creates a terminal-based requester.
func NewConsoleRequester() *ConsoleRequester {
	return &ConsoleRequester{}
}

// RequestApproval renders a confirm form and blocks until the user answers
// or the context is cancelled.
func (c *ConsoleRequester) RequestApproval(ctx context.Context, req Request) (Response, error) {
	var approved bool

	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(fmt.Sprintf("Approve %s? (call #%d, %s scope)", req.Capability, req.CallID, req.Scope)).
			Description(describeParams(req.Params)).
			Affirmative("Approve").
			Negative("Reject").
			Value(&approved),
	))

	if err := form.RunWithContext(ctx); err != nil {
		return Response{}, fmt.Errorf("approval prompt: %w", err)
	}

	if !approved {
		return Response{Approved: false, Reason: "rejected at console"}, nil
	}
	return Response{Approved: true}, nil
}

// describeParams renders parameters as stable, truncated key: value lines.
func describeParams(params map[string]string) string {
	if len(params) == 0 {
		return "(no parameters)"
	}

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		val := params[name]
		if len(val) > maxParamPreview {
			val = val[:maxParamPreview] + "…"
		}
		fmt.Fprintf(&b, "%s: %s\n", name, val)
	}
	return strings.TrimRight(b.String(), "\n")
}
