package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/flemzord/streamexec/internal/capability"
	"github.com/flemzord/streamexec/internal/dispatch"
	"github.com/flemzord/streamexec/internal/security"
)

const (
	// defaultCommandTimeout bounds host-side command execution. Sandboxed
	// execution carries its own limit.
	defaultCommandTimeout = 60 * time.Second

	// maxCommandOutput caps captured stdout/stderr.
	maxCommandOutput = 256 << 10
)

// ExecuteCommand runs a shell command inside the boundary root. When the
// sandbox policy is enabled, execution is delegated to the docker sandbox;
// otherwise the command runs on the host with a sanitized environment.
type ExecuteCommand struct {
	boundary *security.Boundary
	sandbox  *security.SandboxExecutor
	logger   *slog.Logger
}

// NewExecuteCommand creates the execute_command handler.
func NewExecuteCommand(deps Deps) *ExecuteCommand {
	return &ExecuteCommand{
		boundary: deps.Boundary,
		sandbox:  deps.Sandbox,
		logger:   deps.Logger,
	}
}

func (h *ExecuteCommand) Descriptor() capability.Descriptor {
	return capability.Descriptor{
		Name:     "execute_command",
		Kind:     capability.KindLocal,
		Risk:     capability.RiskExecute,
		Required: []string{"command"},
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {"command": {"type": "string", "minLength": 1}},
			"required": ["command"]
		}`),
	}
}

func (h *ExecuteCommand) Execute(ctx context.Context, call capability.ValidatedCall) (dispatch.Result, error) {
	command := call.Param("command")

	if h.sandbox != nil && h.sandbox.Enabled() {
		if !security.IsDockerAvailable() {
			return dispatch.Failure(dispatch.FailureSecurity, "sandbox enabled but docker is not available"), nil
		}
		out, err := h.sandbox.Execute(ctx, command, h.boundary.Root())
		if err != nil {
			return commandFailure(ctx, out, err), nil
		}
		return dispatch.Success(clampOutput(out)), nil
	}

	ctx, cancel := context.WithTimeout(ctx, defaultCommandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = h.boundary.Root()
	cmd.Env = security.SanitizedEnv()
	out, err := cmd.CombinedOutput()
	if err != nil {
		h.logger.Debug("command failed", "command", command, "error", err)
		return commandFailure(ctx, out, err), nil
	}
	return dispatch.Success(clampOutput(out)), nil
}

// commandFailure folds timeout, cancellation, and non-zero exits into the
// right failure kind, keeping whatever output was produced.
func commandFailure(ctx context.Context, out []byte, err error) dispatch.Result {
	switch {
	case ctx.Err() == context.DeadlineExceeded:
		return dispatch.Failure(dispatch.FailureTimeout, "command timed out")
	case ctx.Err() == context.Canceled:
		return dispatch.Failure(dispatch.FailureCancelled, "command cancelled")
	}
	msg := err.Error()
	if text := clampOutput(out); text != "" {
		msg += "\n" + text
	}
	return dispatch.Failure(dispatch.FailureExecution, msg)
}

// clampOutput bounds and trims command output.
func clampOutput(out []byte) string {
	s := string(out)
	if len(s) > maxCommandOutput {
		s = s[:maxCommandOutput] + "\n...(output truncated)"
	}
	return strings.TrimRight(s, "\n")
}
