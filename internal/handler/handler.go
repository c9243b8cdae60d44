// Package handler implements the built-in local capabilities: file
// reading and writing, targeted edits, directory listing, content search,
// shell execution, and URL fetching. Every handler re-checks the path or
// URL guard before its side effect even though the call was already
// validated and approved upstream.
package handler

import (
	"log/slog"

	"github.com/flemzord/streamexec/internal/dispatch"
	"github.com/flemzord/streamexec/internal/security"
)

// Deps holds the shared collaborators injected into every handler.
type Deps struct {
	Boundary  *security.Boundary
	URLFilter *security.URLFilter
	Sandbox   *security.SandboxExecutor
	Logger    *slog.Logger
}

// All returns the full built-in handler set, ready for registration.
func All(deps Deps) []dispatch.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return []dispatch.Handler{
		NewReadFile(deps),
		NewWriteToFile(deps),
		NewReplaceInFile(deps),
		NewListFiles(deps),
		NewSearchFiles(deps),
		NewExecuteCommand(deps),
		NewFetchURL(deps),
	}
}
