package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/flemzord/streamexec/internal/capability"
	"github.com/flemzord/streamexec/internal/dispatch"
	"github.com/flemzord/streamexec/internal/security"
)

const (
	// maxSearchMatches caps search_files output.
	maxSearchMatches = 300

	// maxSearchLineLen skips pathological lines (minified files).
	maxSearchLineLen = 1 << 16
)

// SearchFiles greps file contents under a directory with a regex.
type SearchFiles struct {
	boundary *security.Boundary
}

// NewSearchFiles creates the search_files handler.
func NewSearchFiles(deps Deps) *SearchFiles {
	return &SearchFiles{boundary: deps.Boundary}
}

func (h *SearchFiles) Descriptor() capability.Descriptor {
	return capability.Descriptor{
		Name:      "search_files",
		Kind:      capability.KindLocal,
		Risk:      capability.RiskReadOnly,
		Required:  []string{"path", "regex"},
		Optional:  []string{"file_pattern"},
		PathParam: "path",
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {"type": "string", "minLength": 1},
				"regex": {"type": "string", "minLength": 1},
				"file_pattern": {"type": "string"}
			},
			"required": ["path", "regex"]
		}`),
	}
}

func (h *SearchFiles) Execute(ctx context.Context, call capability.ValidatedCall) (dispatch.Result, error) {
	abs, err := h.boundary.Require(call.Param("path"))
	if err != nil {
		return dispatch.Failure(dispatch.FailureSecurity, err.Error()), nil
	}

	re, err := regexp.Compile(call.Param("regex"))
	if err != nil {
		return dispatch.Failuref(dispatch.FailureExecution, "compile regex: %v", err), nil
	}
	pattern := call.Param("file_pattern")

	var out strings.Builder
	matches := 0
	walkErr := filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			// Hidden directories like .git are skipped entirely.
			if p != abs && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		if pattern != "" {
			ok, matchErr := filepath.Match(pattern, d.Name())
			if matchErr != nil {
				return fmt.Errorf("bad file_pattern %q: %w", pattern, matchErr)
			}
			if !ok {
				return nil
			}
		}

		n, scanErr := scanFile(p, abs, re, maxSearchMatches-matches, &out)
		if scanErr != nil {
			// Unreadable or binary files are skipped, not fatal.
			return nil
		}
		matches += n
		if matches >= maxSearchMatches {
			return fs.SkipAll
		}
		return nil
	})
	if walkErr != nil {
		return dispatch.Failuref(dispatch.FailureExecution, "search %s: %v", call.Param("path"), walkErr), nil
	}

	if matches == 0 {
		return dispatch.Success("no matches"), nil
	}
	text := out.String()
	if matches >= maxSearchMatches {
		text += "...(results truncated)\n"
	}
	return dispatch.Success(strings.TrimRight(text, "\n")), nil
}

// scanFile writes up to limit "relpath:lineno: line" matches into out and
// returns how many it found.
func scanFile(path, root string, re *regexp.Regexp, limit int, out *strings.Builder) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxSearchLineLen)

	found := 0
	lineno := 0
	for sc.Scan() && found < limit {
		lineno++
		line := sc.Text()
		if re.MatchString(line) {
			fmt.Fprintf(out, "%s:%d: %s\n", rel, lineno, line)
			found++
		}
	}
	return found, sc.Err()
}
