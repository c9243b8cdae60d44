package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/flemzord/streamexec/internal/capability"
	"github.com/flemzord/streamexec/internal/dispatch"
	"github.com/flemzord/streamexec/internal/security"
)

// Diff block markers. The dashes and pluses are exactly seven characters;
// models emit them verbatim.
const (
	searchMarker  = "------- SEARCH"
	divideMarker  = "======="
	replaceMarker = "+++++++ REPLACE"
)

// Diff parsing errors.
var (
	ErrMalformedDiff = errors.New("malformed diff block")
	ErrSearchNoMatch = errors.New("search text not found in file")
)

// editBlock is one parsed search/replace pair.
type editBlock struct {
	search  string
	replace string
}

// ReplaceInFile applies search/replace diff blocks to an existing file.
type ReplaceInFile struct {
	boundary *security.Boundary
}

// NewReplaceInFile creates the replace_in_file handler.
func NewReplaceInFile(deps Deps) *ReplaceInFile {
	return &ReplaceInFile{boundary: deps.Boundary}
}

func (h *ReplaceInFile) Descriptor() capability.Descriptor {
	return capability.Descriptor{
		Name:      "replace_in_file",
		Kind:      capability.KindLocal,
		Risk:      capability.RiskWriteLocal,
		Required:  []string{"path", "diff"},
		PathParam: "path",
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {"type": "string", "minLength": 1},
				"diff": {"type": "string", "minLength": 1}
			},
			"required": ["path", "diff"]
		}`),
	}
}

func (h *ReplaceInFile) Execute(_ context.Context, call capability.ValidatedCall) (dispatch.Result, error) {
	abs, err := h.boundary.Require(call.Param("path"))
	if err != nil {
		return dispatch.Failure(dispatch.FailureSecurity, err.Error()), nil
	}

	blocks, err := parseDiffBlocks(call.Param("diff"))
	if err != nil {
		return dispatch.Failuref(dispatch.FailureExecution, "parse diff: %v", err), nil
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return dispatch.Failuref(dispatch.FailureExecution, "read %s: %v", call.Param("path"), err), nil
	}

	content := string(data)
	for i, b := range blocks {
		content, err = applyBlock(content, b)
		if err != nil {
			return dispatch.Failuref(dispatch.FailureExecution, "block %d: %v", i+1, err), nil
		}
	}

	info, err := os.Stat(abs)
	if err != nil {
		return dispatch.Failuref(dispatch.FailureExecution, "stat %s: %v", call.Param("path"), err), nil
	}
	if err := os.WriteFile(abs, []byte(content), info.Mode().Perm()); err != nil {
		return dispatch.Failuref(dispatch.FailureExecution, "write %s: %v", call.Param("path"), err), nil
	}
	return dispatch.Success(fmt.Sprintf("applied %d edit(s) to %s", len(blocks), call.Param("path"))), nil
}

// parseDiffBlocks splits a diff payload into ordered search/replace pairs.
// A payload must contain at least one full block; trailing text outside a
// block is rejected so silently dropped edits cannot slip through.
func parseDiffBlocks(diff string) ([]editBlock, error) {
	lines := strings.Split(diff, "\n")
	var blocks []editBlock

	i := 0
	for i < len(lines) {
		// Skip blank lines between blocks.
		if strings.TrimSpace(lines[i]) == "" {
			i++
			continue
		}
		if strings.TrimRight(lines[i], "\r") != searchMarker {
			return nil, fmt.Errorf("%w: expected %q, got %q", ErrMalformedDiff, searchMarker, lines[i])
		}
		i++

		var search []string
		for i < len(lines) && strings.TrimRight(lines[i], "\r") != divideMarker {
			search = append(search, lines[i])
			i++
		}
		if i >= len(lines) {
			return nil, fmt.Errorf("%w: missing %q", ErrMalformedDiff, divideMarker)
		}
		i++

		var replace []string
		for i < len(lines) && strings.TrimRight(lines[i], "\r") != replaceMarker {
			replace = append(replace, lines[i])
			i++
		}
		if i >= len(lines) {
			return nil, fmt.Errorf("%w: missing %q", ErrMalformedDiff, replaceMarker)
		}
		i++

		blocks = append(blocks, editBlock{
			search:  strings.Join(search, "\n"),
			replace: strings.Join(replace, "\n"),
		})
	}

	if len(blocks) == 0 {
		return nil, fmt.Errorf("%w: no blocks found", ErrMalformedDiff)
	}
	return blocks, nil
}

// applyBlock applies one edit. An empty search section replaces the whole
// file. Exact matching is tried first, then a line-wise whitespace-trimmed
// fallback for content that survived model reflow.
func applyBlock(content string, b editBlock) (string, error) {
	if b.search == "" {
		return b.replace, nil
	}

	if idx := strings.Index(content, b.search); idx >= 0 {
		return content[:idx] + b.replace + content[idx+len(b.search):], nil
	}

	if out, ok := replaceTrimmedLines(content, b.search, b.replace); ok {
		return out, nil
	}
	return "", fmt.Errorf("%w: %q", ErrSearchNoMatch, firstLine(b.search))
}

// replaceTrimmedLines matches search against content line-by-line ignoring
// leading and trailing whitespace on each line, replacing the first match.
func replaceTrimmedLines(content, search, replace string) (string, bool) {
	contentLines := strings.Split(content, "\n")
	searchLines := strings.Split(search, "\n")
	if len(searchLines) == 0 || len(searchLines) > len(contentLines) {
		return "", false
	}

	for start := 0; start+len(searchLines) <= len(contentLines); start++ {
		match := true
		for j := range searchLines {
			if strings.TrimSpace(contentLines[start+j]) != strings.TrimSpace(searchLines[j]) {
				match = false
				break
			}
		}
		if !match {
			continue
		}
		var out []string
		out = append(out, contentLines[:start]...)
		out = append(out, strings.Split(replace, "\n")...)
		out = append(out, contentLines[start+len(searchLines):]...)
		return strings.Join(out, "\n"), true
	}
	return "", false
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
