package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/flemzord/streamexec/internal/capability"
	"github.com/flemzord/streamexec/internal/dispatch"
	"github.com/flemzord/streamexec/internal/security"
)

const (
	// maxReadFileSize caps read_file payloads so a stray binary does not
	// blow up the result stream.
	maxReadFileSize = 4 << 20

	// maxListEntries caps list_files output.
	maxListEntries = 2000
)

// ReadFile returns the contents of a file inside the boundary.
type ReadFile struct {
	boundary *security.Boundary
}

// NewReadFile creates the read_file handler.
func NewReadFile(deps Deps) *ReadFile {
	return &ReadFile{boundary: deps.Boundary}
}

func (h *ReadFile) Descriptor() capability.Descriptor {
	return capability.Descriptor{
		Name:      "read_file",
		Kind:      capability.KindLocal,
		Risk:      capability.RiskReadOnly,
		Required:  []string{"path"},
		PathParam: "path",
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {"path": {"type": "string", "minLength": 1}},
			"required": ["path"]
		}`),
	}
}

func (h *ReadFile) Execute(_ context.Context, call capability.ValidatedCall) (dispatch.Result, error) {
	abs, err := h.boundary.Require(call.Param("path"))
	if err != nil {
		return dispatch.Failure(dispatch.FailureSecurity, err.Error()), nil
	}

	info, err := os.Stat(abs)
	if err != nil {
		return dispatch.Failuref(dispatch.FailureExecution, "stat %s: %v", call.Param("path"), err), nil
	}
	if info.IsDir() {
		return dispatch.Failuref(dispatch.FailureExecution, "%s is a directory", call.Param("path")), nil
	}
	if info.Size() > maxReadFileSize {
		return dispatch.Failuref(dispatch.FailureExecution, "%s exceeds the %d byte read limit", call.Param("path"), maxReadFileSize), nil
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return dispatch.Failuref(dispatch.FailureExecution, "read %s: %v", call.Param("path"), err), nil
	}
	if !utf8.Valid(data) {
		return dispatch.Failuref(dispatch.FailureExecution, "%s is not valid UTF-8 text", call.Param("path")), nil
	}
	return dispatch.Success(string(data)), nil
}

// WriteToFile writes full file contents, creating parent directories.
type WriteToFile struct {
	boundary *security.Boundary
}

// NewWriteToFile creates the write_to_file handler.
func NewWriteToFile(deps Deps) *WriteToFile {
	return &WriteToFile{boundary: deps.Boundary}
}

func (h *WriteToFile) Descriptor() capability.Descriptor {
	return capability.Descriptor{
		Name:      "write_to_file",
		Kind:      capability.KindLocal,
		Risk:      capability.RiskWriteLocal,
		Required:  []string{"path", "content"},
		PathParam: "path",
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {"type": "string", "minLength": 1},
				"content": {"type": "string"}
			},
			"required": ["path", "content"]
		}`),
	}
}

func (h *WriteToFile) Execute(_ context.Context, call capability.ValidatedCall) (dispatch.Result, error) {
	abs, err := h.boundary.Require(call.Param("path"))
	if err != nil {
		return dispatch.Failure(dispatch.FailureSecurity, err.Error()), nil
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return dispatch.Failuref(dispatch.FailureExecution, "create parent dirs for %s: %v", call.Param("path"), err), nil
	}
	content := call.Param("content")
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return dispatch.Failuref(dispatch.FailureExecution, "write %s: %v", call.Param("path"), err), nil
	}
	return dispatch.Success(fmt.Sprintf("wrote %d bytes to %s", len(content), call.Param("path"))), nil
}

// ListFiles lists a directory, optionally recursively.
type ListFiles struct {
	boundary *security.Boundary
}

// NewListFiles creates the list_files handler.
func NewListFiles(deps Deps) *ListFiles {
	return &ListFiles{boundary: deps.Boundary}
}

func (h *ListFiles) Descriptor() capability.Descriptor {
	return capability.Descriptor{
		Name:      "list_files",
		Kind:      capability.KindLocal,
		Risk:      capability.RiskReadOnly,
		Required:  []string{"path"},
		Optional:  []string{"recursive"},
		PathParam: "path",
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {"type": "string", "minLength": 1},
				"recursive": {"type": "string", "enum": ["true", "false"]}
			},
			"required": ["path"]
		}`),
	}
}

func (h *ListFiles) Execute(_ context.Context, call capability.ValidatedCall) (dispatch.Result, error) {
	abs, err := h.boundary.Require(call.Param("path"))
	if err != nil {
		return dispatch.Failure(dispatch.FailureSecurity, err.Error()), nil
	}
	recursive := call.Param("recursive") == "true"

	var entries []string
	truncated := false
	if recursive {
		walkErr := filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if p == abs {
				return nil
			}
			rel, relErr := filepath.Rel(abs, p)
			if relErr != nil {
				return relErr
			}
			if d.IsDir() {
				rel += "/"
			}
			if len(entries) >= maxListEntries {
				truncated = true
				return fs.SkipAll
			}
			entries = append(entries, rel)
			return nil
		})
		if walkErr != nil {
			return dispatch.Failuref(dispatch.FailureExecution, "list %s: %v", call.Param("path"), walkErr), nil
		}
	} else {
		dirents, readErr := os.ReadDir(abs)
		if readErr != nil {
			return dispatch.Failuref(dispatch.FailureExecution, "list %s: %v", call.Param("path"), readErr), nil
		}
		for _, d := range dirents {
			name := d.Name()
			if d.IsDir() {
				name += "/"
			}
			if len(entries) >= maxListEntries {
				truncated = true
				break
			}
			entries = append(entries, name)
		}
	}

	out := strings.Join(entries, "\n")
	if truncated {
		out += "\n...(listing truncated)"
	}
	return dispatch.Success(out), nil
}
