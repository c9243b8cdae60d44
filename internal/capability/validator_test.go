package capability

import (
	"errors"
	"testing"

	"github.com/flemzord/streamexec/pkg/segment"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	if err := r.RegisterLocal(Descriptor{
		Name:      "read_file",
		Risk:      RiskReadOnly,
		Required:  []string{"path"},
		PathParam: "path",
	}); err != nil {
		t.Fatalf("register read_file: %v", err)
	}
	if err := r.RegisterLocal(Descriptor{
		Name:      "write_to_file",
		Risk:      RiskWriteLocal,
		Required:  []string{"path", "content"},
		PathParam: "path",
		Schema: []byte(`{
			"type": "object",
			"properties": {
				"path":    {"type": "string", "minLength": 1},
				"content": {"type": "string"}
			}
		}`),
	}); err != nil {
		t.Fatalf("register write_to_file: %v", err)
	}
	return r
}

func invocation(name string, params map[string]string) *segment.Segment {
	seg := segment.NewInvocation(name)
	for k, v := range params {
		seg.SetParam(k, v)
	}
	seg.Finalize()
	return seg
}

func TestValidate_OK(t *testing.T) {
	t.Parallel()

	v := NewValidator(testRegistry(t))
	call, err := v.Validate(invocation("read_file", map[string]string{"path": "a.txt"}), 7)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if call.Name != "read_file" || call.CallID != 7 || call.Param("path") != "a.txt" {
		t.Fatalf("unexpected call: %+v", call)
	}
}

func TestValidate_MissingRequiredParam(t *testing.T) {
	t.Parallel()

	v := NewValidator(testRegistry(t))
	_, err := v.Validate(invocation("read_file", nil), 1)

	var perr *ParamError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *ParamError, got %v", err)
	}
	if perr.Kind != ParamMissing || perr.Param != "path" || perr.CallName != "read_file" {
		t.Fatalf("unexpected error: %+v", perr)
	}
}

func TestValidate_EmptyRequiredParamIsMissing(t *testing.T) {
	t.Parallel()

	v := NewValidator(testRegistry(t))
	_, err := v.Validate(invocation("read_file", map[string]string{"path": ""}), 1)

	var perr *ParamError
	if !errors.As(err, &perr) || perr.Kind != ParamMissing {
		t.Fatalf("expected ParamMissing, got %v", err)
	}
}

func TestValidate_UnknownCapability(t *testing.T) {
	t.Parallel()

	v := NewValidator(testRegistry(t))
	_, err := v.Validate(invocation("launch_rocket", map[string]string{"target": "moon"}), 1)

	var perr *ParamError
	if !errors.As(err, &perr) || perr.Kind != UnknownCapability {
		t.Fatalf("expected UnknownCapability, got %v", err)
	}
}

func TestValidate_ExtraParamsPassThrough(t *testing.T) {
	t.Parallel()

	v := NewValidator(testRegistry(t))
	call, err := v.Validate(invocation("read_file", map[string]string{
		"path":   "a.txt",
		"future": "flag",
	}), 1)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if call.Param("future") != "flag" {
		t.Fatal("extra parameter dropped")
	}
}

func TestValidate_SchemaViolation(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	if err := r.RegisterLocal(Descriptor{
		Name:     "list_files",
		Risk:     RiskReadOnly,
		Required: []string{"path"},
		Schema: []byte(`{
			"type": "object",
			"properties": {
				"recursive": {"enum": ["true", "false"]}
			}
		}`),
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	v := NewValidator(r)
	_, err := v.Validate(invocation("list_files", map[string]string{
		"path":      ".",
		"recursive": "yes",
	}), 1)

	var perr *ParamError
	if !errors.As(err, &perr) || perr.Kind != ParamInvalid {
		t.Fatalf("expected ParamInvalid, got %v", err)
	}
}
