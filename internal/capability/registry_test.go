package capability

import (
	"errors"
	"testing"
)

func TestRegistryRegisterLocal_EmptyName(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	if err := r.RegisterLocal(Descriptor{Name: "  "}); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("expected ErrEmptyName, got %v", err)
	}
}

func TestRegistryRegisterLocal_Duplicate(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	if err := r.RegisterLocal(Descriptor{Name: "read_file", Risk: RiskReadOnly}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.RegisterLocal(Descriptor{Name: "read_file"}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestRegistryRegisterLocal_BadSchema(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	err := r.RegisterLocal(Descriptor{
		Name:   "broken",
		Schema: []byte(`{"type": 42}`),
	})
	if !errors.Is(err, ErrBadSchema) {
		t.Fatalf("expected ErrBadSchema, got %v", err)
	}
}

func TestRegistryLookup_LocalShadowsRemote(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	if err := r.RegisterLocal(Descriptor{Name: "read_file", Risk: RiskReadOnly}); err != nil {
		t.Fatalf("register: %v", err)
	}
	r.ReplaceProvider("prov", []Descriptor{
		{Name: "read_file", AutoApprove: true},
		{Name: "weather", AutoApprove: true},
	})

	d, err := r.Lookup("read_file")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if d.Kind != KindLocal {
		t.Fatalf("local descriptor shadowed by remote: %+v", d)
	}

	d, err = r.Lookup("weather")
	if err != nil {
		t.Fatalf("lookup remote: %v", err)
	}
	if d.Kind != KindRemote || d.ProviderID != "prov" {
		t.Fatalf("unexpected remote descriptor: %+v", d)
	}
}

func TestRegistryReplaceProvider_DropsStaleEntries(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.ReplaceProvider("prov", []Descriptor{{Name: "old_tool"}})
	r.ReplaceProvider("prov", []Descriptor{{Name: "new_tool"}})

	if _, err := r.Lookup("old_tool"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("stale descriptor survived refresh: %v", err)
	}
	if _, err := r.Lookup("new_tool"); err != nil {
		t.Fatalf("refreshed descriptor missing: %v", err)
	}
}

func TestRegistryRemoveProvider(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.ReplaceProvider("a", []Descriptor{{Name: "tool_a"}})
	r.ReplaceProvider("b", []Descriptor{{Name: "tool_b"}})
	r.RemoveProvider("a")

	if r.IsKnown("tool_a") {
		t.Fatal("tool_a should be gone after RemoveProvider")
	}
	if !r.IsKnown("tool_b") {
		t.Fatal("tool_b should survive removal of provider a")
	}
}

func TestRegistryNames_Sorted(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	_ = r.RegisterLocal(Descriptor{Name: "write_to_file"})
	_ = r.RegisterLocal(Descriptor{Name: "read_file"})
	r.ReplaceProvider("p", []Descriptor{{Name: "fetch_weather"}})

	names := r.Names()
	want := []string{"fetch_weather", "read_file", "write_to_file"}
	if len(names) != len(want) {
		t.Fatalf("names = %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names = %v, want %v", names, want)
		}
	}
}
