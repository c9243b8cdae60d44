package capability

import (
	"bytes"
	"cmp"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Registry holds capability descriptors. Local descriptors are registered
// once at startup; remote descriptors are replaced wholesale whenever a
// provider connects, refreshes, or disconnects. The lock protects only the
// map mutations, never in-flight calls.
type Registry struct {
	mu       sync.RWMutex
	local    map[string]Descriptor
	remote   map[string]Descriptor // name -> descriptor, across all providers
	compiled map[string]*jsonschema.Schema
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		local:    make(map[string]Descriptor),
		remote:   make(map[string]Descriptor),
		compiled: make(map[string]*jsonschema.Schema),
	}
}

// RegisterLocal adds a local capability descriptor. The descriptor's JSON
// Schema, when present, is compiled eagerly so a bad schema fails at
// startup rather than on first call.
func (r *Registry) RegisterLocal(d Descriptor) error {
	name := strings.TrimSpace(d.Name)
	if name == "" {
		return ErrEmptyName
	}
	d.Name = name
	d.Kind = KindLocal

	var compiled *jsonschema.Schema
	if len(d.Schema) > 0 {
		c := jsonschema.NewCompiler()
		url := "streamexec://capability/" + name + ".json"
		if err := c.AddResource(url, bytes.NewReader(d.Schema)); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrBadSchema, name, err)
		}
		sch, err := c.Compile(url)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrBadSchema, name, err)
		}
		compiled = sch
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.local[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicate, name)
	}
	r.local[name] = d
	if compiled != nil {
		r.compiled[name] = compiled
	}
	return nil
}

// ReplaceProvider swaps all remote descriptors for the given provider.
// Called by the remote gateway on connect and capability refresh. Remote
// names never shadow local ones.
func (r *Registry) ReplaceProvider(providerID string, descs []Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, d := range r.remote {
		if d.ProviderID == providerID {
			delete(r.remote, name)
		}
	}
	for _, d := range descs {
		name := strings.TrimSpace(d.Name)
		if name == "" {
			continue
		}
		if _, shadowed := r.local[name]; shadowed {
			continue
		}
		d.Name = name
		d.Kind = KindRemote
		d.ProviderID = providerID
		r.remote[name] = d
	}
}

// RemoveProvider drops all remote descriptors for the given provider.
// Called by the remote gateway on disconnect.
func (r *Registry) RemoveProvider(providerID string) {
	r.ReplaceProvider(providerID, nil)
}

// Lookup returns the descriptor for name. Local capabilities take
// precedence over remote ones with the same name.
func (r *Registry) Lookup(name string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if d, ok := r.local[name]; ok {
		return d, nil
	}
	if d, ok := r.remote[name]; ok {
		return d, nil
	}
	return Descriptor{}, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// IsKnown reports whether name is registered. The parser uses this to
// decide whether an outer marker opens an invocation or is plain text.
func (r *Registry) IsKnown(name string) bool {
	_, err := r.Lookup(name)
	return err == nil
}

// Names returns all registered capability names sorted alphabetically.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.local)+len(r.remote))
	for name := range r.local {
		names = append(names, name)
	}
	for name := range r.remote {
		names = append(names, name)
	}
	slices.SortFunc(names, func(a, b string) int { return cmp.Compare(a, b) })
	return names
}

// schema returns the compiled schema for name, if any.
func (r *Registry) schema(name string) *jsonschema.Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.compiled[name]
}
