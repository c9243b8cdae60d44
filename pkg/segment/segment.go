// Package segment defines the content segment types produced by the stream
// parser and consumed by the execution session. A segment is either plain
// text or a single capability invocation with ordered string parameters.
package segment

// Kind discriminates the segment union.
type Kind string

// Segment kinds.
const (
	KindText       Kind = "text"
	KindInvocation Kind = "invocation"
)

// Param is one named parameter of an invocation. Order of appearance in the
// stream is preserved for diagnostics.
type Param struct {
	Name  string
	Value string
}

// Segment is a single parsed unit of model output. Invocation segments are
// created incomplete, mutated in place as the stream arrives, and finalized
// exactly once when their closing marker (or end of stream) is seen.
type Segment struct {
	Kind Kind

	// Text carries the content for KindText segments.
	Text string

	// Name is the capability name for KindInvocation segments.
	Name string

	// Faulted marks an invocation that was still open when the stream
	// ended. Faulted segments are finalized but must not be dispatched.
	Faulted bool

	params   []Param
	complete bool
}

// NewText creates a completed text segment.
func NewText(text string) *Segment {
	return &Segment{Kind: KindText, Text: text, complete: true}
}

// NewInvocation creates an incomplete invocation segment for the given
// capability name.
func NewInvocation(name string) *Segment {
	return &Segment{Kind: KindInvocation, Name: name}
}

// AppendParam appends chunk to the named parameter, creating the parameter
// on first use. Insertion order is preserved.
func (s *Segment) AppendParam(name, chunk string) {
	for i := range s.params {
		if s.params[i].Name == name {
			s.params[i].Value += chunk
			return
		}
	}
	s.params = append(s.params, Param{Name: name, Value: chunk})
}

// SetParam replaces the named parameter's value, creating it if absent.
func (s *Segment) SetParam(name, value string) {
	for i := range s.params {
		if s.params[i].Name == name {
			s.params[i].Value = value
			return
		}
	}
	s.params = append(s.params, Param{Name: name, Value: value})
}

// Param returns the named parameter value and whether it is present.
func (s *Segment) Param(name string) (string, bool) {
	for i := range s.params {
		if s.params[i].Name == name {
			return s.params[i].Value, true
		}
	}
	return "", false
}

// Params returns the parameters in stream order. The returned slice is a
// copy; mutating it does not affect the segment.
func (s *Segment) Params() []Param {
	out := make([]Param, len(s.params))
	copy(out, s.params)
	return out
}

// ParamMap returns the parameters as a map for callers that do not care
// about ordering.
func (s *Segment) ParamMap() map[string]string {
	m := make(map[string]string, len(s.params))
	for _, p := range s.params {
		m[p.Name] = p.Value
	}
	return m
}

// Complete reports whether the segment has been finalized.
func (s *Segment) Complete() bool {
	return s.complete
}

// Finalize marks the segment complete. The transition is monotonic: once
// complete, a segment never becomes incomplete again.
func (s *Segment) Finalize() {
	s.complete = true
}
