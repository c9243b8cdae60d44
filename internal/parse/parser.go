// Package parse implements the streaming tokenizer for model output. It
// converts an incrementally delivered character stream into an ordered
// sequence of segments: plain text and capability invocations with
// parameters, using an XML-style two-level marker grammar.
//
// The parser is chunk-boundary independent: feeding the same stream in any
// byte splitting yields the same final segment sequence. Markers split
// across chunk boundaries are buffered until resolved.
package parse

import (
	"github.com/flemzord/streamexec/pkg/segment"
)

// maxTagNameLen bounds how long a marker name candidate can grow before it
// is flushed back to text. Keeps held-back output small for live display.
const maxTagNameLen = 64

// state identifies the parser's position in the marker grammar.
type state int

const (
	stateText          state = iota // plain text, watching for an opening marker
	stateTagCandidate               // after '<' in text, collecting a name
	stateInvocation                 // inside an invocation, between parameters
	stateInvCandidate               // after '<' inside an invocation
	stateParamValue                 // inside a parameter value
)

// Config configures a Parser.
type Config struct {
	// IsKnown reports whether a marker name is a registered capability.
	// Unknown outer markers are emitted as plain text, never as
	// invocations. Required.
	IsKnown func(name string) bool

	// OnRevise, if non-nil, is called every time a segment is created or
	// mutated, for live display. The segment may still be incomplete.
	OnRevise func(*segment.Segment)

	// OnComplete, if non-nil, is called exactly once per segment when it
	// is finalized, in stream order.
	OnComplete func(*segment.Segment)
}

// Parser is the streaming segment tokenizer. It is not safe for concurrent
// use; one goroutine owns a Parser.
type Parser struct {
	cfg      Config
	segments []*segment.Segment

	st    state
	cand  string // partial marker under consideration, including '<'
	inv   *segment.Segment
	text  *segment.Segment
	param string // current parameter name while in stateParamValue
	close string // closing marker for the current parameter
	done  bool
}

// New creates a Parser. cfg.IsKnown must be non-nil.
func New(cfg Config) *Parser {
	if cfg.IsKnown == nil {
		panic("parse: Config.IsKnown is required")
	}
	return &Parser{cfg: cfg}
}

// Segments returns all segments produced so far, in stream order. The last
// segment may be incomplete while the stream is still being fed.
func (p *Parser) Segments() []*segment.Segment {
	out := make([]*segment.Segment, len(p.segments))
	copy(out, p.segments)
	return out
}

// Feed consumes the next chunk of the stream. Chunks may split markers at
// any byte boundary. Feed after Finish is a no-op.
func (p *Parser) Feed(chunk string) {
	if p.done {
		return
	}
	for i := 0; i < len(chunk); i++ {
		p.step(chunk[i])
	}
}

// Finish signals end of stream. Any marker candidate still pending is
// flushed as text; an invocation still open is finalized with its Faulted
// flag set so the caller can surface a structural error instead of
// silently dropping the call.
func (p *Parser) Finish() {
	if p.done {
		return
	}
	p.done = true

	switch p.st {
	case stateTagCandidate:
		p.appendText(p.cand)
	case stateParamValue:
		if p.cand != "" {
			p.inv.AppendParam(p.param, p.cand)
		}
	}
	p.cand = ""

	if p.text != nil {
		p.finishText()
	}
	if p.inv != nil {
		p.inv.Faulted = true
		p.finishInvocation()
	}
}

// step advances the state machine by one byte.
func (p *Parser) step(c byte) {
	switch p.st {
	case stateText:
		if c == '<' {
			p.st = stateTagCandidate
			p.cand = "<"
			return
		}
		p.appendText(string(c))

	case stateTagCandidate:
		p.stepTagCandidate(c)

	case stateInvocation:
		if c == '<' {
			p.st = stateInvCandidate
			p.cand = "<"
		}
		// Content between parameters (whitespace, stray characters) is
		// not part of any parameter value and is dropped.

	case stateInvCandidate:
		p.stepInvCandidate(c)

	case stateParamValue:
		p.stepParamValue(c)
	}
}

// stepTagCandidate handles a potential invocation opening marker seen in
// plain text.
func (p *Parser) stepTagCandidate(c byte) {
	switch {
	case c == '>':
		name := p.cand[1:]
		if validName(name) && p.cfg.IsKnown(name) {
			p.cand = ""
			p.finishText()
			p.st = stateInvocation
			p.inv = segment.NewInvocation(name)
			p.segments = append(p.segments, p.inv)
			p.revise(p.inv)
			return
		}
		// Unknown or malformed marker: fail open to display.
		p.appendText(p.cand + ">")
		p.cand = ""
		p.st = stateText

	case c == '<':
		// A fresh candidate begins; the previous one was plain text.
		p.appendText(p.cand)
		p.cand = "<"

	case isNameByte(c) && len(p.cand) <= maxTagNameLen:
		p.cand += string(c)

	default:
		p.appendText(p.cand + string(c))
		p.cand = ""
		p.st = stateText
	}
}

// stepInvCandidate handles a marker inside an invocation: either a
// parameter opening marker or the invocation's closing marker.
func (p *Parser) stepInvCandidate(c byte) {
	switch {
	case c == '>':
		name := p.cand[1:]
		p.cand = ""
		if name == "/"+p.inv.Name {
			p.inv.Finalize()
			p.finishInvocation()
			p.st = stateText
			return
		}
		if validName(name) {
			// Any well-formed inner marker opens a parameter; unknown
			// parameter names pass through to the validator.
			p.param = name
			p.close = "</" + name + ">"
			p.inv.AppendParam(name, "")
			p.revise(p.inv)
			p.st = stateParamValue
			return
		}
		// Malformed marker inside an invocation is dropped.
		p.st = stateInvocation

	case c == '<':
		p.cand = "<"

	case (isNameByte(c) || (c == '/' && p.cand == "<")) && len(p.cand) <= maxTagNameLen:
		p.cand += string(c)

	default:
		p.cand = ""
		p.st = stateInvocation
	}
}

// stepParamValue accumulates a parameter value, watching for its closing
// marker. A partial match of the closing marker is held back in cand so a
// marker split across chunks is never leaked into the value.
func (p *Parser) stepParamValue(c byte) {
	if p.cand != "" {
		next := p.cand + string(c)
		switch {
		case next == p.close:
			p.cand = ""
			p.st = stateInvocation
			p.revise(p.inv)
			return
		case len(next) < len(p.close) && p.close[:len(next)] == next:
			p.cand = next
			return
		default:
			// The held-back bytes were value content after all.
			p.inv.AppendParam(p.param, p.cand)
			p.cand = ""
			// Re-examine c: it may itself begin the closing marker.
		}
	}

	if c == '<' {
		p.cand = "<"
		return
	}
	p.inv.AppendParam(p.param, string(c))
	p.revise(p.inv)
}

// appendText adds text to the current text segment, opening one if needed.
func (p *Parser) appendText(s string) {
	if s == "" {
		return
	}
	if p.text == nil {
		p.text = &segment.Segment{Kind: segment.KindText}
		p.segments = append(p.segments, p.text)
	}
	p.text.Text += s
	p.revise(p.text)
}

// finishText finalizes the current text segment, if any.
func (p *Parser) finishText() {
	if p.text == nil {
		return
	}
	t := p.text
	p.text = nil
	t.Finalize()
	p.revise(t)
	p.complete(t)
}

// finishInvocation finalizes the current invocation segment.
func (p *Parser) finishInvocation() {
	inv := p.inv
	p.inv = nil
	p.param = ""
	p.close = ""
	inv.Finalize()
	p.revise(inv)
	p.complete(inv)
}

func (p *Parser) revise(s *segment.Segment) {
	if p.cfg.OnRevise != nil {
		p.cfg.OnRevise(s)
	}
}

func (p *Parser) complete(s *segment.Segment) {
	if p.cfg.OnComplete != nil {
		p.cfg.OnComplete(s)
	}
}

// isNameByte reports whether c may appear in a marker name.
func isNameByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '_', c == '-':
		return true
	}
	return false
}

// validName reports whether s is a non-empty, well-formed marker name.
func validName(s string) bool {
	if s == "" || len(s) > maxTagNameLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isNameByte(s[i]) {
			return false
		}
	}
	return true
}
