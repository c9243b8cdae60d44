package main

import (
	"fmt"
	"io"

	"github.com/flemzord/streamexec/internal/dispatch"
	"github.com/flemzord/streamexec/internal/session"
	"github.com/flemzord/streamexec/pkg/segment"
)

// consoleDisplay renders session progress on the terminal.
type consoleDisplay struct {
	out io.Writer
}

func (d *consoleDisplay) ShowText(text string) {
	fmt.Fprint(d.out, text)
}

func (d *consoleDisplay) ShowInvocation(seg *segment.Segment) {
	fmt.Fprintf(d.out, "\n[call] %s", seg.Name)
	for _, p := range seg.Params() {
		fmt.Fprintf(d.out, " %s=%q", p.Name, p.Value)
	}
	fmt.Fprintln(d.out)
}

func (d *consoleDisplay) ShowResult(callID int64, capabilityName string, res dispatch.Result) {
	if res.OK {
		fmt.Fprintf(d.out, "[ok] #%d %s\n%s\n", callID, capabilityName, res.Text)
		return
	}
	fmt.Fprintf(d.out, "[failed] #%d %s: %s\n", callID, capabilityName, res)
}

// fanoutDisplay forwards every event to each underlying display.
type fanoutDisplay []session.Display

func (f fanoutDisplay) ShowText(text string) {
	for _, d := range f {
		d.ShowText(text)
	}
}

func (f fanoutDisplay) ShowInvocation(seg *segment.Segment) {
	for _, d := range f {
		d.ShowInvocation(seg)
	}
}

func (f fanoutDisplay) ShowResult(callID int64, capabilityName string, res dispatch.Result) {
	for _, d := range f {
		d.ShowResult(callID, capabilityName, res)
	}
}
