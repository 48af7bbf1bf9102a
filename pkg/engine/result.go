package engine

import (
	"fmt"

	"github.com/numaproj/numaflow-rsp/pkg/r2r"
)

// Result is one solution of the embedded query for one emitted window.
type Result struct {
	// Window is the IRI of the window which emitted
	Window   string      `json:"window"`
	Bindings r2r.Binding `json:"bindings"`
	// From is the event time of the last batch the emitted window content saw,
	// To is From plus the window width
	From int64 `json:"from"`
	To   int64 `json:"to"`
	// WindowOpen and WindowClose are the bounds [open, close) of the emitting window instance
	WindowOpen  int64 `json:"windowOpen"`
	WindowClose int64 `json:"windowClose"`
}

func (r Result) String() string {
	return fmt.Sprintf("%s [%d,%d) window [%d,%d) %s", r.Window, r.From, r.To, r.WindowOpen, r.WindowClose, r.Bindings)
}
