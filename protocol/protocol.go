// Package protocol defines the drag and drop dialect bindings and the
// registry that picks which one a target window speaks.
package protocol

import (
	"image"

	"github.com/jmigpin/dnd/display"
	"github.com/jmigpin/dnd/wire"
)

// Session is the part of the drag state a binding needs to build messages.
type Session struct {
	Source      display.Window
	Formats     []uint32
	FormatIndex int // shared table index, -1 if not interned
	Actions     Action // offered
	Action      Action // requested by the user
}

// Target is a recognized drop target. Messages are addressed to Window
// but delivered to Proxy.
type Target struct {
	Window     display.Window
	Proxy      display.Window
	Capability wire.CapabilityRecord
}

//----------

type ReplyKind int

const (
	ReplyStatus   ReplyKind = iota // drop site status or operation change
	ReplyDropAck                   // receiver answer to a drop start
	ReplyFinished                  // receiver is done with the drop
)

type Reply struct {
	Kind     ReplyKind
	Accepted bool
	Action   Action
	Point    image.Point
	Time     display.Timestamp
	Timed    bool // the dialect carried a timestamp
}

//----------

type IncomingKind int

const (
	IncomingEnter IncomingKind = iota
	IncomingMotion
	IncomingLeave
	IncomingDrop
)

func (k IncomingKind) String() string {
	switch k {
	case IncomingEnter:
		return "enter"
	case IncomingMotion:
		return "motion"
	case IncomingLeave:
		return "leave"
	case IncomingDrop:
		return "drop"
	}
	return "?"
}

// Incoming is a decoded initiator message, as seen by a drop site.
type Incoming struct {
	Kind     IncomingKind
	Source   display.Window
	Point    image.Point // root coordinates
	HasPoint bool
	Time     display.Timestamp
	Actions  Action
	Action   Action
}

//----------

// Binding is one drag and drop dialect. The set is closed: see the motif
// and xdnd packages.
type Binding interface {
	Name() string

	// Source side.
	Prepare(s *Session) error
	Cleanup(s *Session)
	Recognize(win display.Window) (*Target, bool)
	SendEnter(s *Session, t *Target, time display.Timestamp) error
	SendMotion(s *Session, t *Target, p image.Point, time display.Timestamp) error
	SendLeave(s *Session, t *Target, time display.Timestamp) error
	SendDropStart(s *Session, t *Target, p image.Point, time display.Timestamp) error
	DecodeReply(s *Session, t *Target, m *display.ClientMessage) (*Reply, bool)
	// The dialect wants a leave right before the drop start.
	LeaveBeforeDrop() bool

	// Drop site side.
	RegisterDropSite(win display.Window) error
	UnregisterDropSite(win display.Window) error
	// Redirects messages addressed to toplevel into proxy. Previous
	// values are kept and restored on unregister.
	RegisterEmbedderDropSite(toplevel, proxy display.Window) error
	UnregisterEmbedderDropSite(toplevel display.Window) error
	DecodeIncoming(m *display.ClientMessage) (*Incoming, bool)
}

//----------

// Registry holds the bindings in preference order. It is stateless.
type Registry struct {
	bindings []Binding
}

func NewRegistry(bs ...Binding) *Registry {
	return &Registry{bindings: bs}
}

func (r *Registry) Bindings() []Binding {
	return r.bindings
}

// Resolve returns the first binding that recognizes win.
func (r *Registry) Resolve(win display.Window) (Binding, *Target) {
	if win == display.None {
		return nil, nil
	}
	for _, b := range r.bindings {
		if t, ok := b.Recognize(win); ok {
			return b, t
		}
	}
	return nil, nil
}
