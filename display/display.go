// Package display is the narrow contract the drag and drop engine uses to
// talk to the windowing server. Everything the engine knows about other
// clients goes through a Display: properties, client messages, grabs and
// the window tree.
package display

import (
	"encoding/binary"
	"image"

	"github.com/pkg/errors"
)

type Window uint32
type Atom uint32
type Timestamp uint32
type Cursor uint32

const (
	None        Window    = 0
	AtomNone    Atom      = 0
	CurrentTime Timestamp = 0
)

//----------

var (
	ErrBadWindow  = errors.New("bad window")
	ErrNoProperty = errors.New("no property")
)

//----------

type GrabStatus int

const (
	GrabSuccess GrabStatus = iota
	GrabAlreadyGrabbed
	GrabInvalidTime
	GrabNotViewable
	GrabFrozen
)

func (gs GrabStatus) String() string {
	switch gs {
	case GrabSuccess:
		return "success"
	case GrabAlreadyGrabbed:
		return "already grabbed"
	case GrabInvalidTime:
		return "invalid time"
	case GrabNotViewable:
		return "not viewable"
	case GrabFrozen:
		return "frozen"
	}
	return "unknown"
}

//----------

// Event mask bits, same values as the core protocol.
const (
	EventMaskKeyPress          uint32 = 1 << 0
	EventMaskKeyRelease        uint32 = 1 << 1
	EventMaskButtonPress       uint32 = 1 << 2
	EventMaskButtonRelease     uint32 = 1 << 3
	EventMaskEnterWindow       uint32 = 1 << 4
	EventMaskLeaveWindow       uint32 = 1 << 5
	EventMaskPointerMotion     uint32 = 1 << 6
	EventMaskButtonMotion      uint32 = 1 << 13
	EventMaskStructureNotify   uint32 = 1 << 17
	EventMaskSubstructNotify   uint32 = 1 << 19
	EventMaskPropertyChange    uint32 = 1 << 22
	EventMaskOwnerGrabButton   uint32 = 1 << 24
	EventMaskPointerGrabEvents        = EventMaskButtonPress | EventMaskButtonRelease | EventMaskButtonMotion | EventMaskPointerMotion | EventMaskEnterWindow | EventMaskLeaveWindow
)

//----------

// Property is a raw window property value. Format is 8, 16 or 32. Format
// 32 values travel in the connection byte order, which is little endian.
type Property struct {
	Type   Atom
	Format byte
	Value  []byte
}

func (p *Property) Uint32s() []uint32 {
	if p.Format != 32 {
		return nil
	}
	n := len(p.Value) / 4
	u := make([]uint32, n)
	for i := 0; i < n; i++ {
		u[i] = binary.LittleEndian.Uint32(p.Value[i*4:])
	}
	return u
}

func Prop32(vals ...uint32) []byte {
	b := make([]byte, len(vals)*4)
	for i, v := range vals {
		binary.LittleEndian.PutUint32(b[i*4:], v)
	}
	return b
}

//----------

// ClientMessage is the fixed 20 byte envelope relayed by the server. Only
// one of Data8/Data32 is meaningful, depending on Format.
type ClientMessage struct {
	Window Window
	Type   Atom
	Format byte // 8 or 32
	Data8  [20]byte
	Data32 [5]uint32
}

//----------

type Geometry struct {
	Rect   image.Rectangle // root coordinates
	Mapped bool
}

//----------

type Display interface {
	Root() Window
	InternAtom(name string) (Atom, error)

	// Returns ErrNoProperty if the property is not set.
	GetProperty(win Window, prop Atom) (*Property, error)
	SetProperty(win Window, prop Atom, p *Property) error
	DeleteProperty(win Window, prop Atom) error

	SendMessage(target Window, m *ClientMessage) error

	GrabPointer(win Window, evMask uint32, cursor Cursor, t Timestamp) (GrabStatus, error)
	GrabKeyboard(win Window, t Timestamp) (GrabStatus, error)
	UngrabPointer(t Timestamp) error
	UngrabKeyboard(t Timestamp) error
	ChangePointerGrabCursor(evMask uint32, cursor Cursor, t Timestamp) error

	// Runs fn with all other clients' requests held by the server.
	WithExclusiveSection(fn func() error) error

	EventMask(win Window) (uint32, error)
	SetEventMask(win Window, mask uint32) error

	// Child of win that contains the root point, or None.
	ChildAt(win Window, x, y int) (Window, error)
	QueryTree(win Window) (parent Window, children []Window, _ error)
	WindowExists(win Window) bool
	Geometry(win Window) (Geometry, error)
	// Reports if the window carries window manager state (WM_STATE).
	IsManaged(win Window) (bool, error)
	CreateHiddenWindow() (Window, error)
	DestroyWindow(win Window) error
}

//----------

// Ancestors returns win followed by its parents up to, but not including,
// the root. The walk is bounded by maxDepth and stops early if a window
// vanishes.
func Ancestors(d Display, win Window, maxDepth int) []Window {
	root := d.Root()
	u := []Window{}
	for w := win; w != None && w != root && len(u) < maxDepth; {
		if !d.WindowExists(w) {
			break
		}
		u = append(u, w)
		parent, _, err := d.QueryTree(w)
		if err != nil {
			break
		}
		w = parent
	}
	return u
}
