// Package memdisplay is an in-memory display.Display. It keeps a window
// tree with properties and records every message and grab so protocol code
// can run without a windowing server.
package memdisplay

import (
	"image"
	"sync"

	"github.com/jmigpin/dnd/display"
	"github.com/pkg/errors"
)

type Display struct {
	mu      sync.Mutex
	section sync.Mutex

	root    display.Window
	nextWin display.Window
	wins    map[display.Window]*win
	atoms   map[string]display.Atom
	names   map[display.Atom]string

	Sent []Sent

	Grabs struct {
		Pointer, Keyboard        bool
		PointerN, KeyboardN      int // successful grabs
		UngrabPtrN, UngrabKbdN   int
		PointerCursor            display.Cursor
		PointerStatus, KbdStatus display.GrabStatus // forced results
	}
	Sections int

	// Hooks to simulate other clients and failures.
	OnSection     func()
	SetPropFail   func(w display.Window, prop display.Atom) error
	EventMaskFail func(w display.Window) error
}

type Sent struct {
	Target display.Window
	Msg    display.ClientMessage
}

type win struct {
	parent   display.Window
	children []display.Window // bottom to top
	props    map[display.Atom]*display.Property
	rect     image.Rectangle
	mapped   bool
	managed  bool
	evMask   uint32
}

func New() *Display {
	d := &Display{
		root:    1,
		nextWin: 0x100,
		wins:    map[display.Window]*win{},
		atoms:   map[string]display.Atom{},
		names:   map[display.Atom]string{},
	}
	d.wins[d.root] = &win{
		props:  map[display.Atom]*display.Property{},
		rect:   image.Rect(0, 0, 1920, 1080),
		mapped: true,
	}
	return d
}

//----------

// CreateWindow adds a mapped window on top of the parent's children. The
// rectangle is in root coordinates.
func (d *Display) CreateWindow(parent display.Window, r image.Rectangle) display.Window {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.createWindow(parent, r, true)
}

func (d *Display) createWindow(parent display.Window, r image.Rectangle, mapped bool) display.Window {
	p, ok := d.wins[parent]
	if !ok {
		panic("memdisplay: bad parent")
	}
	d.nextWin++
	w := d.nextWin
	d.wins[w] = &win{
		parent: parent,
		props:  map[display.Atom]*display.Property{},
		rect:   r,
		mapped: mapped,
	}
	p.children = append(p.children, w)
	return w
}

func (d *Display) SetManaged(w display.Window, v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if mw, ok := d.wins[w]; ok {
		mw.managed = v
	}
}

func (d *Display) SetMapped(w display.Window, v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if mw, ok := d.wins[w]; ok {
		mw.mapped = v
	}
}

func (d *Display) Reparent(w, parent display.Window) {
	d.mu.Lock()
	defer d.mu.Unlock()
	mw, ok := d.wins[w]
	if !ok {
		return
	}
	if old, ok := d.wins[mw.parent]; ok {
		old.children = removeWin(old.children, w)
	}
	mw.parent = parent
	p := d.wins[parent]
	p.children = append(p.children, w)
}

// Destroy removes the window and all its descendants.
func (d *Display) Destroy(w display.Window) {
	d.mu.Lock()
	defer d.mu.Unlock()
	mw, ok := d.wins[w]
	if !ok {
		return
	}
	if p, ok := d.wins[mw.parent]; ok {
		p.children = removeWin(p.children, w)
	}
	d.destroy(w)
}

func (d *Display) destroy(w display.Window) {
	mw := d.wins[w]
	for _, c := range mw.children {
		d.destroy(c)
	}
	delete(d.wins, w)
}

func (d *Display) AtomName(a display.Atom) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.names[a]
}

// SentTo returns the messages sent to target, in order.
func (d *Display) SentTo(target display.Window) []display.ClientMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	u := []display.ClientMessage{}
	for _, s := range d.Sent {
		if s.Target == target {
			u = append(u, s.Msg)
		}
	}
	return u
}

func (d *Display) ClearSent() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Sent = nil
}

//----------

func (d *Display) Root() display.Window {
	return d.root
}

func (d *Display) InternAtom(name string) (display.Atom, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if a, ok := d.atoms[name]; ok {
		return a, nil
	}
	a := display.Atom(len(d.atoms) + 100)
	d.atoms[name] = a
	d.names[a] = name
	return a, nil
}

func (d *Display) GetProperty(w display.Window, prop display.Atom) (*display.Property, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	mw, ok := d.wins[w]
	if !ok {
		return nil, display.ErrBadWindow
	}
	p, ok := mw.props[prop]
	if !ok {
		return nil, display.ErrNoProperty
	}
	v := make([]byte, len(p.Value))
	copy(v, p.Value)
	return &display.Property{Type: p.Type, Format: p.Format, Value: v}, nil
}

func (d *Display) SetProperty(w display.Window, prop display.Atom, p *display.Property) error {
	if fn := d.SetPropFail; fn != nil {
		if err := fn(w, prop); err != nil {
			return err
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	mw, ok := d.wins[w]
	if !ok {
		return display.ErrBadWindow
	}
	v := make([]byte, len(p.Value))
	copy(v, p.Value)
	mw.props[prop] = &display.Property{Type: p.Type, Format: p.Format, Value: v}
	return nil
}

func (d *Display) DeleteProperty(w display.Window, prop display.Atom) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	mw, ok := d.wins[w]
	if !ok {
		return display.ErrBadWindow
	}
	delete(mw.props, prop)
	return nil
}

func (d *Display) SendMessage(target display.Window, m *display.ClientMessage) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.wins[target]; !ok {
		return display.ErrBadWindow
	}
	d.Sent = append(d.Sent, Sent{target, *m})
	return nil
}

//----------

func (d *Display) GrabPointer(w display.Window, evMask uint32, cursor display.Cursor, t display.Timestamp) (display.GrabStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.wins[w]; !ok {
		return 0, display.ErrBadWindow
	}
	if d.Grabs.PointerStatus != display.GrabSuccess {
		return d.Grabs.PointerStatus, nil
	}
	if d.Grabs.Pointer {
		return display.GrabAlreadyGrabbed, nil
	}
	d.Grabs.Pointer = true
	d.Grabs.PointerN++
	d.Grabs.PointerCursor = cursor
	return display.GrabSuccess, nil
}

func (d *Display) GrabKeyboard(w display.Window, t display.Timestamp) (display.GrabStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.wins[w]; !ok {
		return 0, display.ErrBadWindow
	}
	if d.Grabs.KbdStatus != display.GrabSuccess {
		return d.Grabs.KbdStatus, nil
	}
	if d.Grabs.Keyboard {
		return display.GrabAlreadyGrabbed, nil
	}
	d.Grabs.Keyboard = true
	d.Grabs.KeyboardN++
	return display.GrabSuccess, nil
}

func (d *Display) UngrabPointer(t display.Timestamp) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Grabs.Pointer = false
	d.Grabs.UngrabPtrN++
	return nil
}

func (d *Display) UngrabKeyboard(t display.Timestamp) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Grabs.Keyboard = false
	d.Grabs.UngrabKbdN++
	return nil
}

func (d *Display) ChangePointerGrabCursor(evMask uint32, cursor display.Cursor, t display.Timestamp) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.Grabs.Pointer {
		return errors.New("memdisplay: pointer not grabbed")
	}
	d.Grabs.PointerCursor = cursor
	return nil
}

//----------

func (d *Display) WithExclusiveSection(fn func() error) error {
	if h := d.OnSection; h != nil {
		h()
	}
	d.section.Lock()
	defer d.section.Unlock()
	d.mu.Lock()
	d.Sections++
	d.mu.Unlock()
	return fn()
}

//----------

func (d *Display) EventMask(w display.Window) (uint32, error) {
	if fn := d.EventMaskFail; fn != nil {
		if err := fn(w); err != nil {
			return 0, err
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	mw, ok := d.wins[w]
	if !ok {
		return 0, display.ErrBadWindow
	}
	return mw.evMask, nil
}

func (d *Display) SetEventMask(w display.Window, mask uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	mw, ok := d.wins[w]
	if !ok {
		return display.ErrBadWindow
	}
	mw.evMask = mask
	return nil
}

//----------

func (d *Display) ChildAt(w display.Window, x, y int) (display.Window, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	mw, ok := d.wins[w]
	if !ok {
		return display.None, display.ErrBadWindow
	}
	p := image.Point{x, y}
	for i := len(mw.children) - 1; i >= 0; i-- {
		c := d.wins[mw.children[i]]
		if c.mapped && p.In(c.rect) {
			return mw.children[i], nil
		}
	}
	return display.None, nil
}

func (d *Display) QueryTree(w display.Window) (display.Window, []display.Window, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	mw, ok := d.wins[w]
	if !ok {
		return display.None, nil, display.ErrBadWindow
	}
	u := make([]display.Window, len(mw.children))
	copy(u, mw.children)
	return mw.parent, u, nil
}

func (d *Display) WindowExists(w display.Window) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.wins[w]
	return ok
}

func (d *Display) Geometry(w display.Window) (display.Geometry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	mw, ok := d.wins[w]
	if !ok {
		return display.Geometry{}, display.ErrBadWindow
	}
	// viewable only if all ancestors are mapped
	mapped := mw.mapped
	for p := mw.parent; mapped && p != display.None; {
		pw, ok := d.wins[p]
		if !ok {
			break
		}
		mapped = pw.mapped
		p = pw.parent
	}
	return display.Geometry{Rect: mw.rect, Mapped: mapped}, nil
}

func (d *Display) IsManaged(w display.Window) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	mw, ok := d.wins[w]
	if !ok {
		return false, display.ErrBadWindow
	}
	return mw.managed, nil
}

func (d *Display) CreateHiddenWindow() (display.Window, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.createWindow(d.root, image.Rect(-100, -100, -99, -99), false), nil
}

func (d *Display) DestroyWindow(w display.Window) error {
	if !d.WindowExists(w) {
		return display.ErrBadWindow
	}
	d.Destroy(w)
	return nil
}

//----------

func removeWin(u []display.Window, w display.Window) []display.Window {
	for i, e := range u {
		if e == w {
			return append(u[:i:i], u[i+1:]...)
		}
	}
	return u
}
