// Package xdriver implements display.Display on an X11 connection.
package xdriver

import (
	"image"
	"log"
	"math"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/icccm"
	"github.com/BurntSushi/xgbutil/xprop"
	"github.com/jmigpin/dnd/display"
	"github.com/pkg/errors"
)

type Display struct {
	XU   *xgbutil.XUtil
	conn *xgb.Conn
	root xproto.Window

	sectionMu sync.Mutex // server grabs don't nest
}

// NewDisplay connects to displayName, or $DISPLAY if empty.
func NewDisplay(displayName string) (*Display, error) {
	xu, err := xgbutil.NewConnDisplay(displayName)
	if err != nil {
		return nil, errors.Wrap(err, "x conn")
	}
	return NewDisplayXU(xu), nil
}

func NewDisplayXU(xu *xgbutil.XUtil) *Display {
	return &Display{XU: xu, conn: xu.Conn(), root: xu.RootWin()}
}

func (d *Display) Close() {
	d.XU.Conn().Close()
}

//----------

func (d *Display) Root() display.Window {
	return display.Window(d.root)
}

// Atoms are cached by xprop.
func (d *Display) InternAtom(name string) (display.Atom, error) {
	a, err := xprop.Atm(d.XU, name)
	if err != nil {
		return display.AtomNone, err
	}
	return display.Atom(a), nil
}

func (d *Display) AtomName(a display.Atom) (string, error) {
	return xprop.AtomName(d.XU, xproto.Atom(a))
}

//----------

func (d *Display) GetProperty(win display.Window, prop display.Atom) (*display.Property, error) {
	cookie := xproto.GetProperty(
		d.conn,
		false, // delete
		xproto.Window(win),
		xproto.Atom(prop),
		xproto.GetPropertyTypeAny,
		0,              // long offset
		math.MaxUint32) // long length
	reply, err := cookie.Reply()
	if err != nil {
		return nil, windowErr(err)
	}
	if reply.Type == xproto.AtomNone {
		return nil, display.ErrNoProperty
	}
	p := &display.Property{
		Type:   display.Atom(reply.Type),
		Format: reply.Format,
		Value:  reply.Value,
	}
	return p, nil
}

func (d *Display) SetProperty(win display.Window, prop display.Atom, p *display.Property) error {
	n := uint32(len(p.Value))
	if p.Format > 8 {
		n /= uint32(p.Format / 8)
	}
	cookie := xproto.ChangePropertyChecked(
		d.conn,
		xproto.PropModeReplace,
		xproto.Window(win),
		xproto.Atom(prop),
		xproto.Atom(p.Type),
		p.Format,
		n,
		p.Value)
	return windowErr(cookie.Check())
}

func (d *Display) DeleteProperty(win display.Window, prop display.Atom) error {
	cookie := xproto.DeletePropertyChecked(d.conn, xproto.Window(win), xproto.Atom(prop))
	return windowErr(cookie.Check())
}

//----------

func (d *Display) SendMessage(target display.Window, m *display.ClientMessage) error {
	cme := &xproto.ClientMessageEvent{
		Format: m.Format,
		Window: xproto.Window(m.Window),
		Type:   xproto.Atom(m.Type),
	}
	if m.Format == 8 {
		cme.Data = xproto.ClientMessageDataUnionData8New(m.Data8[:])
	} else {
		cme.Data = xproto.ClientMessageDataUnionData32New(m.Data32[:])
	}
	cookie := xproto.SendEventChecked(
		d.conn,
		false, // propagate
		xproto.Window(target),
		xproto.EventMaskNoEvent,
		string(cme.Bytes()))
	return windowErr(cookie.Check())
}

// ClientMessage converts a received event.
func ClientMessage(ev *xproto.ClientMessageEvent) *display.ClientMessage {
	m := &display.ClientMessage{
		Window: display.Window(ev.Window),
		Type:   display.Atom(ev.Type),
		Format: ev.Format,
	}
	if ev.Format == 8 {
		copy(m.Data8[:], ev.Data.Data8)
	} else {
		copy(m.Data32[:], ev.Data.Data32)
	}
	return m
}

//----------

func (d *Display) GrabPointer(win display.Window, evMask uint32, cursor display.Cursor, t display.Timestamp) (display.GrabStatus, error) {
	cookie := xproto.GrabPointer(
		d.conn,
		false, // owner events
		xproto.Window(win),
		uint16(evMask),
		xproto.GrabModeAsync,
		xproto.GrabModeAsync,
		xproto.WindowNone, // confine to
		xproto.Cursor(cursor),
		xproto.Timestamp(t))
	reply, err := cookie.Reply()
	if err != nil {
		return 0, windowErr(err)
	}
	return display.GrabStatus(reply.Status), nil
}

func (d *Display) GrabKeyboard(win display.Window, t display.Timestamp) (display.GrabStatus, error) {
	cookie := xproto.GrabKeyboard(
		d.conn,
		false, // owner events
		xproto.Window(win),
		xproto.Timestamp(t),
		xproto.GrabModeAsync,
		xproto.GrabModeAsync)
	reply, err := cookie.Reply()
	if err != nil {
		return 0, windowErr(err)
	}
	return display.GrabStatus(reply.Status), nil
}

func (d *Display) UngrabPointer(t display.Timestamp) error {
	return xproto.UngrabPointerChecked(d.conn, xproto.Timestamp(t)).Check()
}

func (d *Display) UngrabKeyboard(t display.Timestamp) error {
	return xproto.UngrabKeyboardChecked(d.conn, xproto.Timestamp(t)).Check()
}

func (d *Display) ChangePointerGrabCursor(evMask uint32, cursor display.Cursor, t display.Timestamp) error {
	cookie := xproto.ChangeActivePointerGrabChecked(d.conn, xproto.Cursor(cursor), xproto.Timestamp(t), uint16(evMask))
	return cookie.Check()
}

//----------

func (d *Display) WithExclusiveSection(fn func() error) error {
	d.sectionMu.Lock()
	defer d.sectionMu.Unlock()
	if err := xproto.GrabServerChecked(d.conn).Check(); err != nil {
		return errors.Wrap(err, "grab server")
	}
	defer func() {
		if err := xproto.UngrabServerChecked(d.conn).Check(); err != nil {
			log.Printf("xdriver: ungrab server: %v", err)
		}
	}()
	return fn()
}

//----------

func (d *Display) EventMask(win display.Window) (uint32, error) {
	reply, err := xproto.GetWindowAttributes(d.conn, xproto.Window(win)).Reply()
	if err != nil {
		return 0, windowErr(err)
	}
	return reply.YourEventMask, nil
}

func (d *Display) SetEventMask(win display.Window, mask uint32) error {
	cookie := xproto.ChangeWindowAttributesChecked(
		d.conn,
		xproto.Window(win),
		xproto.CwEventMask,
		[]uint32{mask})
	return windowErr(cookie.Check())
}

//----------

func (d *Display) ChildAt(win display.Window, x, y int) (display.Window, error) {
	cookie := xproto.TranslateCoordinates(d.conn, d.root, xproto.Window(win), int16(x), int16(y))
	reply, err := cookie.Reply()
	if err != nil {
		return display.None, windowErr(err)
	}
	return display.Window(reply.Child), nil
}

func (d *Display) QueryTree(win display.Window) (display.Window, []display.Window, error) {
	reply, err := xproto.QueryTree(d.conn, xproto.Window(win)).Reply()
	if err != nil {
		return display.None, nil, windowErr(err)
	}
	u := make([]display.Window, len(reply.Children))
	for i, c := range reply.Children {
		u[i] = display.Window(c)
	}
	return display.Window(reply.Parent), u, nil
}

func (d *Display) WindowExists(win display.Window) bool {
	_, err := xproto.GetWindowAttributes(d.conn, xproto.Window(win)).Reply()
	return err == nil
}

func (d *Display) Geometry(win display.Window) (display.Geometry, error) {
	w := xproto.Window(win)
	attrs, err := xproto.GetWindowAttributes(d.conn, w).Reply()
	if err != nil {
		return display.Geometry{}, windowErr(err)
	}
	geom, err := xproto.GetGeometry(d.conn, xproto.Drawable(w)).Reply()
	if err != nil {
		return display.Geometry{}, windowErr(err)
	}
	tr, err := xproto.TranslateCoordinates(d.conn, w, d.root, 0, 0).Reply()
	if err != nil {
		return display.Geometry{}, windowErr(err)
	}
	min := image.Point{int(tr.DstX), int(tr.DstY)}
	r := image.Rectangle{min, min.Add(image.Point{int(geom.Width), int(geom.Height)})}
	return display.Geometry{Rect: r, Mapped: attrs.MapState == xproto.MapStateViewable}, nil
}

// Managed windows carry WM_STATE.
func (d *Display) IsManaged(win display.Window) (bool, error) {
	if !d.WindowExists(win) {
		return false, display.ErrBadWindow
	}
	st, err := icccm.WmStateGet(d.XU, xproto.Window(win))
	if err != nil || st == nil {
		return false, nil
	}
	return true, nil
}

func (d *Display) CreateHiddenWindow() (display.Window, error) {
	win, err := xproto.NewWindowId(d.conn)
	if err != nil {
		return display.None, err
	}
	// override redirect: never managed, never shown
	mask := uint32(xproto.CwOverrideRedirect | xproto.CwEventMask)
	values := []uint32{1, xproto.EventMaskPropertyChange}
	cookie := xproto.CreateWindowChecked(
		d.conn,
		0, // depth: copy from parent
		win,
		d.root,
		-100, -100, 1, 1,
		0, // border width
		xproto.WindowClassInputOnly,
		0, // visual: copy from parent
		mask, values)
	if err := cookie.Check(); err != nil {
		return display.None, err
	}
	return display.Window(win), nil
}

func (d *Display) DestroyWindow(win display.Window) error {
	return windowErr(xproto.DestroyWindowChecked(d.conn, xproto.Window(win)).Check())
}

//----------

// windowErr maps BadWindow errors to display.ErrBadWindow.
func windowErr(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(xproto.WindowError); ok {
		return errors.Wrap(display.ErrBadWindow, err.Error())
	}
	return err
}
