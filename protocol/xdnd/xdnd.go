// Package xdnd is the self-describing dialect: targets advertise a version
// in XdndAware and every message is a 32 bit client message naming its
// own source window.
package xdnd

// protocol: https://www.freedesktop.org/wiki/Specifications/XDND/

import (
	"image"
	"sync"

	"github.com/jmigpin/dnd/display"
	"github.com/jmigpin/dnd/protocol"
	"github.com/jmigpin/dnd/wire"
	"github.com/pkg/errors"
)

const (
	Version    = 5
	MinVersion = 3
)

type Xdnd struct {
	d     display.Display
	atoms struct {
		XdndAware    display.Atom
		XdndProxy    display.Atom
		XdndEnter    display.Atom
		XdndPosition display.Atom
		XdndStatus   display.Atom
		XdndLeave    display.Atom
		XdndDrop     display.Atom
		XdndFinished display.Atom
		XdndTypeList display.Atom

		XdndActionCopy display.Atom
		XdndActionMove display.Atom
		XdndActionLink display.Atom

		Atom   display.Atom `loadAtoms:"ATOM"`
		Window display.Atom `loadAtoms:"WINDOW"`
	}

	mu    sync.Mutex
	saved map[display.Window]savedProps
}

type savedProps struct {
	aware, proxy *display.Property
}

func New(d display.Display) (*Xdnd, error) {
	x := &Xdnd{d: d, saved: map[display.Window]savedProps{}}
	if err := display.LoadAtoms(d, &x.atoms); err != nil {
		return nil, err
	}
	return x, nil
}

func (x *Xdnd) Name() string { return "xdnd" }

func (x *Xdnd) LeaveBeforeDrop() bool { return false }

//----------

// More than three formats don't fit the enter message and are published
// on the source window.
func (x *Xdnd) Prepare(s *protocol.Session) error {
	if len(s.Formats) <= 3 {
		return nil
	}
	p := &display.Property{Type: x.atoms.Atom, Format: 32, Value: display.Prop32(s.Formats...)}
	if err := x.d.SetProperty(s.Source, x.atoms.XdndTypeList, p); err != nil {
		return errors.Wrap(err, "xdnd: type list")
	}
	return nil
}

func (x *Xdnd) Cleanup(s *protocol.Session) {
	if len(s.Formats) > 3 {
		_ = x.d.DeleteProperty(s.Source, x.atoms.XdndTypeList)
	}
}

//----------

func (x *Xdnd) Recognize(win display.Window) (*protocol.Target, bool) {
	proxy := x.proxyOf(win)
	aware := win
	if proxy != display.None {
		aware = proxy
	}
	v, ok := x.awareVersion(aware)
	if !ok {
		return nil, false
	}
	t := &protocol.Target{
		Window: win,
		Proxy:  win,
		Capability: wire.CapabilityRecord{
			Order:   wire.NativeOrder(),
			Version: v,
			Style:   wire.StyleDynamic,
		},
	}
	if proxy != display.None {
		t.Proxy = proxy
		t.Capability.ProxyWindow = uint32(proxy)
	}
	return t, true
}

func (x *Xdnd) awareVersion(win display.Window) (byte, bool) {
	p, err := x.d.GetProperty(win, x.atoms.XdndAware)
	if err != nil {
		return 0, false
	}
	u := p.Uint32s()
	if len(u) == 0 || u[0] < MinVersion {
		return 0, false
	}
	v := u[0]
	if v > Version {
		v = Version
	}
	return byte(v), true
}

// A proxy is only valid if it exists and points to itself.
func (x *Xdnd) proxyOf(win display.Window) display.Window {
	p, err := x.d.GetProperty(win, x.atoms.XdndProxy)
	if err != nil {
		return display.None
	}
	u := p.Uint32s()
	if len(u) == 0 {
		return display.None
	}
	proxy := display.Window(u[0])
	if proxy == display.None || !x.d.WindowExists(proxy) {
		return display.None
	}
	p2, err := x.d.GetProperty(proxy, x.atoms.XdndProxy)
	if err != nil {
		return display.None
	}
	if u2 := p2.Uint32s(); len(u2) == 0 || display.Window(u2[0]) != proxy {
		return display.None
	}
	return proxy
}

//----------

func (x *Xdnd) SendEnter(s *protocol.Session, t *protocol.Target, time display.Timestamp) error {
	var data [5]uint32
	data[0] = uint32(s.Source)
	data[1] = uint32(t.Capability.Version) << 24
	if len(s.Formats) > 3 {
		data[1] |= 1
	}
	for i := 0; i < 3 && i < len(s.Formats); i++ {
		data[2+i] = s.Formats[i]
	}
	return x.send(t, x.atoms.XdndEnter, data)
}

func (x *Xdnd) SendMotion(s *protocol.Session, t *protocol.Target, p image.Point, time display.Timestamp) error {
	data := [5]uint32{
		uint32(s.Source),
		0,
		uint32(uint16(p.X))<<16 | uint32(uint16(p.Y)),
		uint32(time),
		uint32(x.actionAtom(s.Action)),
	}
	return x.send(t, x.atoms.XdndPosition, data)
}

func (x *Xdnd) SendLeave(s *protocol.Session, t *protocol.Target, time display.Timestamp) error {
	data := [5]uint32{uint32(s.Source)}
	return x.send(t, x.atoms.XdndLeave, data)
}

func (x *Xdnd) SendDropStart(s *protocol.Session, t *protocol.Target, p image.Point, time display.Timestamp) error {
	data := [5]uint32{uint32(s.Source), 0, uint32(time)}
	return x.send(t, x.atoms.XdndDrop, data)
}

func (x *Xdnd) send(t *protocol.Target, typ display.Atom, data [5]uint32) error {
	cm := &display.ClientMessage{Window: t.Window, Type: typ, Format: 32, Data32: data}
	return x.d.SendMessage(t.Proxy, cm)
}

//----------

func (x *Xdnd) DecodeReply(s *protocol.Session, t *protocol.Target, cm *display.ClientMessage) (*protocol.Reply, bool) {
	if cm.Format != 32 {
		return nil, false
	}
	data := cm.Data32
	if t != nil && display.Window(data[0]) != t.Window {
		return nil, false
	}
	switch cm.Type {
	case x.atoms.XdndStatus:
		r := &protocol.Reply{Kind: protocol.ReplyStatus}
		r.Accepted = data[1]&1 != 0
		if r.Accepted {
			r.Action = x.atomAction(display.Atom(data[4]))
			if r.Action == protocol.ActionNone {
				// accepted with an unknown action: keep the requested one
				r.Action = s.Action
			}
		}
		r.Accepted = r.Accepted && r.Action != protocol.ActionNone
		return r, true
	case x.atoms.XdndFinished:
		r := &protocol.Reply{Kind: protocol.ReplyFinished, Accepted: true}
		if t == nil || t.Capability.Version >= 5 {
			r.Accepted = data[1]&1 != 0
		}
		if r.Accepted {
			r.Action = x.atomAction(display.Atom(data[2]))
		}
		return r, true
	}
	return nil, false
}

func (x *Xdnd) DecodeIncoming(cm *display.ClientMessage) (*protocol.Incoming, bool) {
	if cm.Format != 32 {
		return nil, false
	}
	data := cm.Data32
	in := &protocol.Incoming{Source: display.Window(data[0])}
	switch cm.Type {
	case x.atoms.XdndEnter:
		in.Kind = protocol.IncomingEnter
	case x.atoms.XdndPosition:
		in.Kind = protocol.IncomingMotion
		in.Point = image.Point{int(int16(data[2] >> 16)), int(int16(data[2] & 0xffff))}
		in.HasPoint = true
		in.Time = display.Timestamp(data[3])
		in.Action = x.atomAction(display.Atom(data[4]))
		in.Actions = in.Action
	case x.atoms.XdndLeave:
		in.Kind = protocol.IncomingLeave
	case x.atoms.XdndDrop:
		in.Kind = protocol.IncomingDrop
		in.Time = display.Timestamp(data[2])
	default:
		return nil, false
	}
	return in, true
}

//----------

func (x *Xdnd) RegisterDropSite(win display.Window) error {
	p := &display.Property{Type: x.atoms.Atom, Format: 32, Value: display.Prop32(Version)}
	return x.d.SetProperty(win, x.atoms.XdndAware, p)
}

func (x *Xdnd) UnregisterDropSite(win display.Window) error {
	return x.d.DeleteProperty(win, x.atoms.XdndAware)
}

func (x *Xdnd) RegisterEmbedderDropSite(toplevel, proxy display.Window) error {
	x.mu.Lock()
	if _, ok := x.saved[toplevel]; !ok {
		var sp savedProps
		if p, err := x.d.GetProperty(toplevel, x.atoms.XdndAware); err == nil {
			sp.aware = p
		}
		if p, err := x.d.GetProperty(toplevel, x.atoms.XdndProxy); err == nil {
			sp.proxy = p
		}
		x.saved[toplevel] = sp
	}
	x.mu.Unlock()

	if err := x.RegisterDropSite(toplevel); err != nil {
		return err
	}
	if proxy == toplevel {
		return nil
	}
	// the proxy must point to itself to be honored by sources
	pp := &display.Property{Type: x.atoms.Window, Format: 32, Value: display.Prop32(uint32(proxy))}
	if err := x.d.SetProperty(proxy, x.atoms.XdndProxy, pp); err != nil {
		return err
	}
	if err := x.RegisterDropSite(proxy); err != nil {
		return err
	}
	return x.d.SetProperty(toplevel, x.atoms.XdndProxy, pp)
}

func (x *Xdnd) UnregisterEmbedderDropSite(toplevel display.Window) error {
	x.mu.Lock()
	sp, ok := x.saved[toplevel]
	delete(x.saved, toplevel)
	x.mu.Unlock()
	if !ok {
		return nil
	}
	restore := func(prop display.Atom, p *display.Property) error {
		if p == nil {
			return x.d.DeleteProperty(toplevel, prop)
		}
		return x.d.SetProperty(toplevel, prop, p)
	}
	err1 := restore(x.atoms.XdndAware, sp.aware)
	err2 := restore(x.atoms.XdndProxy, sp.proxy)
	if err1 != nil {
		return err1
	}
	return err2
}

//----------

func (x *Xdnd) actionAtom(a protocol.Action) display.Atom {
	switch {
	case a.Has(protocol.ActionCopy):
		return x.atoms.XdndActionCopy
	case a.Has(protocol.ActionMove):
		return x.atoms.XdndActionMove
	case a.Has(protocol.ActionLink):
		return x.atoms.XdndActionLink
	}
	return display.AtomNone
}

func (x *Xdnd) atomAction(a display.Atom) protocol.Action {
	switch a {
	case x.atoms.XdndActionCopy:
		return protocol.ActionCopy
	case x.atoms.XdndActionMove:
		return protocol.ActionMove
	case x.atoms.XdndActionLink:
		return protocol.ActionLink
	}
	return protocol.ActionNone
}
