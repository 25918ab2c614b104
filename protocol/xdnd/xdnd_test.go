package xdnd

import (
	"image"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/jmigpin/dnd/display"
	"github.com/jmigpin/dnd/display/memdisplay"
	"github.com/jmigpin/dnd/protocol"
)

func newXdnd(t *testing.T) (*memdisplay.Display, *Xdnd) {
	t.Helper()
	d := memdisplay.New()
	x, err := New(d)
	if err != nil {
		t.Fatal(err)
	}
	return d, x
}

func TestRecognizeVersion(t *testing.T) {
	d, x := newXdnd(t)
	w := d.CreateWindow(d.Root(), image.Rect(0, 0, 10, 10))

	setAware := func(v uint32) {
		p := &display.Property{Type: x.atoms.Atom, Format: 32, Value: display.Prop32(v)}
		_ = d.SetProperty(w, x.atoms.XdndAware, p)
	}

	setAware(2)
	if _, ok := x.Recognize(w); ok {
		t.Fatal("version 2 recognized")
	}
	setAware(4)
	tg, ok := x.Recognize(w)
	if !ok || tg.Capability.Version != 4 {
		t.Fatal(spew.Sdump(tg))
	}
	setAware(9)
	tg, ok = x.Recognize(w)
	if !ok || tg.Capability.Version != Version {
		t.Fatal(spew.Sdump(tg))
	}
}

func TestRecognizeProxy(t *testing.T) {
	d, x := newXdnd(t)
	top := d.CreateWindow(d.Root(), image.Rect(0, 0, 10, 10))
	proxy := d.CreateWindow(d.Root(), image.Rect(0, 0, 1, 1))

	if err := x.RegisterEmbedderDropSite(top, proxy); err != nil {
		t.Fatal(err)
	}
	tg, ok := x.Recognize(top)
	if !ok || tg.Proxy != proxy || tg.Window != top {
		t.Fatal(spew.Sdump(tg))
	}

	// proxy not pointing to itself is ignored
	pp := &display.Property{Type: x.atoms.Window, Format: 32, Value: display.Prop32(uint32(top))}
	_ = d.SetProperty(proxy, x.atoms.XdndProxy, pp)
	tg, ok = x.Recognize(top)
	if !ok || tg.Proxy != top {
		t.Fatal(spew.Sdump(tg))
	}

	if err := x.UnregisterEmbedderDropSite(top); err != nil {
		t.Fatal(err)
	}
	if _, ok := x.Recognize(top); ok {
		t.Fatal("still recognized after restore")
	}
}

func TestTypeList(t *testing.T) {
	d, x := newXdnd(t)
	src := d.CreateWindow(d.Root(), image.Rect(0, 0, 10, 10))
	dst := d.CreateWindow(d.Root(), image.Rect(20, 20, 40, 40))
	_ = x.RegisterDropSite(dst)
	tg, _ := x.Recognize(dst)

	s := &protocol.Session{Source: src, Formats: []uint32{1, 2, 3, 4}, FormatIndex: -1}
	if err := x.Prepare(s); err != nil {
		t.Fatal(err)
	}
	p, err := d.GetProperty(src, x.atoms.XdndTypeList)
	if err != nil {
		t.Fatal(err)
	}
	if u := p.Uint32s(); len(u) != 4 || u[3] != 4 {
		t.Fatal(u)
	}
	if err := x.SendEnter(s, tg, 1); err != nil {
		t.Fatal(err)
	}
	u := d.SentTo(dst)
	if len(u) != 1 {
		t.Fatal(len(u))
	}
	data := u[0].Data32
	if data[0] != uint32(src) || data[1] != Version<<24|1 || data[2] != 1 || data[4] != 3 {
		t.Fatal(spew.Sdump(data))
	}

	x.Cleanup(s)
	if _, err := d.GetProperty(src, x.atoms.XdndTypeList); err != display.ErrNoProperty {
		t.Fatal(err)
	}
}

func TestPositionIncoming(t *testing.T) {
	d, x := newXdnd(t)
	src := d.CreateWindow(d.Root(), image.Rect(0, 0, 10, 10))
	dst := d.CreateWindow(d.Root(), image.Rect(20, 20, 40, 40))
	_ = x.RegisterDropSite(dst)
	tg, _ := x.Recognize(dst)

	s := &protocol.Session{Source: src, Formats: []uint32{1}, Action: protocol.ActionMove}
	if err := x.SendMotion(s, tg, image.Point{25, 30}, 44); err != nil {
		t.Fatal(err)
	}
	if err := x.SendDropStart(s, tg, image.Point{25, 30}, 45); err != nil {
		t.Fatal(err)
	}
	u := d.SentTo(dst)
	in, ok := x.DecodeIncoming(&u[0])
	if !ok || in.Kind != protocol.IncomingMotion || in.Point != (image.Point{25, 30}) || in.Time != 44 || in.Action != protocol.ActionMove {
		t.Fatal(spew.Sdump(in))
	}
	in, ok = x.DecodeIncoming(&u[1])
	if !ok || in.Kind != protocol.IncomingDrop || in.Time != 45 || in.Source != src {
		t.Fatal(spew.Sdump(in))
	}
}

func TestDecodeReply(t *testing.T) {
	d, x := newXdnd(t)
	dst := d.CreateWindow(d.Root(), image.Rect(20, 20, 40, 40))
	tg := &protocol.Target{Window: dst, Proxy: dst}
	tg.Capability.Version = Version
	s := &protocol.Session{Action: protocol.ActionCopy}

	status := &display.ClientMessage{Type: x.atoms.XdndStatus, Format: 32}
	status.Data32 = [5]uint32{uint32(dst), 1, 0, 0, uint32(x.atoms.XdndActionLink)}
	r, ok := x.DecodeReply(s, tg, status)
	if !ok || r.Kind != protocol.ReplyStatus || !r.Accepted || r.Action != protocol.ActionLink || r.Timed {
		t.Fatal(spew.Sdump(r))
	}

	status.Data32[1] = 0
	r, ok = x.DecodeReply(s, tg, status)
	if !ok || r.Accepted {
		t.Fatal(spew.Sdump(r))
	}

	// from another window
	status.Data32[0] = uint32(dst) + 1
	if _, ok := x.DecodeReply(s, tg, status); ok {
		t.Fatal("reply from other window accepted")
	}

	fin := &display.ClientMessage{Type: x.atoms.XdndFinished, Format: 32}
	fin.Data32 = [5]uint32{uint32(dst), 1, uint32(x.atoms.XdndActionCopy)}
	r, ok = x.DecodeReply(s, tg, fin)
	if !ok || r.Kind != protocol.ReplyFinished || !r.Accepted || r.Action != protocol.ActionCopy {
		t.Fatal(spew.Sdump(r))
	}

	// older versions carry no result
	tg.Capability.Version = 4
	fin.Data32[1] = 0
	r, ok = x.DecodeReply(s, tg, fin)
	if !ok || !r.Accepted {
		t.Fatal(spew.Sdump(r))
	}
}
