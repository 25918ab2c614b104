package protocol_test

import (
	"image"
	"testing"

	"github.com/jmigpin/dnd/display"
	"github.com/jmigpin/dnd/display/memdisplay"
	"github.com/jmigpin/dnd/formats"
	"github.com/jmigpin/dnd/protocol"
	"github.com/jmigpin/dnd/protocol/motif"
	"github.com/jmigpin/dnd/protocol/xdnd"
)

func newRegistry(t *testing.T, d *memdisplay.Display) (*protocol.Registry, *motif.Motif, *xdnd.Xdnd) {
	t.Helper()
	b, err := formats.NewBroker(d)
	if err != nil {
		t.Fatal(err)
	}
	m, err := motif.New(d, b)
	if err != nil {
		t.Fatal(err)
	}
	x, err := xdnd.New(d)
	if err != nil {
		t.Fatal(err)
	}
	return protocol.NewRegistry(m, x), m, x
}

func TestResolveOrder(t *testing.T) {
	d := memdisplay.New()
	reg, m, x := newRegistry(t, d)

	w := d.CreateWindow(d.Root(), image.Rect(0, 0, 100, 100))
	if b, _ := reg.Resolve(w); b != nil {
		t.Fatalf("unexpected binding %v", b.Name())
	}

	if err := x.RegisterDropSite(w); err != nil {
		t.Fatal(err)
	}
	b, tg := reg.Resolve(w)
	if b != protocol.Binding(x) {
		t.Fatal("expecting xdnd")
	}
	if tg.Window != w || tg.Proxy != w {
		t.Fatalf("%+v", tg)
	}

	// both: first in preference order wins
	if err := m.RegisterDropSite(w); err != nil {
		t.Fatal(err)
	}
	b, _ = reg.Resolve(w)
	if b != protocol.Binding(m) {
		t.Fatal("expecting motif")
	}
}

func TestResolveNotDialectFallsThrough(t *testing.T) {
	d := memdisplay.New()
	reg, _, x := newRegistry(t, d)

	w := d.CreateWindow(d.Root(), image.Rect(0, 0, 100, 100))
	recv, _ := d.InternAtom("_MOTIF_DRAG_RECEIVER_INFO")

	// garbage capability record: unknown order sentinel
	p := &display.Property{Type: recv, Format: 8, Value: []byte{'x', 2, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}}
	if err := d.SetProperty(w, recv, p); err != nil {
		t.Fatal(err)
	}
	if err := x.RegisterDropSite(w); err != nil {
		t.Fatal(err)
	}
	b, _ := reg.Resolve(w)
	if b != protocol.Binding(x) {
		t.Fatal("expecting fallthrough to xdnd")
	}

	// short record
	p.Value = []byte{'l', 2, 3}
	if err := d.SetProperty(w, recv, p); err != nil {
		t.Fatal(err)
	}
	b, _ = reg.Resolve(w)
	if b != protocol.Binding(x) {
		t.Fatal("expecting fallthrough to xdnd")
	}
}

func TestResolveNone(t *testing.T) {
	d := memdisplay.New()
	reg, _, _ := newRegistry(t, d)
	if b, tg := reg.Resolve(display.None); b != nil || tg != nil {
		t.Fatal("expecting nothing")
	}
}

func TestSelectAction(t *testing.T) {
	cm := protocol.ActionCopy | protocol.ActionMove
	type tcase struct {
		mods protocol.Modifiers
		cand protocol.Action
		res  protocol.Action
	}
	cases := []tcase{
		{0, cm, protocol.ActionCopy},
		{0, protocol.ActionMove | protocol.ActionLink, protocol.ActionMove},
		{0, protocol.ActionLink, protocol.ActionLink},
		{0, protocol.ActionNone, protocol.ActionNone},
		{protocol.ModShift, cm, protocol.ActionMove},
		{protocol.ModControl, cm, protocol.ActionCopy},
		{protocol.ModControl | protocol.ModShift, cm, protocol.ActionNone},
		{protocol.ModControl | protocol.ModShift, protocol.ActionLink, protocol.ActionLink},
		{protocol.ModLock, cm, protocol.ActionCopy},
	}
	for i, c := range cases {
		if a := protocol.SelectAction(c.mods, c.cand); a != c.res {
			t.Fatalf("case %v: %v != %v", i, a, c.res)
		}
	}
}
