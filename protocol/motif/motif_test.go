package motif

import (
	"image"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/jmigpin/dnd/display"
	"github.com/jmigpin/dnd/display/memdisplay"
	"github.com/jmigpin/dnd/formats"
	"github.com/jmigpin/dnd/protocol"
	"github.com/jmigpin/dnd/wire"
)

type env struct {
	d      *memdisplay.Display
	m      *Motif
	broker *formats.Broker
	src    display.Window
	dst    display.Window
}

func newEnv(t *testing.T) *env {
	t.Helper()
	d := memdisplay.New()
	b, err := formats.NewBroker(d)
	if err != nil {
		t.Fatal(err)
	}
	m, err := New(d, b)
	if err != nil {
		t.Fatal(err)
	}
	e := &env{d: d, m: m, broker: b}
	e.src = d.CreateWindow(d.Root(), image.Rect(0, 0, 10, 10))
	e.dst = d.CreateWindow(d.Root(), image.Rect(100, 100, 300, 300))
	return e
}

func (e *env) session(formats ...uint32) *protocol.Session {
	return &protocol.Session{
		Source:      e.src,
		Formats:     formats,
		FormatIndex: -1,
		Actions:     protocol.ActionCopy | protocol.ActionMove,
		Action:      protocol.ActionCopy,
	}
}

//----------

func TestPrepareWritesInitiatorRecord(t *testing.T) {
	e := newEnv(t)
	s := e.session(31, 30)
	if err := e.m.Prepare(s); err != nil {
		t.Fatal(err)
	}
	if s.FormatIndex != 0 {
		t.Fatal(s.FormatIndex)
	}
	p, err := e.d.GetProperty(e.src, e.m.atoms.InitiatorInfo)
	if err != nil {
		t.Fatal(err)
	}
	r, err := wire.DecodeInitiatorRecord(p.Value)
	if err != nil {
		t.Fatal(err)
	}
	if r.FormatIndex != 0 || r.SelectionAtom != uint32(e.m.atoms.Selection) {
		t.Fatal(spew.Sdump(r))
	}

	e.m.Cleanup(s)
	if _, err := e.d.GetProperty(e.src, e.m.atoms.InitiatorInfo); err != display.ErrNoProperty {
		t.Fatal(err)
	}
}

func TestRecognize(t *testing.T) {
	e := newEnv(t)
	if _, ok := e.m.Recognize(e.dst); ok {
		t.Fatal("not registered")
	}
	if err := e.m.RegisterDropSite(e.dst); err != nil {
		t.Fatal(err)
	}
	tg, ok := e.m.Recognize(e.dst)
	if !ok {
		t.Fatal("expecting target")
	}
	if tg.Proxy != e.dst || tg.Capability.Version != wire.ProtocolVersion {
		t.Fatal(spew.Sdump(tg))
	}

	// style none is not a drop target
	r := &wire.CapabilityRecord{Version: 2, Style: wire.StyleNone}
	p := &display.Property{Type: e.m.atoms.ReceiverInfo, Format: 8, Value: r.Encode()}
	_ = e.d.SetProperty(e.dst, e.m.atoms.ReceiverInfo, p)
	if _, ok := e.m.Recognize(e.dst); ok {
		t.Fatal("style none recognized")
	}

	// future version is not this dialect
	r = &wire.CapabilityRecord{Version: wire.ProtocolVersion + 1, Style: wire.StyleDynamic}
	p.Value = r.Encode()
	_ = e.d.SetProperty(e.dst, e.m.atoms.ReceiverInfo, p)
	if _, ok := e.m.Recognize(e.dst); ok {
		t.Fatal("future version recognized")
	}
}

func TestRecognizeProxy(t *testing.T) {
	e := newEnv(t)
	proxy := e.d.CreateWindow(e.d.Root(), image.Rect(0, 0, 1, 1))
	if err := e.m.RegisterEmbedderDropSite(e.dst, proxy); err != nil {
		t.Fatal(err)
	}
	tg, ok := e.m.Recognize(e.dst)
	if !ok || tg.Proxy != proxy || tg.Window != e.dst {
		t.Fatal(spew.Sdump(tg))
	}

	// vanished proxy: deliver to the window itself
	e.d.Destroy(proxy)
	tg, ok = e.m.Recognize(e.dst)
	if !ok || tg.Proxy != e.dst {
		t.Fatal(spew.Sdump(tg))
	}
}

func TestSendEnterMotion(t *testing.T) {
	e := newEnv(t)
	_ = e.m.RegisterDropSite(e.dst)
	s := e.session(5)
	if err := e.m.SendEnter(s, &protocol.Target{Window: e.dst, Proxy: e.dst}, 1); err == nil {
		t.Fatal("expecting error without prepare")
	}
	if err := e.m.Prepare(s); err != nil {
		t.Fatal(err)
	}
	tg, _ := e.m.Recognize(e.dst)
	if err := e.m.SendEnter(s, tg, 7); err != nil {
		t.Fatal(err)
	}
	if err := e.m.SendMotion(s, tg, image.Point{150, 160}, 8); err != nil {
		t.Fatal(err)
	}
	u := e.d.SentTo(e.dst)
	if len(u) != 2 {
		t.Fatal(len(u))
	}

	in, ok := e.m.DecodeIncoming(&u[0])
	if !ok || in.Kind != protocol.IncomingEnter || in.Source != e.src || in.Time != 7 {
		t.Fatal(spew.Sdump(in))
	}
	in, ok = e.m.DecodeIncoming(&u[1])
	if !ok || in.Kind != protocol.IncomingMotion || !in.HasPoint || in.Point != (image.Point{150, 160}) {
		t.Fatal(spew.Sdump(in))
	}
	if in.Action != protocol.ActionCopy || in.Actions != s.Actions {
		t.Fatal(spew.Sdump(in))
	}

	// initiator messages are not replies
	if _, ok := e.m.DecodeReply(s, tg, &u[1]); ok {
		t.Fatal("initiator message decoded as reply")
	}
}

func TestDecodeReply(t *testing.T) {
	e := newEnv(t)
	s := e.session(5)
	tg := &protocol.Target{Window: e.dst, Proxy: e.dst}

	reply := func(reason wire.Reason, op byte, st wire.Status, tm uint32) *display.ClientMessage {
		dm := &wire.DragMessage{
			Reason: reason,
			Sender: wire.SenderReceiver,
			Flags:  wire.MakeFlags(op, st, op),
			Time:   tm,
			X:      10,
			Y:      11,
		}
		return e.m.envelope(e.src, e.dst, dm)
	}

	r, ok := e.m.DecodeReply(s, tg, reply(wire.ReasonDragMotion, wire.OpCopy, wire.StatusValidDropSite, 3))
	if !ok || r.Kind != protocol.ReplyStatus || !r.Accepted || r.Action != protocol.ActionCopy || r.Time != 3 || !r.Timed {
		t.Fatal(spew.Sdump(r))
	}
	r, ok = e.m.DecodeReply(s, tg, reply(wire.ReasonDragMotion, wire.OpCopy, wire.StatusInvalidDropSite, 4))
	if !ok || r.Accepted || r.Action != protocol.ActionNone {
		t.Fatal(spew.Sdump(r))
	}
	r, ok = e.m.DecodeReply(s, tg, reply(wire.ReasonDropSiteLeave, wire.OpCopy, wire.StatusValidDropSite, 5))
	if !ok || r.Accepted {
		t.Fatal(spew.Sdump(r))
	}
	r, ok = e.m.DecodeReply(s, tg, reply(wire.ReasonDropStart, wire.OpMove|wire.OpCopy, wire.StatusValidDropSite, 6))
	if !ok || r.Kind != protocol.ReplyDropAck || r.Action != protocol.ActionCopy {
		t.Fatal(spew.Sdump(r))
	}

	// not this dialect
	cm := &display.ClientMessage{Type: e.m.atoms.Message + 1000, Format: 8}
	if _, ok := e.m.DecodeReply(s, tg, cm); ok {
		t.Fatal("foreign message decoded")
	}
}

func TestEmbedderRestore(t *testing.T) {
	e := newEnv(t)
	proxy := e.d.CreateWindow(e.d.Root(), image.Rect(0, 0, 1, 1))

	// foreign record already present
	orig := &wire.CapabilityRecord{Version: 1, Style: wire.StylePreregister}
	p := &display.Property{Type: e.m.atoms.ReceiverInfo, Format: 8, Value: orig.Encode()}
	_ = e.d.SetProperty(e.dst, e.m.atoms.ReceiverInfo, p)

	if err := e.m.RegisterEmbedderDropSite(e.dst, proxy); err != nil {
		t.Fatal(err)
	}
	if err := e.m.UnregisterEmbedderDropSite(e.dst); err != nil {
		t.Fatal(err)
	}
	p2, err := e.d.GetProperty(e.dst, e.m.atoms.ReceiverInfo)
	if err != nil {
		t.Fatal(err)
	}
	r, err := wire.DecodeCapabilityRecord(p2.Value)
	if err != nil {
		t.Fatal(err)
	}
	if r.Style != wire.StylePreregister || r.Version != 1 {
		t.Fatal(spew.Sdump(r))
	}
}
