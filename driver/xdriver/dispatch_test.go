package xdriver

import (
	"testing"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/jmigpin/dnd/display/memdisplay"
	"github.com/jmigpin/dnd/dragsource"
	"github.com/jmigpin/dnd/protocol"
)

func TestModifiers(t *testing.T) {
	st := uint16(xproto.ModMaskShift | xproto.ModMaskControl | xproto.ModMask1)
	if m := modifiers(st); m != protocol.ModShift|protocol.ModControl {
		t.Fatal(m)
	}
	if m := modifiers(0); m != 0 {
		t.Fatal(m)
	}
}

func TestClientMessage(t *testing.T) {
	ev := &xproto.ClientMessageEvent{
		Format: 32,
		Window: 7,
		Type:   99,
		Data:   xproto.ClientMessageDataUnionData32New([]uint32{1, 2, 3, 4, 5}),
	}
	cm := ClientMessage(ev)
	if cm.Window != 7 || cm.Type != 99 || cm.Data32 != [5]uint32{1, 2, 3, 4, 5} {
		t.Fatal(cm)
	}

	b := make([]byte, 20)
	b[0], b[19] = 0x81, 0xff
	ev = &xproto.ClientMessageEvent{
		Format: 8,
		Data:   xproto.ClientMessageDataUnionData8New(b),
	}
	cm = ClientMessage(ev)
	if cm.Data8[0] != 0x81 || cm.Data8[19] != 0xff {
		t.Fatal(cm.Data8)
	}
}

func TestHandleEventIdle(t *testing.T) {
	dp := &Dispatcher{}
	evs := []interface{}{
		xproto.MotionNotifyEvent{},
		xproto.ButtonReleaseEvent{},
		xproto.KeyPressEvent{},
		xproto.KeyReleaseEvent{},
		xproto.ClientMessageEvent{Format: 32, Data: xproto.ClientMessageDataUnionData32New(make([]uint32, 5))},
		xproto.DestroyNotifyEvent{},
	}
	for _, ev := range evs {
		if dp.HandleEvent(ev) {
			t.Fatalf("consumed %T", ev)
		}
	}
}

func TestHandleEventKeys(t *testing.T) {
	md := memdisplay.New()
	sm := dragsource.New(dragsource.Options{Display: md, Registry: protocol.NewRegistry()})
	dp := &Dispatcher{
		Source:  sm,
		escape:  []xproto.Keycode{9},
		modKeys: map[xproto.Keycode]protocol.Modifiers{50: protocol.ModShift},
	}
	if err := sm.Start(md.Root(), protocol.ActionCopy|protocol.ActionMove, []uint32{1}, 1); err != nil {
		t.Fatal(err)
	}

	if !dp.HandleEvent(xproto.KeyPressEvent{Detail: 50, Time: 2}) {
		t.Fatal("not consumed")
	}
	if a := sm.Status().Action; a != protocol.ActionMove {
		t.Fatal(a)
	}
	// other keys keep the action
	dp.HandleEvent(xproto.KeyPressEvent{Detail: 38, State: xproto.ModMaskShift, Time: 3})
	if a := sm.Status().Action; a != protocol.ActionMove {
		t.Fatal(a)
	}
	dp.HandleEvent(xproto.KeyReleaseEvent{Detail: 50, State: xproto.ModMaskShift, Time: 4})
	if a := sm.Status().Action; a != protocol.ActionCopy {
		t.Fatal(a)
	}

	dp.HandleEvent(xproto.KeyPressEvent{Detail: 9, Time: 5})
	if sm.State() != dragsource.StateIdle {
		t.Fatal(sm.State())
	}
	if md.Grabs.Pointer || md.Grabs.Keyboard {
		t.Fatal("grab still held")
	}
}
