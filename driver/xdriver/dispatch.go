package xdriver

import (
	"image"
	"log"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/keybind"
	"github.com/BurntSushi/xgbutil/xevent"
	"github.com/jmigpin/dnd/display"
	"github.com/jmigpin/dnd/dragsource"
	"github.com/jmigpin/dnd/dropsite"
	"github.com/jmigpin/dnd/protocol"
)

// Dispatcher feeds X events to the drag source and the drop sites. Both
// are optional.
type Dispatcher struct {
	d      *Display
	Source *dragsource.StateMachine
	Sites  *dropsite.Registry

	// Called with drag messages received by registered drop sites.
	OnDelivery func(*dropsite.Delivery)
	Debug      bool

	escape  []xproto.Keycode
	modKeys map[xproto.Keycode]protocol.Modifiers
}

func NewDispatcher(d *Display, src *dragsource.StateMachine, sites *dropsite.Registry) *Dispatcher {
	keybind.Initialize(d.XU)
	dp := &Dispatcher{
		d:       d,
		Source:  src,
		Sites:   sites,
		escape:  keybind.StrToKeycodes(d.XU, "Escape"),
		modKeys: map[xproto.Keycode]protocol.Modifiers{},
	}
	keys := map[string]protocol.Modifiers{
		"Shift_L":   protocol.ModShift,
		"Shift_R":   protocol.ModShift,
		"Control_L": protocol.ModControl,
		"Control_R": protocol.ModControl,
	}
	for name, m := range keys {
		for _, kc := range keybind.StrToKeycodes(d.XU, name) {
			dp.modKeys[kc] = m
		}
	}
	return dp
}

// Attach hooks the dispatcher into the xevent main loop. Consumed events
// are not passed on to other xevent callbacks.
func (dp *Dispatcher) Attach() {
	xevent.HookFun(func(xu *xgbutil.XUtil, ev interface{}) bool {
		return !dp.HandleEvent(ev)
	}).Connect(dp.d.XU)
}

// HandleEvent returns true if the event was consumed.
func (dp *Dispatcher) HandleEvent(ev interface{}) bool {
	switch t := ev.(type) {
	case xproto.MotionNotifyEvent:
		if !dp.dragging() {
			return false
		}
		p := image.Point{int(t.RootX), int(t.RootY)}
		dp.Source.OnPointerMove(display.Window(t.Child), p, display.Timestamp(t.Time), modifiers(t.State))
		return true
	case xproto.ButtonReleaseEvent:
		if !dp.dragging() {
			return false
		}
		dp.Source.OnButtonRelease(display.Timestamp(t.Time))
		return true
	case xproto.KeyPressEvent:
		if !dp.dragging() {
			return false
		}
		for _, kc := range dp.escape {
			if t.Detail == kc {
				dp.Source.OnEscapeKey()
				return true
			}
		}
		// state has the modifiers before this key
		if m, ok := dp.modKeys[t.Detail]; ok {
			dp.Source.OnModifiersChanged(modifiers(t.State)|m, display.Timestamp(t.Time))
		}
		return true // keyboard is grabbed
	case xproto.KeyReleaseEvent:
		if !dp.dragging() {
			return false
		}
		if m, ok := dp.modKeys[t.Detail]; ok {
			dp.Source.OnModifiersChanged(modifiers(t.State)&^m, display.Timestamp(t.Time))
		}
		return true
	case xproto.ClientMessageEvent:
		cm := ClientMessage(&t)
		if dp.Source != nil && dp.Source.OnReply(cm) {
			return true
		}
		if dp.Sites != nil {
			if dv, ok := dp.Sites.Dispatch(cm); ok {
				if dp.OnDelivery != nil {
					dp.OnDelivery(dv)
				}
				return true
			}
		}
	case xproto.DestroyNotifyEvent:
		w := display.Window(t.Window)
		if dp.Source != nil {
			dp.Source.OnTargetWindowDestroyed(w)
		}
		if dp.Sites != nil && dp.Sites.IsRegistered(w) {
			if err := dp.Sites.UnregisterDropSite(w); err != nil && dp.Debug {
				log.Printf("xdriver: %v", err)
			}
		}
	case xgb.Error:
		if dp.Debug {
			log.Printf("xdriver: %v", t)
		}
	}
	return false
}

func (dp *Dispatcher) dragging() bool {
	return dp.Source != nil && dp.Source.State() != dragsource.StateIdle
}

func modifiers(state uint16) protocol.Modifiers {
	m := protocol.Modifiers(0)
	if state&xproto.ModMaskShift != 0 {
		m |= protocol.ModShift
	}
	if state&xproto.ModMaskLock != 0 {
		m |= protocol.ModLock
	}
	if state&xproto.ModMaskControl != 0 {
		m |= protocol.ModControl
	}
	return m
}
