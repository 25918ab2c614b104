package xdriver

import (
	"log"

	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/xcursor"
	"github.com/jmigpin/dnd/display"
	"github.com/jmigpin/dnd/protocol"
)

// https://tronche.com/gui/x/xlib/appendix/b/

// Cursors creates the drag cursors from the cursor font on first use.
type Cursors struct {
	xu *xgbutil.XUtil
	m  map[uint16]display.Cursor
}

func NewCursors(xu *xgbutil.XUtil) *Cursors {
	return &Cursors{xu: xu, m: map[uint16]display.Cursor{}}
}

func (cs *Cursors) Cursor(action protocol.Action, accepted bool) display.Cursor {
	glyph := uint16(xcursor.Circle) // no drop
	if accepted {
		switch {
		case action.Has(protocol.ActionCopy):
			glyph = xcursor.Plus
		case action.Has(protocol.ActionMove):
			glyph = xcursor.Fleur
		case action.Has(protocol.ActionLink):
			glyph = xcursor.Exchange
		}
	}
	return cs.load(glyph)
}

func (cs *Cursors) load(glyph uint16) display.Cursor {
	if c, ok := cs.m[glyph]; ok {
		return c
	}
	c, err := xcursor.CreateCursor(cs.xu, glyph)
	if err != nil {
		log.Printf("xdriver: cursor %v: %v", glyph, err)
		return 0 // keep the current one
	}
	cs.m[glyph] = display.Cursor(c)
	return display.Cursor(c)
}
