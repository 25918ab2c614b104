package dragsource

import (
	"image"

	"github.com/jmigpin/dnd/display"
)

// findClientWindow returns the window manager managed window for the
// window under the pointer. The server usually reports a frame window, so
// after looking upward the walk descends along the pointer position. The
// tree belongs to other clients and may change during the walk: every step
// is bounded and tolerates vanished windows.
func findClientWindow(d display.Display, win display.Window, p image.Point, maxDepth int) display.Window {
	root := d.Root()
	if win == display.None || win == root {
		return display.None
	}

	for _, w := range display.Ancestors(d, win, maxDepth) {
		if managed(d, w) {
			return w
		}
	}

	// descend; worklist holds at most one window per level
	work := []display.Window{win}
	for depth := 0; len(work) > 0 && depth < maxDepth; depth++ {
		w := work[0]
		work = work[1:]
		if !d.WindowExists(w) {
			return display.None
		}
		if managed(d, w) {
			return w
		}
		c, err := d.ChildAt(w, p.X, p.Y)
		if err != nil || c == display.None {
			return display.None
		}
		work = append(work, c)
	}
	return display.None
}

func managed(d display.Display, w display.Window) bool {
	ok, err := d.IsManaged(w)
	return err == nil && ok
}
