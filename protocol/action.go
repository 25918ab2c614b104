package protocol

import "strings"

// Action is a drop effect. Values are bits so a set of actions is also an
// Action.
type Action uint8

const (
	ActionNone Action = 0
	ActionCopy Action = 1 << 0
	ActionMove Action = 1 << 1
	ActionLink Action = 1 << 2
)

func (a Action) Has(b Action) bool {
	return b != ActionNone && a&b == b
}

func (a Action) String() string {
	if a == ActionNone {
		return "none"
	}
	u := []string{}
	if a&ActionCopy != 0 {
		u = append(u, "copy")
	}
	if a&ActionMove != 0 {
		u = append(u, "move")
	}
	if a&ActionLink != 0 {
		u = append(u, "link")
	}
	return strings.Join(u, "|")
}

//----------

// Modifiers uses the core protocol key mask bits.
type Modifiers uint16

const (
	ModShift   Modifiers = 1 << 0
	ModLock    Modifiers = 1 << 1
	ModControl Modifiers = 1 << 2
)

// SelectAction picks the user requested action. Control+Shift forces
// link, Shift forces move and Control forces copy. Without modifiers copy
// is preferred, then move, then link. A forced action that is not in the
// candidates yields ActionNone.
func SelectAction(mods Modifiers, candidates Action) Action {
	var a Action
	switch mods & (ModShift | ModControl) {
	case ModShift | ModControl:
		a = ActionLink
	case ModShift:
		a = ActionMove
	case ModControl:
		a = ActionCopy
	default:
		for _, b := range []Action{ActionCopy, ActionMove, ActionLink} {
			if candidates.Has(b) {
				return b
			}
		}
		return ActionNone
	}
	if !candidates.Has(a) {
		return ActionNone
	}
	return a
}
