// Package dragsource runs the source side of a drag: it owns the input
// grabs, tracks the target under the pointer and speaks whichever dialect
// the target understands.
//
// A StateMachine is not safe for concurrent use. All calls are expected
// from the goroutine dispatching display events.
package dragsource

import (
	"fmt"
	"image"
	"log"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/jmigpin/dnd/display"
	"github.com/jmigpin/dnd/metrics"
	"github.com/jmigpin/dnd/protocol"
	"github.com/jmigpin/dnd/util/evreg"
	"github.com/pkg/errors"
)

var (
	ErrActive    = errors.New("dragsource: drag already active")
	ErrGrab      = errors.New("dragsource: grab failed")
	ErrNoFormats = errors.New("dragsource: no formats")
	ErrNoActions = errors.New("dragsource: no actions")
)

// GrabError reports which grab was refused. Its cause is ErrGrab.
type GrabError struct {
	Device string
	Status display.GrabStatus
}

func (e *GrabError) Error() string {
	return fmt.Sprintf("%v: %v: %v", ErrGrab, e.Device, e.Status)
}
func (e *GrabError) Cause() error  { return ErrGrab }
func (e *GrabError) Unwrap() error { return ErrGrab }

//----------

type State int

const (
	StateIdle State = iota
	StateActive
	StateDropping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateDropping:
		return "dropping"
	}
	return "?"
}

//----------

// Event ids for StateMachine.Events.
const (
	EvAccepted = iota // *AcceptedEvent
	EvRejected        // *RejectedEvent
	EvFinished        // *FinishedEvent
	EvDropAcked       // *DropAckedEvent, the receiver will fetch the data
)

type AcceptedEvent struct {
	Action protocol.Action
	Point  image.Point
}

type RejectedEvent struct {
	Point image.Point
}

type FinishedEvent struct {
	Success bool
	Action  protocol.Action
}

// DropAckedEvent is emitted by dialects that acknowledge the drop start.
// The drag stays in StateDropping until OnDropFinished is called.
type DropAckedEvent struct {
	Action protocol.Action
}

//----------

// Cursors provides the pointer grab cursor for the current negotiation.
type Cursors interface {
	Cursor(action protocol.Action, accepted bool) display.Cursor
}

type Options struct {
	Display  display.Display
	Registry *protocol.Registry
	Metrics  *metrics.Metrics // optional
	Cursors  Cursors          // optional
	Debug    bool

	MaxDepth int // window tree walks, default 16
}

type StateMachine struct {
	opt    Options
	d      display.Display
	s      *session
	Events evreg.Register
}

type session struct {
	protocol.Session
	state        State
	started      time.Time
	rootMask     uint32
	rootMaskRead bool
	mods         protocol.Modifiers
	prepared []protocol.Binding
	cursor   display.Cursor

	lastWin display.Window // root subwindow under the pointer
	client  display.Window // resolved client window
	binding protocol.Binding
	target  *protocol.Target
	point   image.Point

	entered   display.Timestamp
	lastReply display.Timestamp

	accepted   bool
	negotiated protocol.Action
}

func New(opt Options) *StateMachine {
	if opt.MaxDepth <= 0 {
		opt.MaxDepth = 16
	}
	return &StateMachine{opt: opt, d: opt.Display}
}

//----------

// Status is a snapshot of the drag.
type Status struct {
	State      State
	Source     display.Window
	Target     display.Window // client window with a bound dialect, or None
	Dialect    string
	Action     protocol.Action // requested
	Accepted   bool
	Negotiated protocol.Action
}

func (sm *StateMachine) State() State {
	if sm.s == nil {
		return StateIdle
	}
	return sm.s.state
}

func (sm *StateMachine) Status() Status {
	s := sm.s
	if s == nil {
		return Status{State: StateIdle}
	}
	st := Status{
		State:      s.state,
		Source:     s.Source,
		Action:     s.Action,
		Accepted:   s.accepted,
		Negotiated: s.negotiated,
	}
	if s.binding != nil {
		st.Target = s.client
		st.Dialect = s.binding.Name()
	}
	return st
}

//----------

// Start begins a drag from src. It fails if a drag is already active, if
// the format list can't be published, or if either grab is refused; no
// session exists after a failure.
func (sm *StateMachine) Start(src display.Window, actions protocol.Action, formats []uint32, t display.Timestamp) error {
	if sm.s != nil {
		return ErrActive
	}
	if len(formats) == 0 {
		return ErrNoFormats
	}
	if actions == protocol.ActionNone {
		return ErrNoActions
	}

	s := &session{
		Session: protocol.Session{
			Source:      src,
			Formats:     append([]uint32(nil), formats...),
			FormatIndex: -1,
			Actions:     actions,
			Action:      protocol.SelectAction(0, actions),
		},
		state:     StateActive,
		started:   time.Now(),
		entered:   t,
		lastReply: t,
	}

	// publish before any target is contacted
	for _, b := range sm.opt.Registry.Bindings() {
		if err := b.Prepare(&s.Session); err != nil {
			sm.cleanupBindings(s)
			return errors.Wrapf(err, "dragsource: %v", b.Name())
		}
		s.prepared = append(s.prepared, b)
	}

	if err := sm.grab(s, t); err != nil {
		sm.cleanupBindings(s)
		return err
	}

	// observe motion and destruction everywhere
	root := sm.d.Root()
	if mask, err := sm.d.EventMask(root); err != nil {
		log.Printf("dragsource: root event mask: %v", err)
	} else {
		s.rootMask, s.rootMaskRead = mask, true
		extra := display.EventMaskPointerMotion | display.EventMaskSubstructNotify
		if err := sm.d.SetEventMask(root, mask|extra); err != nil {
			log.Printf("dragsource: root event mask: %v", err)
		}
	}

	sm.s = s
	sm.opt.Metrics.DragStarted()
	sm.debug("start")
	return nil
}

func (sm *StateMachine) grab(s *session, t display.Timestamp) error {
	root := sm.d.Root()
	s.cursor = sm.cursor(s)
	st, err := sm.d.GrabPointer(root, display.EventMaskPointerGrabEvents, s.cursor, t)
	if err != nil {
		return errors.Wrap(err, "dragsource: grab pointer")
	}
	if st != display.GrabSuccess {
		sm.opt.Metrics.GrabFailed("pointer", st.String())
		return &GrabError{"pointer", st}
	}
	st, err = sm.d.GrabKeyboard(root, t)
	if err == nil && st != display.GrabSuccess {
		sm.opt.Metrics.GrabFailed("keyboard", st.String())
		err = &GrabError{"keyboard", st}
	}
	if err != nil {
		if err2 := sm.d.UngrabPointer(t); err2 != nil {
			log.Printf("dragsource: ungrab pointer: %v", err2)
		}
		return errors.Wrap(err, "dragsource: grab keyboard")
	}
	return nil
}

//----------

// OnPointerMove is called for every pointer motion during the drag. Win is
// the window under the pointer as reported by the server, p is in root
// coordinates.
func (sm *StateMachine) OnPointerMove(win display.Window, p image.Point, t display.Timestamp, mods protocol.Modifiers) {
	s := sm.s
	if s == nil || s.state != StateActive {
		return
	}
	if before(t, s.entered) {
		sm.opt.Metrics.Stale("motion")
		return
	}
	s.point = p
	s.mods = mods
	action := protocol.SelectAction(mods, s.Actions)
	actionChanged := action != s.Action
	s.Action = action

	if win != s.lastWin {
		s.lastWin = win
		client := findClientWindow(sm.d, win, p, sm.opt.MaxDepth)
		if client != s.client {
			if !sm.changeTarget(client, t) {
				return
			}
			sm.updateCursor()
			sm.debug("target")
			return
		}
	}

	if s.binding != nil {
		if !sm.send("motion", func() error {
			return s.binding.SendMotion(&s.Session, s.target, p, t)
		}) {
			return
		}
	}
	if actionChanged {
		sm.updateCursor()
	}
}

// OnModifiersChanged recomputes the requested action when a modifier key
// is pressed or released without the pointer moving.
func (sm *StateMachine) OnModifiersChanged(mods protocol.Modifiers, t display.Timestamp) {
	s := sm.s
	if s == nil || s.state != StateActive || mods == s.mods {
		return
	}
	s.mods = mods
	action := protocol.SelectAction(mods, s.Actions)
	if action == s.Action {
		return
	}
	s.Action = action
	if s.binding != nil {
		if !sm.send("motion", func() error {
			return s.binding.SendMotion(&s.Session, s.target, s.point, t)
		}) {
			return
		}
	}
	sm.updateCursor()
	sm.debug("modifiers")
}

// Leave goes through the old binding before the new one is resolved.
func (sm *StateMachine) changeTarget(client display.Window, t display.Timestamp) bool {
	s := sm.s
	if s.binding != nil {
		if !sm.send("leave", func() error {
			return s.binding.SendLeave(&s.Session, s.target, t)
		}) {
			return false
		}
		s.binding, s.target = nil, nil
		sm.setAccepted(false, protocol.ActionNone)
	}
	s.client = client
	s.entered = t
	s.lastReply = t

	b, tg := sm.opt.Registry.Resolve(client)
	if b == nil {
		return true
	}
	s.binding, s.target = b, tg
	if !sm.send("enter", func() error {
		return b.SendEnter(&s.Session, tg, t)
	}) {
		return false
	}
	return sm.send("motion", func() error {
		return b.SendMotion(&s.Session, tg, s.point, t)
	})
}

//----------

// OnReply offers a client message to the bound dialect. Returns true if
// the message was a reply for the current target, stale or not.
func (sm *StateMachine) OnReply(cm *display.ClientMessage) bool {
	s := sm.s
	if s == nil || s.binding == nil {
		return false
	}
	r, ok := s.binding.DecodeReply(&s.Session, s.target, cm)
	if !ok {
		return false
	}
	sm.opt.Metrics.Received(s.binding.Name(), replyKind(r.Kind))
	if r.Timed {
		if before(r.Time, s.lastReply) || before(r.Time, s.entered) {
			sm.opt.Metrics.Stale("reply")
			return true
		}
		s.lastReply = r.Time
	}

	switch r.Kind {
	case protocol.ReplyStatus:
		if s.state == StateActive {
			sm.setAccepted(r.Accepted, r.Action)
			sm.updateCursor()
		}
	case protocol.ReplyDropAck:
		if s.state == StateDropping {
			if !r.Accepted {
				sm.finish(false, protocol.ActionNone, "failure")
				return true
			}
			s.negotiated = r.Action
			sm.debug("reply")
			sm.Events.Emit(EvDropAcked, &DropAckedEvent{Action: r.Action})
			return true
		}
	case protocol.ReplyFinished:
		if s.state == StateDropping {
			sm.OnDropFinished(r.Accepted, r.Action)
		}
	}
	sm.debug("reply")
	return true
}

func (sm *StateMachine) setAccepted(acc bool, action protocol.Action) {
	s := sm.s
	if !acc {
		action = protocol.ActionNone
	}
	prevAcc, prevAction := s.accepted, s.negotiated
	s.accepted, s.negotiated = acc, action
	switch {
	case acc && (!prevAcc || action != prevAction):
		sm.Events.Emit(EvAccepted, &AcceptedEvent{Action: action, Point: s.point})
	case !acc && prevAcc:
		// the dialects don't tell when a whole window drop zone is left
		sm.Events.Emit(EvRejected, &RejectedEvent{Point: s.point})
	}
}

//----------

func (sm *StateMachine) OnButtonRelease(t display.Timestamp) {
	s := sm.s
	if s == nil || s.state != StateActive {
		return
	}
	if s.binding == nil || !s.accepted || s.negotiated == protocol.ActionNone {
		sm.Cancel()
		return
	}
	s.state = StateDropping
	b, tg := s.binding, s.target
	if b.LeaveBeforeDrop() {
		if !sm.send("leave", func() error {
			return b.SendLeave(&s.Session, tg, t)
		}) {
			return
		}
	}
	if !sm.send("drop", func() error {
		return b.SendDropStart(&s.Session, tg, s.point, t)
	}) {
		return
	}
	sm.debug("drop")
}

func (sm *StateMachine) Cancel() {
	sm.finish(false, protocol.ActionNone, "cancel")
}

func (sm *StateMachine) OnEscapeKey() {
	sm.Cancel()
}

// OnTargetWindowDestroyed cancels the drag if win is the current target,
// its proxy, or the root subwindow holding it (a window manager frame).
func (sm *StateMachine) OnTargetWindowDestroyed(win display.Window) {
	s := sm.s
	if s == nil || win == display.None {
		return
	}
	match := win == s.client || win == s.lastWin
	if s.target != nil && (win == s.target.Window || win == s.target.Proxy) {
		match = true
	}
	if !match {
		return
	}
	if s.binding == nil {
		// nothing bound: resolve again on the next motion
		s.lastWin, s.client = display.None, display.None
		return
	}
	s.binding, s.target = nil, nil // nothing to send a leave to
	sm.finish(false, protocol.ActionNone, "failure")
}

// OnDropFinished ends the drag with the receiver's outcome.
func (sm *StateMachine) OnDropFinished(success bool, action protocol.Action) {
	if !success {
		action = protocol.ActionNone
	}
	result := "success"
	if !success {
		result = "failure"
	}
	sm.finish(success, action, result)
}

//----------

// Single teardown path. Safe to call more than once.
func (sm *StateMachine) finish(success bool, action protocol.Action, result string) {
	s := sm.s
	if s == nil {
		return
	}
	sm.s = nil

	if s.binding != nil && s.state == StateActive {
		if err := s.binding.SendLeave(&s.Session, s.target, display.CurrentTime); err != nil {
			log.Printf("dragsource: leave: %v", err)
		} else {
			sm.opt.Metrics.Sent(s.binding.Name(), "leave")
		}
	}
	sm.cleanupBindings(s)
	if err := sm.d.UngrabPointer(display.CurrentTime); err != nil {
		log.Printf("dragsource: ungrab pointer: %v", err)
	}
	if err := sm.d.UngrabKeyboard(display.CurrentTime); err != nil {
		log.Printf("dragsource: ungrab keyboard: %v", err)
	}
	if s.rootMaskRead {
		if err := sm.d.SetEventMask(sm.d.Root(), s.rootMask); err != nil {
			log.Printf("dragsource: restore root event mask: %v", err)
		}
	}
	sm.opt.Metrics.DragEnded(result, time.Since(s.started))
	if sm.opt.Debug {
		log.Printf("dragsource: finish %v %v (%v)", success, action, result)
	}
	sm.Events.Emit(EvFinished, &FinishedEvent{Success: success, Action: action})
}

func (sm *StateMachine) cleanupBindings(s *session) {
	for _, b := range s.prepared {
		b.Cleanup(&s.Session)
	}
	s.prepared = nil
}

//----------

// Runs a binding send. A vanished target cancels the drag and returns
// false; other failures are logged.
func (sm *StateMachine) send(kind string, fn func() error) bool {
	s := sm.s
	name := s.binding.Name()
	err := fn()
	if err == nil {
		sm.opt.Metrics.Sent(name, kind)
		return true
	}
	sm.opt.Metrics.SendError(name)
	if errors.Cause(err) == display.ErrBadWindow {
		s.binding, s.target = nil, nil
		sm.finish(false, protocol.ActionNone, "failure")
		return false
	}
	log.Printf("dragsource: %v %v: %v", name, kind, err)
	return true
}

func (sm *StateMachine) cursor(s *session) display.Cursor {
	if sm.opt.Cursors == nil {
		return 0
	}
	a := s.Action
	if s.accepted {
		a = s.negotiated
	}
	return sm.opt.Cursors.Cursor(a, s.accepted)
}

func (sm *StateMachine) updateCursor() {
	s := sm.s
	if s == nil {
		return
	}
	c := sm.cursor(s)
	if c == s.cursor {
		return
	}
	s.cursor = c
	if err := sm.d.ChangePointerGrabCursor(display.EventMaskPointerGrabEvents, c, display.CurrentTime); err != nil {
		log.Printf("dragsource: cursor: %v", err)
	}
}

func (sm *StateMachine) debug(what string) {
	if !sm.opt.Debug {
		return
	}
	log.Printf("dragsource: %v\n%v", what, spew.Sdump(sm.Status()))
}

//----------

// Server time wraps; CurrentTime is never stale.
func before(a, b display.Timestamp) bool {
	if a == display.CurrentTime || b == display.CurrentTime {
		return false
	}
	return int32(a-b) < 0
}

func replyKind(k protocol.ReplyKind) string {
	switch k {
	case protocol.ReplyStatus:
		return "status"
	case protocol.ReplyDropAck:
		return "drop-ack"
	case protocol.ReplyFinished:
		return "finished"
	}
	return "?"
}
