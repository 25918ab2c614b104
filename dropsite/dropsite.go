// Package dropsite registers windows as drop targets with every dialect and
// routes incoming drag messages to the registered window they are meant
// for. Windows embedded into another client's toplevel are served through
// that toplevel.
package dropsite

import (
	"image"
	"log"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/jmigpin/dnd/display"
	"github.com/jmigpin/dnd/metrics"
	"github.com/jmigpin/dnd/protocol"
	"github.com/pkg/errors"
)

var ErrNotRegistered = errors.New("dropsite: window not registered")

type Options struct {
	Display  display.Display
	Bindings []protocol.Binding
	Metrics  *metrics.Metrics // optional
	Debug    bool

	// Delay between attempts when a window has no managed ancestor yet.
	RetryDelay time.Duration // default 500ms
	MaxRetries int           // default 10
	// Schedules f; the returned func cancels it. Default time.AfterFunc.
	AfterFunc func(d time.Duration, f func()) (stop func() bool)
	// Reports if a window belongs to this process. Default: never.
	IsLocal func(win display.Window) bool

	MaxDepth int // ancestor walk, default 16
}

type Registry struct {
	opt Options
	d   display.Display

	mu       sync.Mutex
	direct   map[display.Window]bool
	entries  map[display.Window]*Entry         // by toplevel
	embedded map[display.Window]display.Window // child -> toplevel
	retries  map[display.Window]*retry
}

// Entry is a toplevel serving embedded drop sites.
type Entry struct {
	Root     display.Window
	Toplevel display.Window
	Children []display.Window // registration order
	Local    bool
	Proxy    display.Window // foreign toplevels only

	// Targets the foreign toplevel announced before the proxy took over,
	// by dialect name. Traffic outside the children is forwarded to them.
	Original map[string]*protocol.Target

	savedMask uint32
	current   display.Window // child under the last message
	enter     *display.ClientMessage
	fwd       fwdState
}

type fwdState int

const (
	fwdNone    fwdState = iota
	fwdEntered          // original target saw enter
	fwdLeft             // original target saw leave, a drop may follow
)

type retry struct {
	stop    func() bool
	attempt int
}

func New(opt Options) *Registry {
	if opt.RetryDelay <= 0 {
		opt.RetryDelay = 500 * time.Millisecond
	}
	if opt.MaxRetries <= 0 {
		opt.MaxRetries = 10
	}
	if opt.AfterFunc == nil {
		opt.AfterFunc = func(d time.Duration, f func()) func() bool {
			return time.AfterFunc(d, f).Stop
		}
	}
	if opt.IsLocal == nil {
		opt.IsLocal = func(display.Window) bool { return false }
	}
	if opt.MaxDepth <= 0 {
		opt.MaxDepth = 16
	}
	return &Registry{
		opt:      opt,
		d:        opt.Display,
		direct:   map[display.Window]bool{},
		entries:  map[display.Window]*Entry{},
		embedded: map[display.Window]display.Window{},
		retries:  map[display.Window]*retry{},
	}
}

//----------

// RegisterDropSite makes win a drop target. If no ancestor of win is
// managed yet, registration is retried later; a new call replaces any
// pending retry for the same window.
func (reg *Registry) RegisterDropSite(win display.Window) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.cancelRetry(win)
	return reg.register(win, 0)
}

func (reg *Registry) register(win display.Window, attempt int) error {
	if reg.direct[win] {
		return nil
	}
	if _, ok := reg.embedded[win]; ok {
		return nil
	}
	if !reg.d.WindowExists(win) {
		return errors.Wrapf(display.ErrBadWindow, "dropsite: %v", win)
	}

	top := reg.managedAncestor(win)
	if top == display.None {
		if attempt >= reg.opt.MaxRetries {
			return errors.Errorf("dropsite: %v: no managed ancestor", win)
		}
		reg.scheduleRetry(win, attempt+1)
		return nil
	}

	if top == win {
		for _, b := range reg.opt.Bindings {
			if err := b.RegisterDropSite(win); err != nil {
				for _, b2 := range reg.opt.Bindings {
					_ = b2.UnregisterDropSite(win)
				}
				return errors.Wrapf(err, "dropsite: %v", b.Name())
			}
		}
		reg.direct[win] = true
		reg.opt.Metrics.DropSiteAdded()
		reg.debug("register", win)
		return nil
	}

	e, ok := reg.entries[top]
	if !ok {
		var err error
		e, err = reg.newEntry(top)
		if err != nil {
			return err
		}
		reg.entries[top] = e
	}
	e.Children = append(e.Children, win)
	reg.embedded[win] = top
	reg.opt.Metrics.DropSiteAdded()
	reg.debug("register embedded", win)
	return nil
}

func (reg *Registry) newEntry(top display.Window) (*Entry, error) {
	e := &Entry{
		Root:     reg.d.Root(),
		Toplevel: top,
		Local:    reg.opt.IsLocal(top),
		Original: map[string]*protocol.Target{},
	}
	proxy := top
	if !e.Local {
		for _, b := range reg.opt.Bindings {
			if t, ok := b.Recognize(top); ok {
				e.Original[b.Name()] = t
			}
		}

		// foreign toplevel: messages addressed to it come to our proxy
		w, err := reg.d.CreateHiddenWindow()
		if err != nil {
			return nil, errors.Wrap(err, "dropsite: proxy window")
		}
		e.Proxy, proxy = w, w
		mask, err := reg.d.EventMask(top)
		if err != nil {
			_ = reg.d.DestroyWindow(w)
			return nil, errors.Wrap(err, "dropsite: event mask")
		}
		e.savedMask = mask
		extra := display.EventMaskStructureNotify | display.EventMaskPropertyChange
		if err := reg.d.SetEventMask(top, mask|extra); err != nil {
			_ = reg.d.DestroyWindow(w)
			return nil, errors.Wrap(err, "dropsite: event mask")
		}
	}
	for _, b := range reg.opt.Bindings {
		if err := b.RegisterEmbedderDropSite(top, proxy); err != nil {
			reg.releaseEntry(e)
			return nil, errors.Wrapf(err, "dropsite: %v embedder", b.Name())
		}
	}
	return e, nil
}

func (reg *Registry) releaseEntry(e *Entry) {
	for _, b := range reg.opt.Bindings {
		if err := b.UnregisterEmbedderDropSite(e.Toplevel); err != nil {
			log.Printf("dropsite: %v: %v", b.Name(), err)
		}
	}
	if e.Local {
		return
	}
	if err := reg.d.SetEventMask(e.Toplevel, e.savedMask); err != nil && reg.opt.Debug {
		log.Printf("dropsite: restore event mask: %v", err)
	}
	if err := reg.d.DestroyWindow(e.Proxy); err != nil && reg.opt.Debug {
		log.Printf("dropsite: destroy proxy: %v", err)
	}
}

func (reg *Registry) managedAncestor(win display.Window) display.Window {
	for _, w := range display.Ancestors(reg.d, win, reg.opt.MaxDepth) {
		if ok, err := reg.d.IsManaged(w); err == nil && ok {
			return w
		}
	}
	return display.None
}

//----------

func (reg *Registry) scheduleRetry(win display.Window, attempt int) {
	r := &retry{attempt: attempt}
	r.stop = reg.opt.AfterFunc(reg.opt.RetryDelay, func() {
		reg.mu.Lock()
		defer reg.mu.Unlock()
		if reg.retries[win] != r {
			return // replaced or cancelled
		}
		delete(reg.retries, win)
		if err := reg.register(win, r.attempt); err != nil {
			log.Printf("dropsite: retry: %v", err)
		}
	})
	reg.retries[win] = r
	reg.opt.Metrics.DropSiteRetry()
}

func (reg *Registry) cancelRetry(win display.Window) {
	if r, ok := reg.retries[win]; ok {
		r.stop()
		delete(reg.retries, win)
	}
}

// PendingRetries returns the number of windows waiting for a retry.
func (reg *Registry) PendingRetries() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.retries)
}

//----------

func (reg *Registry) UnregisterDropSite(win display.Window) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, ok := reg.retries[win]; ok {
		reg.cancelRetry(win)
		return nil
	}
	if reg.direct[win] {
		delete(reg.direct, win)
		reg.opt.Metrics.DropSiteRemoved()
		var err error
		for _, b := range reg.opt.Bindings {
			if err2 := b.UnregisterDropSite(win); err2 != nil && err == nil {
				err = err2
			}
		}
		return err
	}
	top, ok := reg.embedded[win]
	if !ok {
		return ErrNotRegistered
	}
	delete(reg.embedded, win)
	reg.opt.Metrics.DropSiteRemoved()
	e := reg.entries[top]
	e.Children = removeWin(e.Children, win)
	if e.current == win {
		e.current = display.None
	}
	if len(e.Children) == 0 {
		delete(reg.entries, top)
		reg.releaseEntry(e)
	}
	return nil
}

//----------

// GetEmbeddedDropSite returns the first registered child of ancestor that
// is viewable and contains the root point.
func (reg *Registry) GetEmbeddedDropSite(ancestor display.Window, x, y int) display.Window {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.embeddedAt(ancestor, image.Point{x, y})
}

func (reg *Registry) embeddedAt(ancestor display.Window, p image.Point) display.Window {
	e, ok := reg.entries[ancestor]
	if !ok {
		return display.None
	}
	for _, c := range e.Children {
		g, err := reg.d.Geometry(c)
		if err != nil || !g.Mapped {
			continue
		}
		if p.In(g.Rect) {
			return c
		}
	}
	return display.None
}

// Entry returns a copy of the entry kept for toplevel.
func (reg *Registry) Entry(toplevel display.Window) (Entry, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	e, ok := reg.entries[toplevel]
	if !ok {
		return Entry{}, false
	}
	c := *e
	c.Children = append([]display.Window(nil), e.Children...)
	c.Original = map[string]*protocol.Target{}
	for k, t := range e.Original {
		t2 := *t
		c.Original[k] = &t2
	}
	c.enter = nil
	return c, true
}

func (reg *Registry) IsRegistered(win display.Window) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	_, ok := reg.embedded[win]
	return ok || reg.direct[win]
}

//----------

// Delivery is an incoming drag message resolved to a drop site.
type Delivery struct {
	Binding  protocol.Binding
	Incoming *protocol.Incoming
	// Registered window the message is for. None for an enter addressed
	// to a toplevel with embedded sites, until a position is known, and
	// for traffic outside the embedded sites.
	Site display.Window
	// The message was passed on to the toplevel's original target.
	Forwarded bool
}

// Dispatch decodes a client message received by a registered window or
// proxy and resolves the drop site it is for.
func (reg *Registry) Dispatch(cm *display.ClientMessage) (*Delivery, bool) {
	var b protocol.Binding
	var in *protocol.Incoming
	for _, b2 := range reg.opt.Bindings {
		if in2, ok := b2.DecodeIncoming(cm); ok {
			b, in = b2, in2
			break
		}
	}
	if b == nil {
		return nil, false
	}
	reg.opt.Metrics.Received(b.Name(), in.Kind.String())

	reg.mu.Lock()
	defer reg.mu.Unlock()

	dv := &Delivery{Binding: b, Incoming: in}
	if reg.direct[cm.Window] {
		dv.Site = cm.Window
		return dv, true
	}
	e, ok := reg.entries[cm.Window]
	if !ok {
		return nil, false
	}
	switch in.Kind {
	case protocol.IncomingEnter:
		e.current = display.None
		e.enter = nil
		e.fwd = fwdNone
		if !e.Local {
			c := *cm
			e.enter = &c
		}
	case protocol.IncomingMotion, protocol.IncomingDrop:
		if in.HasPoint {
			e.current = reg.embeddedAt(e.Toplevel, in.Point)
		}
		dv.Site = e.current
	case protocol.IncomingLeave:
		dv.Site = e.current
		e.current = display.None
	}
	if !e.Local {
		reg.forward(e, b, in, cm, dv)
	}
	if reg.opt.Debug {
		log.Printf("dropsite: dispatch\n%v", spew.Sdump(dv.Incoming, dv.Site))
	}
	return dv, true
}

// Passes traffic that no embedded site takes on to the toplevel's own
// target, replaying the enter when the pointer comes back from a child.
func (reg *Registry) forward(e *Entry, b protocol.Binding, in *protocol.Incoming, cm *display.ClientMessage, dv *Delivery) {
	orig, ok := e.Original[b.Name()]
	if !ok {
		return
	}
	send := func(m *display.ClientMessage) bool {
		if err := reg.d.SendMessage(orig.Proxy, m); err != nil {
			if reg.opt.Debug {
				log.Printf("dropsite: forward: %v", err)
			}
			return false
		}
		return true
	}
	leave := func() {
		s := &protocol.Session{Source: in.Source, FormatIndex: -1}
		if err := b.SendLeave(s, orig, in.Time); err != nil && reg.opt.Debug {
			log.Printf("dropsite: forward leave: %v", err)
		}
		e.fwd = fwdNone
	}

	switch in.Kind {
	case protocol.IncomingMotion, protocol.IncomingDrop:
		if dv.Site != display.None {
			if e.fwd == fwdEntered {
				leave()
			}
			e.fwd = fwdNone
			return
		}
		if e.fwd == fwdNone {
			if e.enter == nil || !send(e.enter) {
				return
			}
			e.fwd = fwdEntered
		}
		dv.Forwarded = send(cm)
		if in.Kind == protocol.IncomingDrop {
			e.fwd = fwdNone
			e.enter = nil
		}
	case protocol.IncomingLeave:
		if e.fwd == fwdEntered {
			dv.Forwarded = send(cm)
			e.fwd = fwdLeft
		}
	}
}

//----------

func (reg *Registry) debug(what string, win display.Window) {
	if reg.opt.Debug {
		log.Printf("dropsite: %v %v", what, win)
	}
}

func removeWin(u []display.Window, w display.Window) []display.Window {
	for i, e := range u {
		if e == w {
			return append(u[:i:i], u[i+1:]...)
		}
	}
	return u
}
