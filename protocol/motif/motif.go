// Package motif is the direct record dialect: targets announce themselves
// with a capability record, sources pre-register their format list in the
// shared table and exchange 16 byte drag messages.
package motif

import (
	"image"
	"sync"

	"github.com/jmigpin/dnd/display"
	"github.com/jmigpin/dnd/formats"
	"github.com/jmigpin/dnd/protocol"
	"github.com/jmigpin/dnd/wire"
	"github.com/pkg/errors"
)

type Motif struct {
	d      display.Display
	broker *formats.Broker
	atoms  struct {
		ReceiverInfo  display.Atom `loadAtoms:"_MOTIF_DRAG_RECEIVER_INFO"`
		InitiatorInfo display.Atom `loadAtoms:"_MOTIF_DRAG_INITIATOR_INFO"`
		Message       display.Atom `loadAtoms:"_MOTIF_DRAG_AND_DROP_MESSAGE"`
		Selection     display.Atom `loadAtoms:"_MOTIF_DRAG_SELECTION"`
	}

	mu    sync.Mutex
	saved map[display.Window]*display.Property // embedder original records
}

func New(d display.Display, broker *formats.Broker) (*Motif, error) {
	m := &Motif{d: d, broker: broker, saved: map[display.Window]*display.Property{}}
	if err := display.LoadAtoms(d, &m.atoms); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Motif) Name() string { return "motif" }

// Quirk of this dialect: receivers expect a top level leave before the
// drop start, even on the same target.
func (m *Motif) LeaveBeforeDrop() bool { return true }

//----------

// Interns the format list and publishes it on the source window.
func (m *Motif) Prepare(s *protocol.Session) error {
	index, err := m.broker.Intern(s.Formats)
	if err != nil {
		return errors.Wrap(err, "motif: prepare")
	}
	s.FormatIndex = index
	r := &wire.InitiatorRecord{
		Version:       wire.ProtocolVersion,
		FormatIndex:   uint16(index),
		SelectionAtom: uint32(m.atoms.Selection),
	}
	p := &display.Property{Type: m.atoms.InitiatorInfo, Format: 8, Value: r.Encode()}
	if err := m.d.SetProperty(s.Source, m.atoms.InitiatorInfo, p); err != nil {
		return errors.Wrap(err, "motif: initiator info")
	}
	return nil
}

func (m *Motif) Cleanup(s *protocol.Session) {
	_ = m.d.DeleteProperty(s.Source, m.atoms.InitiatorInfo)
}

//----------

func (m *Motif) Recognize(win display.Window) (*protocol.Target, bool) {
	p, err := m.d.GetProperty(win, m.atoms.ReceiverInfo)
	if err != nil {
		return nil, false
	}
	r, err := wire.DecodeCapabilityRecord(p.Value)
	if err != nil {
		return nil, false
	}
	if r.Style == wire.StyleNone {
		return nil, false
	}
	t := &protocol.Target{Window: win, Proxy: win, Capability: *r}
	if pw := display.Window(r.ProxyWindow); pw != display.None && m.d.WindowExists(pw) {
		t.Proxy = pw
	}
	return t, true
}

//----------

func (m *Motif) SendEnter(s *protocol.Session, t *protocol.Target, time display.Timestamp) error {
	if s.FormatIndex < 0 {
		return errors.New("motif: format list not interned")
	}
	dm := &wire.DragMessage{
		Reason:        wire.ReasonTopLevelEnter,
		Flags:         flags(s, wire.StatusNone),
		Time:          uint32(time),
		FormatIndex:   uint16(s.FormatIndex),
		SelectionAtom: uint32(m.atoms.Selection),
	}
	return m.send(s, t, dm)
}

func (m *Motif) SendMotion(s *protocol.Session, t *protocol.Target, p image.Point, time display.Timestamp) error {
	dm := &wire.DragMessage{
		Reason: wire.ReasonDragMotion,
		Flags:  flags(s, wire.StatusNone),
		Time:   uint32(time),
		X:      int16(p.X),
		Y:      int16(p.Y),
	}
	return m.send(s, t, dm)
}

func (m *Motif) SendLeave(s *protocol.Session, t *protocol.Target, time display.Timestamp) error {
	dm := &wire.DragMessage{
		Reason: wire.ReasonTopLevelLeave,
		Time:   uint32(time),
	}
	return m.send(s, t, dm)
}

func (m *Motif) SendDropStart(s *protocol.Session, t *protocol.Target, p image.Point, time display.Timestamp) error {
	dm := &wire.DragMessage{
		Reason: wire.ReasonDropStart,
		Flags:  flags(s, wire.StatusNone),
		Time:   uint32(time),
		X:      int16(p.X),
		Y:      int16(p.Y),
	}
	return m.send(s, t, dm)
}

func (m *Motif) send(s *protocol.Session, t *protocol.Target, dm *wire.DragMessage) error {
	cm := m.envelope(t.Window, s.Source, dm)
	return m.d.SendMessage(t.Proxy, cm)
}

// The drag message fills the first 16 bytes, the last 4 carry the window
// replies go to, in the message byte order.
func (m *Motif) envelope(win, from display.Window, dm *wire.DragMessage) *display.ClientMessage {
	cm := &display.ClientMessage{Window: win, Type: m.atoms.Message, Format: 8}
	dm.EncodeTo(cm.Data8[:])
	putWindow(cm.Data8[wire.DragMessageSize:], cm.Data8[1], from)
	return cm
}

//----------

func (m *Motif) DecodeReply(s *protocol.Session, t *protocol.Target, cm *display.ClientMessage) (*protocol.Reply, bool) {
	dm, ok := m.decode(cm)
	if !ok || dm.Sender != wire.SenderReceiver {
		return nil, false
	}
	r := &protocol.Reply{
		Point: image.Point{int(dm.X), int(dm.Y)},
		Time:  display.Timestamp(dm.Time),
		Timed: true,
	}
	op := singleAction(opToAction(dm.Flags.Operation()))
	valid := dm.Flags.Status() == wire.StatusValidDropSite
	switch dm.Reason {
	case wire.ReasonDragMotion, wire.ReasonDropSiteEnter, wire.ReasonOperationChanged:
		r.Kind = protocol.ReplyStatus
		r.Accepted = valid && op != protocol.ActionNone
	case wire.ReasonDropSiteLeave:
		r.Kind = protocol.ReplyStatus
	case wire.ReasonDropStart:
		r.Kind = protocol.ReplyDropAck
		r.Accepted = valid && op != protocol.ActionNone
	default:
		return nil, false
	}
	if r.Accepted {
		r.Action = op
	}
	return r, true
}

func (m *Motif) DecodeIncoming(cm *display.ClientMessage) (*protocol.Incoming, bool) {
	dm, ok := m.decode(cm)
	if !ok || dm.Sender != wire.SenderInitiator {
		return nil, false
	}
	in := &protocol.Incoming{
		Source:  getWindow(cm.Data8[wire.DragMessageSize:], dm.Order),
		Time:    display.Timestamp(dm.Time),
		Actions: opToAction(dm.Flags.Operations()),
		Action:  opToAction(dm.Flags.Operation()),
	}
	switch dm.Reason {
	case wire.ReasonTopLevelEnter:
		in.Kind = protocol.IncomingEnter
	case wire.ReasonTopLevelLeave:
		in.Kind = protocol.IncomingLeave
	case wire.ReasonDragMotion, wire.ReasonOperationChanged:
		in.Kind = protocol.IncomingMotion
		in.Point, in.HasPoint = image.Point{int(dm.X), int(dm.Y)}, true
	case wire.ReasonDropStart:
		in.Kind = protocol.IncomingDrop
		in.Point, in.HasPoint = image.Point{int(dm.X), int(dm.Y)}, true
	default:
		return nil, false
	}
	return in, true
}

func (m *Motif) decode(cm *display.ClientMessage) (*wire.DragMessage, bool) {
	if cm.Type != m.atoms.Message || cm.Format != 8 {
		return nil, false
	}
	dm, err := wire.DecodeDragMessage(cm.Data8[:])
	if err != nil {
		return nil, false
	}
	return dm, true
}

//----------

func (m *Motif) RegisterDropSite(win display.Window) error {
	return m.setReceiverInfo(win, display.None)
}

func (m *Motif) UnregisterDropSite(win display.Window) error {
	return m.d.DeleteProperty(win, m.atoms.ReceiverInfo)
}

func (m *Motif) RegisterEmbedderDropSite(toplevel, proxy display.Window) error {
	m.mu.Lock()
	if _, ok := m.saved[toplevel]; !ok {
		p, err := m.d.GetProperty(toplevel, m.atoms.ReceiverInfo)
		if err != nil {
			p = nil
		}
		m.saved[toplevel] = p
	}
	m.mu.Unlock()

	if proxy == toplevel {
		proxy = display.None
	}
	return m.setReceiverInfo(toplevel, proxy)
}

func (m *Motif) UnregisterEmbedderDropSite(toplevel display.Window) error {
	m.mu.Lock()
	p, ok := m.saved[toplevel]
	delete(m.saved, toplevel)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	if p == nil {
		return m.d.DeleteProperty(toplevel, m.atoms.ReceiverInfo)
	}
	return m.d.SetProperty(toplevel, m.atoms.ReceiverInfo, p)
}

func (m *Motif) setReceiverInfo(win, proxy display.Window) error {
	r := &wire.CapabilityRecord{
		Version:     wire.ProtocolVersion,
		Style:       wire.StyleDynamic,
		ProxyWindow: uint32(proxy),
	}
	p := &display.Property{Type: m.atoms.ReceiverInfo, Format: 8, Value: r.Encode()}
	return m.d.SetProperty(win, m.atoms.ReceiverInfo, p)
}

//----------

func flags(s *protocol.Session, st wire.Status) wire.Flags {
	return wire.MakeFlags(actionToOp(s.Action), st, actionToOp(s.Actions))
}

func actionToOp(a protocol.Action) byte {
	op := wire.OpNone
	if a&protocol.ActionCopy != 0 {
		op |= wire.OpCopy
	}
	if a&protocol.ActionMove != 0 {
		op |= wire.OpMove
	}
	if a&protocol.ActionLink != 0 {
		op |= wire.OpLink
	}
	return op
}

func opToAction(op byte) protocol.Action {
	a := protocol.ActionNone
	if op&wire.OpCopy != 0 {
		a |= protocol.ActionCopy
	}
	if op&wire.OpMove != 0 {
		a |= protocol.ActionMove
	}
	if op&wire.OpLink != 0 {
		a |= protocol.ActionLink
	}
	return a
}

func putWindow(b []byte, order byte, w display.Window) {
	if bo, err := wire.ByteOrder(order); err == nil {
		bo.PutUint32(b, uint32(w))
	}
}

func getWindow(b []byte, order byte) display.Window {
	bo, err := wire.ByteOrder(order)
	if err != nil {
		return display.None
	}
	return display.Window(bo.Uint32(b))
}

// A reply operation is a single action; pick one if a peer sent several.
func singleAction(a protocol.Action) protocol.Action {
	for _, b := range []protocol.Action{protocol.ActionCopy, protocol.ActionMove, protocol.ActionLink} {
		if a.Has(b) {
			return b
		}
	}
	return protocol.ActionNone
}
