package wire

import "fmt"

type Reason byte

const (
	ReasonTopLevelEnter    Reason = 0
	ReasonTopLevelLeave    Reason = 1
	ReasonDragMotion       Reason = 2
	ReasonDropSiteEnter    Reason = 3
	ReasonDropSiteLeave    Reason = 4
	ReasonDropStart        Reason = 5
	ReasonOperationChanged Reason = 8
)

func (r Reason) String() string {
	switch r {
	case ReasonTopLevelEnter:
		return "enter"
	case ReasonTopLevelLeave:
		return "leave"
	case ReasonDragMotion:
		return "motion"
	case ReasonDropSiteEnter:
		return "site-enter"
	case ReasonDropSiteLeave:
		return "site-leave"
	case ReasonDropStart:
		return "drop-start"
	case ReasonOperationChanged:
		return "operation-changed"
	}
	return fmt.Sprintf("reason(%d)", byte(r))
}

func (r Reason) valid() bool {
	return r <= ReasonDropStart || r == ReasonOperationChanged
}

func (r Reason) hasCoords() bool {
	switch r {
	case ReasonDragMotion, ReasonDropSiteEnter, ReasonDropSiteLeave,
		ReasonDropStart, ReasonOperationChanged:
		return true
	}
	return false
}

//----------

type Sender byte

const (
	SenderInitiator Sender = 0
	SenderReceiver  Sender = 1
)

const senderBit = 0x80

//----------

// Operation bits as carried in the flags.
const (
	OpNone byte = 0
	OpMove byte = 1 << 0
	OpCopy byte = 1 << 1
	OpLink byte = 1 << 2
)

type Status byte

const (
	StatusNone Status = iota
	StatusNoDropSite
	StatusInvalidDropSite
	StatusValidDropSite
)

// Flags packs the current operation (bits 0-3), drop site status
// (bits 4-7) and offered operations (bits 8-11).
type Flags uint16

func MakeFlags(op byte, st Status, ops byte) Flags {
	return Flags(uint16(op&0xf) | uint16(st&0xf)<<4 | uint16(ops&0xf)<<8)
}

func (f Flags) Operation() byte  { return byte(f) & 0xf }
func (f Flags) Status() Status   { return Status(byte(f>>4) & 0xf) }
func (f Flags) Operations() byte { return byte(f>>8) & 0xf }

//----------

const DragMessageSize = 16

// DragMessage is carried in an 8 bit client message envelope.
//
//	[reasonAndSender:1][order:1][flags:2][time:4][payload:8]
//
// The payload is [formatIndex:2][selectionAtom:4][pad:2] for enter,
// [x:2][y:2][pad:4] for reasons with coordinates and unused for leave.
type DragMessage struct {
	Reason Reason
	Sender Sender
	Order  byte
	Flags  Flags
	Time   uint32

	FormatIndex   uint16
	SelectionAtom uint32

	X, Y int16
}

func (m *DragMessage) Encode() []byte {
	b := make([]byte, DragMessageSize)
	m.EncodeTo(b)
	return b
}

// Panics if b is shorter than DragMessageSize.
func (m *DragMessage) EncodeTo(b []byte) {
	_ = b[DragMessageSize-1]
	order, bo := encodeOrder(m.Order)
	rs := byte(m.Reason) &^ senderBit
	if m.Sender == SenderReceiver {
		rs |= senderBit
	}
	b[0] = rs
	b[1] = order
	bo.PutUint16(b[2:], uint16(m.Flags))
	bo.PutUint32(b[4:], m.Time)
	switch {
	case m.Reason == ReasonTopLevelEnter:
		bo.PutUint16(b[8:], m.FormatIndex)
		bo.PutUint32(b[10:], m.SelectionAtom)
	case m.Reason.hasCoords():
		bo.PutUint16(b[8:], uint16(m.X))
		bo.PutUint16(b[10:], uint16(m.Y))
	}
}

func DecodeDragMessage(b []byte) (*DragMessage, error) {
	if len(b) < DragMessageSize {
		return nil, ErrShort
	}
	bo, err := byteOrder(b[1])
	if err != nil {
		return nil, err
	}
	m := &DragMessage{
		Reason: Reason(b[0] &^ senderBit),
		Order:  b[1],
		Flags:  Flags(bo.Uint16(b[2:])),
		Time:   bo.Uint32(b[4:]),
	}
	if b[0]&senderBit != 0 {
		m.Sender = SenderReceiver
	}
	if !m.Reason.valid() {
		return nil, ErrTag
	}
	switch {
	case m.Reason == ReasonTopLevelEnter:
		m.FormatIndex = bo.Uint16(b[8:])
		m.SelectionAtom = bo.Uint32(b[10:])
	case m.Reason.hasCoords():
		m.X = int16(bo.Uint16(b[8:]))
		m.Y = int16(bo.Uint16(b[10:]))
	}
	return m, nil
}
