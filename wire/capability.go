package wire

type Style byte

const (
	StyleNone Style = iota
	StyleDropOnly
	StylePreferPreregister
	StylePreregister
	StylePreferDynamic
	StyleDynamic
	StylePreferReceiver
)

func (s Style) Valid() bool {
	return s <= StylePreferReceiver
}

//----------

const CapabilityRecordSize = 16

// CapabilityRecord is written by a target on its own window to announce it
// accepts drops. Messages go to ProxyWindow when it is set.
//
//	[order:1][version:1][style:1][pad:1][proxyWindow:4][reserved:4][tableOffset:4]
type CapabilityRecord struct {
	Order       byte
	Version     byte
	Style       Style
	ProxyWindow uint32
	Reserved    uint32
	TableOffset uint32
}

func (r *CapabilityRecord) Encode() []byte {
	order, bo := encodeOrder(r.Order)
	b := make([]byte, CapabilityRecordSize)
	b[0] = order
	b[1] = r.Version
	b[2] = byte(r.Style)
	bo.PutUint32(b[4:], r.ProxyWindow)
	bo.PutUint32(b[8:], r.Reserved)
	bo.PutUint32(b[12:], r.TableOffset)
	return b
}

func DecodeCapabilityRecord(b []byte) (*CapabilityRecord, error) {
	if len(b) < CapabilityRecordSize {
		return nil, ErrShort
	}
	bo, err := byteOrder(b[0])
	if err != nil {
		return nil, err
	}
	if err := checkVersion(b[1]); err != nil {
		return nil, err
	}
	r := &CapabilityRecord{
		Order:       b[0],
		Version:     b[1],
		Style:       Style(b[2]),
		ProxyWindow: bo.Uint32(b[4:]),
		Reserved:    bo.Uint32(b[8:]),
		TableOffset: bo.Uint32(b[12:]),
	}
	if !r.Style.Valid() {
		return nil, ErrFormat
	}
	return r, nil
}

//----------

const InitiatorRecordSize = 8

// InitiatorRecord is written by the drag source on its own window so
// targets can find the offered format list.
//
//	[order:1][version:1][formatIndex:2][selectionAtom:4]
type InitiatorRecord struct {
	Order         byte
	Version       byte
	FormatIndex   uint16
	SelectionAtom uint32
}

func (r *InitiatorRecord) Encode() []byte {
	order, bo := encodeOrder(r.Order)
	b := make([]byte, InitiatorRecordSize)
	b[0] = order
	b[1] = r.Version
	bo.PutUint16(b[2:], r.FormatIndex)
	bo.PutUint32(b[4:], r.SelectionAtom)
	return b
}

func DecodeInitiatorRecord(b []byte) (*InitiatorRecord, error) {
	if len(b) < InitiatorRecordSize {
		return nil, ErrShort
	}
	bo, err := byteOrder(b[0])
	if err != nil {
		return nil, err
	}
	if err := checkVersion(b[1]); err != nil {
		return nil, err
	}
	return &InitiatorRecord{
		Order:         b[0],
		Version:       b[1],
		FormatIndex:   bo.Uint16(b[2:]),
		SelectionAtom: bo.Uint32(b[4:]),
	}, nil
}
