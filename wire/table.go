package wire

import "math"

const tableHeaderSize = 8

// Both the entry count and each list length are 16 bit fields.
const (
	MaxTableEntries = math.MaxUint16
	MaxListLen      = math.MaxUint16
)

// FormatListTable is the append-only table of format lists kept on the
// broker window.
//
//	[order:1][version:1][entryCount:2][totalByteLength:4]
//	entryCount * ([formatCount:2][format:4]*formatCount)
type FormatListTable struct {
	Order   byte
	Version byte
	Lists   [][]uint32
}

func (t *FormatListTable) Encode() []byte {
	order, bo := encodeOrder(t.Order)
	size := tableHeaderSize
	for _, l := range t.Lists {
		size += 2 + 4*len(l)
	}
	b := make([]byte, size)
	b[0] = order
	b[1] = t.Version
	bo.PutUint16(b[2:], uint16(len(t.Lists)))
	bo.PutUint32(b[4:], uint32(size))
	k := tableHeaderSize
	for _, l := range t.Lists {
		bo.PutUint16(b[k:], uint16(len(l)))
		k += 2
		for _, f := range l {
			bo.PutUint32(b[k:], f)
			k += 4
		}
	}
	return b
}

func DecodeFormatListTable(b []byte) (*FormatListTable, error) {
	if len(b) < tableHeaderSize {
		return nil, ErrShort
	}
	bo, err := byteOrder(b[0])
	if err != nil {
		return nil, err
	}
	if err := checkVersion(b[1]); err != nil {
		return nil, err
	}
	n := int(bo.Uint16(b[2:]))
	total := bo.Uint32(b[4:])
	if total < tableHeaderSize || uint64(total) > uint64(len(b)) {
		return nil, ErrFormat
	}
	b = b[:total]

	t := &FormatListTable{Order: b[0], Version: b[1]}
	k := tableHeaderSize
	for i := 0; i < n; i++ {
		if k+2 > len(b) {
			return nil, ErrFormat
		}
		c := int(bo.Uint16(b[k:]))
		k += 2
		if k+4*c > len(b) {
			return nil, ErrFormat
		}
		l := make([]uint32, c)
		for j := range l {
			l[j] = bo.Uint32(b[k:])
			k += 4
		}
		t.Lists = append(t.Lists, l)
	}
	return t, nil
}
