package wire

import (
	"bytes"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/jmigpin/dnd/util/testutil"
)

func TestGoldenRecords(t *testing.T) {
	ar, err := testutil.ParseTxtarFile("testdata/records.txtar")
	if err != nil {
		t.Fatal(err)
	}
	testutil.RunArchive2(t, ar, func(t2 *testing.T, name string, in, out []byte) error {
		want, err := testutil.ParseHex(string(out))
		if err != nil {
			return err
		}
		rec, err := parseRecordDesc(string(in))
		if err != nil {
			return err
		}
		enc, dec, err := encodeDecode(rec, want)
		if err != nil {
			return err
		}
		if !bytes.Equal(enc, want) {
			return fmt.Errorf("encode:\n%s\nexpecting:\n%s", testutil.FormatHex(enc), testutil.FormatHex(want))
		}
		if !reflect.DeepEqual(dec, rec) {
			return fmt.Errorf("decode:\n%s\nexpecting:\n%s", spew.Sdump(dec), spew.Sdump(rec))
		}
		return nil
	})
}

func encodeDecode(rec interface{}, b []byte) ([]byte, interface{}, error) {
	switch r := rec.(type) {
	case *CapabilityRecord:
		d, err := DecodeCapabilityRecord(b)
		return r.Encode(), d, err
	case *DragMessage:
		d, err := DecodeDragMessage(b)
		return r.Encode(), d, err
	case *FormatListTable:
		d, err := DecodeFormatListTable(b)
		return r.Encode(), d, err
	case *InitiatorRecord:
		d, err := DecodeInitiatorRecord(b)
		return r.Encode(), d, err
	}
	return nil, nil, fmt.Errorf("unexpected record: %T", rec)
}

// Parses "kind key=value ..." lines.
func parseRecordDesc(s string) (interface{}, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty")
	}
	kv := map[string]string{}
	for _, f := range fields[1:] {
		k, v, ok := strings.Cut(f, "=")
		if !ok {
			return nil, fmt.Errorf("bad field: %q", f)
		}
		kv[k] = v
	}
	var err error
	num := func(k string) uint32 {
		v, ok := kv[k]
		if !ok {
			return 0
		}
		u, err2 := strconv.ParseUint(v, 0, 32)
		if err2 != nil && err == nil {
			err = err2
		}
		return uint32(u)
	}
	order := byte(0)
	if v := kv["order"]; len(v) == 1 {
		order = v[0]
	}

	var rec interface{}
	switch fields[0] {
	case "cap":
		rec = &CapabilityRecord{
			Order:       order,
			Version:     byte(num("version")),
			Style:       Style(num("style")),
			ProxyWindow: num("proxy"),
			Reserved:    num("reserved"),
			TableOffset: num("offset"),
		}
	case "msg":
		rec = &DragMessage{
			Reason:        Reason(num("reason")),
			Sender:        Sender(num("sender")),
			Order:         order,
			Flags:         Flags(num("flags")),
			Time:          num("time"),
			FormatIndex:   uint16(num("index")),
			SelectionAtom: num("atom"),
			X:             int16(num("x")),
			Y:             int16(num("y")),
		}
	case "initiator":
		rec = &InitiatorRecord{
			Order:         order,
			Version:       byte(num("version")),
			FormatIndex:   uint16(num("index")),
			SelectionAtom: num("atom"),
		}
	case "table":
		tab := &FormatListTable{Order: order, Version: byte(num("version"))}
		for _, ls := range strings.Split(kv["lists"], "/") {
			l := []uint32{}
			for _, s := range strings.Split(ls, ",") {
				u, err2 := strconv.ParseUint(s, 0, 32)
				if err2 != nil {
					return nil, err2
				}
				l = append(l, uint32(u))
			}
			tab.Lists = append(tab.Lists, l)
		}
		rec = tab
	default:
		return nil, fmt.Errorf("unknown record kind: %v", fields[0])
	}
	return rec, err
}

//----------

func TestRoundTripBothOrders(t *testing.T) {
	for _, order := range []byte{OrderLittle, OrderBig} {
		cr := &CapabilityRecord{Order: order, Version: 1, Style: StylePreferDynamic, ProxyWindow: 0xabcdef, TableOffset: 3}
		cr2, err := DecodeCapabilityRecord(cr.Encode())
		if err != nil {
			t.Fatal(err)
		}
		if *cr2 != *cr {
			t.Fatalf("%v != %v", spew.Sdump(cr2), spew.Sdump(cr))
		}

		msgs := []*DragMessage{
			{Reason: ReasonTopLevelEnter, Order: order, Flags: MakeFlags(OpCopy, StatusNone, OpCopy|OpMove), Time: 7, FormatIndex: 12, SelectionAtom: 0x3344},
			{Reason: ReasonDragMotion, Order: order, Flags: MakeFlags(OpMove, StatusNone, OpMove), Time: 8, X: -5, Y: 1000},
			{Reason: ReasonTopLevelLeave, Order: order, Time: 9},
			{Reason: ReasonDropStart, Order: order, Flags: MakeFlags(OpLink, StatusNone, OpLink), Time: 10, X: 1, Y: 2},
			{Reason: ReasonOperationChanged, Sender: SenderReceiver, Order: order, Flags: MakeFlags(OpCopy, StatusValidDropSite, OpCopy), Time: 11, X: 3, Y: 4},
		}
		for _, m := range msgs {
			m2, err := DecodeDragMessage(m.Encode())
			if err != nil {
				t.Fatal(err)
			}
			if *m2 != *m {
				t.Fatalf("%v != %v", spew.Sdump(m2), spew.Sdump(m))
			}
		}

		tab := &FormatListTable{Order: order, Version: ProtocolVersion, Lists: [][]uint32{{1, 2, 3}, {}, {0xffffffff}}}
		tab2, err := DecodeFormatListTable(tab.Encode())
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(tab, tab2) {
			t.Fatalf("%v != %v", spew.Sdump(tab2), spew.Sdump(tab))
		}
	}
}

func TestSwappedDecode(t *testing.T) {
	// encode in the non native order, decoder must swap
	other := OrderBig
	if NativeOrder() == OrderBig {
		other = OrderLittle
	}
	m := &DragMessage{Reason: ReasonDragMotion, Order: other, Flags: 0x0123, Time: 0x01020304, X: 0x0506, Y: 0x0708}
	b := m.Encode()
	if b[1] != other {
		t.Fatalf("order byte: %v", b[1])
	}
	m2, err := DecodeDragMessage(b)
	if err != nil {
		t.Fatal(err)
	}
	if m2.Time != 0x01020304 || m2.X != 0x0506 || m2.Flags != 0x0123 {
		t.Fatal(spew.Sdump(m2))
	}
}

func TestDecodeShort(t *testing.T) {
	cr := (&CapabilityRecord{Version: 0, Style: StyleDynamic}).Encode()
	if _, err := DecodeCapabilityRecord(cr[:CapabilityRecordSize-1]); err != ErrShort {
		t.Fatalf("expecting short: %v", err)
	}
	m := (&DragMessage{Reason: ReasonDragMotion}).Encode()
	if _, err := DecodeDragMessage(m[:5]); err != ErrShort {
		t.Fatalf("expecting short: %v", err)
	}
	if _, err := DecodeFormatListTable([]byte{OrderLittle, 0, 0}); err != ErrShort {
		t.Fatalf("expecting short: %v", err)
	}
}

func TestDecodeNotDialect(t *testing.T) {
	cr := (&CapabilityRecord{Version: ProtocolVersion + 1, Style: StyleDynamic}).Encode()
	_, err := DecodeCapabilityRecord(cr)
	if !IsNotDialect(err) {
		t.Fatalf("expecting version error: %v", err)
	}

	cr[0] = 'x'
	_, err = DecodeCapabilityRecord(cr)
	if !IsNotDialect(err) {
		t.Fatalf("expecting order error: %v", err)
	}

	m := (&DragMessage{Reason: ReasonDragMotion}).Encode()
	m[0] = 7
	if _, err := DecodeDragMessage(m); err != ErrTag {
		t.Fatalf("expecting tag error: %v", err)
	}
}

func TestDecodeTableBounds(t *testing.T) {
	tab := &FormatListTable{Order: OrderLittle, Lists: [][]uint32{{1, 2}, {3}}}
	b := tab.Encode()

	// total length larger than the buffer
	if _, err := DecodeFormatListTable(b[:len(b)-1]); err != ErrFormat {
		t.Fatalf("expecting format error: %v", err)
	}

	// entry count larger than the data
	b2 := append([]byte{}, b...)
	b2[2] = 5
	if _, err := DecodeFormatListTable(b2); err != ErrFormat {
		t.Fatalf("expecting format error: %v", err)
	}

	// format count larger than the data
	b3 := append([]byte{}, b...)
	b3[8] = 0xff
	if _, err := DecodeFormatListTable(b3); err != ErrFormat {
		t.Fatalf("expecting format error: %v", err)
	}

	// trailing bytes past the total length are ignored
	b4 := append(append([]byte{}, b...), 1, 2, 3)
	tab2, err := DecodeFormatListTable(b4)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(tab2.Lists, tab.Lists) {
		t.Fatal(spew.Sdump(tab2))
	}
}

func TestFlags(t *testing.T) {
	f := MakeFlags(OpLink, StatusInvalidDropSite, OpCopy|OpLink)
	if f.Operation() != OpLink || f.Status() != StatusInvalidDropSite || f.Operations() != OpCopy|OpLink {
		t.Fatalf("%#x", uint16(f))
	}
}
