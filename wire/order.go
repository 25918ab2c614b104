// Package wire encodes and decodes the fixed layout binary records used in
// drag and drop negotiation. Every record starts with a byte order sentinel
// and multi-byte fields are written in the encoder's order; decoders swap
// when the sentinel does not match.
package wire

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"golang.org/x/sys/cpu"
)

const (
	OrderLittle byte = 'l'
	OrderBig    byte = 'B'
)

// Highest record version understood. Older versions share the layout.
const ProtocolVersion byte = 2

var (
	ErrShort   = errors.New("wire: short record")
	ErrOrder   = errors.New("wire: bad byte order")
	ErrVersion = errors.New("wire: unsupported version")
	ErrTag     = errors.New("wire: unknown tag")
	ErrFormat  = errors.New("wire: malformed record")
)

func NativeOrder() byte {
	if cpu.IsBigEndian {
		return OrderBig
	}
	return OrderLittle
}

func byteOrder(sentinel byte) (binary.ByteOrder, error) {
	switch sentinel {
	case OrderLittle:
		return binary.LittleEndian, nil
	case OrderBig:
		return binary.BigEndian, nil
	}
	return nil, ErrOrder
}

func ByteOrder(sentinel byte) (binary.ByteOrder, error) {
	return byteOrder(sentinel)
}

// Zero means native.
func encodeOrder(sentinel byte) (byte, binary.ByteOrder) {
	if sentinel == 0 {
		sentinel = NativeOrder()
	}
	bo, err := byteOrder(sentinel)
	if err != nil {
		sentinel = NativeOrder()
		bo, _ = byteOrder(sentinel)
	}
	return sentinel, bo
}

func checkVersion(v byte) error {
	if v > ProtocolVersion {
		return errors.Wrapf(ErrVersion, "%d", v)
	}
	return nil
}

// IsNotDialect reports errors that mean "the peer does not speak this
// record format" rather than a transport problem.
func IsNotDialect(err error) bool {
	switch errors.Cause(err) {
	case ErrShort, ErrOrder, ErrVersion, ErrTag, ErrFormat:
		return true
	}
	return false
}
