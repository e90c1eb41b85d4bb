// Package codec has positioned little-endian helpers for poking
// integers into fixed-layout disk blocks. Whole-record encoding goes
// through tchajed/marshal; these cover the u16 fields and the
// random-access writes inside a node block that a sequential encoder
// cannot express.
package codec

import (
	"github.com/tchajed/goose/machine"
)

func PutU16(b []byte, x uint16) {
	b[0] = byte(x)
	b[1] = byte(x >> 8)
}

func GetU16(b []byte) uint16 {
	return uint16(b[0]) | uint16(b[1])<<8
}

func PutU32(b []byte, x uint32) {
	machine.UInt32Put(b, x)
}

func GetU32(b []byte) uint32 {
	return machine.UInt32Get(b)
}

func PutU64(b []byte, x uint64) {
	machine.UInt64Put(b, x)
}

func GetU64(b []byte) uint64 {
	return machine.UInt64Get(b)
}
