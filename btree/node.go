package btree

import (
	"hash/crc32"

	"github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/go-journal/common"

	"github.com/trashguy/Fornax-sub002/codec"
)

// Node layout, one node per 4096-byte block.
//
// header (16 bytes):
//   level u8 @0 (0 = leaf), item_count u16 @1, generation u64 @4,
//   checksum u32 @12 (CRC-32 over the block with the field zeroed)
//
// leaf: 21-byte item headers grow forward from byte 16, payloads grow
// backward from byte 4095 (dual-cursor packing).
//   item header: ino u64, type u8, offset u64, data_off u16, data_sz u16
//
// internal: 17-byte separator keys from byte 16, then item_count+1
// child block numbers of 8 bytes each.
const (
	hdrSz     = 16
	leafHdrSz = 21
	keySz     = 17

	hdrLevel = 0
	hdrCount = 1
	hdrGen   = 4
	hdrCksum = 12
)

// maxInternalKeys is the most separators an internal node holds:
// hdrSz + n*keySz + (n+1)*8 <= BlockSize.
const maxInternalKeys = (int(disk.BlockSize) - hdrSz - 8) / (keySz + 8)

type item struct {
	key  Key
	data []byte
}

func nodeLevel(blk disk.Block) uint8 {
	return blk[hdrLevel]
}

func nodeCount(blk disk.Block) int {
	return int(codec.GetU16(blk[hdrCount:]))
}

func nodeGen(blk disk.Block) uint64 {
	return codec.GetU64(blk[hdrGen:])
}

func setHeader(blk disk.Block, level uint8, count int, gen uint64) {
	blk[hdrLevel] = level
	codec.PutU16(blk[hdrCount:], uint16(count))
	codec.PutU64(blk[hdrGen:], gen)
}

// stampChecksum must run last, after all other bytes are in place.
func stampChecksum(blk disk.Block) {
	codec.PutU32(blk[hdrCksum:], 0)
	codec.PutU32(blk[hdrCksum:], crc32.ChecksumIEEE(blk))
}

func checkNode(blk disk.Block) bool {
	stored := codec.GetU32(blk[hdrCksum:])
	scratch := make([]byte, disk.BlockSize)
	copy(scratch, blk)
	codec.PutU32(scratch[hdrCksum:], 0)
	return crc32.ChecksumIEEE(scratch) == stored
}

func putKey(b []byte, k Key) {
	codec.PutU64(b[0:], uint64(k.Ino))
	b[8] = k.Typ
	codec.PutU64(b[9:], k.Off)
}

func getKey(b []byte) Key {
	return Key{
		Ino: common.Inum(codec.GetU64(b[0:])),
		Typ: b[8],
		Off: codec.GetU64(b[9:]),
	}
}

// leafItems parses a leaf into its sorted item list. Payload slices
// alias blk.
func leafItems(blk disk.Block) []item {
	n := nodeCount(blk)
	items := make([]item, 0, n)
	for i := 0; i < n; i++ {
		h := blk[hdrSz+i*leafHdrSz:]
		off := codec.GetU16(h[17:])
		sz := codec.GetU16(h[19:])
		items = append(items, item{
			key:  getKey(h),
			data: blk[off : uint64(off)+uint64(sz)],
		})
	}
	return items
}

// leafBytes is the block space items would occupy in a leaf.
func leafBytes(items []item) int {
	n := hdrSz
	for _, it := range items {
		n += leafHdrSz + len(it.data)
	}
	return n
}

func leafFits(items []item) bool {
	return leafBytes(items) <= int(disk.BlockSize)
}

// buildLeaf packs sorted items into a fresh leaf block: headers from
// the front, payloads from the back.
func buildLeaf(items []item, gen uint64) disk.Block {
	if !leafFits(items) {
		panic("buildLeaf: items overflow block")
	}
	blk := make([]byte, disk.BlockSize)
	setHeader(blk, 0, len(items), gen)
	tail := int(disk.BlockSize)
	for i, it := range items {
		tail -= len(it.data)
		copy(blk[tail:], it.data)
		h := blk[hdrSz+i*leafHdrSz:]
		putKey(h, it.key)
		codec.PutU16(h[17:], uint16(tail))
		codec.PutU16(h[19:], uint16(len(it.data)))
	}
	return blk
}

// internalNode is the in-memory form of an internal node:
// len(children) == len(keys)+1, child[i] holds keys < keys[i],
// child[len(keys)] holds keys >= the last separator.
type internalNode struct {
	level    uint8
	keys     []Key
	children []common.Bnum
}

func parseInternal(blk disk.Block) *internalNode {
	n := nodeCount(blk)
	in := &internalNode{
		level:    nodeLevel(blk),
		keys:     make([]Key, n),
		children: make([]common.Bnum, n+1),
	}
	for i := 0; i < n; i++ {
		in.keys[i] = getKey(blk[hdrSz+i*keySz:])
	}
	base := hdrSz + n*keySz
	for i := 0; i <= n; i++ {
		in.children[i] = common.Bnum(codec.GetU64(blk[base+i*8:]))
	}
	return in
}

func buildInternal(in *internalNode, gen uint64) disk.Block {
	n := len(in.keys)
	if len(in.children) != n+1 {
		panic("buildInternal: children/keys mismatch")
	}
	if n > maxInternalKeys {
		panic("buildInternal: too many keys")
	}
	blk := make([]byte, disk.BlockSize)
	setHeader(blk, in.level, n, gen)
	for i := 0; i < n; i++ {
		putKey(blk[hdrSz+i*keySz:], in.keys[i])
	}
	base := hdrSz + n*keySz
	for i := 0; i <= n; i++ {
		codec.PutU64(blk[base+i*8:], uint64(in.children[i]))
	}
	return blk
}
