// Package super holds the on-disk superblock and the disk layout
// derived from it. The superblock is the root of truth: the tree root
// it names is the live tree, and it is the last thing written in
// every commit.
package super

import (
	"hash/crc32"

	"github.com/goose-lang/std"
	"github.com/tchajed/goose/machine/disk"
	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-journal/common"
)

const Magic = "FXFS0001"

const (
	PrimaryBlock common.Bnum = 0
	BackupBlock  common.Bnum = 1
	SuperSz      uint64      = 80

	// one bit per block, so one bitmap block covers 128 MB
	NBITBLOCK uint64 = disk.BlockSize * 8
)

type FsSuper struct {
	BlockSz     uint32
	TotalBlocks uint64
	TreeRoot    common.Bnum
	NextInode   common.Inum
	FreeBlocks  uint64
	Generation  uint64
	BitmapStart common.Bnum
	DataStart   common.Bnum
}

// MkFsSuper computes the layout for a blank device of sz blocks. Two
// superblock copies, then the bitmap, then the data region.
func MkFsSuper(sz uint64) *FsSuper {
	nbitmap := (sz + NBITBLOCK - 1) / NBITBLOCK
	dataStart := 2 + nbitmap
	return &FsSuper{
		BlockSz:     uint32(disk.BlockSize),
		TotalBlocks: sz,
		TreeRoot:    common.NULLBNUM,
		NextInode:   common.ROOTINUM,
		FreeBlocks:  sz - dataStart,
		Generation:  0,
		BitmapStart: 2,
		DataStart:   common.Bnum(dataStart),
	}
}

func (sb *FsSuper) NBitmapBlocks() uint64 {
	return uint64(sb.DataStart) - uint64(sb.BitmapStart)
}

func (sb *FsSuper) Encode() disk.Block {
	enc := marshal.NewEnc(disk.BlockSize)
	enc.PutBytes([]byte(Magic))
	enc.PutInt32(sb.BlockSz)
	enc.PutInt32(0) // pad to offset 16
	enc.PutInt(sb.TotalBlocks)
	enc.PutInt(uint64(sb.TreeRoot))
	enc.PutInt(uint64(sb.NextInode))
	enc.PutInt(sb.FreeBlocks)
	enc.PutInt(sb.Generation)
	enc.PutInt(uint64(sb.BitmapStart))
	enc.PutInt(uint64(sb.DataStart))
	enc.PutInt32(0) // pad to offset 76
	enc.PutInt32(0) // checksum, filled in below
	blk := enc.Finish()
	ck := crc32.ChecksumIEEE(blk[:SuperSz])
	marshal.NewEncFromSlice(blk[76:SuperSz]).PutInt32(ck)
	return blk
}

// Decode validates magic and checksum; a superblock that fails either
// is never trusted, even partially.
func Decode(blk disk.Block) (*FsSuper, bool) {
	if !std.BytesEqual(blk[0:8], []byte(Magic)) {
		return nil, false
	}
	stored := marshal.NewDec(blk[76:SuperSz]).GetInt32()
	scratch := make([]byte, SuperSz)
	copy(scratch, blk[:SuperSz])
	scratch[76] = 0
	scratch[77] = 0
	scratch[78] = 0
	scratch[79] = 0
	if crc32.ChecksumIEEE(scratch) != stored {
		return nil, false
	}
	dec := marshal.NewDec(blk)
	dec.GetBytes(8)  // magic
	blockSz := dec.GetInt32()
	dec.GetInt32() // pad
	sb := &FsSuper{
		BlockSz:     blockSz,
		TotalBlocks: dec.GetInt(),
		TreeRoot:    common.Bnum(dec.GetInt()),
		NextInode:   common.Inum(dec.GetInt()),
		FreeBlocks:  dec.GetInt(),
		Generation:  dec.GetInt(),
		BitmapStart: common.Bnum(dec.GetInt()),
		DataStart:   common.Bnum(dec.GetInt()),
	}
	if sb.BlockSz != uint32(disk.BlockSize) {
		return nil, false
	}
	return sb, true
}
