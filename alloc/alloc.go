// Package alloc manages the on-disk free-block bitmap: one bit per
// block, 1 = allocated. Only one bitmap block is resident at a time;
// switching to another one flushes the dirty resident block first.
package alloc

import (
	"github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/go-journal/common"
	"github.com/mit-pdos/go-journal/util"

	"github.com/trashguy/Fornax-sub002/bcache"
	"github.com/trashguy/Fornax-sub002/super"
)

const noBitmapBlock = ^uint64(0)

type Alloc struct {
	bc      *bcache.Bcache
	start   common.Bnum // first bitmap block on disk
	nbm     uint64      // bitmap blocks
	dstart  common.Bnum // first allocatable block
	nblocks uint64      // total blocks covered by the bitmap
	hint    uint64      // next block number to try
	nfree   uint64

	// resident bitmap block
	bmIdx   uint64 // index of the resident bitmap block, noBitmapBlock if none
	bmData  disk.Block
	bmDirty bool
}

func MkAlloc(bc *bcache.Bcache, sb *super.FsSuper) *Alloc {
	return &Alloc{
		bc:      bc,
		start:   sb.BitmapStart,
		nbm:     sb.NBitmapBlocks(),
		dstart:  sb.DataStart,
		nblocks: sb.TotalBlocks,
		hint:    uint64(sb.DataStart),
		nfree:   sb.FreeBlocks,
		bmIdx:   noBitmapBlock,
	}
}

// load makes the bitmap block covering bn resident.
func (a *Alloc) load(bn common.Bnum) {
	idx := uint64(bn) / super.NBITBLOCK
	if idx >= a.nbm {
		panic("alloc: block outside bitmap")
	}
	if a.bmIdx == idx {
		return
	}
	if a.bmDirty {
		a.bc.Write(a.start+common.Bnum(a.bmIdx), a.bmData)
		a.bmDirty = false
	}
	a.bmData = a.bc.Read(a.start + common.Bnum(idx))
	a.bmIdx = idx
}

func (a *Alloc) bit(bn common.Bnum) (byteIdx uint64, mask byte) {
	off := uint64(bn) % super.NBITBLOCK
	return off / 8, byte(1) << (off % 8)
}

func (a *Alloc) isSet(bn common.Bnum) bool {
	a.load(bn)
	i, m := a.bit(bn)
	return a.bmData[i]&m != 0
}

func (a *Alloc) set(bn common.Bnum) {
	a.load(bn)
	i, m := a.bit(bn)
	a.bmData[i] |= m
	a.bmDirty = true
}

// AllocBlock scans forward from the rolling hint for a free block,
// wrapping to the start of the data region. Returns false when the
// device is full.
func (a *Alloc) AllocBlock() (common.Bnum, bool) {
	if a.nfree == 0 {
		return common.NULLBNUM, false
	}
	bn := a.hint
	for i := uint64(0); i < a.nblocks; i++ {
		if bn >= a.nblocks {
			bn = uint64(a.dstart)
		}
		if !a.isSet(common.Bnum(bn)) {
			a.set(common.Bnum(bn))
			a.nfree -= 1
			a.hint = bn + 1
			util.DPrintf(10, "AllocBlock -> %d\n", bn)
			return common.Bnum(bn), true
		}
		bn += 1
	}
	return common.NULLBNUM, false
}

// FreeBlock clears bn's bit and drops any cached copy of the block so
// stale content is never served after reallocation.
func (a *Alloc) FreeBlock(bn common.Bnum) {
	if bn < a.dstart || uint64(bn) >= a.nblocks {
		panic("FreeBlock: block outside data region")
	}
	a.load(bn)
	i, m := a.bit(bn)
	if a.bmData[i]&m == 0 {
		panic("FreeBlock: double free")
	}
	a.bmData[i] &^= m
	a.bmDirty = true
	a.nfree += 1
	a.bc.Invalidate(bn)
	util.DPrintf(10, "FreeBlock %d\n", bn)
}

// Zero clears the whole on-disk bitmap. Used only when formatting a
// blank device, whose bitmap blocks hold garbage.
func (a *Alloc) Zero() {
	zero := make([]byte, disk.BlockSize)
	for i := uint64(0); i < a.nbm; i++ {
		a.bc.Write(a.start+common.Bnum(i), zero)
	}
	a.bmIdx = noBitmapBlock
	a.bmDirty = false
}

// MarkSystem reserves every block below the data region. Used only
// when formatting a blank device, before any allocation.
func (a *Alloc) MarkSystem() {
	for bn := common.Bnum(0); bn < a.dstart; bn++ {
		a.set(bn)
	}
}

// Flush writes the dirty resident bitmap block. Run as part of every
// commit, before the superblock goes out.
func (a *Alloc) Flush() {
	if a.bmDirty {
		a.bc.Write(a.start+common.Bnum(a.bmIdx), a.bmData)
		a.bmDirty = false
	}
}

func (a *Alloc) NumFree() uint64 {
	return a.nfree
}
