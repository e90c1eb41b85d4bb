// Package bcache is a small write-through block cache in front of the
// device. All access is serialized by the engine lock, so there is no
// locking here.
package bcache

import (
	"github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/go-journal/common"
	"github.com/mit-pdos/go-journal/util"
)

const BCACHESZ uint64 = 16

type entry struct {
	blk disk.Block
	use uint64 // bumped on every hit; lowest use is the eviction victim
}

type Bcache struct {
	d       disk.Disk
	entries map[common.Bnum]*entry
}

func MkBcache(d disk.Disk) *Bcache {
	return &Bcache{
		d:       d,
		entries: make(map[common.Bnum]*entry, BCACHESZ),
	}
}

func (bc *Bcache) evict() {
	var victim common.Bnum
	var low uint64
	first := true
	for bn, e := range bc.entries {
		if first || e.use < low {
			victim = bn
			low = e.use
			first = false
		}
	}
	if first {
		panic("evict: empty cache")
	}
	util.DPrintf(10, "bcache evict %d\n", victim)
	delete(bc.entries, victim)
}

// Read returns a copy of block bn, from cache if resident.
func (bc *Bcache) Read(bn common.Bnum) disk.Block {
	if e, ok := bc.entries[bn]; ok {
		e.use += 1
		blk := make([]byte, disk.BlockSize)
		copy(blk, e.blk)
		return blk
	}
	blk := bc.d.Read(uint64(bn))
	bc.insert(bn, blk)
	ret := make([]byte, disk.BlockSize)
	copy(ret, blk)
	return ret
}

func (bc *Bcache) insert(bn common.Bnum, blk disk.Block) {
	if uint64(len(bc.entries)) >= BCACHESZ {
		bc.evict()
	}
	kept := make([]byte, disk.BlockSize)
	copy(kept, blk)
	bc.entries[bn] = &entry{blk: kept, use: 1}
}

// Write writes through to the device and keeps the cache coherent
// with what was just written.
func (bc *Bcache) Write(bn common.Bnum, blk disk.Block) {
	if blk == nil {
		panic("Write: nil block")
	}
	bc.d.Write(uint64(bn), blk)
	if e, ok := bc.entries[bn]; ok {
		copy(e.blk, blk)
		e.use += 1
	} else {
		bc.insert(bn, blk)
	}
}

// Invalidate drops bn from the cache. Called when a block is freed;
// a freed block must never be served with stale content.
func (bc *Bcache) Invalidate(bn common.Bnum) {
	delete(bc.entries, bn)
}

func (bc *Bcache) Size() uint64 {
	return bc.d.Size()
}
