package alloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/go-journal/common"

	"github.com/trashguy/Fornax-sub002/bcache"
	"github.com/trashguy/Fornax-sub002/super"
)

func mkAlloc(t *testing.T, nblocks uint64) *Alloc {
	t.Helper()
	d := disk.NewMemDisk(nblocks)
	bc := bcache.MkBcache(d)
	sb := super.MkFsSuper(nblocks)
	a := MkAlloc(bc, sb)
	a.Zero()
	a.MarkSystem()
	return a
}

func TestAllocSequential(t *testing.T) {
	a := mkAlloc(t, 100)
	b1, ok := a.AllocBlock()
	require.True(t, ok)
	b2, ok := a.AllocBlock()
	require.True(t, ok)
	assert.Equal(t, uint64(a.dstart), uint64(b1))
	assert.Equal(t, uint64(b1)+1, uint64(b2), "hint gives near-sequential placement")
}

func TestFreeAndCounter(t *testing.T) {
	a := mkAlloc(t, 100)
	before := a.NumFree()
	bn, ok := a.AllocBlock()
	require.True(t, ok)
	assert.Equal(t, before-1, a.NumFree())
	a.FreeBlock(bn)
	assert.Equal(t, before, a.NumFree())
}

func TestExhaustion(t *testing.T) {
	a := mkAlloc(t, 16)
	var got []common.Bnum
	for {
		bn, ok := a.AllocBlock()
		if !ok {
			break
		}
		got = append(got, bn)
	}
	assert.Equal(t, int(16-uint64(a.dstart)), len(got))
	assert.Equal(t, uint64(0), a.NumFree())

	// freeing one makes it allocatable again, after hint wrap
	a.FreeBlock(got[0])
	bn, ok := a.AllocBlock()
	require.True(t, ok)
	assert.Equal(t, got[0], bn)
}

func TestDoubleFreePanics(t *testing.T) {
	a := mkAlloc(t, 100)
	bn, ok := a.AllocBlock()
	require.True(t, ok)
	a.FreeBlock(bn)
	assert.Panics(t, func() { a.FreeBlock(bn) })
}

func TestFlushPersists(t *testing.T) {
	nblocks := uint64(100)
	d := disk.NewMemDisk(nblocks)
	bc := bcache.MkBcache(d)
	sb := super.MkFsSuper(nblocks)
	a := MkAlloc(bc, sb)
	a.Zero()
	a.MarkSystem()

	bn, ok := a.AllocBlock()
	require.True(t, ok)
	a.Flush()

	// a fresh allocator over the same device must see the bit
	sb2 := super.MkFsSuper(nblocks)
	sb2.FreeBlocks = a.NumFree()
	a2 := MkAlloc(bcache.MkBcache(d), sb2)
	assert.True(t, a2.isSet(bn))
}
