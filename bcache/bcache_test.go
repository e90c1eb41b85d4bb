package bcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tchajed/goose/machine/disk"
)

func mkBlock(tag byte) disk.Block {
	blk := make([]byte, disk.BlockSize)
	blk[0] = tag
	return blk
}

func TestReadWrite(t *testing.T) {
	d := disk.NewMemDisk(64)
	bc := MkBcache(d)

	bc.Write(3, mkBlock(0xaa))
	blk := bc.Read(3)
	assert.Equal(t, byte(0xaa), blk[0])

	// write-through: the device sees it too
	assert.Equal(t, byte(0xaa), d.Read(3)[0])
}

func TestReadReturnsCopy(t *testing.T) {
	d := disk.NewMemDisk(64)
	bc := MkBcache(d)

	bc.Write(5, mkBlock(0x11))
	blk := bc.Read(5)
	blk[0] = 0x99
	assert.Equal(t, byte(0x11), bc.Read(5)[0])
}

func TestInvalidate(t *testing.T) {
	d := disk.NewMemDisk(64)
	bc := MkBcache(d)

	bc.Write(7, mkBlock(0x22))
	bc.Invalidate(7)
	// device was since overwritten behind the cache's back
	d.Write(7, mkBlock(0x33))
	assert.Equal(t, byte(0x33), bc.Read(7)[0])
}

func TestEvictLowestUse(t *testing.T) {
	d := disk.NewMemDisk(128)
	bc := MkBcache(d)

	for i := uint64(0); i < BCACHESZ; i++ {
		bc.Write(i, mkBlock(byte(i)))
	}
	// make block 0 hot, leave block 1 cold
	for i := 0; i < 10; i++ {
		bc.Read(0)
	}
	// one more insert forces an eviction
	bc.Write(BCACHESZ, mkBlock(0xff))
	require.LessOrEqual(t, uint64(len(bc.entries)), BCACHESZ)
	_, hot := bc.entries[0]
	assert.True(t, hot, "hot block should survive eviction")
}
