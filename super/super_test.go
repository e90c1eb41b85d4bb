package super

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayout(t *testing.T) {
	sb := MkFsSuper(1000)
	assert.Equal(t, uint64(2), uint64(sb.BitmapStart))
	assert.Equal(t, uint64(1), sb.NBitmapBlocks())
	assert.Equal(t, uint64(3), uint64(sb.DataStart))
	assert.Equal(t, uint64(997), sb.FreeBlocks)

	// just past one bitmap block's coverage
	big := MkFsSuper(NBITBLOCK + 1)
	assert.Equal(t, uint64(2), big.NBitmapBlocks())
}

func TestEncodeDecode(t *testing.T) {
	sb := MkFsSuper(1000)
	sb.TreeRoot = 17
	sb.NextInode = 42
	sb.Generation = 9

	got, ok := Decode(sb.Encode())
	require.True(t, ok)
	assert.Equal(t, sb, got)
}

func TestDecodeRejectsCorruption(t *testing.T) {
	sb := MkFsSuper(1000)
	blk := sb.Encode()

	bad := make([]byte, len(blk))
	copy(bad, blk)
	bad[0] = 'X'
	_, ok := Decode(bad)
	assert.False(t, ok, "bad magic")

	copy(bad, blk)
	bad[24] ^= 0xff // tree root field
	_, ok = Decode(bad)
	assert.False(t, ok, "bad checksum")
}
