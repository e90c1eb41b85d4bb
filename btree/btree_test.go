package btree

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/go-journal/common"

	"github.com/trashguy/Fornax-sub002/alloc"
	"github.com/trashguy/Fornax-sub002/bcache"
	"github.com/trashguy/Fornax-sub002/super"
)

func mkTree(t *testing.T) *Tree {
	t.Helper()
	d := disk.NewMemDisk(4096)
	bc := bcache.MkBcache(d)
	sb := super.MkFsSuper(4096)
	a := alloc.MkAlloc(bc, sb)
	a.Zero()
	a.MarkSystem()
	return MkTree(bc, a, common.NULLBNUM, 1)
}

func payload(off uint64) []byte {
	return []byte(fmt.Sprintf("value-%06d", off))
}

func TestInsertSearch(t *testing.T) {
	tr := mkTree(t)
	k := Key{Ino: 1, Typ: 3, Off: 42}
	require.NoError(t, tr.Insert(k, []byte("hello")))
	got, err := tr.Search(k)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)

	_, err = tr.Search(Key{Ino: 1, Typ: 3, Off: 43})
	assert.Equal(t, ErrNotFound, err)
}

func TestInsertDuplicate(t *testing.T) {
	tr := mkTree(t)
	k := Key{Ino: 1, Typ: 1, Off: 0}
	require.NoError(t, tr.Insert(k, []byte("a")))
	assert.Equal(t, ErrExists, tr.Insert(k, []byte("b")))
}

// enough distinct keys under one inode to force leaf splits (and a
// taller tree), then verify every key is still retrievable and the
// scan yields ascending order.
func TestSplitRoundTrip(t *testing.T) {
	tr := mkTree(t)
	const n = 500
	offs := rand.Perm(n)
	for _, o := range offs {
		k := Key{Ino: 7, Typ: 3, Off: uint64(o)}
		require.NoError(t, tr.Insert(k, payload(uint64(o))))
	}

	for o := 0; o < n; o++ {
		got, err := tr.Search(Key{Ino: 7, Typ: 3, Off: uint64(o)})
		require.NoError(t, err, "offset %d", o)
		assert.Equal(t, payload(uint64(o)), got)
	}

	var seen []uint64
	err := tr.Scan(7, 3, func(k Key, data []byte) bool {
		seen = append(seen, k.Off)
		assert.Equal(t, payload(k.Off), data)
		return true
	})
	require.NoError(t, err)
	require.Len(t, seen, n)
	for i := 1; i < len(seen); i++ {
		assert.Less(t, seen[i-1], seen[i], "scan out of order")
	}

	// the root must be internal by now
	blk, err := tr.readNode(tr.Root())
	require.NoError(t, err)
	assert.Greater(t, nodeLevel(blk), uint8(0))
}

func TestScanStopsAtPrefix(t *testing.T) {
	tr := mkTree(t)
	require.NoError(t, tr.Insert(Key{Ino: 1, Typ: 1, Off: 0}, []byte("i1")))
	require.NoError(t, tr.Insert(Key{Ino: 1, Typ: 2, Off: 99}, []byte("d1")))
	require.NoError(t, tr.Insert(Key{Ino: 1, Typ: 3, Off: 0}, []byte("x1")))
	require.NoError(t, tr.Insert(Key{Ino: 2, Typ: 2, Off: 5}, []byte("d2")))

	var got [][]byte
	require.NoError(t, tr.Scan(1, 2, func(k Key, data []byte) bool {
		got = append(got, data)
		return true
	}))
	assert.Equal(t, [][]byte{[]byte("d1")}, got)
}

func TestUpdateLeavesOneItem(t *testing.T) {
	tr := mkTree(t)
	k := Key{Ino: 3, Typ: 2, Off: 77}
	require.NoError(t, tr.Insert(k, []byte("v1")))
	require.NoError(t, tr.Update(k, []byte("v2")))

	got, err := tr.Search(k)
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)

	count := 0
	require.NoError(t, tr.Scan(3, 2, func(Key, []byte) bool {
		count += 1
		return true
	}))
	assert.Equal(t, 1, count)
}

func TestDelete(t *testing.T) {
	tr := mkTree(t)
	for o := uint64(0); o < 10; o++ {
		require.NoError(t, tr.Insert(Key{Ino: 5, Typ: 3, Off: o}, payload(o)))
	}
	require.NoError(t, tr.Delete(Key{Ino: 5, Typ: 3, Off: 4}))
	_, err := tr.Search(Key{Ino: 5, Typ: 3, Off: 4})
	assert.Equal(t, ErrNotFound, err)
	for o := uint64(0); o < 10; o++ {
		if o == 4 {
			continue
		}
		_, err := tr.Search(Key{Ino: 5, Typ: 3, Off: o})
		assert.NoError(t, err, "offset %d", o)
	}

	assert.Equal(t, ErrNotFound, tr.Delete(Key{Ino: 5, Typ: 3, Off: 4}))
}

func TestDeleteLastItem(t *testing.T) {
	tr := mkTree(t)
	k := Key{Ino: 9, Typ: 1, Off: 0}
	require.NoError(t, tr.Insert(k, []byte("only")))
	require.NoError(t, tr.Delete(k))

	_, err := tr.Search(k)
	assert.Equal(t, ErrNotFound, err)
	count := 0
	require.NoError(t, tr.Scan(9, 1, func(Key, []byte) bool {
		count += 1
		return true
	}))
	assert.Equal(t, 0, count)
}

// The old root stays byte-for-byte valid until a commit publishes the
// new one: a reader holding the pre-mutation root sees the
// pre-mutation tree.
func TestOldTreeIntactBeforeCommit(t *testing.T) {
	tr := mkTree(t)
	for o := uint64(0); o < 20; o++ {
		require.NoError(t, tr.Insert(Key{Ino: 4, Typ: 3, Off: o}, payload(o)))
	}
	oldRoot := tr.Root()

	require.NoError(t, tr.Insert(Key{Ino: 4, Typ: 3, Off: 100}, []byte("new")))
	require.NoError(t, tr.Delete(Key{Ino: 4, Typ: 3, Off: 0}))

	old := MkTree(tr.bc, tr.alloc, oldRoot, 1)
	count := 0
	require.NoError(t, old.Scan(4, 3, func(k Key, data []byte) bool {
		assert.Equal(t, payload(k.Off), data)
		count += 1
		return true
	}))
	assert.Equal(t, 20, count)
	_, err := old.Search(Key{Ino: 4, Typ: 3, Off: 100})
	assert.Equal(t, ErrNotFound, err)
}
