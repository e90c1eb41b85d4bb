// Package btree is the copy-on-write B-tree the filesystem stores all
// its items in. No node is ever mutated in place: every change builds
// new blocks from leaf to root and the previous tree stays intact and
// reachable from the old root until the superblock commit publishes
// the new one. That ordering is the engine's entire crash-consistency
// story.
package btree

import (
	"errors"

	"github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/go-journal/common"
	"github.com/mit-pdos/go-journal/util"

	"github.com/trashguy/Fornax-sub002/bcache"
)

var (
	ErrNotFound = errors.New("btree: key not found")
	ErrExists   = errors.New("btree: key already present")
	ErrNoSpace  = errors.New("btree: out of blocks")
	ErrCorrupt  = errors.New("btree: node checksum mismatch")
)

// MaxDepth bounds the descent path. With ~162-way internal fanout a
// depth-10 tree is unreachable in practice, so a fixed array replaces
// recursion.
const MaxDepth = 10

type Allocator interface {
	AllocBlock() (common.Bnum, bool)
	FreeBlock(bn common.Bnum)
}

type Tree struct {
	bc    *bcache.Bcache
	alloc Allocator
	root  common.Bnum
	gen   uint64 // stamped on every node written
}

func MkTree(bc *bcache.Bcache, alloc Allocator, root common.Bnum, gen uint64) *Tree {
	return &Tree{bc: bc, alloc: alloc, root: root, gen: gen}
}

func (t *Tree) Root() common.Bnum {
	return t.root
}

// SetGen sets the generation stamped on nodes written from now on.
func (t *Tree) SetGen(gen uint64) {
	t.gen = gen
}

func (t *Tree) readNode(bn common.Bnum) (disk.Block, error) {
	blk := t.bc.Read(bn)
	if !checkNode(blk) {
		util.DPrintf(0, "btree: bad checksum at block %d\n", bn)
		return nil, ErrCorrupt
	}
	return blk, nil
}

// pathEnt records one internal node on the root-to-leaf descent: the
// node's block, which child was taken, and how many separators it had.
type pathEnt struct {
	bn    common.Bnum
	idx   int
	nkeys int
}

// childIndex picks the child covering key: the count of separators
// <= key, so ties go to the later child (search is exact-or-first-
// greater).
func childIndex(keys []Key, key Key) int {
	idx := 0
	for idx < len(keys) && keys[idx].Compare(key) <= 0 {
		idx += 1
	}
	return idx
}

// descend walks from the root to the leaf that covers key, recording
// the internal path.
func (t *Tree) descend(key Key) ([]pathEnt, common.Bnum, disk.Block, error) {
	path := make([]pathEnt, 0, MaxDepth)
	bn := t.root
	for depth := 0; depth < MaxDepth; depth++ {
		blk, err := t.readNode(bn)
		if err != nil {
			return nil, common.NULLBNUM, nil, err
		}
		if nodeLevel(blk) == 0 {
			return path, bn, blk, nil
		}
		in := parseInternal(blk)
		idx := childIndex(in.keys, key)
		path = append(path, pathEnt{bn: bn, idx: idx, nkeys: len(in.keys)})
		bn = in.children[idx]
	}
	panic("descend: tree deeper than MaxDepth")
}

// Search returns the payload stored at key.
func (t *Tree) Search(key Key) ([]byte, error) {
	if t.root == common.NULLBNUM {
		return nil, ErrNotFound
	}
	_, _, leaf, err := t.descend(key)
	if err != nil {
		return nil, err
	}
	for _, it := range leafItems(leaf) {
		if it.key.Compare(key) == 0 {
			data := make([]byte, len(it.data))
			copy(data, it.data)
			return data, nil
		}
	}
	return nil, ErrNotFound
}

// mutation tracks the blocks touched by one insert or delete so a
// failure frees everything written so far and leaves the live tree
// referencing no freed block.
type mutation struct {
	t     *Tree
	fresh []common.Bnum // written this mutation, freed on abort
	stale []common.Bnum // replaced nodes, freed on success
}

func (m *mutation) writeNode(blk disk.Block) (common.Bnum, error) {
	bn, ok := m.t.alloc.AllocBlock()
	if !ok {
		return common.NULLBNUM, ErrNoSpace
	}
	stampChecksum(blk)
	m.t.bc.Write(bn, blk)
	m.fresh = append(m.fresh, bn)
	return bn, nil
}

func (m *mutation) replace(bn common.Bnum) {
	m.stale = append(m.stale, bn)
}

func (m *mutation) abort() {
	for _, bn := range m.fresh {
		m.t.alloc.FreeBlock(bn)
	}
}

func (m *mutation) finish(newRoot common.Bnum) {
	for _, bn := range m.stale {
		m.t.alloc.FreeBlock(bn)
	}
	m.t.root = newRoot
}

type splitRec struct {
	sep   Key // first key covered by right
	right common.Bnum
}

func insertKeyAt(keys []Key, idx int, k Key) []Key {
	out := make([]Key, 0, len(keys)+1)
	out = append(out, keys[:idx]...)
	out = append(out, k)
	out = append(out, keys[idx:]...)
	return out
}

func insertChildAt(children []common.Bnum, idx int, bn common.Bnum) []common.Bnum {
	out := make([]common.Bnum, 0, len(children)+1)
	out = append(out, children[:idx]...)
	out = append(out, bn)
	out = append(out, children[idx:]...)
	return out
}

// rewritePath copies every ancestor on path to a new block, patching
// in newChild (and absorbing sp if a split is propagating). The last
// block written becomes the new root candidate.
func (m *mutation) rewritePath(path []pathEnt, newChild common.Bnum, sp *splitRec) error {
	t := m.t
	var childLevel uint8 = 0
	for lvl := len(path) - 1; lvl >= 0; lvl-- {
		ent := path[lvl]
		blk, err := t.readNode(ent.bn)
		if err != nil {
			return err
		}
		in := parseInternal(blk)
		in.children[ent.idx] = newChild
		if sp != nil {
			in.keys = insertKeyAt(in.keys, ent.idx, sp.sep)
			in.children = insertChildAt(in.children, ent.idx+1, sp.right)
			sp = nil
		}
		if len(in.keys) > maxInternalKeys {
			// this ancestor is full too: split it and keep
			// propagating
			mid := len(in.keys) / 2
			promote := in.keys[mid]
			left := &internalNode{
				level:    in.level,
				keys:     in.keys[:mid],
				children: in.children[:mid+1],
			}
			right := &internalNode{
				level:    in.level,
				keys:     in.keys[mid+1:],
				children: in.children[mid+1:],
			}
			leftBn, err := m.writeNode(buildInternal(left, t.gen))
			if err != nil {
				return err
			}
			rightBn, err := m.writeNode(buildInternal(right, t.gen))
			if err != nil {
				return err
			}
			newChild = leftBn
			sp = &splitRec{sep: promote, right: rightBn}
		} else {
			bn, err := m.writeNode(buildInternal(in, t.gen))
			if err != nil {
				return err
			}
			newChild = bn
		}
		m.replace(ent.bn)
		childLevel = in.level
	}
	if sp != nil {
		// the root itself split: the tree grows a level
		root := &internalNode{
			level:    childLevel + 1,
			keys:     []Key{sp.sep},
			children: []common.Bnum{newChild, sp.right},
		}
		bn, err := m.writeNode(buildInternal(root, t.gen))
		if err != nil {
			return err
		}
		newChild = bn
	}
	m.finish(newChild)
	return nil
}

// Insert adds a new item. The key must not be present; Update is the
// replace path.
func (t *Tree) Insert(key Key, data []byte) error {
	m := &mutation{t: t}
	err := t.insert(m, key, data)
	if err != nil {
		m.abort()
	}
	return err
}

func (t *Tree) insert(m *mutation, key Key, data []byte) error {
	if t.root == common.NULLBNUM {
		bn, err := m.writeNode(buildLeaf([]item{{key: key, data: data}}, t.gen))
		if err != nil {
			return err
		}
		m.finish(bn)
		return nil
	}
	path, leafBn, leaf, err := t.descend(key)
	if err != nil {
		return err
	}
	items := leafItems(leaf)
	pos := 0
	for pos < len(items) && items[pos].key.Compare(key) < 0 {
		pos += 1
	}
	if pos < len(items) && items[pos].key.Compare(key) == 0 {
		return ErrExists
	}
	newItems := make([]item, 0, len(items)+1)
	newItems = append(newItems, items[:pos]...)
	newItems = append(newItems, item{key: key, data: data})
	newItems = append(newItems, items[pos:]...)

	if leafFits(newItems) {
		bn, err := m.writeNode(buildLeaf(newItems, t.gen))
		if err != nil {
			return err
		}
		m.replace(leafBn)
		return m.rewritePath(path, bn, nil)
	}

	// leaf split: partition the combined sorted item list at its
	// midpoint
	mid := len(newItems) / 2
	leftBn, err := m.writeNode(buildLeaf(newItems[:mid], t.gen))
	if err != nil {
		return err
	}
	rightBn, err := m.writeNode(buildLeaf(newItems[mid:], t.gen))
	if err != nil {
		return err
	}
	m.replace(leafBn)
	sp := &splitRec{sep: newItems[mid].key, right: rightBn}
	util.DPrintf(5, "btree: leaf %d split at %v\n", leafBn, sp.sep)
	return m.rewritePath(path, leftBn, sp)
}

// Delete removes the item at key. Leaves are never merged; an empty
// leaf may remain and scans walk straight through it.
func (t *Tree) Delete(key Key) error {
	m := &mutation{t: t}
	err := t.delete(m, key)
	if err != nil {
		m.abort()
	}
	return err
}

func (t *Tree) delete(m *mutation, key Key) error {
	if t.root == common.NULLBNUM {
		return ErrNotFound
	}
	path, leafBn, leaf, err := t.descend(key)
	if err != nil {
		return err
	}
	items := leafItems(leaf)
	pos := -1
	for i, it := range items {
		if it.key.Compare(key) == 0 {
			pos = i
			break
		}
	}
	if pos < 0 {
		return ErrNotFound
	}
	newItems := make([]item, 0, len(items)-1)
	newItems = append(newItems, items[:pos]...)
	newItems = append(newItems, items[pos+1:]...)
	bn, err := m.writeNode(buildLeaf(newItems, t.gen))
	if err != nil {
		return err
	}
	m.replace(leafBn)
	return m.rewritePath(path, bn, nil)
}

// Update replaces the payload at key by delete-then-insert; there is
// no in-place mutation anywhere in the engine.
func (t *Tree) Update(key Key, data []byte) error {
	err := t.Delete(key)
	if err != nil && err != ErrNotFound {
		return err
	}
	return t.Insert(key, data)
}

// Scan visits, in key order, every item whose (inode, type) prefix
// matches, until fn returns false. It walks forward leaf by leaf via
// the recorded path, so leaves need no sibling pointers.
func (t *Tree) Scan(ino common.Inum, typ uint8, fn func(Key, []byte) bool) error {
	if t.root == common.NULLBNUM {
		return nil
	}
	start := Key{Ino: ino, Typ: typ, Off: 0}
	path, _, leaf, err := t.descend(start)
	if err != nil {
		return err
	}
	skip := start
	for {
		// a leaf emptied by deletes just advances the walk
		for _, it := range leafItems(leaf) {
			if it.key.Compare(skip) < 0 {
				continue
			}
			if it.key.Ino != ino || it.key.Typ != typ {
				return nil
			}
			data := make([]byte, len(it.data))
			copy(data, it.data)
			if !fn(it.key, data) {
				return nil
			}
		}
		skip = Key{}
		var ok bool
		leaf, path, ok, err = t.nextLeaf(path)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
}

// nextLeaf pops the path until an ancestor has an unvisited child,
// then descends into that subtree's leftmost leaf.
func (t *Tree) nextLeaf(path []pathEnt) (disk.Block, []pathEnt, bool, error) {
	for len(path) > 0 {
		ent := &path[len(path)-1]
		if ent.idx < ent.nkeys {
			ent.idx += 1
			blk, err := t.readNode(ent.bn)
			if err != nil {
				return nil, nil, false, err
			}
			bn := parseInternal(blk).children[ent.idx]
			for depth := 0; depth < MaxDepth; depth++ {
				blk, err := t.readNode(bn)
				if err != nil {
					return nil, nil, false, err
				}
				if nodeLevel(blk) == 0 {
					return blk, path, true, nil
				}
				in := parseInternal(blk)
				path = append(path, pathEnt{bn: bn, idx: 0, nkeys: len(in.keys)})
				bn = in.children[0]
			}
			panic("nextLeaf: tree deeper than MaxDepth")
		}
		path = path[:len(path)-1]
	}
	return nil, nil, false, nil
}
