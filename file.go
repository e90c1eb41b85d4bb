package fxfs

import (
	"github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/go-journal/common"
	"github.com/mit-pdos/go-journal/util"

	"github.com/trashguy/Fornax-sub002/btree"
)

// run is a contiguous allocation of data blocks.
type run struct {
	start common.Bnum
	count uint64
}

// allocRun allocates n blocks, coalesced into contiguous runs. On
// exhaustion every block allocated so far is freed again; a failed
// write never leaks blocks.
func (fs *FxFs) allocRun(n uint64) ([]run, error) {
	var runs []run
	for i := uint64(0); i < n; i++ {
		bn, ok := fs.ba.AllocBlock()
		if !ok {
			for _, r := range runs {
				for j := uint64(0); j < r.count; j++ {
					fs.ba.FreeBlock(r.start + common.Bnum(j))
				}
			}
			return nil, ErrNoSpace
		}
		if len(runs) > 0 && runs[len(runs)-1].start+common.Bnum(runs[len(runs)-1].count) == bn {
			runs[len(runs)-1].count += 1
		} else {
			runs = append(runs, run{start: bn, count: 1})
		}
	}
	return runs, nil
}

// writeRuns writes buf (block-aligned, zero-padded by the caller)
// across the runs in order.
func (fs *FxFs) writeRuns(runs []run, buf []byte) {
	pos := uint64(0)
	for _, r := range runs {
		for j := uint64(0); j < r.count; j++ {
			fs.bc.Write(r.start+common.Bnum(j), buf[pos:pos+disk.BlockSize])
			pos += disk.BlockSize
		}
	}
}

// insertRunExtents inserts one extent item per run, starting at file
// offset base.
func (fs *FxFs) insertRunExtents(ino common.Inum, runs []run, base uint64) error {
	off := base
	for _, r := range runs {
		ref := &extentRef{Start: r.start, Blocks: uint32(r.count)}
		if err := fs.tree.Insert(extentKey(ino, off), ref.encode()); err != nil {
			return err
		}
		off += r.count * disk.BlockSize
	}
	return nil
}

// findExtent locates the extent covering file offset pos: the item at
// offset 0 first (the common single-extent case), then a scan over
// all extent items.
func (fs *FxFs) findExtent(ino common.Inum, pos uint64) (*extentRef, uint64, error) {
	data, err := fs.tree.Search(extentKey(ino, 0))
	if err == nil && len(data) == ExtentRefSz {
		ref, derr := decodeExtent(data)
		if derr != nil {
			return nil, 0, derr
		}
		if pos < uint64(ref.Blocks)*disk.BlockSize {
			return ref, 0, nil
		}
	} else if err != nil && err != btree.ErrNotFound {
		return nil, 0, err
	}
	var found *extentRef
	var base uint64
	err = fs.tree.Scan(ino, ItemExtent, func(k btree.Key, data []byte) bool {
		if len(data) != ExtentRefSz {
			return true
		}
		r, derr := decodeExtent(data)
		if derr != nil {
			return true
		}
		if pos >= k.Off && pos < k.Off+uint64(r.Blocks)*disk.BlockSize {
			found = r
			base = k.Off
			return false
		}
		return true
	})
	if err != nil {
		return nil, 0, err
	}
	if found == nil {
		return nil, 0, ErrNotFound
	}
	return found, base, nil
}

// fileRead returns up to cnt bytes at off, clamped to the recorded
// size. Inline content is copied straight out of the tree leaf;
// extent content is assembled block by block.
func (fs *FxFs) fileRead(ino common.Inum, ip *inodeItem, off uint64, cnt uint64) ([]byte, error) {
	if off >= ip.Size {
		return nil, nil
	}
	if cnt > ip.Size-off {
		cnt = ip.Size - off
	}
	if ip.Size <= InlineMax {
		data, err := fs.tree.Search(extentKey(ino, 0))
		if err == btree.ErrNotFound {
			return nil, ErrCorrupt
		}
		if err != nil {
			return nil, err
		}
		if uint64(len(data)) < off+cnt {
			return nil, ErrCorrupt
		}
		out := make([]byte, cnt)
		copy(out, data[off:off+cnt])
		return out, nil
	}

	out := make([]byte, 0, cnt)
	pos := off
	end := off + cnt
	for pos < end {
		ref, base, err := fs.findExtent(ino, pos)
		if err == ErrNotFound {
			// holes are not modeled; a missing extent is damage
			return nil, ErrCorrupt
		}
		if err != nil {
			return nil, err
		}
		rel := pos - base
		bn := ref.Start + common.Bnum(rel/disk.BlockSize)
		blk := fs.bc.Read(bn)
		o := rel % disk.BlockSize
		n := disk.BlockSize - o
		if n > end-pos {
			n = end - pos
		}
		out = append(out, blk[o:o+n]...)
		pos += n
	}
	return out, nil
}

// freeExtents deletes every ExtentData item of ino and, when the file
// lives in blocks, returns those blocks to the bitmap.
func (fs *FxFs) freeExtents(ino common.Inum, ip *inodeItem) error {
	type extItem struct {
		off  uint64
		data []byte
	}
	var items []extItem
	err := fs.tree.Scan(ino, ItemExtent, func(k btree.Key, data []byte) bool {
		items = append(items, extItem{off: k.Off, data: data})
		return true
	})
	if err != nil {
		return err
	}
	inline := ip.Size <= InlineMax
	for _, it := range items {
		if !inline && len(it.data) == ExtentRefSz {
			ref, derr := decodeExtent(it.data)
			if derr != nil {
				return derr
			}
			for j := uint32(0); j < ref.Blocks; j++ {
				fs.ba.FreeBlock(ref.Start + common.Bnum(j))
			}
		}
		if err := fs.tree.Delete(extentKey(ino, it.off)); err != nil {
			return err
		}
	}
	return nil
}

// fileWrite stores cnt bytes at off and updates ip.Size in memory;
// the caller persists the inode and commits. Three policies, chosen
// by projected final size and write position.
func (fs *FxFs) fileWrite(ino common.Inum, ip *inodeItem, off uint64, data []byte) error {
	cnt := uint64(len(data))
	if cnt == 0 {
		return nil
	}
	if util.SumOverflows(off, cnt) {
		return ErrInvalid
	}
	projected := ip.Size
	if off+cnt > projected {
		projected = off + cnt
	}
	switch {
	case projected <= InlineMax:
		return fs.writeInline(ino, ip, off, data)
	case off == ip.Size:
		return fs.writeAppend(ino, ip, off, data)
	default:
		// mid-file overwrite, or a write that would leave a gap:
		// rewrite the file in full
		return fs.writeRewrite(ino, ip, off, data)
	}
}

// writeInline overlays the write onto the existing inline payload in
// a scratch buffer and replaces the file's single inline item.
func (fs *FxFs) writeInline(ino common.Inum, ip *inodeItem, off uint64, data []byte) error {
	var buf [InlineMax]byte
	if ip.Size > 0 {
		old, err := fs.fileRead(ino, ip, 0, ip.Size)
		if err != nil {
			return err
		}
		copy(buf[:], old)
	}
	copy(buf[off:], data)
	newSize := ip.Size
	if off+uint64(len(data)) > newSize {
		newSize = off + uint64(len(data))
	}
	if err := fs.freeExtents(ino, ip); err != nil {
		return err
	}
	if err := fs.tree.Insert(extentKey(ino, 0), buf[:newSize]); err != nil {
		return err
	}
	ip.Size = newSize
	return nil
}

// writeAppend extends the file without rewriting existing extents: a
// possible inline-to-block migration, a copy-on-write read-modify-
// write of the partial tail block, then fresh contiguous runs for the
// rest.
func (fs *FxFs) writeAppend(ino common.Inum, ip *inodeItem, off uint64, data []byte) error {
	size := ip.Size
	if size > 0 && size <= InlineMax {
		// migrate inline bytes into a first data block
		old, err := fs.fileRead(ino, ip, 0, size)
		if err != nil {
			return err
		}
		bn, ok := fs.ba.AllocBlock()
		if !ok {
			return ErrNoSpace
		}
		blk := make([]byte, disk.BlockSize)
		copy(blk, old)
		fs.bc.Write(bn, blk)
		ref := &extentRef{Start: bn, Blocks: 1}
		if err := fs.tree.Update(extentKey(ino, 0), ref.encode()); err != nil {
			return err
		}
		util.DPrintf(5, "writeAppend: inode %d inline->block %d\n", ino, bn)
	}

	rest := data
	pos := off
	tail := size % disk.BlockSize
	if size > 0 && tail != 0 {
		// CoW the partial tail block only
		ref, base, err := fs.findExtent(ino, size-1)
		if err == ErrNotFound {
			return ErrCorrupt
		}
		if err != nil {
			return err
		}
		tailBase := size - tail
		oldBn := ref.Start + common.Bnum((tailBase-base)/disk.BlockSize)
		blk := fs.bc.Read(oldBn)
		n := disk.BlockSize - tail
		if n > uint64(len(rest)) {
			n = uint64(len(rest))
		}
		copy(blk[tail:], rest[:n])
		newBn, ok := fs.ba.AllocBlock()
		if !ok {
			return ErrNoSpace
		}
		fs.bc.Write(newBn, blk)
		if ref.Blocks == 1 {
			ref2 := &extentRef{Start: newBn, Blocks: 1}
			if err := fs.tree.Update(extentKey(ino, base), ref2.encode()); err != nil {
				return err
			}
		} else {
			// shrink the run and give the rewritten block its own
			// extent entry
			shrunk := &extentRef{Start: ref.Start, Blocks: ref.Blocks - 1}
			if err := fs.tree.Update(extentKey(ino, base), shrunk.encode()); err != nil {
				return err
			}
			single := &extentRef{Start: newBn, Blocks: 1}
			if err := fs.tree.Insert(extentKey(ino, tailBase), single.encode()); err != nil {
				return err
			}
		}
		fs.ba.FreeBlock(oldBn)
		rest = rest[n:]
		pos += n
	}

	if len(rest) > 0 {
		nb := (uint64(len(rest)) + disk.BlockSize - 1) / disk.BlockSize
		runs, err := fs.allocRun(nb)
		if err != nil {
			return err
		}
		buf := make([]byte, nb*disk.BlockSize)
		copy(buf, rest)
		fs.writeRuns(runs, buf)
		if err := fs.insertRunExtents(ino, runs, pos); err != nil {
			return err
		}
	}
	ip.Size = off + uint64(len(data))
	return nil
}

// writeRewrite is the general overwrite path: allocate blocks for the
// whole projected file, merge old content with the new range, write
// everything, and replace all extent items. Correctness-preserving
// but deliberately pessimal; callers depend on its exact behavior.
func (fs *FxFs) writeRewrite(ino common.Inum, ip *inodeItem, off uint64, data []byte) error {
	newSize := ip.Size
	if off+uint64(len(data)) > newSize {
		newSize = off + uint64(len(data))
	}
	old, err := fs.fileRead(ino, ip, 0, ip.Size)
	if err != nil {
		return err
	}
	nb := (newSize + disk.BlockSize - 1) / disk.BlockSize
	buf := make([]byte, nb*disk.BlockSize)
	copy(buf, old)
	copy(buf[off:], data)

	runs, err := fs.allocRun(nb)
	if err != nil {
		return err
	}
	fs.writeRuns(runs, buf)
	if err := fs.freeExtents(ino, ip); err != nil {
		return err
	}
	if err := fs.insertRunExtents(ino, runs, 0); err != nil {
		return err
	}
	ip.Size = newSize
	return nil
}

// fileTruncate resizes to newSize: shrinking frees blocks (and may
// collapse back to inline storage), growing zero-fills.
func (fs *FxFs) fileTruncate(ino common.Inum, ip *inodeItem, newSize uint64) error {
	if newSize == ip.Size {
		ip.Mtime = now()
		return nil
	}
	keep := ip.Size
	if newSize < keep {
		keep = newSize
	}
	content, err := fs.fileRead(ino, ip, 0, keep)
	if err != nil {
		return err
	}
	if err := fs.freeExtents(ino, ip); err != nil {
		return err
	}
	if newSize > 0 && newSize <= InlineMax {
		buf := make([]byte, newSize)
		copy(buf, content)
		if err := fs.tree.Insert(extentKey(ino, 0), buf); err != nil {
			return err
		}
	} else if newSize > InlineMax {
		nb := (newSize + disk.BlockSize - 1) / disk.BlockSize
		runs, err := fs.allocRun(nb)
		if err != nil {
			return err
		}
		buf := make([]byte, nb*disk.BlockSize)
		copy(buf, content)
		fs.writeRuns(runs, buf)
		if err := fs.insertRunExtents(ino, runs, 0); err != nil {
			return err
		}
	}
	ip.Size = newSize
	ip.Mtime = now()
	return nil
}
