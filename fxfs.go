// Package fxfs is the persistent storage engine of the Fornax
// filesystem server: a copy-on-write B-tree over a block device that
// holds every inode, directory entry and file extent as an ordered
// tree item, with file data inlined into the tree below a size
// threshold.
//
// All engine state lives in one FxFs struct and every request runs
// under its single coarse lock; the tree, cache, bitmap and handle
// table are single-threaded structures guarded entirely by that lock.
package fxfs

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/go-journal/common"
	"github.com/mit-pdos/go-journal/util"

	"github.com/trashguy/Fornax-sub002/alloc"
	"github.com/trashguy/Fornax-sub002/bcache"
	"github.com/trashguy/Fornax-sub002/btree"
	"github.com/trashguy/Fornax-sub002/super"
	"github.com/trashguy/Fornax-sub002/util/stats"
)

var (
	ErrNotFound = errors.New("fxfs: not found")
	ErrNoSpace  = errors.New("fxfs: no free blocks")
	ErrNoHandle = errors.New("fxfs: no free handle slot")
	ErrInvalid  = errors.New("fxfs: invalid operation")
	ErrCorrupt  = errors.New("fxfs: metadata corrupt")
)

type FxFs struct {
	mu sync.Mutex

	Name *string // backing file, nil for a memory disk

	d    disk.Disk
	bc   *bcache.Bcache
	sb   *super.FsSuper
	ba   *alloc.Alloc
	tree *btree.Tree

	handles [MAXHANDLES]handle

	stats [NumOps]stats.Op
}

// MkFxFs mounts the device: adopt the primary superblock if it
// validates, else the backup, else treat the device as blank and
// format it.
func MkFxFs(d disk.Disk) *FxFs {
	fs := &FxFs{d: d, bc: bcache.MkBcache(d)}
	sb, ok := super.Decode(fs.bc.Read(super.PrimaryBlock))
	if !ok {
		util.DPrintf(1, "MkFxFs: primary superblock invalid, trying backup\n")
		sb, ok = super.Decode(fs.bc.Read(super.BackupBlock))
	}
	if ok {
		fs.sb = sb
		fs.ba = alloc.MkAlloc(fs.bc, sb)
		fs.tree = btree.MkTree(fs.bc, fs.ba, sb.TreeRoot, sb.Generation+1)
		util.DPrintf(1, "MkFxFs: mounted gen %d root %d\n", sb.Generation, sb.TreeRoot)
	} else {
		util.DPrintf(0, "MkFxFs: no valid superblock, formatting\n")
		fs.format()
	}
	return fs
}

func MkFxFsMem(sz uint64) *FxFs {
	return MkFxFs(disk.NewMemDisk(sz))
}

func MkFxFsName(name string, sz uint64) *FxFs {
	d, err := disk.NewFileDisk(name, sz)
	if err != nil {
		panic(fmt.Errorf("could not create file disk: %v", err))
	}
	fs := MkFxFs(d)
	fs.Name = &name
	return fs
}

// MkFxFsTmp makes a server backed by a file disk in a temp dir, the
// shape the daemon and tests use.
func MkFxFsTmp(sz uint64) *FxFs {
	r := rand.Uint64()
	tmpdir := "/dev/shm"
	f, err := os.Stat(tmpdir)
	if !(err == nil && f.IsDir()) {
		tmpdir = os.TempDir()
	}
	n := filepath.Join(tmpdir, "fxfs"+strconv.FormatUint(r, 16)+".img")
	return MkFxFsName(n, sz)
}

// format lays out a blank device: zeroed bitmap with system blocks
// reserved, a single-leaf tree holding only the root directory's
// inode, and both superblock copies.
func (fs *FxFs) format() {
	sz := fs.d.Size()
	sb := super.MkFsSuper(sz)
	fs.sb = sb
	fs.ba = alloc.MkAlloc(fs.bc, sb)
	fs.ba.Zero()
	fs.ba.MarkSystem()
	fs.tree = btree.MkTree(fs.bc, fs.ba, common.NULLBNUM, 1)

	root := &inodeItem{
		Mode:  modeDir | 0o755,
		Nlink: 1,
	}
	root.Atime, root.Mtime, root.Ctime = now(), now(), now()
	err := fs.tree.Insert(inodeKey(common.ROOTINUM), root.encode())
	if err != nil {
		panic("format: root inode insert failed")
	}
	sb.NextInode = common.ROOTINUM + 1
	fs.commit()
	util.DPrintf(0, "format: %d blocks, data at %d\n", sz, sb.DataStart)
}

// commit publishes the current tree: bump the generation, flush the
// dirty bitmap, then write the superblock last, to both copies. Until
// the superblock goes out the previous tree is the live one.
func (fs *FxFs) commit() {
	fs.sb.Generation += 1
	fs.ba.Flush()
	fs.sb.TreeRoot = fs.tree.Root()
	fs.sb.FreeBlocks = fs.ba.NumFree()
	blk := fs.sb.Encode()
	fs.bc.Write(super.PrimaryBlock, blk)
	fs.bc.Write(super.BackupBlock, blk)
	fs.tree.SetGen(fs.sb.Generation + 1)
	util.DPrintf(5, "commit: gen %d root %d free %d\n",
		fs.sb.Generation, fs.sb.TreeRoot, fs.sb.FreeBlocks)
}

// reload abandons all uncommitted in-memory state after a failed
// mutation. The on-disk superblock still names the last committed
// tree, so this is a full rollback.
func (fs *FxFs) reload() {
	sb, ok := super.Decode(fs.bc.Read(super.PrimaryBlock))
	if !ok {
		sb, ok = super.Decode(fs.bc.Read(super.BackupBlock))
	}
	if !ok {
		panic("reload: no valid superblock")
	}
	fs.sb = sb
	fs.ba = alloc.MkAlloc(fs.bc, sb)
	fs.tree = btree.MkTree(fs.bc, fs.ba, sb.TreeRoot, sb.Generation+1)
}

func (fs *FxFs) doShutdown(destroy bool) {
	util.DPrintf(1, "Shutdown %v\n", destroy)
	if destroy && fs.Name != nil {
		err := os.Remove(*fs.Name)
		if err != nil {
			panic(err)
		}
	}
}

func (fs *FxFs) Shutdown() {
	fs.doShutdown(false)
}

func (fs *FxFs) ShutdownDestroy() {
	fs.doShutdown(true)
}
