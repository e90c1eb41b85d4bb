package fxfs

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/go-journal/common"
	"github.com/mit-pdos/go-journal/util"

	"github.com/trashguy/Fornax-sub002/fxtypes"
	"github.com/trashguy/Fornax-sub002/util/stats"
)

// Stats indices, one per protocol op.
const (
	OpOpen = iota
	OpCreate
	OpRead
	OpWrite
	OpClose
	OpStat
	OpRemove
	OpRename
	OpTruncate
	OpWstat
	NumOps
)

var opNames = []string{
	"open", "create", "read", "write", "close",
	"stat", "remove", "rename", "truncate", "wstat",
}

func (fs *FxFs) WriteOpStats(w io.Writer) {
	stats.WriteTable(opNames, fs.stats[:], w)
}

// ctlContent is what reading the "ctl" virtual file returns.
func (fs *FxFs) ctlContent() []byte {
	return []byte(fmt.Sprintf("TOTAL=%d\nFREE=%d\nBSIZE=%d\n",
		fs.sb.TotalBlocks, fs.ba.NumFree(), disk.BlockSize))
}

func sliceAt(buf []byte, off uint64, cnt uint64) []byte {
	if off >= uint64(len(buf)) {
		return nil
	}
	end := off + cnt
	if end > uint64(len(buf)) {
		end = uint64(len(buf))
	}
	out := make([]byte, end-off)
	copy(out, buf[off:end])
	return out
}

func (fs *FxFs) Open(args *fxtypes.OpenArgs) fxtypes.OpenRes {
	defer fs.stats[OpOpen].Record(time.Now())
	fs.mu.Lock()
	defer fs.mu.Unlock()
	util.DPrintf(1, "Open %q\n", args.Path)

	if args.Path == fxtypes.CtlPath {
		fd, err := fs.allocHandle(handle{isCtl: true})
		if err != nil {
			return fxtypes.OpenRes{Status: fxtypes.FX_ERR}
		}
		return fxtypes.OpenRes{Status: fxtypes.FX_OK, Fd: fd}
	}
	ino, err := fs.namei(args.Path)
	if err != nil {
		return fxtypes.OpenRes{Status: fxtypes.FX_ERR}
	}
	ip, err := fs.getInode(ino)
	if err != nil {
		return fxtypes.OpenRes{Status: fxtypes.FX_ERR}
	}
	fd, err := fs.allocHandle(handle{ino: ino, isDir: ip.IsDir()})
	if err != nil {
		return fxtypes.OpenRes{Status: fxtypes.FX_ERR}
	}
	return fxtypes.OpenRes{Status: fxtypes.FX_OK, Fd: fd}
}

func (fs *FxFs) Create(args *fxtypes.CreateArgs) fxtypes.CreateRes {
	defer fs.stats[OpCreate].Record(time.Now())
	fs.mu.Lock()
	defer fs.mu.Unlock()
	util.DPrintf(1, "Create %q flags %#x\n", args.Path, args.Flags)

	dir, name, err := fs.nameiParent(args.Path)
	if err != nil {
		return fxtypes.CreateRes{Status: fxtypes.FX_ERR}
	}
	wantAppend := args.Flags&fxtypes.CREATE_APPEND != 0

	de, _, err := fs.dirLookup(dir, name)
	if err == nil {
		// already present: open semantics, never a duplicate entry
		ip, gerr := fs.getInode(de.Ino)
		if gerr != nil {
			return fxtypes.CreateRes{Status: fxtypes.FX_ERR}
		}
		fd, herr := fs.allocHandle(handle{
			ino:     de.Ino,
			isDir:   ip.IsDir(),
			append_: wantAppend,
		})
		if herr != nil {
			return fxtypes.CreateRes{Status: fxtypes.FX_ERR}
		}
		return fxtypes.CreateRes{Status: fxtypes.FX_OK, Fd: fd}
	}
	if err != ErrNotFound {
		return fxtypes.CreateRes{Status: fxtypes.FX_ERR}
	}

	isDir := args.Flags&fxtypes.CREATE_DIR != 0
	ino := fs.allocInum()
	ip := &inodeItem{Nlink: 1}
	ftype := FTypeFile
	if isDir {
		ip.Mode = modeDir | 0o755
		ftype = FTypeDir
	} else {
		ip.Mode = modeReg | 0o644
	}
	ip.Atime, ip.Mtime, ip.Ctime = now(), now(), now()

	if err := fs.tree.Insert(inodeKey(ino), ip.encode()); err != nil {
		fs.reload()
		return fxtypes.CreateRes{Status: fxtypes.FX_ERR}
	}
	if err := fs.dirLink(dir, name, ino, ftype); err != nil {
		fs.reload()
		return fxtypes.CreateRes{Status: fxtypes.FX_ERR}
	}
	fs.commit()

	fd, err := fs.allocHandle(handle{ino: ino, isDir: isDir, append_: wantAppend})
	if err != nil {
		return fxtypes.CreateRes{Status: fxtypes.FX_ERR}
	}
	return fxtypes.CreateRes{Status: fxtypes.FX_OK, Fd: fd}
}

func (fs *FxFs) Read(args *fxtypes.ReadArgs) fxtypes.ReadRes {
	defer fs.stats[OpRead].Record(time.Now())
	fs.mu.Lock()
	defer fs.mu.Unlock()
	util.DPrintf(1, "Read fd %d off %d cnt %d\n", args.Fd, args.Offset, args.Count)

	h, err := fs.getHandle(args.Fd)
	if err != nil {
		return fxtypes.ReadRes{Status: fxtypes.FX_ERR}
	}
	if args.Count > fxtypes.MAXDATA {
		args.Count = fxtypes.MAXDATA
	}
	if h.isCtl {
		return fxtypes.ReadRes{
			Status: fxtypes.FX_OK,
			Data:   sliceAt(fs.ctlContent(), args.Offset, uint64(args.Count)),
		}
	}
	if h.isDir {
		listing, err := fs.dirList(h.ino)
		if err != nil {
			return fxtypes.ReadRes{Status: fxtypes.FX_ERR}
		}
		return fxtypes.ReadRes{
			Status: fxtypes.FX_OK,
			Data:   sliceAt(listing, args.Offset, uint64(args.Count)),
		}
	}
	ip, err := fs.getInode(h.ino)
	if err != nil {
		return fxtypes.ReadRes{Status: fxtypes.FX_ERR}
	}
	data, err := fs.fileRead(h.ino, ip, args.Offset, uint64(args.Count))
	if err != nil {
		return fxtypes.ReadRes{Status: fxtypes.FX_ERR}
	}
	return fxtypes.ReadRes{Status: fxtypes.FX_OK, Data: data}
}

func (fs *FxFs) Write(args *fxtypes.WriteArgs) fxtypes.WriteRes {
	defer fs.stats[OpWrite].Record(time.Now())
	fs.mu.Lock()
	defer fs.mu.Unlock()
	util.DPrintf(1, "Write fd %d cnt %d\n", args.Fd, len(args.Data))

	h, err := fs.getHandle(args.Fd)
	if err != nil || h.isCtl || h.isDir {
		return fxtypes.WriteRes{Status: fxtypes.FX_ERR}
	}
	ip, err := fs.getInode(h.ino)
	if err != nil {
		return fxtypes.WriteRes{Status: fxtypes.FX_ERR}
	}
	off := h.cursor
	if h.append_ {
		off = ip.Size
	}
	if err := fs.fileWrite(h.ino, ip, off, args.Data); err != nil {
		fs.reload()
		return fxtypes.WriteRes{Status: fxtypes.FX_ERR}
	}
	ip.Mtime = now()
	if err := fs.putInode(h.ino, ip); err != nil {
		fs.reload()
		return fxtypes.WriteRes{Status: fxtypes.FX_ERR}
	}
	fs.commit()
	h.cursor = off + uint64(len(args.Data))
	return fxtypes.WriteRes{Status: fxtypes.FX_OK, Count: uint32(len(args.Data))}
}

func (fs *FxFs) Close(args *fxtypes.CloseArgs) fxtypes.CloseRes {
	defer fs.stats[OpClose].Record(time.Now())
	fs.mu.Lock()
	defer fs.mu.Unlock()
	util.DPrintf(1, "Close fd %d\n", args.Fd)

	if err := fs.closeHandle(args.Fd); err != nil {
		return fxtypes.CloseRes{Status: fxtypes.FX_ERR}
	}
	return fxtypes.CloseRes{Status: fxtypes.FX_OK}
}

func (fs *FxFs) Stat(args *fxtypes.StatArgs) fxtypes.StatRes {
	defer fs.stats[OpStat].Record(time.Now())
	fs.mu.Lock()
	defer fs.mu.Unlock()
	util.DPrintf(1, "Stat fd %d\n", args.Fd)

	h, err := fs.getHandle(args.Fd)
	if err != nil {
		return fxtypes.StatRes{Status: fxtypes.FX_ERR}
	}
	if h.isCtl {
		return fxtypes.StatRes{
			Status: fxtypes.FX_OK,
			Size:   uint64(len(fs.ctlContent())),
			Mode:   0o444,
		}
	}
	ip, err := fs.getInode(h.ino)
	if err != nil {
		return fxtypes.StatRes{Status: fxtypes.FX_ERR}
	}
	res := fxtypes.StatRes{
		Status: fxtypes.FX_OK,
		Size:   ip.Size,
		Mtime:  ip.Mtime,
		Ctime:  ip.Ctime,
		Mode:   uint32(ip.Mode),
		Uid:    uint32(ip.Uid),
		Gid:    uint32(ip.Gid),
	}
	if ip.IsDir() {
		res.IsDir = 1
	}
	return res
}

// removeEntry unlinks name from dir and destroys its inode: extent
// blocks and items freed, inode item deleted, open handles killed.
// Refuses the root inode and non-empty directories. The caller
// commits (or reloads on error).
func (fs *FxFs) removeEntry(dir common.Inum, name string, ino common.Inum) error {
	if ino == common.ROOTINUM {
		return ErrInvalid
	}
	ip, err := fs.getInode(ino)
	if err != nil {
		return err
	}
	if ip.IsDir() {
		empty, err := fs.dirIsEmpty(ino)
		if err != nil {
			return err
		}
		if !empty {
			return ErrInvalid
		}
	}
	if err := fs.freeExtents(ino, ip); err != nil {
		return err
	}
	if err := fs.tree.Delete(inodeKey(ino)); err != nil {
		return err
	}
	if _, err := fs.dirUnlink(dir, name); err != nil {
		return err
	}
	fs.invalidateHandles(ino)
	return nil
}

func (fs *FxFs) Remove(args *fxtypes.RemoveArgs) fxtypes.RemoveRes {
	defer fs.stats[OpRemove].Record(time.Now())
	fs.mu.Lock()
	defer fs.mu.Unlock()
	util.DPrintf(1, "Remove %q\n", args.Path)

	dir, name, err := fs.nameiParent(args.Path)
	if err != nil {
		return fxtypes.RemoveRes{Status: fxtypes.FX_ERR}
	}
	de, _, err := fs.dirLookup(dir, name)
	if err != nil {
		return fxtypes.RemoveRes{Status: fxtypes.FX_ERR}
	}
	if err := fs.removeEntry(dir, name, de.Ino); err != nil {
		fs.reload()
		return fxtypes.RemoveRes{Status: fxtypes.FX_ERR}
	}
	fs.commit()
	return fxtypes.RemoveRes{Status: fxtypes.FX_OK}
}

func (fs *FxFs) Rename(args *fxtypes.RenameArgs) fxtypes.RenameRes {
	defer fs.stats[OpRename].Record(time.Now())
	fs.mu.Lock()
	defer fs.mu.Unlock()

	sep := strings.IndexByte(args.Spec, 0)
	if sep < 0 {
		return fxtypes.RenameRes{Status: fxtypes.FX_ERR}
	}
	oldPath, newPath := args.Spec[:sep], args.Spec[sep+1:]
	util.DPrintf(1, "Rename %q -> %q\n", oldPath, newPath)

	odir, oname, err := fs.nameiParent(oldPath)
	if err != nil {
		return fxtypes.RenameRes{Status: fxtypes.FX_ERR}
	}
	de, _, err := fs.dirLookup(odir, oname)
	if err != nil {
		return fxtypes.RenameRes{Status: fxtypes.FX_ERR}
	}
	ndir, nname, err := fs.nameiParent(newPath)
	if err != nil {
		return fxtypes.RenameRes{Status: fxtypes.FX_ERR}
	}
	if odir == ndir && oname == nname {
		return fxtypes.RenameRes{Status: fxtypes.FX_OK}
	}
	// overwrite semantics: a pre-existing file at the destination
	// name is destroyed, entry, inode and data blocks alike
	if dde, _, derr := fs.dirLookup(ndir, nname); derr == nil {
		if err := fs.removeEntry(ndir, nname, dde.Ino); err != nil {
			fs.reload()
			return fxtypes.RenameRes{Status: fxtypes.FX_ERR}
		}
	} else if derr != ErrNotFound {
		return fxtypes.RenameRes{Status: fxtypes.FX_ERR}
	}
	if _, err := fs.dirUnlink(odir, oname); err != nil {
		fs.reload()
		return fxtypes.RenameRes{Status: fxtypes.FX_ERR}
	}
	if err := fs.dirLink(ndir, nname, de.Ino, de.Ftype); err != nil {
		fs.reload()
		return fxtypes.RenameRes{Status: fxtypes.FX_ERR}
	}
	fs.commit()
	return fxtypes.RenameRes{Status: fxtypes.FX_OK}
}

func (fs *FxFs) Truncate(args *fxtypes.TruncateArgs) fxtypes.TruncateRes {
	defer fs.stats[OpTruncate].Record(time.Now())
	fs.mu.Lock()
	defer fs.mu.Unlock()
	util.DPrintf(1, "Truncate fd %d size %d\n", args.Fd, args.Size)

	h, err := fs.getHandle(args.Fd)
	if err != nil || h.isCtl || h.isDir {
		return fxtypes.TruncateRes{Status: fxtypes.FX_ERR}
	}
	ip, err := fs.getInode(h.ino)
	if err != nil {
		return fxtypes.TruncateRes{Status: fxtypes.FX_ERR}
	}
	if err := fs.fileTruncate(h.ino, ip, args.Size); err != nil {
		fs.reload()
		return fxtypes.TruncateRes{Status: fxtypes.FX_ERR}
	}
	if err := fs.putInode(h.ino, ip); err != nil {
		fs.reload()
		return fxtypes.TruncateRes{Status: fxtypes.FX_ERR}
	}
	fs.commit()
	return fxtypes.TruncateRes{Status: fxtypes.FX_OK}
}

func (fs *FxFs) Wstat(args *fxtypes.WstatArgs) fxtypes.WstatRes {
	defer fs.stats[OpWstat].Record(time.Now())
	fs.mu.Lock()
	defer fs.mu.Unlock()
	util.DPrintf(1, "Wstat fd %d mask %#x\n", args.Fd, args.Mask)

	h, err := fs.getHandle(args.Fd)
	if err != nil || h.isCtl {
		return fxtypes.WstatRes{Status: fxtypes.FX_ERR}
	}
	ip, err := fs.getInode(h.ino)
	if err != nil {
		return fxtypes.WstatRes{Status: fxtypes.FX_ERR}
	}
	caller := uint16(args.CallerUid)
	owner := caller == ip.Uid || caller == 0
	if args.Mask&fxtypes.WSTAT_MODE != 0 {
		if !owner {
			return fxtypes.WstatRes{Status: fxtypes.FX_ERR}
		}
		ip.Mode = ip.Mode&^uint16(0o7777) | uint16(args.Mode)&0o7777
	}
	if args.Mask&fxtypes.WSTAT_UID != 0 {
		if caller != 0 {
			return fxtypes.WstatRes{Status: fxtypes.FX_ERR}
		}
		ip.Uid = uint16(args.Uid)
	}
	if args.Mask&fxtypes.WSTAT_GID != 0 {
		if !owner {
			return fxtypes.WstatRes{Status: fxtypes.FX_ERR}
		}
		ip.Gid = uint16(args.Gid)
	}
	ip.Ctime = now()
	if err := fs.putInode(h.ino, ip); err != nil {
		fs.reload()
		return fxtypes.WstatRes{Status: fxtypes.FX_ERR}
	}
	fs.commit()
	return fxtypes.WstatRes{Status: fxtypes.FX_OK}
}
