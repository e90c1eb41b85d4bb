package fxfs

import (
	"github.com/mit-pdos/go-journal/common"

	"github.com/trashguy/Fornax-sub002/fxtypes"
)

// MAXHANDLES bounds the shared handle table; handles are logically
// per-client but stored in one array under the engine lock.
const MAXHANDLES = 128

// handle maps an open descriptor to an inode plus a write cursor. A
// handle dies on Close, or out-of-band when its inode is removed.
type handle struct {
	inUse   bool
	ino     common.Inum
	cursor  uint64
	append_ bool
	isDir   bool
	isCtl   bool
}

func (fs *FxFs) allocHandle(h handle) (fxtypes.Fd, error) {
	for i := range fs.handles {
		if !fs.handles[i].inUse {
			h.inUse = true
			fs.handles[i] = h
			return fxtypes.Fd(i), nil
		}
	}
	return 0, ErrNoHandle
}

func (fs *FxFs) getHandle(fd fxtypes.Fd) (*handle, error) {
	if int(fd) >= MAXHANDLES || !fs.handles[fd].inUse {
		return nil, ErrInvalid
	}
	return &fs.handles[fd], nil
}

func (fs *FxFs) closeHandle(fd fxtypes.Fd) error {
	h, err := fs.getHandle(fd)
	if err != nil {
		return err
	}
	h.inUse = false
	return nil
}

// invalidateHandles kills every open handle on ino, without waiting
// for the owning client to close it.
func (fs *FxFs) invalidateHandles(ino common.Inum) {
	for i := range fs.handles {
		if fs.handles[i].inUse && !fs.handles[i].isCtl && fs.handles[i].ino == ino {
			fs.handles[i].inUse = false
		}
	}
}
