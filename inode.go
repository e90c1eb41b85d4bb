package fxfs

import (
	"github.com/mit-pdos/go-journal/common"

	"github.com/trashguy/Fornax-sub002/btree"
)

func (fs *FxFs) getInode(ino common.Inum) (*inodeItem, error) {
	data, err := fs.tree.Search(inodeKey(ino))
	if err == btree.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeInode(data)
}

// putInode rewrites an inode item. Like every update in the engine it
// is a delete-then-insert; nothing mutates in place.
func (fs *FxFs) putInode(ino common.Inum, ip *inodeItem) error {
	return fs.tree.Update(inodeKey(ino), ip.encode())
}

func (fs *FxFs) allocInum() common.Inum {
	ino := fs.sb.NextInode
	fs.sb.NextInode += 1
	return ino
}
