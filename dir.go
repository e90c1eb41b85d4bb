package fxfs

import (
	"strings"

	"github.com/mit-pdos/go-journal/common"
	"github.com/mit-pdos/go-journal/util"

	"github.com/trashguy/Fornax-sub002/btree"
	"github.com/trashguy/Fornax-sub002/fxtypes"
)

func illegalName(name string) bool {
	return name == "" || name == "." || name == ".." ||
		len(name) > fxtypes.MAXNAMELEN || strings.ContainsAny(name, "/\x00")
}

// dirLookup finds name in dir: an exact point search at the name's
// hash first, then a linear scan of every entry under dir when the
// hash slot misses or holds a colliding name.
func (fs *FxFs) dirLookup(dir common.Inum, name string) (*dirEnt, uint64, error) {
	h := nameHash(name)
	data, err := fs.tree.Search(dirEntKey(dir, h))
	if err == nil {
		de, derr := decodeDirEnt(data)
		if derr != nil {
			return nil, 0, derr
		}
		if de.Name == name {
			return de, h, nil
		}
		util.DPrintf(2, "dirLookup: hash collision in dir %d for %q\n", dir, name)
	} else if err != btree.ErrNotFound {
		return nil, 0, err
	}

	var found *dirEnt
	var off uint64
	err = fs.tree.Scan(dir, ItemDirEnt, func(k btree.Key, data []byte) bool {
		de, derr := decodeDirEnt(data)
		if derr == nil && de.Name == name {
			found = de
			off = k.Off
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
	return found, off, nil
}

// dirLink inserts a new entry at the name's hash, probing forward on
// the rare collision with an existing entry's key.
func (fs *FxFs) dirLink(dir common.Inum, name string, child common.Inum, ftype uint8) error {
	de := &dirEnt{Ino: child, Ftype: ftype, Name: name}
	off := nameHash(name)
	for {
		err := fs.tree.Insert(dirEntKey(dir, off), de.encode())
		if err != btree.ErrExists {
			return err
		}
		off += 1
	}
}

func (fs *FxFs) dirUnlink(dir common.Inum, name string) (*dirEnt, error) {
	de, off, err := fs.dirLookup(dir, name)
	if err != nil {
		return nil, err
	}
	err = fs.tree.Delete(dirEntKey(dir, off))
	if err != nil {
		return nil, err
	}
	return de, nil
}

func (fs *FxFs) dirIsEmpty(dir common.Inum) (bool, error) {
	empty := true
	err := fs.tree.Scan(dir, ItemDirEnt, func(btree.Key, []byte) bool {
		empty = false
		return false
	})
	return empty, err
}

// dirList materializes the directory as consecutive entry records in
// the on-disk payload format, so clients can page through with
// (offset, count).
func (fs *FxFs) dirList(dir common.Inum) ([]byte, error) {
	var out []byte
	err := fs.tree.Scan(dir, ItemDirEnt, func(k btree.Key, data []byte) bool {
		out = append(out, data...)
		return true
	})
	return out, err
}

func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	comps := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			comps = append(comps, p)
		}
	}
	return comps
}

// namei resolves path from the root inode, failing if any
// intermediate component is missing or not a directory.
func (fs *FxFs) namei(path string) (common.Inum, error) {
	cur := common.ROOTINUM
	for _, comp := range splitPath(path) {
		ip, err := fs.getInode(cur)
		if err != nil {
			return common.NULLINUM, err
		}
		if !ip.IsDir() {
			return common.NULLINUM, ErrInvalid
		}
		de, _, err := fs.dirLookup(cur, comp)
		if err != nil {
			return common.NULLINUM, err
		}
		cur = de.Ino
	}
	return cur, nil
}

// nameiParent resolves everything but the last component and returns
// the containing directory plus the final name.
func (fs *FxFs) nameiParent(path string) (common.Inum, string, error) {
	comps := splitPath(path)
	if len(comps) == 0 {
		return common.NULLINUM, "", ErrInvalid
	}
	name := comps[len(comps)-1]
	if illegalName(name) {
		return common.NULLINUM, "", ErrInvalid
	}
	dir := common.ROOTINUM
	for _, comp := range comps[:len(comps)-1] {
		ip, err := fs.getInode(dir)
		if err != nil {
			return common.NULLINUM, "", err
		}
		if !ip.IsDir() {
			return common.NULLINUM, "", ErrInvalid
		}
		de, _, err := fs.dirLookup(dir, comp)
		if err != nil {
			return common.NULLINUM, "", err
		}
		dir = de.Ino
	}
	ip, err := fs.getInode(dir)
	if err != nil {
		return common.NULLINUM, "", err
	}
	if !ip.IsDir() {
		return common.NULLINUM, "", ErrInvalid
	}
	return dir, name, nil
}
