package fxfs

import (
	"hash/fnv"
	"time"

	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-journal/common"

	"github.com/trashguy/Fornax-sub002/btree"
	"github.com/trashguy/Fornax-sub002/codec"
)

// Item types, in key order within an inode's key range.
const (
	ItemInode  uint8 = 1
	ItemDirEnt uint8 = 2
	ItemExtent uint8 = 3
)

// InlineMax is the largest file stored directly in a tree leaf; one
// byte more and its data moves to allocated blocks.
const InlineMax = 3800

// ExtentRefSz is the payload size of an extent reference, which is
// how the read path tells a reference from inline bytes.
const ExtentRefSz = 16

const inodeItemSz = 40

// File type bits in the inode mode field.
const (
	modeDir uint16 = 0o040000
	modeReg uint16 = 0o100000
)

func inodeKey(ino common.Inum) btree.Key {
	return btree.Key{Ino: ino, Typ: ItemInode, Off: 0}
}

func dirEntKey(dir common.Inum, off uint64) btree.Key {
	return btree.Key{Ino: dir, Typ: ItemDirEnt, Off: off}
}

func extentKey(ino common.Inum, off uint64) btree.Key {
	return btree.Key{Ino: ino, Typ: ItemExtent, Off: off}
}

// nameHash indexes a directory entry under its parent: FNV-1a of the
// entry name. Collisions are legal and resolved by a linear scan.
func nameHash(name string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	return h.Sum64()
}

func now() uint64 {
	return uint64(time.Now().Unix())
}

// inodeItem is the 40-byte inode payload, one per live inode at key
// offset 0.
type inodeItem struct {
	Mode  uint16
	Uid   uint16
	Gid   uint16
	Nlink uint16
	Size  uint64
	Atime uint64
	Mtime uint64
	Ctime uint64
}

func (ip *inodeItem) IsDir() bool {
	return ip.Mode&modeDir != 0
}

func (ip *inodeItem) encode() []byte {
	d := make([]byte, inodeItemSz)
	codec.PutU16(d[0:], ip.Mode)
	codec.PutU16(d[2:], ip.Uid)
	codec.PutU16(d[4:], ip.Gid)
	codec.PutU16(d[6:], ip.Nlink)
	codec.PutU64(d[8:], ip.Size)
	codec.PutU64(d[16:], ip.Atime)
	codec.PutU64(d[24:], ip.Mtime)
	codec.PutU64(d[32:], ip.Ctime)
	return d
}

func decodeInode(d []byte) (*inodeItem, error) {
	if len(d) != inodeItemSz {
		return nil, ErrCorrupt
	}
	return &inodeItem{
		Mode:  codec.GetU16(d[0:]),
		Uid:   codec.GetU16(d[2:]),
		Gid:   codec.GetU16(d[4:]),
		Nlink: codec.GetU16(d[6:]),
		Size:  codec.GetU64(d[8:]),
		Atime: codec.GetU64(d[16:]),
		Mtime: codec.GetU64(d[24:]),
		Ctime: codec.GetU64(d[32:]),
	}, nil
}

// dirEnt is a directory entry payload: child inode, type tag, name.
type dirEnt struct {
	Ino   common.Inum
	Ftype uint8
	Name  string
}

const (
	// directory entry type tags
	FTypeFile uint8 = 0
	FTypeDir  uint8 = 1
)

func (de *dirEnt) encode() []byte {
	d := make([]byte, 10+len(de.Name))
	codec.PutU64(d[0:], uint64(de.Ino))
	d[8] = de.Ftype
	d[9] = uint8(len(de.Name))
	copy(d[10:], de.Name)
	return d
}

func decodeDirEnt(d []byte) (*dirEnt, error) {
	if len(d) < 10 || len(d) != 10+int(d[9]) {
		return nil, ErrCorrupt
	}
	return &dirEnt{
		Ino:   common.Inum(codec.GetU64(d[0:])),
		Ftype: d[8],
		Name:  string(d[10:]),
	}, nil
}

// extentRef points at a contiguous run of data blocks.
type extentRef struct {
	Start  common.Bnum
	Blocks uint32
}

func (e *extentRef) encode() []byte {
	enc := marshal.NewEnc(ExtentRefSz)
	enc.PutInt(uint64(e.Start))
	enc.PutInt32(e.Blocks)
	enc.PutInt32(0) // reserved
	return enc.Finish()
}

func decodeExtent(d []byte) (*extentRef, error) {
	if len(d) != ExtentRefSz {
		return nil, ErrCorrupt
	}
	dec := marshal.NewDec(d)
	return &extentRef{
		Start:  common.Bnum(dec.GetInt()),
		Blocks: dec.GetInt32(),
	}, nil
}
