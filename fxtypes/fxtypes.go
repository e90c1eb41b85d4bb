// Package fxtypes defines the filesystem server's wire protocol:
// tagged request/response pairs, one pair per operation. The protocol
// reports only generic success or failure; there is no finer error
// code set.
package fxtypes

// RPC program identity.
const (
	FXFS_PROGRAM uint32 = 200112
	FXFS_V1      uint32 = 1
)

const (
	FXPROC_OPEN     uint32 = 1
	FXPROC_CREATE   uint32 = 2
	FXPROC_READ     uint32 = 3
	FXPROC_WRITE    uint32 = 4
	FXPROC_CLOSE    uint32 = 5
	FXPROC_STAT     uint32 = 6
	FXPROC_REMOVE   uint32 = 7
	FXPROC_RENAME   uint32 = 8
	FXPROC_TRUNCATE uint32 = 9
	FXPROC_WSTAT    uint32 = 10
)

type Status uint32

const (
	FX_OK  Status = 0
	FX_ERR Status = 1
)

// Create flags
const (
	CREATE_DIR    uint32 = 1 << 0
	CREATE_APPEND uint32 = 1 << 1
)

// Wstat field mask
const (
	WSTAT_MODE uint32 = 1 << 0
	WSTAT_UID  uint32 = 1 << 1
	WSTAT_GID  uint32 = 1 << 2
)

const (
	MAXPATHLEN = 1024
	MAXNAMELEN = 255 // name length is a u8 on disk
	MAXDATA    = 1 << 20
)

// CtlPath names the virtual, non-persistent control file.
const CtlPath = "ctl"

type Fd uint32

type OpenArgs struct {
	Path string
}

type OpenRes struct {
	Status Status
	Fd     Fd
}

type CreateArgs struct {
	Flags uint32
	Path  string
}

type CreateRes struct {
	Status Status
	Fd     Fd
}

type ReadArgs struct {
	Fd     Fd
	Offset uint64
	Count  uint32
}

type ReadRes struct {
	Status Status
	Data   []byte
}

type WriteArgs struct {
	Fd   Fd
	Data []byte
}

type WriteRes struct {
	Status Status
	Count  uint32
}

type CloseArgs struct {
	Fd Fd
}

type CloseRes struct {
	Status Status
}

type StatArgs struct {
	Fd Fd
}

type StatRes struct {
	Status Status
	Size   uint64
	IsDir  uint32
	Mtime  uint64
	Ctime  uint64
	Mode   uint32
	Uid    uint32
	Gid    uint32
}

type RemoveArgs struct {
	Path string
}

type RemoveRes struct {
	Status Status
}

// RenameArgs carries old path and new path as one payload separated
// by a NUL byte, matching the original request layout.
type RenameArgs struct {
	Spec string
}

type RenameRes struct {
	Status Status
}

type TruncateArgs struct {
	Fd   Fd
	Size uint64
}

type TruncateRes struct {
	Status Status
}

type WstatArgs struct {
	Fd        Fd
	Mask      uint32
	Mode      uint32
	Uid       uint32
	Gid       uint32
	CallerUid uint32
}

type WstatRes struct {
	Status Status
}
