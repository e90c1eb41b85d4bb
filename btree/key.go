package btree

import (
	"fmt"

	"github.com/mit-pdos/go-journal/common"
)

// Key orders all items in the tree lexicographically by
// (inode, item type, offset), so every item for one inode is
// contiguous, grouped by type.
type Key struct {
	Ino common.Inum
	Typ uint8
	Off uint64
}

func (k Key) Compare(o Key) int {
	if k.Ino != o.Ino {
		if k.Ino < o.Ino {
			return -1
		}
		return 1
	}
	if k.Typ != o.Typ {
		if k.Typ < o.Typ {
			return -1
		}
		return 1
	}
	if k.Off != o.Off {
		if k.Off < o.Off {
			return -1
		}
		return 1
	}
	return 0
}

func (k Key) String() string {
	return fmt.Sprintf("(%d,%d,%d)", k.Ino, k.Typ, k.Off)
}
