package fxfs

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/go-journal/common"

	"github.com/trashguy/Fornax-sub002/fxtypes"
)

const testDiskSz = 10_000

type FxSuite struct {
	suite.Suite
	d  disk.Disk
	fs *FxFs
}

func (suite *FxSuite) SetupTest() {
	suite.d = disk.NewMemDisk(testDiskSz)
	suite.fs = MkFxFs(suite.d)
}

// remount simulates a crash and restart: all in-memory state is
// thrown away and the engine comes back from the superblock alone.
func (suite *FxSuite) remount() {
	suite.fs = MkFxFs(suite.d)
}

func (suite *FxSuite) create(path string, flags uint32) fxtypes.Fd {
	res := suite.fs.Create(&fxtypes.CreateArgs{Path: path, Flags: flags})
	suite.Require().Equal(fxtypes.FX_OK, res.Status)
	return res.Fd
}

func (suite *FxSuite) open(path string) fxtypes.Fd {
	res := suite.fs.Open(&fxtypes.OpenArgs{Path: path})
	suite.Require().Equal(fxtypes.FX_OK, res.Status)
	return res.Fd
}

func (suite *FxSuite) write(fd fxtypes.Fd, data []byte) {
	res := suite.fs.Write(&fxtypes.WriteArgs{Fd: fd, Data: data})
	suite.Require().Equal(fxtypes.FX_OK, res.Status)
	suite.Require().Equal(uint32(len(data)), res.Count)
}

func (suite *FxSuite) read(fd fxtypes.Fd, off uint64, cnt uint32) []byte {
	res := suite.fs.Read(&fxtypes.ReadArgs{Fd: fd, Offset: off, Count: cnt})
	suite.Require().Equal(fxtypes.FX_OK, res.Status)
	return res.Data
}

func (suite *FxSuite) stat(fd fxtypes.Fd) fxtypes.StatRes {
	res := suite.fs.Stat(&fxtypes.StatArgs{Fd: fd})
	suite.Require().Equal(fxtypes.FX_OK, res.Status)
	return res
}

func (suite *FxSuite) close(fd fxtypes.Fd) {
	res := suite.fs.Close(&fxtypes.CloseArgs{Fd: fd})
	suite.Require().Equal(fxtypes.FX_OK, res.Status)
}

func (suite *FxSuite) putFile(path string, data []byte) {
	fd := suite.create(path, 0)
	suite.write(fd, data)
	suite.close(fd)
}

func (suite *FxSuite) TestCreateWriteRead() {
	content := []byte("hello fornax")
	fd := suite.create("greeting", 0)
	suite.write(fd, content)
	suite.Equal(content, suite.read(fd, 0, 100))
	st := suite.stat(fd)
	suite.Equal(uint64(len(content)), st.Size)
	suite.Equal(uint32(0), st.IsDir)
	suite.close(fd)

	fd = suite.open("greeting")
	suite.Equal(content, suite.read(fd, 0, 100))
	suite.close(fd)
}

func (suite *FxSuite) TestBigFileRoundTrip() {
	data := make([]byte, 10_000)
	for i := range data {
		data[i] = byte(i % 251)
	}
	fd := suite.create("big", 0)
	suite.write(fd, data)
	suite.Equal(uint64(len(data)), suite.stat(fd).Size)
	suite.Equal(data, suite.read(fd, 0, uint32(len(data))))
	suite.Equal(data[5000:5100], suite.read(fd, 5000, 100))
	suite.close(fd)

	// past InlineMax the file must live in blocks
	ino, err := suite.fs.namei("big")
	suite.Require().NoError(err)
	item, err := suite.fs.tree.Search(extentKey(ino, 0))
	suite.Require().NoError(err)
	suite.Equal(ExtentRefSz, len(item))
}

func (suite *FxSuite) TestInlineBoundary() {
	at := make([]byte, InlineMax)
	over := make([]byte, InlineMax+1)
	for i := range over {
		over[i] = byte(i)
	}
	copy(at, over)

	suite.putFile("at", at)
	suite.putFile("over", over)

	ino, err := suite.fs.namei("at")
	suite.Require().NoError(err)
	item, err := suite.fs.tree.Search(extentKey(ino, 0))
	suite.Require().NoError(err)
	suite.Equal(InlineMax, len(item))

	ino, err = suite.fs.namei("over")
	suite.Require().NoError(err)
	item, err = suite.fs.tree.Search(extentKey(ino, 0))
	suite.Require().NoError(err)
	suite.Equal(ExtentRefSz, len(item))

	fd := suite.open("over")
	suite.Equal(over, suite.read(fd, 0, uint32(len(over))))
	suite.close(fd)
}

func (suite *FxSuite) TestCreateExistingOpens() {
	fd := suite.create("x", 0)
	suite.write(fd, []byte("abc"))
	suite.close(fd)

	// a second create must open the same file, not make a duplicate
	fd = suite.create("x", 0)
	suite.Equal([]byte("abc"), suite.read(fd, 0, 10))
	suite.close(fd)

	rootFd := suite.open("")
	listing := suite.read(rootFd, 0, fxtypes.MAXDATA)
	suite.Equal(1, bytes.Count(listing, []byte("x")))
	suite.close(rootFd)
}

func (suite *FxSuite) TestAppendHandle() {
	suite.putFile("log", []byte("one\n"))
	fd := suite.create("log", fxtypes.CREATE_APPEND)
	suite.write(fd, []byte("two\n"))
	suite.write(fd, []byte("three\n"))
	suite.close(fd)

	fd = suite.open("log")
	suite.Equal([]byte("one\ntwo\nthree\n"), suite.read(fd, 0, 100))
	suite.close(fd)
}

func (suite *FxSuite) TestAppendAcrossBlocks() {
	fd := suite.create("grow", 0)
	var want []byte
	chunk := make([]byte, 3000)
	for i := 0; i < 8; i++ {
		for j := range chunk {
			chunk[j] = byte(i*31 + j)
		}
		suite.write(fd, chunk)
		want = append(want, chunk...)
	}
	suite.Equal(uint64(len(want)), suite.stat(fd).Size)
	suite.Equal(want, suite.read(fd, 0, uint32(len(want))))
	suite.close(fd)
}

func (suite *FxSuite) TestOverwriteMidFile() {
	data := make([]byte, 9000)
	for i := range data {
		data[i] = 'a'
	}
	suite.putFile("f", data)

	fd := suite.open("f")
	res := suite.fs.Read(&fxtypes.ReadArgs{Fd: fd, Offset: 0, Count: 1})
	suite.Require().Equal(fxtypes.FX_OK, res.Status)

	// overwrite in the middle via internal write then verify merge
	ino, err := suite.fs.namei("f")
	suite.Require().NoError(err)
	ip, err := suite.fs.getInode(ino)
	suite.Require().NoError(err)
	suite.Require().NoError(suite.fs.fileWrite(ino, ip, 4000, []byte("XYZ")))
	suite.Require().NoError(suite.fs.putInode(ino, ip))
	suite.fs.commit()

	got := suite.read(fd, 3999, 5)
	suite.Equal([]byte("aXYZa"), got)
	suite.Equal(uint64(9000), suite.stat(fd).Size)
	suite.close(fd)
}

func (suite *FxSuite) TestDirectories() {
	suite.create("d", fxtypes.CREATE_DIR)
	suite.putFile("d/inner", []byte("deep"))

	fd := suite.open("d/inner")
	suite.Equal([]byte("deep"), suite.read(fd, 0, 10))
	suite.close(fd)

	fd = suite.open("d")
	st := suite.stat(fd)
	suite.Equal(uint32(1), st.IsDir)
	listing := suite.read(fd, 0, fxtypes.MAXDATA)
	suite.Contains(string(listing), "inner")
	suite.close(fd)
}

func (suite *FxSuite) TestRemoveNonEmptyDir() {
	suite.create("d", fxtypes.CREATE_DIR)
	suite.putFile("d/child", []byte("x"))

	res := suite.fs.Remove(&fxtypes.RemoveArgs{Path: "d"})
	suite.Equal(fxtypes.FX_ERR, res.Status)

	res = suite.fs.Remove(&fxtypes.RemoveArgs{Path: "d/child"})
	suite.Equal(fxtypes.FX_OK, res.Status)
	res = suite.fs.Remove(&fxtypes.RemoveArgs{Path: "d"})
	suite.Equal(fxtypes.FX_OK, res.Status)

	ores := suite.fs.Open(&fxtypes.OpenArgs{Path: "d"})
	suite.Equal(fxtypes.FX_ERR, ores.Status)
}

func (suite *FxSuite) TestRemoveFreesBlocks() {
	free0 := suite.fs.ba.NumFree()
	suite.putFile("big", make([]byte, 100_000))
	suite.Less(suite.fs.ba.NumFree(), free0)

	res := suite.fs.Remove(&fxtypes.RemoveArgs{Path: "big"})
	suite.Require().Equal(fxtypes.FX_OK, res.Status)
	// data blocks come back; tree CoW may shift a few metadata blocks
	suite.Greater(suite.fs.ba.NumFree()+5, free0)
}

func (suite *FxSuite) TestRemoveInvalidatesHandles() {
	fd := suite.create("doomed", 0)
	suite.write(fd, []byte("bye"))

	res := suite.fs.Remove(&fxtypes.RemoveArgs{Path: "doomed"})
	suite.Require().Equal(fxtypes.FX_OK, res.Status)

	rres := suite.fs.Read(&fxtypes.ReadArgs{Fd: fd, Offset: 0, Count: 10})
	suite.Equal(fxtypes.FX_ERR, rres.Status)
}

func rename(oldPath, newPath string) *fxtypes.RenameArgs {
	return &fxtypes.RenameArgs{Spec: oldPath + "\x00" + newPath}
}

func (suite *FxSuite) TestRename() {
	suite.putFile("a", []byte("payload"))

	res := suite.fs.Rename(rename("a", "b"))
	suite.Require().Equal(fxtypes.FX_OK, res.Status)

	ores := suite.fs.Open(&fxtypes.OpenArgs{Path: "a"})
	suite.Equal(fxtypes.FX_ERR, ores.Status)
	fd := suite.open("b")
	suite.Equal([]byte("payload"), suite.read(fd, 0, 10))
	suite.close(fd)
}

func (suite *FxSuite) TestRenameOverwrites() {
	suite.putFile("src", []byte("new"))
	suite.putFile("dst", []byte("old"))

	res := suite.fs.Rename(rename("src", "dst"))
	suite.Require().Equal(fxtypes.FX_OK, res.Status)

	fd := suite.open("dst")
	suite.Equal([]byte("new"), suite.read(fd, 0, 10))
	suite.close(fd)

	rootFd := suite.open("")
	listing := suite.read(rootFd, 0, fxtypes.MAXDATA)
	suite.Equal(1, bytes.Count(listing, []byte("dst")))
	suite.close(rootFd)
}

func (suite *FxSuite) TestRenameSamePathOk() {
	suite.putFile("same", []byte("x"))
	res := suite.fs.Rename(rename("same", "same"))
	suite.Equal(fxtypes.FX_OK, res.Status)

	// a name that does not resolve fails even onto itself
	res = suite.fs.Rename(rename("ghost", "ghost"))
	suite.Equal(fxtypes.FX_ERR, res.Status)
}

// Overwriting a name by rename must destroy the replaced file
// entirely: its inode leaves the tree, its blocks return to the
// bitmap, and open handles on it die. Nothing resolves to it anymore,
// so anything left behind would be leaked forever.
func (suite *FxSuite) TestRenameOverwriteReclaims() {
	freeBefore := suite.fs.ba.NumFree()
	suite.putFile("dst", make([]byte, 100_000))
	suite.putFile("src", []byte("new"))
	dstIno, err := suite.fs.namei("dst")
	suite.Require().NoError(err)
	dstFd := suite.open("dst")

	res := suite.fs.Rename(rename("src", "dst"))
	suite.Require().Equal(fxtypes.FX_OK, res.Status)

	_, err = suite.fs.getInode(dstIno)
	suite.Equal(ErrNotFound, err)
	rres := suite.fs.Read(&fxtypes.ReadArgs{Fd: dstFd, Offset: 0, Count: 10})
	suite.Equal(fxtypes.FX_ERR, rres.Status)
	// data blocks come back; tree CoW may shift a few metadata blocks
	suite.Greater(suite.fs.ba.NumFree()+5, freeBefore)

	fd := suite.open("dst")
	suite.Equal([]byte("new"), suite.read(fd, 0, 10))
	suite.close(fd)
}

func (suite *FxSuite) TestRenameOverwriteDirectory() {
	suite.create("d", fxtypes.CREATE_DIR)
	suite.putFile("d/child", []byte("x"))
	suite.putFile("f", []byte("y"))

	res := suite.fs.Rename(rename("f", "d"))
	suite.Equal(fxtypes.FX_ERR, res.Status, "non-empty directory is not replaceable")

	rres := suite.fs.Remove(&fxtypes.RemoveArgs{Path: "d/child"})
	suite.Require().Equal(fxtypes.FX_OK, rres.Status)
	res = suite.fs.Rename(rename("f", "d"))
	suite.Require().Equal(fxtypes.FX_OK, res.Status)
	fd := suite.open("d")
	suite.Equal([]byte("y"), suite.read(fd, 0, 10))
	suite.close(fd)
}

func (suite *FxSuite) TestTruncate() {
	suite.putFile("t", make([]byte, 20_000))
	fd := suite.open("t")

	res := suite.fs.Truncate(&fxtypes.TruncateArgs{Fd: fd, Size: 100})
	suite.Require().Equal(fxtypes.FX_OK, res.Status)
	suite.Equal(uint64(100), suite.stat(fd).Size)

	res = suite.fs.Truncate(&fxtypes.TruncateArgs{Fd: fd, Size: 10_000})
	suite.Require().Equal(fxtypes.FX_OK, res.Status)
	suite.Equal(uint64(10_000), suite.stat(fd).Size)
	// grown region reads back as zeros
	tail := suite.read(fd, 9_000, 100)
	suite.Equal(make([]byte, 100), tail)
	suite.close(fd)
}

func (suite *FxSuite) TestWstat() {
	fd := suite.create("w", 0)

	res := suite.fs.Wstat(&fxtypes.WstatArgs{
		Fd: fd, Mask: fxtypes.WSTAT_MODE, Mode: 0o600, CallerUid: 0,
	})
	suite.Require().Equal(fxtypes.FX_OK, res.Status)
	suite.Equal(uint32(modeReg|0o600), suite.stat(fd).Mode)

	res = suite.fs.Wstat(&fxtypes.WstatArgs{
		Fd: fd, Mask: fxtypes.WSTAT_UID, Uid: 42, CallerUid: 0,
	})
	suite.Require().Equal(fxtypes.FX_OK, res.Status)
	suite.Equal(uint32(42), suite.stat(fd).Uid)

	// only the owner may chmod now, and only root may chown
	res = suite.fs.Wstat(&fxtypes.WstatArgs{
		Fd: fd, Mask: fxtypes.WSTAT_MODE, Mode: 0o644, CallerUid: 7,
	})
	suite.Equal(fxtypes.FX_ERR, res.Status)
	res = suite.fs.Wstat(&fxtypes.WstatArgs{
		Fd: fd, Mask: fxtypes.WSTAT_UID, Uid: 7, CallerUid: 42,
	})
	suite.Equal(fxtypes.FX_ERR, res.Status)
	suite.close(fd)
}

func (suite *FxSuite) TestCtlFile() {
	fd := suite.open(fxtypes.CtlPath)
	content := string(suite.read(fd, 0, 1024))
	suite.Contains(content, fmt.Sprintf("TOTAL=%d\n", suite.fs.sb.TotalBlocks))
	suite.Contains(content, "FREE=")
	suite.Contains(content, fmt.Sprintf("BSIZE=%d\n", disk.BlockSize))

	wres := suite.fs.Write(&fxtypes.WriteArgs{Fd: fd, Data: []byte("no")})
	suite.Equal(fxtypes.FX_ERR, wres.Status)
	tres := suite.fs.Truncate(&fxtypes.TruncateArgs{Fd: fd, Size: 0})
	suite.Equal(fxtypes.FX_ERR, tres.Status)
	suite.close(fd)
}

func (suite *FxSuite) TestBadPaths() {
	for _, p := range []string{"no/such/file", "a//b", strings.Repeat("n", fxtypes.MAXNAMELEN+1)} {
		res := suite.fs.Open(&fxtypes.OpenArgs{Path: p})
		suite.Equal(fxtypes.FX_ERR, res.Status, "path %q", p)
	}
	cres := suite.fs.Create(&fxtypes.CreateArgs{Path: "missing/dir/f"})
	suite.Equal(fxtypes.FX_ERR, cres.Status)
}

func (suite *FxSuite) TestRemountKeepsData() {
	suite.putFile("persists", []byte("still here"))
	big := make([]byte, 50_000)
	for i := range big {
		big[i] = byte(i)
	}
	suite.putFile("bigpersists", big)

	suite.remount()

	fd := suite.open("persists")
	suite.Equal([]byte("still here"), suite.read(fd, 0, 100))
	suite.close(fd)
	fd = suite.open("bigpersists")
	suite.Equal(big, suite.read(fd, 0, uint32(len(big))))
	suite.close(fd)
}

func (suite *FxSuite) TestUncommittedMutationInvisibleAfterRemount() {
	suite.putFile("stable", []byte("v1"))

	// mutate the tree without publishing a superblock; this is what
	// the disk looks like after a crash mid-operation
	ino, err := suite.fs.namei("stable")
	suite.Require().NoError(err)
	ip, err := suite.fs.getInode(ino)
	suite.Require().NoError(err)
	suite.Require().NoError(suite.fs.fileWrite(ino, ip, 0, []byte("v2")))
	suite.Require().NoError(suite.fs.putInode(ino, ip))
	// no commit

	suite.remount()

	fd := suite.open("stable")
	suite.Equal([]byte("v1"), suite.read(fd, 0, 10))
	suite.close(fd)
}

func (suite *FxSuite) TestBackupSuperblockMount() {
	suite.putFile("f", []byte("data"))
	gen := suite.fs.sb.Generation

	// corrupt the primary copy; mount must fall back to the backup
	blk := make([]byte, disk.BlockSize)
	suite.d.Write(0, blk)
	suite.remount()

	suite.Equal(gen, suite.fs.sb.Generation)
	fd := suite.open("f")
	suite.Equal([]byte("data"), suite.read(fd, 0, 10))
	suite.close(fd)
}

func (suite *FxSuite) TestOutOfSpace() {
	fd := suite.create("huge", 0)
	res := suite.fs.Write(&fxtypes.WriteArgs{
		Fd:   fd,
		Data: make([]byte, testDiskSz*disk.BlockSize),
	})
	suite.Equal(fxtypes.FX_ERR, res.Status)

	// the engine must still work after the failed write
	suite.write(fd, []byte("small is fine"))
	suite.Equal([]byte("small is fine"), suite.read(fd, 0, 100))
	suite.close(fd)
}

// Two names may hash to the same directory slot. Linking probes past
// the squatter; lookup falls back to a scan when the hashed slot
// holds some other name.
func (suite *FxSuite) TestDirHashCollision() {
	fs := suite.fs
	h := nameHash("bbb")
	squatter := &dirEnt{Ino: 31, Ftype: FTypeFile, Name: "aaa"}
	suite.Require().NoError(fs.tree.Insert(dirEntKey(common.ROOTINUM, h), squatter.encode()))
	suite.Require().NoError(fs.dirLink(common.ROOTINUM, "bbb", 32, FTypeFile))

	de, off, err := fs.dirLookup(common.ROOTINUM, "bbb")
	suite.Require().NoError(err)
	suite.Equal(common.Inum(32), de.Ino)
	suite.Equal(h+1, off, "link probes to the next free slot")

	de, off, err = fs.dirLookup(common.ROOTINUM, "aaa")
	suite.Require().NoError(err)
	suite.Equal(common.Inum(31), de.Ino)
	suite.Equal(h, off, "scan fallback finds a name outside its own hash slot")
}

func (suite *FxSuite) TestTmpDiskServer() {
	fs := MkFxFsTmp(2000)
	suite.Require().NotNil(fs.Name)

	fd := fs.Create(&fxtypes.CreateArgs{Path: "f"})
	suite.Require().Equal(fxtypes.FX_OK, fd.Status)
	wres := fs.Write(&fxtypes.WriteArgs{Fd: fd.Fd, Data: []byte("on a file disk")})
	suite.Require().Equal(fxtypes.FX_OK, wres.Status)
	rres := fs.Read(&fxtypes.ReadArgs{Fd: fd.Fd, Offset: 0, Count: 100})
	suite.Require().Equal(fxtypes.FX_OK, rres.Status)
	suite.Equal([]byte("on a file disk"), rres.Data)

	suite.Equal(uint32(1), fs.stats[OpCreate].Count())
	suite.Equal(uint32(1), fs.stats[OpWrite].Count())

	name := *fs.Name
	fs.ShutdownDestroy()
	_, err := os.Stat(name)
	suite.True(os.IsNotExist(err))
}

func TestFxSuite(t *testing.T) {
	suite.Run(t, new(FxSuite))
}
