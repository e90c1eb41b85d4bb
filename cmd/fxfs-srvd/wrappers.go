package main

import (
	"github.com/zeldovich/go-rpcgen/rfc1057"
	"github.com/zeldovich/go-rpcgen/xdr"

	fxfs "github.com/trashguy/Fornax-sub002"
	"github.com/trashguy/Fornax-sub002/fxtypes"
)

type fxWrapper struct {
	fs *fxfs.FxFs
}

func (w *fxWrapper) open(args *xdr.XdrState) (res xdr.Xdrable, err error) {
	var in fxtypes.OpenArgs
	in.Xdr(args)
	err = args.Error()
	if err != nil {
		return
	}
	out := w.fs.Open(&in)
	return &out, nil
}

func (w *fxWrapper) create(args *xdr.XdrState) (res xdr.Xdrable, err error) {
	var in fxtypes.CreateArgs
	in.Xdr(args)
	err = args.Error()
	if err != nil {
		return
	}
	out := w.fs.Create(&in)
	return &out, nil
}

func (w *fxWrapper) read(args *xdr.XdrState) (res xdr.Xdrable, err error) {
	var in fxtypes.ReadArgs
	in.Xdr(args)
	err = args.Error()
	if err != nil {
		return
	}
	out := w.fs.Read(&in)
	return &out, nil
}

func (w *fxWrapper) write(args *xdr.XdrState) (res xdr.Xdrable, err error) {
	var in fxtypes.WriteArgs
	in.Xdr(args)
	err = args.Error()
	if err != nil {
		return
	}
	out := w.fs.Write(&in)
	return &out, nil
}

func (w *fxWrapper) close(args *xdr.XdrState) (res xdr.Xdrable, err error) {
	var in fxtypes.CloseArgs
	in.Xdr(args)
	err = args.Error()
	if err != nil {
		return
	}
	out := w.fs.Close(&in)
	return &out, nil
}

func (w *fxWrapper) stat(args *xdr.XdrState) (res xdr.Xdrable, err error) {
	var in fxtypes.StatArgs
	in.Xdr(args)
	err = args.Error()
	if err != nil {
		return
	}
	out := w.fs.Stat(&in)
	return &out, nil
}

func (w *fxWrapper) remove(args *xdr.XdrState) (res xdr.Xdrable, err error) {
	var in fxtypes.RemoveArgs
	in.Xdr(args)
	err = args.Error()
	if err != nil {
		return
	}
	out := w.fs.Remove(&in)
	return &out, nil
}

func (w *fxWrapper) rename(args *xdr.XdrState) (res xdr.Xdrable, err error) {
	var in fxtypes.RenameArgs
	in.Xdr(args)
	err = args.Error()
	if err != nil {
		return
	}
	out := w.fs.Rename(&in)
	return &out, nil
}

func (w *fxWrapper) truncate(args *xdr.XdrState) (res xdr.Xdrable, err error) {
	var in fxtypes.TruncateArgs
	in.Xdr(args)
	err = args.Error()
	if err != nil {
		return
	}
	out := w.fs.Truncate(&in)
	return &out, nil
}

func (w *fxWrapper) wstat(args *xdr.XdrState) (res xdr.Xdrable, err error) {
	var in fxtypes.WstatArgs
	in.Xdr(args)
	err = args.Error()
	if err != nil {
		return
	}
	out := w.fs.Wstat(&in)
	return &out, nil
}

func registerFxfs(srv *rfc1057.Server, fs *fxfs.FxFs) {
	w := &fxWrapper{fs}

	srv.Register(fxtypes.FXFS_PROGRAM, fxtypes.FXFS_V1, fxtypes.FXPROC_OPEN, w.open)
	srv.Register(fxtypes.FXFS_PROGRAM, fxtypes.FXFS_V1, fxtypes.FXPROC_CREATE, w.create)
	srv.Register(fxtypes.FXFS_PROGRAM, fxtypes.FXFS_V1, fxtypes.FXPROC_READ, w.read)
	srv.Register(fxtypes.FXFS_PROGRAM, fxtypes.FXFS_V1, fxtypes.FXPROC_WRITE, w.write)
	srv.Register(fxtypes.FXFS_PROGRAM, fxtypes.FXFS_V1, fxtypes.FXPROC_CLOSE, w.close)
	srv.Register(fxtypes.FXFS_PROGRAM, fxtypes.FXFS_V1, fxtypes.FXPROC_STAT, w.stat)
	srv.Register(fxtypes.FXFS_PROGRAM, fxtypes.FXFS_V1, fxtypes.FXPROC_REMOVE, w.remove)
	srv.Register(fxtypes.FXFS_PROGRAM, fxtypes.FXFS_V1, fxtypes.FXPROC_RENAME, w.rename)
	srv.Register(fxtypes.FXFS_PROGRAM, fxtypes.FXFS_V1, fxtypes.FXPROC_TRUNCATE, w.truncate)
	srv.Register(fxtypes.FXFS_PROGRAM, fxtypes.FXFS_V1, fxtypes.FXPROC_WSTAT, w.wstat)
}
