package fxtypes

import "github.com/zeldovich/go-rpcgen/xdr"

func (v *Status) Xdr(xs *xdr.XdrState) {
	xdr.XdrU32(xs, (*uint32)(v))
}
func (v *Fd) Xdr(xs *xdr.XdrState) {
	xdr.XdrU32(xs, (*uint32)(v))
}
func (v *OpenArgs) Xdr(xs *xdr.XdrState) {
	xdr.XdrString(xs, int(MAXPATHLEN), &v.Path)
}
func (v *OpenRes) Xdr(xs *xdr.XdrState) {
	v.Status.Xdr(xs)
	v.Fd.Xdr(xs)
}
func (v *CreateArgs) Xdr(xs *xdr.XdrState) {
	xdr.XdrU32(xs, &v.Flags)
	xdr.XdrString(xs, int(MAXPATHLEN), &v.Path)
}
func (v *CreateRes) Xdr(xs *xdr.XdrState) {
	v.Status.Xdr(xs)
	v.Fd.Xdr(xs)
}
func (v *ReadArgs) Xdr(xs *xdr.XdrState) {
	v.Fd.Xdr(xs)
	xdr.XdrU64(xs, &v.Offset)
	xdr.XdrU32(xs, &v.Count)
}
func (v *ReadRes) Xdr(xs *xdr.XdrState) {
	v.Status.Xdr(xs)
	xdr.XdrVarArray(xs, int(MAXDATA), &v.Data)
}
func (v *WriteArgs) Xdr(xs *xdr.XdrState) {
	v.Fd.Xdr(xs)
	xdr.XdrVarArray(xs, int(MAXDATA), &v.Data)
}
func (v *WriteRes) Xdr(xs *xdr.XdrState) {
	v.Status.Xdr(xs)
	xdr.XdrU32(xs, &v.Count)
}
func (v *CloseArgs) Xdr(xs *xdr.XdrState) {
	v.Fd.Xdr(xs)
}
func (v *CloseRes) Xdr(xs *xdr.XdrState) {
	v.Status.Xdr(xs)
}
func (v *StatArgs) Xdr(xs *xdr.XdrState) {
	v.Fd.Xdr(xs)
}
func (v *StatRes) Xdr(xs *xdr.XdrState) {
	v.Status.Xdr(xs)
	xdr.XdrU64(xs, &v.Size)
	xdr.XdrU32(xs, &v.IsDir)
	xdr.XdrU64(xs, &v.Mtime)
	xdr.XdrU64(xs, &v.Ctime)
	xdr.XdrU32(xs, &v.Mode)
	xdr.XdrU32(xs, &v.Uid)
	xdr.XdrU32(xs, &v.Gid)
}
func (v *RemoveArgs) Xdr(xs *xdr.XdrState) {
	xdr.XdrString(xs, int(MAXPATHLEN), &v.Path)
}
func (v *RemoveRes) Xdr(xs *xdr.XdrState) {
	v.Status.Xdr(xs)
}
func (v *RenameArgs) Xdr(xs *xdr.XdrState) {
	xdr.XdrString(xs, int(2*MAXPATHLEN+1), &v.Spec)
}
func (v *RenameRes) Xdr(xs *xdr.XdrState) {
	v.Status.Xdr(xs)
}
func (v *TruncateArgs) Xdr(xs *xdr.XdrState) {
	v.Fd.Xdr(xs)
	xdr.XdrU64(xs, &v.Size)
}
func (v *TruncateRes) Xdr(xs *xdr.XdrState) {
	v.Status.Xdr(xs)
}
func (v *WstatArgs) Xdr(xs *xdr.XdrState) {
	v.Fd.Xdr(xs)
	xdr.XdrU32(xs, &v.Mask)
	xdr.XdrU32(xs, &v.Mode)
	xdr.XdrU32(xs, &v.Uid)
	xdr.XdrU32(xs, &v.Gid)
	xdr.XdrU32(xs, &v.CallerUid)
}
func (v *WstatRes) Xdr(xs *xdr.XdrState) {
	v.Status.Xdr(xs)
}
