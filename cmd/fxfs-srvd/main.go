package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/panjf2000/ants/v2"
	"github.com/zeldovich/go-rpcgen/rfc1057"

	"github.com/mit-pdos/go-journal/util"

	fxfs "github.com/trashguy/Fornax-sub002"
)

func main() {
	var sizeMegabytes uint64
	flag.Uint64Var(&sizeMegabytes, "size", 400, "size of file system (in MB)")

	var diskfile string
	flag.StringVar(&diskfile, "disk", "", "disk image (empty for MemDisk)")

	var addr string
	flag.StringVar(&addr, "addr", ":0", "listen address")

	var nconn int
	flag.IntVar(&nconn, "conns", 64, "max concurrent client connections")

	var dumpStats bool
	flag.BoolVar(&dumpStats, "stats", false, "dump op stats to stderr at end")

	flag.Uint64Var(&util.Debug, "debug", 0, "debug level (higher is more verbose)")
	flag.Parse()

	diskBlocks := 1500 + sizeMegabytes*1024/4

	var fs *fxfs.FxFs
	if diskfile == "" {
		fs = fxfs.MkFxFsMem(diskBlocks)
	} else {
		fs = fxfs.MkFxFsName(diskfile, diskBlocks)
	}
	defer fs.Shutdown()

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		panic(err)
	}
	fmt.Fprintf(os.Stderr, "fxfs-srvd: listening on %s\n", listener.Addr())

	srv := rfc1057.MakeServer()
	registerFxfs(srv, fs)

	pool, err := ants.NewPool(nconn)
	if err != nil {
		panic(err)
	}
	defer pool.Release()

	interruptSig := make(chan os.Signal, 1)
	signal.Notify(interruptSig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-interruptSig
		listener.Close()
		if dumpStats {
			fs.WriteOpStats(os.Stderr)
		}
	}()

	statSig := make(chan os.Signal, 1)
	signal.Notify(statSig, syscall.SIGUSR1)
	go func() {
		for {
			<-statSig
			fs.WriteOpStats(os.Stderr)
		}
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			fmt.Fprintf(os.Stderr, "accept: %v\n", err)
			break
		}
		c := conn
		err = pool.Submit(func() {
			srv.Run(c)
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "submit: %v\n", err)
			conn.Close()
		}
	}
}
