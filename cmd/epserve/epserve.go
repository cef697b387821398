// Program epserve runs a demonstration JSON-RPC endpoint listening on a TCP
// or Unix-domain socket, exposing an Echo method and an Add method.
//
// Usage:
//
//	epserve [options] <address>
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os"
	"strings"

	"github.com/coldforge/jsonrpc"
	"github.com/coldforge/jsonrpc/stream"
	"github.com/coldforge/jsonrpc/streamutil"
)

var (
	framing     = flag.String("f", "header", "Channel framing (header or line)")
	withLogging = flag.Bool("v", false, "Enable verbose logging")
)

func main() {
	flag.Parse()
	if flag.NArg() != 1 {
		log.Fatal("Usage: epserve [options] <address>")
	}
	addr := flag.Arg(0)

	ntype := "tcp"
	if !strings.Contains(addr, ":") {
		ntype = "unix"
		os.Remove(addr)
	}
	lst, err := net.Listen(ntype, addr)
	if err != nil {
		log.Fatalf("Listen: %v", err)
	}
	defer lst.Close()
	log.Printf("Listening on %s", lst.Addr())

	app := jsonrpc.NewApplication()
	app.RegisterRequest("Echo", jsonrpc.Reply(func(ctx context.Context, req *jsonrpc.Request) (any, error) {
		var v any
		if err := req.UnmarshalParams(&v); err != nil {
			return nil, err
		}
		return v, nil
	}))
	app.RegisterRequest("Add", jsonrpc.Reply(func(ctx context.Context, req *jsonrpc.Request) (any, error) {
		var vs []int
		if err := req.UnmarshalParams(&vs); err != nil {
			return nil, err
		}
		sum := 0
		for _, v := range vs {
			sum += v
		}
		return sum, nil
	}))

	opts := new(jsonrpc.Options)
	if *withLogging {
		opts.Logger = jsonrpc.StdLogger(log.New(os.Stderr, "", log.LstdFlags|log.Lshortfile))
	}

	loopOpts := &streamutil.LoopOptions{EndpointOptions: opts}
	if *framing == "line" {
		loopOpts.Framing = func(c net.Conn) stream.Stream { return stream.NewLine(c) }
	}
	if err := streamutil.Loop(lst, app, loopOpts); err != nil {
		log.Printf("Loop exited: %v", err)
	}
}
