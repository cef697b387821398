// Program epcall issues JSON-RPC calls to an endpoint listening on a TCP or
// Unix-domain socket.
//
// Usage:
//
//	epcall [options] <address> {<method> <params>}...
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/coldforge/jsonrpc"
	"github.com/coldforge/jsonrpc/stream"
)

var (
	dialTimeout = flag.Duration("dial", 5*time.Second, "Timeout on dialing the server (0 for no timeout)")
	callTimeout = flag.Duration("timeout", 0, "Timeout on each call (0 for no timeout)")
	doNotify    = flag.Bool("notify", false, "Send a notification instead of a request")
	framing     = flag.String("f", "header", "Channel framing (header or line)")
	withLogging = flag.Bool("v", false, "Enable verbose logging")
)

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: %s [options] <address> {<method> <params>}...

Connect to the endpoint listening at address and issue each method call in
turn, printing the raw JSON result of each to stdout and logging each error
response to stderr.

Options:
`, filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
}

func main() {
	flag.Parse()
	if flag.NArg() < 3 || flag.NArg()%2 == 0 {
		log.Fatal("Arguments are <address> {<method> <params>}...")
	}

	ntype, addr := "tcp", flag.Arg(0)
	if !strings.Contains(addr, ":") {
		ntype = "unix"
	}
	conn, err := net.DialTimeout(ntype, addr, *dialTimeout)
	if err != nil {
		log.Fatalf("Dial %q: %v", addr, err)
	}

	str := newStream(conn)
	opts := new(jsonrpc.Options)
	if *withLogging {
		opts.Logger = jsonrpc.StdLogger(log.New(os.Stderr, "", log.LstdFlags|log.Lshortfile))
	}
	ep := jsonrpc.NewEndpoint(str, nil, opts)
	ep.Start()
	defer ep.Stop()

	args := flag.Args()[1:]
	ok := true
	for i := 0; i < len(args); i += 2 {
		ctx := context.Background()
		if *callTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, *callTimeout)
			defer cancel()
		}
		method, params := args[i], param(args[i+1])
		if *doNotify {
			if err := ep.SendNotification(ctx, method, params); err != nil {
				log.Fatalf("Notify failed: %v", err)
			}
			continue
		}
		rsp, err := ep.SendRequest(ctx, method, params)
		if err != nil {
			log.Fatalf("Call failed: %v", err)
		}
		if rsp == nil {
			log.Fatal("Call failed: endpoint shut down")
		}
		if rerr := rsp.Error(); rerr != nil {
			log.Printf("Error: %v", rerr)
			ok = false
			continue
		}
		fmt.Println(rsp.ResultString())
	}
	if !ok {
		os.Exit(1)
	}
}

func newStream(conn net.Conn) stream.Stream {
	if *framing == "line" {
		return stream.NewLine(conn)
	}
	return stream.NewHeader(conn)
}

func param(s string) any {
	if s == "" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		log.Fatalf("Invalid params %q: %v", s, err)
	}
	return v
}
