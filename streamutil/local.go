package streamutil

import (
	"github.com/coldforge/jsonrpc"
	"github.com/coldforge/jsonrpc/stream"
)

// LocalOptions control the endpoints constructed by Local.
type LocalOptions struct {
	AOptions *jsonrpc.Options
	BOptions *jsonrpc.Options
}

// Local constructs two Endpoints, a and b, connected by an in-memory Pipe,
// dispatching to aApp and bApp respectively. Both endpoints are started
// before return. wait blocks until both have stopped reading (that is,
// until both sides have been closed), and is intended for use by tests and
// example programs that pair two endpoints in a single process without a
// real network connection.
func Local(aApp, bApp *jsonrpc.Application, opts *LocalOptions) (a, b *jsonrpc.Endpoint, wait func()) {
	if opts == nil {
		opts = new(LocalOptions)
	}
	sa, sb := stream.Pipe()
	a = jsonrpc.NewEndpoint(sa, aApp, opts.AOptions)
	b = jsonrpc.NewEndpoint(sb, bApp, opts.BOptions)
	a.Start()
	b.Start()
	return a, b, func() {
		a.Wait()
		b.Wait()
	}
}
