// Package streamutil provides support routines for running jsonrpc
// endpoints over network listeners and in-memory pipes, adapted from the
// teacher package's server.Loop and server.Local helpers to the symmetric
// Endpoint type.
package streamutil

import (
	"log"
	"net"

	"github.com/coldforge/jsonrpc"
	"github.com/coldforge/jsonrpc/stream"
	"golang.org/x/sync/errgroup"
)

// Framing converts a network connection into a Stream.
type Framing func(net.Conn) stream.Stream

// LoopOptions control the behavior of Loop. A nil *LoopOptions provides the
// defaults described for each field.
type LoopOptions struct {
	// If non-nil, this function is used to convert an inbound connection
	// into a Stream. If nil, stream.NewHeader is used.
	Framing Framing

	// If non-nil, these options configure each accepted connection's
	// Endpoint.
	EndpointOptions *jsonrpc.Options

	// NewApplication, if non-nil, is called once per accepted connection to
	// build that connection's handler registry. If nil, every connection
	// shares app (which must then be safe for concurrent dispatch).
	NewApplication func() *jsonrpc.Application
}

func (o *LoopOptions) framing() Framing {
	if o == nil || o.Framing == nil {
		return func(c net.Conn) stream.Stream { return stream.NewHeader(c) }
	}
	return o.Framing
}

func (o *LoopOptions) endpointOptions() *jsonrpc.Options {
	if o == nil {
		return nil
	}
	return o.EndpointOptions
}

// Loop accepts connections from lst until it returns an error, starting one
// Endpoint per connection in its own goroutine. Loop blocks until lst.Accept
// fails (for example, because the listener was closed), at which point it
// waits for all endpoints currently running to finish and returns the
// triggering error.
func Loop(lst net.Listener, app *jsonrpc.Application, opts *LoopOptions) error {
	newStream := opts.framing()
	epOpts := opts.endpointOptions()
	newApp := app
	if opts != nil && opts.NewApplication != nil {
		newApp = nil
	}

	var g errgroup.Group
	for {
		conn, err := lst.Accept()
		if err != nil {
			log.Printf("streamutil: accept error, stopping loop: %v", err)
			return g.Wait()
		}
		a := newApp
		if a == nil {
			a = opts.NewApplication()
		}
		str := newStream(conn)
		g.Go(func() error {
			ep := jsonrpc.NewEndpoint(str, a, epOpts)
			ep.Start()
			ep.Wait()
			return nil
		})
	}
}
