package jsonrpc

import (
	"context"
	"fmt"
	"log"
	"time"
)

// defaultRequestTimeout is the timeout applied to SendRequest when Options
// or Options.RequestTimeout is nil.
const defaultRequestTimeout = 60 * time.Second

// A Logger records text logs from an Endpoint. A nil Logger discards all
// input.
type Logger func(text string)

// Printf writes a formatted message to lg. If lg == nil, the message is
// discarded.
func (lg Logger) Printf(format string, args ...any) {
	if lg != nil {
		lg(fmt.Sprintf(format, args...))
	}
}

// StdLogger adapts a *log.Logger to a Logger. If logger == nil, the returned
// Logger writes to the standard library's default logger.
func StdLogger(logger *log.Logger) Logger {
	if logger == nil {
		return func(text string) { log.Output(2, text) }
	}
	return func(text string) { logger.Output(2, text) }
}

// An RPCLogger receives callbacks describing the receipt of requests and the
// delivery of responses. The callbacks are invoked synchronously around
// dispatch and response delivery.
type RPCLogger interface {
	// LogRequest is called for each inbound request, prior to invoking its
	// handler.
	LogRequest(ctx context.Context, req *Request)

	// LogResponse is called for each response sent through SendResponse,
	// immediately prior to sending it back over the stream. The reader
	// loop's "No response sent" fallback and framing-error responses are not
	// reported.
	LogResponse(ctx context.Context, rsp *Response)
}

type nullRPCLogger struct{}

func (nullRPCLogger) LogRequest(context.Context, *Request)   {}
func (nullRPCLogger) LogResponse(context.Context, *Response) {}

// Options control the behavior of an Endpoint constructed by NewEndpoint. A
// nil *Options provides the documented defaults.
type Options struct {
	// If not nil, write debug text logs here.
	Logger Logger

	// If not nil, the methods of this value are invoked around request
	// dispatch and response delivery.
	RPCLog RPCLogger

	// RequestTimeout bounds how long SendRequest will wait for a reply. If
	// nil, the default of 60 seconds is used. A configured value <= 0 means
	// wait forever.
	RequestTimeout *time.Duration

	// HandlerConcurrency bounds the number of inbound request and
	// notification handlers that may execute concurrently. A value <= 0
	// means unbounded: the endpoint always dispatches each inbound message
	// on its own goroutine so the
	// reader loop never blocks on a slow handler (see the reader loop's
	// serialization note); this field only adds a ceiling on top of that.
	HandlerConcurrency int

	// If set, this function is used to construct the base context passed to
	// each inbound handler invocation. If unset, context.Background is used.
	NewContext func() context.Context
}

func (o *Options) logFunc() func(string, ...any) {
	if o == nil || o.Logger == nil {
		return func(string, ...any) {}
	}
	return o.Logger.Printf
}

func (o *Options) rpcLog() RPCLogger {
	if o == nil || o.RPCLog == nil {
		return nullRPCLogger{}
	}
	return o.RPCLog
}

func (o *Options) newContext() func() context.Context {
	if o == nil || o.NewContext == nil {
		return context.Background
	}
	return o.NewContext
}

// requestTimeout resolves the configured timeout. waitForever is true when
// the caller should block indefinitely.
func (o *Options) requestTimeout() (d time.Duration, waitForever bool) {
	if o == nil || o.RequestTimeout == nil {
		return defaultRequestTimeout, false
	}
	if *o.RequestTimeout <= 0 {
		return 0, true
	}
	return *o.RequestTimeout, false
}

func (o *Options) handlerConcurrency() int64 {
	if o == nil || o.HandlerConcurrency <= 0 {
		return 0
	}
	return int64(o.HandlerConcurrency)
}
