package jsonrpc

import (
	"context"
	"errors"
	"fmt"

	"github.com/coldforge/jsonrpc/code"
)

// A RequestFunc handles an inbound request. It is responsible for eventually
// calling ep.SendResponse exactly once; a RequestFunc that returns without
// doing so leaves its request answered by the reader loop's synthetic
// "No response sent" fallback, not by the callback itself. This mirrors the
// source Callback contract literally: the callback, not the dispatch
// algorithm, owns the reply.
type RequestFunc func(ctx context.Context, req *Request, ep *Endpoint)

// A NotifyFunc handles an inbound notification. Since notifications have no
// reply path, a panic here is only logged.
type NotifyFunc func(ctx context.Context, req *Request)

// Reply adapts a plain value-returning function to a RequestFunc, as the
// ergonomic convenience the design notes call out: most handlers want to
// compute a result and have it sent, rather than talk to the Endpoint
// directly. Reply always calls ep.SendResponse exactly once, so it can never
// trigger the "No response sent" fallback.
func Reply(fn func(ctx context.Context, req *Request) (any, error)) RequestFunc {
	return func(ctx context.Context, req *Request, ep *Endpoint) {
		result, err := fn(ctx, req)
		ep.SendResponse(req.ID(), result, toError(err))
	}
}

// toError normalizes any error value into an *Error suitable for
// transmission: an already-typed *Error (or one wrapped by err) is passed
// through unchanged; an error that reports its own code (a code.ErrCoder) or
// is a context cancellation or deadline is categorized by code.FromError;
// anything else becomes an InternalError. The result carries err's message.
func toError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	c := code.InternalError
	var ec code.ErrCoder
	if errors.As(err, &ec) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		c = code.FromError(err)
	}
	return &Error{Code: c, Message: err.Error()}
}

// callRequest invokes fn, recovering a panic and treating it exactly like a
// returned error: the panic value is converted through toError and sent as
// the request's response. If fn already sent a response before panicking,
// this second SendResponse is the documented logged no-op, not a double
// reply.
func callRequest(ctx context.Context, fn RequestFunc, req *Request, ep *Endpoint) {
	defer func() {
		if p := recover(); p != nil {
			err := fmt.Errorf("panic in handler for %q: %v", req.Method(), p)
			ep.logf("%v", err)
			ep.SendResponse(req.ID(), nil, toError(err))
		}
	}()
	fn(ctx, req, ep)
}

// callNotify invokes fn, recovering a panic and reporting it through log
// rather than propagating it, since there is no reply path for a
// notification.
func callNotify(ctx context.Context, fn NotifyFunc, req *Request, logf func(string, ...any)) {
	defer func() {
		if p := recover(); p != nil {
			logf("panic in notify handler for %q: %v", req.Method(), p)
		}
	}()
	fn(ctx, req)
}
