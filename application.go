package jsonrpc

import (
	"context"

	"github.com/coldforge/jsonrpc/code"
	"github.com/creachadair/mds/stringset"
)

// Kind distinguishes the two handler tables an Application maintains.
type Kind int

const (
	// RequestKind handlers reply with a result or error.
	RequestKind Kind = iota
	// NotifyKind handlers have no reply path.
	NotifyKind
)

// An Application binds method names to handler functions and dispatches
// inbound messages to them. It corresponds to the request_callbacks and
// notify_callbacks tables of the source JsonRpcApplication: requests and
// notifications are independent namespaces, so the same method name may be
// registered as both a request handler and a notification handler.
//
// Dispatch only reads the handler tables, so concurrent calls to Dispatch
// are safe. Registration takes no lock: RegisterRequest and RegisterNotify
// are not safe to call concurrently with each other or with Dispatch.
type Application struct {
	requests  map[string]RequestFunc
	notifies  map[string]NotifyFunc
	requestNm stringset.Set
	notifyNm  stringset.Set
}

// NewApplication returns an empty Application ready for registration.
func NewApplication() *Application {
	return &Application{
		requests: make(map[string]RequestFunc),
		notifies: make(map[string]NotifyFunc),
	}
}

// RegisterRequest binds method to fn in the request table, overwriting any
// prior registration for method. It panics if method is empty.
func (a *Application) RegisterRequest(method string, fn RequestFunc) {
	if method == "" {
		panic(errEmptyMethod)
	}
	a.requests[method] = fn
	a.requestNm.Add(method)
}

// RegisterNotify binds method to fn in the notification table, overwriting
// any prior registration for method. It panics if method is empty.
func (a *Application) RegisterNotify(method string, fn NotifyFunc) {
	if method == "" {
		panic(errEmptyMethod)
	}
	a.notifies[method] = fn
	a.notifyNm.Add(method)
}

// RequestNames returns the set of registered request method names.
func (a *Application) RequestNames() stringset.Set { return a.requestNm.Clone() }

// NotifyNames returns the set of registered notification method names.
func (a *Application) NotifyNames() stringset.Set { return a.notifyNm.Clone() }

// Dispatch routes an inbound Request to the matching handler.
//
// The algorithm mirrors JsonRpcApplication.handle_request exactly:
//   - a request (non-empty id) addressed to an unknown method produces a
//     MethodNotFound error response, sent directly by Dispatch;
//   - a request addressed to a known method is handed to its RequestFunc,
//     which owns the reply — Dispatch does not send one on its behalf, so a
//     RequestFunc that returns without calling ep.SendResponse leaves its
//     request to the reader loop's "No response sent" fallback;
//   - a notification (empty id) addressed to an unknown method is logged
//     and dropped;
//   - a notification addressed to a known method is handed to its
//     NotifyFunc; any outcome is ignored, since notifications have no reply.
func (a *Application) Dispatch(ctx context.Context, req *Request, ep *Endpoint, logf func(string, ...any)) {
	if req.IsNotification() {
		fn, ok := a.notifies[req.Method()]
		if !ok {
			logf("jsonrpc: dropping notification for unregistered method %q", req.Method())
			return
		}
		callNotify(ctx, fn, req, logf)
		return
	}

	fn, ok := a.requests[req.Method()]
	if !ok {
		ep.SendResponse(req.ID(), nil, Errorf(code.MethodNotFound, "Method not found: %s", req.Method()))
		return
	}
	callRequest(ctx, fn, req, ep)
}
