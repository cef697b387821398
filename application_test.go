package jsonrpc

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/coldforge/jsonrpc/code"
	"github.com/coldforge/jsonrpc/stream"
)

func TestRegisterEmptyMethodPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("RegisterRequest(\"\", ...) should have panicked")
		}
	}()
	NewApplication().RegisterRequest("", func(context.Context, *Request, *Endpoint) {})
}

func TestRegisterOverwritesLastWriteWins(t *testing.T) {
	app := NewApplication()
	var which int
	app.RegisterRequest("m", func(ctx context.Context, req *Request, ep *Endpoint) {
		which = 1
		ep.SendResponse(req.ID(), nil, nil)
	})
	app.RegisterRequest("m", func(ctx context.Context, req *Request, ep *Endpoint) {
		which = 2
		ep.SendResponse(req.ID(), nil, nil)
	})
	if !app.RequestNames().Contains("m") {
		t.Fatal("expected m to be registered")
	}

	a, b := stream.Pipe()
	ep := NewEndpoint(a, app, nil)
	ep.Start()
	defer ep.Stop()

	b.Send([]byte(`{"jsonrpc":"2.0","method":"m","id":1}`))
	if _, err := b.Recv(); err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if which != 2 {
		t.Errorf("invoked handler: got %d, want 2 (last registration should win)", which)
	}
}

// TestHandlerPanicRecovered ensures a panicking handler does not take down
// the endpoint's dispatch goroutine, and that the recovered panic is sent
// as the request's InternalError response, carrying the panic value in its
// message.
func TestHandlerPanicRecovered(t *testing.T) {
	app := NewApplication()
	app.RegisterRequest("boom", func(ctx context.Context, req *Request, ep *Endpoint) {
		panic("kaboom")
	})

	a, b := stream.Pipe()
	ep := NewEndpoint(a, app, nil)
	ep.Start()
	defer ep.Stop()

	b.Send([]byte(`{"jsonrpc":"2.0","method":"boom","id":1}`))
	data, err := b.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}

	var rsp struct {
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &rsp); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if rsp.Error == nil {
		t.Fatal("expected an error response carrying the panic value")
	}
	if rsp.Error.Code != int(code.InternalError) {
		t.Errorf("Code = %d, want %d (code.InternalError)", rsp.Error.Code, code.InternalError)
	}
	if !strings.Contains(rsp.Error.Message, "kaboom") {
		t.Errorf("Message = %q, want it to contain the panic value %q", rsp.Error.Message, "kaboom")
	}
}
