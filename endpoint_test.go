package jsonrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/coldforge/jsonrpc/code"
	"github.com/coldforge/jsonrpc/stream"
	"github.com/fortytw2/leaktest"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// TestMethodNotFound covers boundary scenario 1: a request for an
// unregistered method receives a MethodNotFound response with the
// documented message text.
func TestMethodNotFound(t *testing.T) {
	defer leaktest.Check(t)()

	a, b := stream.Pipe()
	ep := NewEndpoint(a, NewApplication(), nil)
	ep.Start()
	defer ep.Stop()

	if err := b.Send([]byte(`{"jsonrpc":"2.0","method":"nope","id":7}`)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	data, err := b.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	errObj := got["error"].(map[string]any)
	if code := errObj["code"].(float64); code != -32601 {
		t.Errorf("code: got %v, want -32601", code)
	}
	if msg := errObj["message"]; msg != "Method not found: nope" {
		t.Errorf("message: got %q, want %q", msg, "Method not found: nope")
	}
}

// TestNoResponseSent covers boundary scenario 2: a registered handler that
// returns without replying is answered by the reader loop's synthetic
// InternalError fallback.
func TestNoResponseSent(t *testing.T) {
	defer leaktest.Check(t)()

	app := NewApplication()
	app.RegisterRequest("silent", func(ctx context.Context, req *Request, ep *Endpoint) {
		// Deliberately does not call ep.SendResponse.
	})

	a, b := stream.Pipe()
	ep := NewEndpoint(a, app, nil)
	ep.Start()
	defer ep.Stop()

	if err := b.Send([]byte(`{"jsonrpc":"2.0","method":"silent","id":11}`)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	data, err := b.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	errObj := got["error"].(map[string]any)
	if code := errObj["code"].(float64); code != -32603 {
		t.Errorf("code: got %v, want -32603", code)
	}
	if msg := errObj["message"]; msg != "No response sent" {
		t.Errorf("message: got %q, want %q", msg, "No response sent")
	}
}

// TestNotificationToUnknownMethod covers boundary scenario 3: a
// notification addressed to an unregistered method produces no wire
// response at all.
func TestNotificationToUnknownMethod(t *testing.T) {
	defer leaktest.Check(t)()

	a, b := stream.Pipe()
	ep := NewEndpoint(a, NewApplication(), nil)
	ep.Start()
	defer ep.Stop()

	if err := b.Send([]byte(`{"jsonrpc":"2.0","method":"ghost"}`)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	recvd := make(chan []byte, 1)
	go func() {
		data, err := b.Recv()
		if err == nil {
			recvd <- data
		}
	}()
	select {
	case data := <-recvd:
		t.Fatalf("unexpected response on the wire: %s", data)
	case <-time.After(50 * time.Millisecond):
		// No response arrived, as required.
	}
}

// TestRequestReplyRoundTrip covers round-trip law L1: registering a request
// handler and sending it a request yields the handler's chosen response.
func TestRequestReplyRoundTrip(t *testing.T) {
	defer leaktest.Check(t)()

	app := NewApplication()
	app.RegisterRequest("echo", Reply(func(ctx context.Context, req *Request) (any, error) {
		var v json.RawMessage
		if err := req.UnmarshalParams(&v); err != nil {
			return nil, err
		}
		return v, nil
	}))

	peerApp := NewApplication()
	peer, mine := stream.Pipe()
	epPeer := NewEndpoint(peer, peerApp, nil)
	ep := NewEndpoint(mine, app, nil)
	epPeer.Start()
	ep.Start()
	defer epPeer.Stop()
	defer ep.Stop()

	rsp, err := epPeer.SendRequest(context.Background(), "echo", map[string]any{"n": 1})
	if err != nil {
		t.Fatalf("SendRequest: %v", err)
	}
	if rsp == nil {
		t.Fatal("unexpected nil response")
	}
	if rsp.Error() != nil {
		t.Fatalf("unexpected error response: %v", rsp.Error())
	}
	var got map[string]any
	if err := rsp.UnmarshalResult(&got); err != nil {
		t.Fatalf("UnmarshalResult: %v", err)
	}
	if got["n"].(float64) != 1 {
		t.Errorf("result: got %v, want n=1", got)
	}
}

// TestNotifyInvokedOnce covers round-trip law L2: sending a notification to
// a registered handler invokes it exactly once and produces no response
// frame.
func TestNotifyInvokedOnce(t *testing.T) {
	defer leaktest.Check(t)()

	var count int
	var mu sync.Mutex
	app := NewApplication()
	app.RegisterNotify("ping", func(ctx context.Context, req *Request) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	peer, mine := stream.Pipe()
	epPeer := NewEndpoint(peer, NewApplication(), nil)
	ep := NewEndpoint(mine, app, nil)
	epPeer.Start()
	ep.Start()
	defer epPeer.Stop()
	defer ep.Stop()

	if err := epPeer.SendNotification(context.Background(), "ping", nil); err != nil {
		t.Fatalf("SendNotification: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Errorf("handler invocation count: got %d, want 1", count)
	}
}

// TestOutboundTimeout covers boundary scenario 4: an outbound call whose
// peer never replies returns the documented timeout error once the
// configured request timeout elapses.
func TestOutboundTimeout(t *testing.T) {
	defer leaktest.Check(t)()

	a, _ := stream.Pipe()
	timeout := 20 * time.Millisecond
	ep := NewEndpoint(a, NewApplication(), &Options{RequestTimeout: &timeout})
	ep.Start()
	defer ep.Stop()

	rsp, err := ep.SendRequest(context.Background(), "slow", map[string]any{})
	if err != nil {
		t.Fatalf("SendRequest returned an error: %v", err)
	}
	if rsp == nil || rsp.Error() == nil {
		t.Fatalf("expected a timeout error response, got %v", rsp)
	}
	if rsp.Error().Code != code.InternalError {
		t.Errorf("code: got %v, want %v", rsp.Error().Code, code.InternalError)
	}
	if rsp.Error().Message != "Timeout waiting for response" {
		t.Errorf("message: got %q, want %q", rsp.Error().Message, "Timeout waiting for response")
	}
}

// TestConcurrentOutbound covers boundary scenario 5: 100 concurrent callers
// each receive their own response with no crosstalk, and the ids observed
// on the wire are exactly {0..99} with no duplicates.
func TestConcurrentOutbound(t *testing.T) {
	defer leaktest.Check(t)()

	const n = 100
	a, b := stream.Pipe()
	ep := NewEndpoint(a, NewApplication(), nil)
	ep.Start()
	defer ep.Stop()

	seen := make(chan string, n)
	go func() {
		for i := 0; i < n; i++ {
			data, err := b.Recv()
			if err != nil {
				return
			}
			var msg map[string]any
			json.Unmarshal(data, &msg)
			id := msg["id"].(float64)
			seen <- strconv.Itoa(int(id))
			echoed := msg["params"].(map[string]any)["n"].(float64)
			reply := fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":{"echoed":%d}}`, int(id), int(echoed))
			b.Send([]byte(reply))
		}
	}()

	var wg sync.WaitGroup
	results := make([]int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rsp, err := ep.SendRequest(context.Background(), "echo", map[string]any{"n": i})
			if err != nil || rsp == nil || rsp.Error() != nil {
				t.Errorf("caller %d: SendRequest failed: rsp=%v err=%v", i, rsp, err)
				return
			}
			var got struct{ Echoed int }
			if err := rsp.UnmarshalResult(&got); err != nil {
				t.Errorf("caller %d: UnmarshalResult: %v", i, err)
			}
			results[i] = got.Echoed
		}(i)
	}
	wg.Wait()
	for i, got := range results {
		if got != i {
			t.Errorf("caller %d: got echoed %d, want %d", i, got, i)
		}
	}

	ids := make(map[string]bool)
	for i := 0; i < n; i++ {
		id := <-seen
		if ids[id] {
			t.Errorf("duplicate id observed on the wire: %s", id)
		}
		ids[id] = true
	}
	if len(ids) != n {
		t.Errorf("distinct ids observed: got %d, want %d", len(ids), n)
	}
	for i := 0; i < n; i++ {
		if !ids[strconv.Itoa(i)] {
			t.Errorf("id %d was not observed on the wire", i)
		}
	}
}

// TestCarrierInjectionArrayOfObject covers boundary scenario 6: injecting a
// trace carrier into single-element array params sets the carrier on that
// element rather than appending a second element.
func TestCarrierInjectionArrayOfObject(t *testing.T) {
	defer leaktest.Check(t)()

	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	defer otel.SetTextMapPropagator(prev)

	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	a, b := stream.Pipe()
	ep := NewEndpoint(a, NewApplication(), nil)
	ep.Start()
	defer ep.Stop()

	go ep.SendRequest(ctx, "m", []any{map[string]any{"x": 1}})

	data, err := b.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	var msg struct {
		Params []map[string]any `json:"params"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(msg.Params) != 1 {
		t.Fatalf("params length: got %d, want 1 (carrier must not append a second element)", len(msg.Params))
	}
	if msg.Params[0]["x"].(float64) != 1 {
		t.Errorf("x: got %v, want 1", msg.Params[0]["x"])
	}
	if _, ok := msg.Params[0]["carrier"]; !ok {
		t.Error("expected a carrier key on the sole params element")
	}
}

// TestShutdownMidWait covers boundary scenario 7: a caller blocked in
// SendRequest returns nil, nil promptly when Stop is called concurrently.
func TestShutdownMidWait(t *testing.T) {
	defer leaktest.Check(t)()

	a, _ := stream.Pipe()
	forever := time.Duration(0)
	ep := NewEndpoint(a, NewApplication(), &Options{RequestTimeout: &forever})
	ep.Start()

	done := make(chan struct{})
	var rsp *Response
	var err error
	go func() {
		rsp, err = ep.SendRequest(context.Background(), "slow", nil)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	ep.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("SendRequest did not return after Stop")
	}
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if rsp != nil {
		t.Errorf("expected a nil response after shutdown, got %v", rsp)
	}
}
