package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/coldforge/jsonrpc/code"
)

// Version is the JSON-RPC protocol version string this module implements.
const Version = "2.0"

// An Id is a JSON-RPC request identifier. It holds the raw JSON encoding of
// an integer or a string; the zero Id ("") denotes "no identifier", which is
// how notifications are represented.
//
// The endpoint mints only integer ids, monotonically increasing from zero,
// but ids attached to inbound requests are opaque: this module treats them
// as comparable values without interpreting their contents, as they may
// originate from a peer that assigns ids of either kind.
type Id string

// IsZero reports whether id is the empty (absent/notification) identifier.
func (id Id) IsZero() bool { return id == "" }

// String returns the raw JSON text of id.
func (id Id) String() string { return string(id) }

func idFromRaw(raw json.RawMessage) Id {
	if len(raw) == 0 || isNull(raw) {
		return ""
	}
	return Id(raw)
}

// Error is the concrete type of errors returned by this module, and the
// wire representation of a JSON-RPC error object.
type Error struct {
	Code    code.Code       `json:"code"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error satisfies the error interface.
func (e *Error) Error() string { return fmt.Sprintf("[%d] %s", e.Code, e.Message) }

// ErrCode satisfies the code.ErrCoder interface.
func (e *Error) ErrCode() code.Code { return e.Code }

// WithData marshals v as JSON and returns a copy of e whose Data field
// carries the result. If v == nil or marshaling fails, e is returned
// unmodified.
func (e *Error) WithData(v any) *Error {
	if v == nil {
		return e
	}
	if data, err := json.Marshal(v); err == nil {
		return &Error{Code: e.Code, Message: e.Message, Data: data}
	}
	return e
}

// Errorf builds an *Error with the given code and a formatted message.
func Errorf(c code.Code, format string, args ...any) *Error {
	return &Error{Code: c, Message: fmt.Sprintf(format, args...)}
}

// A Request is an inbound or outbound JSON-RPC request or notification.
type Request struct {
	id     Id
	method string
	params json.RawMessage
}

// ID returns the request's identifier, or the zero Id if r is a notification.
func (r *Request) ID() Id { return r.id }

// IsNotification reports whether r carries no identifier.
func (r *Request) IsNotification() bool { return r.id.IsZero() }

// Method reports the method name requested.
func (r *Request) Method() string { return r.method }

// HasParams reports whether r has non-empty parameters.
func (r *Request) HasParams() bool { return len(r.params) != 0 }

// ParamString returns the raw JSON encoding of the request parameters, or ""
// if there are none.
func (r *Request) ParamString() string { return string(r.params) }

// UnmarshalParams decodes the request parameters into v. If r has no
// parameters, it returns nil without modifying v. Malformed parameters
// report an *Error with code InvalidParams.
func (r *Request) UnmarshalParams(v any) error {
	if len(r.params) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.params, v); err != nil {
		return errInvalidParams.WithData(err.Error())
	}
	return nil
}

// A Response is a completed JSON-RPC response: the result of a prior
// outbound request.
type Response struct {
	id     Id
	result json.RawMessage
	err    *Error
}

// ID returns the response's identifier.
func (r *Response) ID() Id { return r.id }

// Error returns the non-nil *Error the response carries, if it is an error
// response.
func (r *Response) Error() *Error { return r.err }

// ResultString returns the raw JSON encoding of the result, or "" if the
// response is an error response.
func (r *Response) ResultString() string { return string(r.result) }

// UnmarshalResult decodes the response result into v. If the response
// carries an error, UnmarshalResult returns that error instead and leaves v
// unmodified.
func (r *Response) UnmarshalResult(v any) error {
	if r.err != nil {
		return r.err
	}
	if len(r.result) == 0 {
		return nil
	}
	return json.Unmarshal(r.result, v)
}

// wireMessage is the on-the-wire transmission format shared by requests,
// notifications, responses, and error reports. Exactly one of (M, P) and
// (R, E) is populated for a well-formed message.
type wireMessage struct {
	V  string          `json:"jsonrpc"`
	ID json.RawMessage `json:"id,omitempty"`

	M string          `json:"method,omitempty"`
	P json.RawMessage `json:"params,omitempty"`

	R json.RawMessage `json:"result,omitempty"`
	E *Error          `json:"error,omitempty"`
}

func (w *wireMessage) isRequestOrNotification() bool { return w.M != "" }

func (w *wireMessage) toRequest() *Request {
	return &Request{id: idFromRaw(w.ID), method: w.M, params: w.P}
}

func (w *wireMessage) toResponse() *Response {
	return &Response{id: idFromRaw(w.ID), result: w.R, err: w.E}
}

func requestToWire(req *Request) *wireMessage {
	var id json.RawMessage
	if !req.id.IsZero() {
		id = json.RawMessage(req.id)
	}
	return &wireMessage{V: Version, ID: id, M: req.method, P: req.params}
}

func responseToWire(rsp *Response) *wireMessage {
	w := &wireMessage{V: Version, ID: json.RawMessage(rsp.id)}
	if rsp.err != nil {
		w.E = rsp.err
	} else {
		w.R = rsp.result
	}
	return w
}

func encodeMessage(w *wireMessage) ([]byte, error) { return json.Marshal(w) }

func decodeMessage(data []byte) (*wireMessage, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	if w.M != "" && (w.E != nil || w.R != nil) {
		return nil, errInvalidRequest
	}
	return &w, nil
}

// isNull reports whether msg is exactly the JSON "null" value.
func isNull(msg json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(msg), []byte("null"))
}
