package jsonrpc

import (
	"errors"

	"github.com/coldforge/jsonrpc/code"
)

// errEmptyMethod is reported when Application.RegisterRequest or
// Application.RegisterNotify is called with an empty method name.
var errEmptyMethod = errors.New("jsonrpc: method name must not be empty")

// errInvalidParams is reported when request parameters fail to decode.
var errInvalidParams = &Error{Code: code.InvalidParams, Message: code.InvalidParams.Error()}

// errInvalidRequest is reported when a decoded wire message mixes request
// and response fields.
var errInvalidRequest = &Error{Code: code.InvalidRequest, Message: "mixed request and response fields"}

// errNoResponseSent is the fallback error synthesized by the reader loop
// when a request handler returns without replying. See the reader loop's
// "no response sent" sweep.
var errNoResponseSent = &Error{Code: code.InternalError, Message: "No response sent"}

// errTimeout is the error carried by the Response that SendRequest returns
// when no response arrives within the configured request timeout.
var errTimeout = &Error{Code: code.InternalError, Message: "Timeout waiting for response"}
