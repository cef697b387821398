package jsonrpc

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation name under which this module reports
// spans, preserved verbatim from the Python original so that existing
// trace-consuming tooling continues to find the same span names across the
// rewrite.
const tracerName = "json_rpc"

func tracer() trace.Tracer { return otel.Tracer(tracerName) }

// startSpan opens a span with the given name, mirroring
// tracer.start_as_current_span(name) from the original implementation.
func startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer().Start(ctx, name)
}

// A ParamsFlattener lets a caller-supplied params value describe its own
// conversion to a JSON-marshalable, carrier-injectable shape, mirroring the
// Python original's special case for pydantic BaseModel instances
// (`params.model_dump()`).
type ParamsFlattener interface {
	FlattenParams() any
}

// normalizeParams flattens params into a generic JSON shape (map[string]any,
// []any, a scalar, or nil) suitable for carrier injection and marshaling.
//
// Go has no single "structured object" type the way the original's param
// union (BaseModel | dict | list | None) does, so params implementing
// ParamsFlattener are flattened explicitly; anything already shaped as
// map[string]any or []any passes through; everything else is round-tripped
// through JSON to obtain its generic shape. This is a deliberate
// generalization of the source's BaseModel-specific flattening step — see
// DESIGN.md.
func normalizeParams(params any) (any, error) {
	if params == nil {
		return nil, nil
	}
	if pf, ok := params.(ParamsFlattener); ok {
		params = pf.FlattenParams()
	}
	switch params.(type) {
	case map[string]any, []any:
		return params, nil
	}
	bits, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(bits, &generic); err != nil {
		return nil, err
	}
	return generic, nil
}

// injectCarrier implements the placement rules of the trace-context
// piggybacking contract:
//
//   - object params: set params["carrier"] = carrier.
//   - single-element array params whose sole element is an object: set
//     carrier on that element.
//   - any other array params: append carrier as a trailing element.
//   - anything else (nil, scalars): left unchanged, as the source leaves
//     this case implementation-defined.
//
// The carrier key is set unconditionally, even when there is no active span
// in ctx and the injected map is therefore empty: peers that read trace
// context from params, rather than transport headers, depend on the key
// itself being present, not just on it being non-empty.
func injectCarrier(ctx context.Context, params any) any {
	carrier := make(propagation.MapCarrier)
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	carrierMap := map[string]any{}
	for k, v := range carrier {
		carrierMap[k] = v
	}

	switch v := params.(type) {
	case map[string]any:
		v["carrier"] = carrierMap
		return v
	case []any:
		if len(v) == 1 {
			if elem, ok := v[0].(map[string]any); ok {
				elem["carrier"] = carrierMap
				return v
			}
		}
		return append(v, carrierMap)
	default:
		return params
	}
}

// marshalParams JSON-encodes params, already passed through normalizeParams,
// for transmission as a request's "params" field. A nil params value encodes
// to no field at all.
func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	return json.Marshal(params)
}
