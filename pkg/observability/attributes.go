package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Bridge semantic convention attributes.
var (
	AttrEmitterChain   = attribute.Key("bridge.emitter.chain")
	AttrEmitterAddress = attribute.Key("bridge.emitter.address")
	AttrSequence       = attribute.Key("bridge.sequence")
	AttrProgram        = attribute.Key("bridge.program")
	AttrChain          = attribute.Key("bridge.chain")
	AttrImplementation = attribute.Key("bridge.implementation")
	AttrClaim          = attribute.Key("bridge.claim")
	AttrOutcome        = attribute.Key("bridge.outcome")
)

// MessageOperation creates attributes identifying a governance message.
func MessageOperation(chain uint16, emitter string, sequence uint64) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEmitterChain.Int(int(chain)),
		AttrEmitterAddress.String(emitter),
		// Sequences above MaxInt64 wrap; the attribute is for correlation only.
		AttrSequence.Int64(int64(sequence)),
	}
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanStatus marks the current span failed when err is non-nil.
func SetSpanStatus(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}
