// Package telemetry provides OpenTelemetry integration for distributed tracing.
package telemetry

import (
	"context"
	"fmt"

	"github.com/techdigits/backend/internal/domain/shared"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of the workflow spans.
const TracerName = "techdigits-backend"

// AttrErrorCode carries the domain error code of a failed span.
const AttrErrorCode = attribute.Key("error.code")

// Span attribute keys used by the payment workflow. Metric attribute keys
// live in payment_metrics.go.
const (
	SpanAttrOrderID     = "order_id"
	SpanAttrOrderStatus = "order_status"
	SpanAttrUserID      = "user_id"

	SpanAttrPaymentID     = "payment_id"
	SpanAttrPaymentMethod = "payment_method"
	SpanAttrAmount        = "amount"

	SpanAttrOtpPurpose = "otp_purpose"
	SpanAttrChannel    = "channel"
)

// StartServiceSpan starts an internal span named "{service}.{method}", for
// example "payment_processor.confirm", on the global tracer provider. The
// caller ends it.
//
//	ctx, span := telemetry.StartServiceSpan(ctx, "otp_authority", "verify")
//	defer span.End()
func StartServiceSpan(ctx context.Context, service, method string) (context.Context, trace.Span) {
	return otel.GetTracerProvider().Tracer(TracerName).Start(ctx,
		fmt.Sprintf("%s.%s", service, method),
		trace.WithSpanKind(trace.SpanKindInternal))
}

// SetAttributes sets alternating key, value pairs on span. Pairs whose key
// is not a string are dropped, as is a trailing key without a value.
func SetAttributes(span trace.Span, keyValues ...interface{}) {
	if span == nil {
		return
	}

	attrs := make([]attribute.KeyValue, 0, len(keyValues)/2)
	for i := 0; i+1 < len(keyValues); i += 2 {
		key, ok := keyValues[i].(string)
		if !ok {
			continue
		}
		attrs = append(attrs, attributeOf(key, keyValues[i+1]))
	}
	span.SetAttributes(attrs...)
}

// RecordError records err on span and marks it failed. Domain errors carry
// their code as the error.code attribute.
func RecordError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if de, ok := shared.AsDomainError(err); ok {
		span.SetAttributes(AttrErrorCode.String(de.Code))
	}
}

func attributeOf(key string, value interface{}) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case bool:
		return attribute.Bool(key, v)
	case fmt.Stringer:
		return attribute.String(key, v.String())
	default:
		return attribute.String(key, fmt.Sprintf("%v", v))
	}
}
