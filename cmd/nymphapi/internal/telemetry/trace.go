package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys shared by the iam services.
const (
	AttrPrincipalID      = "principal.id"
	AttrPrincipalManaged = "principal.managed"
	AttrAuthScheme       = "auth.scheme"
	AttrIdentityProvider = "identity.provider"
	AttrIdentityCreated  = "identity.created"
)

// StartSpan starts spanName on the named tracer. Callers end the span.
//
//	ctx, span := telemetry.StartSpan(ctx, tracerName, "iam.IssueToken",
//	    attribute.Int64(telemetry.AttrPrincipalID, id))
//	defer span.End()
func StartSpan(ctx context.Context, tracerName, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// RecordError marks span as failed with err and returns err unchanged.
// A nil err leaves the span untouched.
func RecordError(span trace.Span, err error) error {
	if err == nil {
		return nil
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func AddEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
