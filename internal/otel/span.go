// Package otel holds small tracing helpers shared by the storage and sync layers.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys used on spans across the service.
const (
	AttrSiteID       = attribute.Key("site.id")
	AttrExternalID   = attribute.Key("site.external_id")
	AttrLocale       = attribute.Key("site.locale")
	AttrCategory     = attribute.Key("site.category")
	AttrPage         = attribute.Key("listing.page")
	AttrPageSize     = attribute.Key("pagination.limit")
	AttrPageOffset   = attribute.Key("pagination.offset")
	AttrResultCount  = attribute.Key("result.count")
	AttrSyncProfile  = attribute.Key("sync.profile")
	AttrSyncRunID    = attribute.Key("sync.run_id")
	AttrFeaturedOnly = attribute.Key("query.featured_only")
)

// StartSpan starts a span on tracer, or returns the span already in ctx when tracer is nil.
func StartSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// RecordError attaches err to span and marks it failed. The status text stays
// generic so query text never lands in the span status.
func RecordError(span trace.Span, err error) {
	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation failed")
	}
}
