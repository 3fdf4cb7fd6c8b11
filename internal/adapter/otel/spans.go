package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "intelengine"

// StartQuerySpan starts a span for a public IntelligenceService or
// ReputationComposer operation, tagged with the query name and a
// caller-supplied source label (the HTTP gateway passes "http").
func StartQuerySpan(ctx context.Context, query, source string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "query",
		trace.WithAttributes(
			attribute.String("query.name", query),
			attribute.String("query.source", source),
		),
	)
}

// StartAlgorithmSpan starts a span for a graph algorithm invocation (PageRank,
// bounded BFS, Jaccard, tag aggregation, timeline bucketing).
func StartAlgorithmSpan(ctx context.Context, algorithm string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "algorithm",
		trace.WithAttributes(
			attribute.String("algorithm.name", algorithm),
		),
	)
}

// StartFallbackSpan starts a span marking a primary-to-fallback transition,
// tagged with the error kind that triggered it.
func StartFallbackSpan(ctx context.Context, query, errorKind string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "fallback",
		trace.WithAttributes(
			attribute.String("query.name", query),
			attribute.String("fallback.trigger", errorKind),
		),
	)
}
