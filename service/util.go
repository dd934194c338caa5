package service

import (
	"context"

	"github.com/openzipkin/zipkin-go"
)

// TraceTag renders the current trace and span ids for log lines.
func TraceTag(ctx context.Context) string {
	span := zipkin.SpanFromContext(ctx)
	if span == nil {
		return "[-,-]"
	}
	return "[" + span.Context().TraceID.String() + "," + span.Context().ID.String() + "]"
}
