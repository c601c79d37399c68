package logger

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

type attrsKey struct{}

// WithAttrs returns a context whose Ctx loggers carry attrs, on top of any
// attrs ctx already carries.
func WithAttrs(ctx context.Context, attrs ...slog.Attr) context.Context {
	if len(attrs) == 0 {
		return ctx
	}
	prev, _ := ctx.Value(attrsKey{}).([]slog.Attr)
	merged := make([]slog.Attr, 0, len(prev)+len(attrs))
	merged = append(merged, prev...)
	merged = append(merged, attrs...)
	return context.WithValue(ctx, attrsKey{}, merged)
}

// AttrsFromCtx returns the attrs carried by ctx followed by the ids of its
// span, if one is valid.
func AttrsFromCtx(ctx context.Context) []slog.Attr {
	carried, _ := ctx.Value(attrsKey{}).([]slog.Attr)

	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		if len(carried) == 0 {
			return nil
		}
		return append([]slog.Attr(nil), carried...)
	}

	out := make([]slog.Attr, 0, len(carried)+3)
	out = append(out, carried...)
	out = append(out,
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
	if sc.IsSampled() {
		out = append(out, slog.Bool("trace_sampled", true))
	}
	return out
}
