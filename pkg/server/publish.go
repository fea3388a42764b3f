package server

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/nsbus/pkg/pattern"
	"github.com/vango-dev/nsbus/pkg/registry"
)

// Publish sends namespace and payload to every open connection with a
// matching subscription. The frame is packed once. Send failures are
// emitted as EventError and do not stop delivery to other connections.
//
// Publish returns the pack error, if any, or the context error when ctx is
// canceled mid fan-out.
func (s *Server) Publish(ctx context.Context, namespace string, payload any) error {
	ctx, span := s.tracer.Start(ctx, "nsbus.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(attribute.String("nsbus.namespace", namespace)))
	defer span.End()

	start := time.Now()
	data, err := s.codec.Pack(namespace, payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "pack failed")
		return fmt.Errorf("server: publish %q: %w", namespace, err)
	}

	deliveries := 0
	var ctxErr error
	s.registry.ForEachOpen(func(c registry.OpenConn) {
		if ctxErr != nil {
			return
		}
		if ctxErr = ctx.Err(); ctxErr != nil {
			return
		}
		if !pattern.MatchAny(namespace, c.Subscriptions) {
			return
		}
		if err := c.Transport.Send(data); err != nil {
			s.metrics.SendError()
			span.AddEvent("send failed", trace.WithAttributes(
				attribute.String("nsbus.conn_id", c.ID),
				attribute.String("error", err.Error())))
			s.emitError(c.ID, "publish", err)
			return
		}
		deliveries++
	})

	s.metrics.Published(deliveries, time.Since(start))
	span.SetAttributes(attribute.Int("nsbus.deliveries", deliveries))

	if ctxErr != nil {
		span.RecordError(ctxErr)
		span.SetStatus(codes.Error, "canceled")
		return ctxErr
	}
	span.SetStatus(codes.Ok, "")
	return nil
}
