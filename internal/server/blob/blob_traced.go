package blob

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/cadencefm/cadence/internal/server/blob")

// tracedBackend records one span per storage call
type tracedBackend struct {
	next Backend
	tier Tier
}

func withTracing(tier Tier, next Backend) Backend {
	return &tracedBackend{next: next, tier: tier}
}

func (t *tracedBackend) Name() string {
	return t.next.Name()
}

func (t *tracedBackend) Get(ctx context.Context, key string, rng *ByteRange) (*Object, error) {
	ctx, span := t.start(ctx, "blob.get", key)
	defer span.End()
	if rng != nil {
		span.SetAttributes(attribute.String("blob.range", rng.String()))
	}

	obj, err := t.next.Get(ctx, key, rng)
	if err != nil {
		record(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int64("blob.length", obj.Length))
	return obj, nil
}

func (t *tracedBackend) Put(ctx context.Context, params *PutParams) (*ObjectInfo, error) {
	ctx, span := t.start(ctx, "blob.put", params.Key)
	defer span.End()
	span.SetAttributes(
		attribute.Int64("blob.size", params.Size),
		attribute.String("blob.storage_class", params.StorageClass),
	)

	info, err := t.next.Put(ctx, params)
	record(span, err)
	return info, err
}

func (t *tracedBackend) Stat(ctx context.Context, key string) (*ObjectInfo, error) {
	ctx, span := t.start(ctx, "blob.stat", key)
	defer span.End()

	info, err := t.next.Stat(ctx, key)
	record(span, err)
	return info, err
}

func (t *tracedBackend) Delete(ctx context.Context, key string) error {
	ctx, span := t.start(ctx, "blob.delete", key)
	defer span.End()

	err := t.next.Delete(ctx, key)
	record(span, err)
	return err
}

func (t *tracedBackend) List(ctx context.Context, prefix string) ([]*ObjectInfo, error) {
	ctx, span := t.start(ctx, "blob.list", prefix)
	defer span.End()

	objects, err := t.next.List(ctx, prefix)
	record(span, err)
	span.SetAttributes(attribute.Int("blob.count", len(objects)))
	return objects, err
}

func (t *tracedBackend) start(ctx context.Context, name, key string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("blob.key", key),
		attribute.String("blob.tier", string(t.tier)),
		attribute.String("blob.backend", t.next.Name()),
	))
}

func record(span trace.Span, err error) {
	if err == nil {
		return
	}
	// a missing key is an answer, not a failure
	if errors.Is(err, ErrObjectNotFound) {
		span.SetAttributes(attribute.Bool("blob.not_found", true))
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
