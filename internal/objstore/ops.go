package objstore

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// BucketInfo describes the bucket.
type BucketInfo struct {
	Name         string
	CreationDate time.Time
}

// ObjectInfo is the metadata of an object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
	ContentType  string
}

func (s *Store) info(o *Object) ObjectInfo {
	return ObjectInfo{
		Key:          o.Name,
		Size:         o.Size,
		ETag:         o.ETag,
		LastModified: s.generatedAt,
		ContentType:  ContentType,
	}
}

// ListBuckets returns the single bucket.
func (s *Store) ListBuckets(ctx context.Context) ([]BucketInfo, error) {
	return []BucketInfo{{Name: s.bucket, CreationDate: s.generatedAt}}, nil
}

// HeadBucket checks that bucket exists.
func (s *Store) HeadBucket(ctx context.Context, bucket string) error {
	return s.checkBucket(bucket)
}

// HeadObject returns object metadata without generating content.
func (s *Store) HeadObject(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	if err := s.checkBucket(bucket); err != nil {
		return ObjectInfo{}, err
	}
	o, ok := s.lookup(key)
	if !ok {
		return ObjectInfo{}, noSuchKey(key)
	}
	return s.info(o), nil
}

// GetObject returns the object's metadata and full content.
//
// Data objects are regenerated; concurrent requests for the same key share
// one regeneration. Regeneration failures are logged and reported as
// InternalError.
func (s *Store) GetObject(ctx context.Context, bucket, key string) (ObjectInfo, []byte, error) {
	if err := s.checkBucket(bucket); err != nil {
		return ObjectInfo{}, nil, err
	}
	o, ok := s.lookup(key)
	if !ok {
		return ObjectInfo{}, nil, noSuchKey(key)
	}

	switch c := o.Content.(type) {
	case StaticContent:
		return s.info(o), c, nil
	case DataContent:
		data, err := s.regenerate(ctx, o, c)
		if err != nil {
			return ObjectInfo{}, nil, err
		}
		return s.info(o), data, nil
	default:
		slog.Error("object has no content source", "key", key)
		return ObjectInfo{}, nil, AsError(nil)
	}
}

func (s *Store) regenerate(ctx context.Context, o *Object, c DataContent) ([]byte, error) {
	// The result is shared with other callers, so the first caller's
	// cancellation must not fail them.
	ctx = context.WithoutCancel(ctx)
	v, err, shared := s.flight.Do(o.Name, func() (any, error) {
		ctx, span := tracer.Start(ctx, "objstore.regenerate",
			trace.WithAttributes(
				attribute.String("object.key", o.Name),
				attribute.Int("object.file", c.Ref.Index),
				attribute.Int64("object.rows", c.Ref.Rows),
			),
		)
		defer span.End()

		start := time.Now()
		data, err := s.regen(ctx, c)
		regenerationDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "regeneration failed")
			regenerationsTotal.WithLabelValues("error").Inc()
			return nil, err
		}

		span.SetAttributes(attribute.Int("object.bytes", len(data)))
		regenerationsTotal.WithLabelValues("ok").Inc()
		regeneratedBytesTotal.Add(float64(len(data)))
		if int64(len(data)) != o.Size {
			slog.Warn("regenerated size differs from catalog", "key", o.Name, "catalog", o.Size, "actual", len(data))
		}
		return data, nil
	})
	if err != nil {
		slog.Error("regeneration failed", "key", o.Name, "error", err)
		return nil, AsError(err)
	}
	if shared {
		slog.Debug("regeneration shared", "key", o.Name)
	}
	return v.([]byte), nil
}

// The store is read-only. Every mutating operation fails with
// NotSupported.

func (s *Store) CreateBucket(ctx context.Context, bucket string) error {
	return NotSupported("CreateBucket")
}

func (s *Store) DeleteBucket(ctx context.Context, bucket string) error {
	return NotSupported("DeleteBucket")
}

func (s *Store) PutObject(ctx context.Context, bucket, key string) error {
	return NotSupported("PutObject")
}

func (s *Store) CopyObject(ctx context.Context, bucket, key, source string) error {
	return NotSupported("CopyObject")
}

func (s *Store) DeleteObject(ctx context.Context, bucket, key string) error {
	return NotSupported("DeleteObject")
}

func (s *Store) DeleteObjects(ctx context.Context, bucket string, keys []string) error {
	return NotSupported("DeleteObjects")
}

func (s *Store) CreateMultipartUpload(ctx context.Context, bucket, key string) error {
	return NotSupported("CreateMultipartUpload")
}

func (s *Store) UploadPart(ctx context.Context, bucket, key, uploadID string, part int) error {
	return NotSupported("UploadPart")
}

func (s *Store) CompleteMultipartUpload(ctx context.Context, bucket, key, uploadID string) error {
	return NotSupported("CompleteMultipartUpload")
}

func (s *Store) AbortMultipartUpload(ctx context.Context, bucket, key, uploadID string) error {
	return NotSupported("AbortMultipartUpload")
}

func (s *Store) GetBucketLocation(ctx context.Context, bucket string) error {
	return NotSupported("GetBucketLocation")
}
