package objstore

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/roach88/dbgen/internal/compiler"
	"github.com/roach88/dbgen/internal/eval"
	"github.com/roach88/dbgen/internal/format"
	"github.com/roach88/dbgen/internal/gen"
)

var testTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func static(name, body string) Object {
	return Object{Name: name, Size: int64(len(body)), ETag: "etag-" + name, Content: StaticContent(body)}
}

func catalog(names ...string) *Store {
	objects := make([]Object, len(names))
	for i, name := range names {
		objects[i] = static(name, name)
	}
	return NewCatalog("bucket", objects, testTime, nil)
}

func keys(infos []ObjectInfo) []string {
	out := make([]string, len(infos))
	for i, info := range infos {
		out[i] = info.Key
	}
	return out
}

func TestNewCatalog_SortsObjects(t *testing.T) {
	s := catalog("c.csv", "a.csv", "b.csv")
	var names []string
	for _, o := range s.Objects() {
		names = append(names, o.Name)
	}
	assert.Equal(t, []string{"a.csv", "b.csv", "c.csv"}, names)
}

func TestListBuckets(t *testing.T) {
	buckets, err := catalog().ListBuckets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []BucketInfo{{Name: "bucket", CreationDate: testTime}}, buckets)
}

func TestHeadBucket(t *testing.T) {
	s := catalog()
	assert.NoError(t, s.HeadBucket(context.Background(), "bucket"))

	err := s.HeadBucket(context.Background(), "other")
	assert.True(t, IsCode(err, ErrCodeNoSuchBucket))
	assert.Equal(t, http.StatusNotFound, AsError(err).Status())
}

func TestHeadObject(t *testing.T) {
	s := catalog("a.csv", "b.csv", "c.csv")
	ctx := context.Background()

	info, err := s.HeadObject(ctx, "bucket", "b.csv")
	require.NoError(t, err)
	assert.Equal(t, ObjectInfo{
		Key:          "b.csv",
		Size:         5,
		ETag:         "etag-b.csv",
		LastModified: testTime,
		ContentType:  "application/octet-stream",
	}, info)

	_, err = s.HeadObject(ctx, "bucket", "bb.csv")
	assert.True(t, IsCode(err, ErrCodeNoSuchKey))

	_, err = s.HeadObject(ctx, "nope", "b.csv")
	assert.True(t, IsCode(err, ErrCodeNoSuchBucket))
}

func TestGetObject_Static(t *testing.T) {
	s := catalog("a.csv")
	info, data, err := s.GetObject(context.Background(), "bucket", "a.csv")
	require.NoError(t, err)
	assert.Equal(t, "a.csv", string(data))
	assert.Equal(t, int64(5), info.Size)

	_, _, err = s.GetObject(context.Background(), "bucket", "missing")
	assert.True(t, IsCode(err, ErrCodeNoSuchKey))
}

func TestListObjectsV2_Truncation(t *testing.T) {
	s := catalog("a.csv", "b.csv", "c.csv")
	ctx := context.Background()

	out, err := s.ListObjectsV2(ctx, "bucket", ListObjectsV2Input{MaxKeys: maxKeys(2)})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.csv", "b.csv"}, keys(out.Contents))
	assert.True(t, out.IsTruncated)
	assert.Equal(t, "b.csv", out.NextContinuationToken)
	assert.Equal(t, 2, out.KeyCount)
	assert.Equal(t, 2, out.MaxKeys)

	out, err = s.ListObjectsV2(ctx, "bucket", ListObjectsV2Input{MaxKeys: maxKeys(2), ContinuationToken: out.NextContinuationToken})
	require.NoError(t, err)
	assert.Equal(t, []string{"c.csv"}, keys(out.Contents))
	assert.False(t, out.IsTruncated)
	assert.Empty(t, out.NextContinuationToken)
}

func maxKeys(n int) *int { return &n }

func TestList_MaxKeys(t *testing.T) {
	s := catalog("a.csv", "b.csv", "c.csv")
	ctx := context.Background()

	tests := []struct {
		name      string
		maxKeys   *int
		effective int
		keys      []string
		truncated bool
	}{
		{name: "absent", maxKeys: nil, effective: DefaultMaxKeys, keys: []string{"a.csv", "b.csv", "c.csv"}},
		{name: "zero", maxKeys: maxKeys(0), effective: 0, keys: []string{}},
		{name: "one", maxKeys: maxKeys(1), effective: 1, keys: []string{"a.csv"}, truncated: true},
		{name: "above limit", maxKeys: maxKeys(5000), effective: DefaultMaxKeys, keys: []string{"a.csv", "b.csv", "c.csv"}},
		{name: "negative", maxKeys: maxKeys(-1), effective: 0, keys: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v1, err := s.ListObjects(ctx, "bucket", ListObjectsInput{MaxKeys: tt.maxKeys})
			require.NoError(t, err)
			assert.Equal(t, tt.effective, v1.MaxKeys)
			assert.Equal(t, tt.keys, keys(v1.Contents))
			assert.Equal(t, tt.truncated, v1.IsTruncated)
			if !tt.truncated {
				assert.Empty(t, v1.NextMarker)
			}

			v2, err := s.ListObjectsV2(ctx, "bucket", ListObjectsV2Input{MaxKeys: tt.maxKeys})
			require.NoError(t, err)
			assert.Equal(t, tt.effective, v2.MaxKeys)
			assert.Equal(t, tt.keys, keys(v2.Contents))
			assert.Equal(t, len(tt.keys), v2.KeyCount)
			assert.Equal(t, tt.truncated, v2.IsTruncated)
		})
	}
}

func TestListObjectsV2_ExactPageIsNotTruncated(t *testing.T) {
	s := catalog("a.csv", "b.csv")
	out, err := s.ListObjectsV2(context.Background(), "bucket", ListObjectsV2Input{MaxKeys: maxKeys(2)})
	require.NoError(t, err)
	assert.Len(t, out.Contents, 2)
	assert.False(t, out.IsTruncated)
}

func TestListObjectsV2_CursorIsGreaterOfStartAfterAndToken(t *testing.T) {
	s := catalog("a", "b", "c", "d")
	ctx := context.Background()

	out, err := s.ListObjectsV2(ctx, "bucket", ListObjectsV2Input{StartAfter: "c", ContinuationToken: "a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"d"}, keys(out.Contents))

	out, err = s.ListObjectsV2(ctx, "bucket", ListObjectsV2Input{StartAfter: "a", ContinuationToken: "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d"}, keys(out.Contents))
}

func TestListObjects_PrefixAndMarker(t *testing.T) {
	s := catalog("items.0.csv", "items.1.csv", "orders.0.csv", "orders.1.csv", "orders-schema.sql")
	ctx := context.Background()

	out, err := s.ListObjects(ctx, "bucket", ListObjectsInput{Prefix: "orders."})
	require.NoError(t, err)
	assert.Equal(t, []string{"orders.0.csv", "orders.1.csv"}, keys(out.Contents))
	assert.Equal(t, DefaultMaxKeys, out.MaxKeys)

	out, err = s.ListObjects(ctx, "bucket", ListObjectsInput{Marker: "items.1.csv"})
	require.NoError(t, err)
	assert.Equal(t, []string{"orders-schema.sql", "orders.0.csv", "orders.1.csv"}, keys(out.Contents))

	out, err = s.ListObjects(ctx, "bucket", ListObjectsInput{MaxKeys: maxKeys(1), Prefix: "items"})
	require.NoError(t, err)
	assert.Equal(t, []string{"items.0.csv"}, keys(out.Contents))
	assert.True(t, out.IsTruncated)
	assert.Equal(t, "items.0.csv", out.NextMarker)

	out, err = s.ListObjects(ctx, "bucket", ListObjectsInput{Prefix: "zzz"})
	require.NoError(t, err)
	assert.Empty(t, out.Contents)
	assert.False(t, out.IsTruncated)

	_, err = s.ListObjects(ctx, "other", ListObjectsInput{})
	assert.True(t, IsCode(err, ErrCodeNoSuchBucket))
}

func TestListObjects_Delimiter(t *testing.T) {
	s := catalog("a/1", "a/2", "b/1", "c", "d/x/1")
	ctx := context.Background()

	out, err := s.ListObjectsV2(ctx, "bucket", ListObjectsV2Input{Delimiter: "/"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a/", "b/", "d/"}, out.CommonPrefixes)
	assert.Equal(t, []string{"c"}, keys(out.Contents))
	assert.Equal(t, 4, out.KeyCount)

	// A common prefix counts as one entry toward MaxKeys
	out, err = s.ListObjectsV2(ctx, "bucket", ListObjectsV2Input{Delimiter: "/", MaxKeys: maxKeys(1)})
	require.NoError(t, err)
	assert.Equal(t, []string{"a/"}, out.CommonPrefixes)
	assert.True(t, out.IsTruncated)
	assert.Equal(t, "a/", out.NextContinuationToken)

	out, err = s.ListObjectsV2(ctx, "bucket", ListObjectsV2Input{Delimiter: "/", MaxKeys: maxKeys(1), ContinuationToken: "a/"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b/"}, out.CommonPrefixes)

	out, err = s.ListObjectsV2(ctx, "bucket", ListObjectsV2Input{Delimiter: "/", Prefix: "d/"})
	require.NoError(t, err)
	assert.Equal(t, []string{"d/x/"}, out.CommonPrefixes)
	assert.Empty(t, out.Contents)
}

func TestMutatorsNotSupported(t *testing.T) {
	s := catalog("a.csv")
	ctx := context.Background()

	errs := []error{
		s.CreateBucket(ctx, "bucket"),
		s.DeleteBucket(ctx, "bucket"),
		s.PutObject(ctx, "bucket", "a.csv"),
		s.CopyObject(ctx, "bucket", "b.csv", "a.csv"),
		s.DeleteObject(ctx, "bucket", "a.csv"),
		s.DeleteObjects(ctx, "bucket", []string{"a.csv"}),
		s.CreateMultipartUpload(ctx, "bucket", "a.csv"),
		s.UploadPart(ctx, "bucket", "a.csv", "id", 1),
		s.CompleteMultipartUpload(ctx, "bucket", "a.csv", "id"),
		s.AbortMultipartUpload(ctx, "bucket", "a.csv", "id"),
		s.GetBucketLocation(ctx, "bucket"),
	}
	for _, err := range errs {
		assert.True(t, IsCode(err, ErrCodeNotSupported), "got %v", err)
		assert.Equal(t, http.StatusNotImplemented, AsError(err).Status())
	}

	// The catalog is unchanged
	_, err := s.HeadObject(ctx, "bucket", "a.csv")
	assert.NoError(t, err)
}

func TestGetObject_RegenerationFailure(t *testing.T) {
	before := testutil.ToFloat64(regenerationsTotal.WithLabelValues("error"))

	s := NewCatalog("bucket", []Object{{Name: "x.csv", Size: 1, Content: DataContent{}}}, testTime,
		func(context.Context, DataContent) ([]byte, error) {
			return nil, errors.New("disk on fire")
		})
	_, _, err := s.GetObject(context.Background(), "bucket", "x.csv")
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrCodeInternal))
	assert.NotContains(t, err.Error(), "disk on fire", "internal detail must not leak")
	assert.Equal(t, before+1, testutil.ToFloat64(regenerationsTotal.WithLabelValues("error")))
}

const ordersTemplate = `tables: [{
	name: "orders"
	columns: [
		{name: "id", type: "BIGINT", expr: {fn: "rownum"}},
		{name: "amount", type: "INT", expr: {fn: "rand.range", args: [1, 500]}},
	]
	derived: [{table: "order_items", count: {fn: "rand.range", args: [1, 4]}}]
}, {
	name: "order_items"
	columns: [
		{name: "order_id", type: "BIGINT", expr: {fn: "rownum"}},
		{name: "sku", type: "TEXT", expr: {fn: "rand.string", args: [10]}},
	]
}]
`

func newGeneratedStore(t *testing.T) *Store {
	t.Helper()
	tmpl, err := compiler.Compile("orders.cue", []byte(ordersTemplate))
	require.NoError(t, err)

	plan, err := gen.NewPlan(gen.Options{
		Seed:         [eval.SeedSize]byte{3},
		Now:          testTime,
		TotalRows:    40,
		Files:        3,
		RowsPerBatch: 7,
	})
	require.NoError(t, err)

	s, err := New(context.Background(), tmpl.Tables, testTime, Config{
		Bucket:         "dbgen",
		Plan:           plan,
		Format:         &format.CSV{Header: true},
		TemplateDigest: tmpl.Digest,
	})
	require.NoError(t, err)
	return s
}

func TestNew_Catalog(t *testing.T) {
	s := newGeneratedStore(t)

	var names []string
	for _, o := range s.Objects() {
		names = append(names, o.Name)
	}
	assert.Equal(t, []string{
		"order_items-schema.sql",
		"order_items.0.csv",
		"order_items.1.csv",
		"order_items.2.csv",
		"orders-schema.sql",
		"orders.0.csv",
		"orders.1.csv",
		"orders.2.csv",
	}, names)

	_, schema, err := s.GetObject(context.Background(), "dbgen", "orders-schema.sql")
	require.NoError(t, err)
	assert.Equal(t, "CREATE TABLE orders (\n    id BIGINT,\n    amount INT\n);\n", string(schema))
}

func TestNew_SizesMatchContent(t *testing.T) {
	s := newGeneratedStore(t)
	ctx := context.Background()

	etags := make(map[string]bool)
	for _, o := range s.Objects() {
		info, data, err := s.GetObject(ctx, "dbgen", o.Name)
		require.NoError(t, err)
		assert.Equal(t, info.Size, int64(len(data)), o.Name)

		head, err := s.HeadObject(ctx, "dbgen", o.Name)
		require.NoError(t, err)
		assert.Equal(t, info, head)

		assert.Len(t, o.ETag, 32)
		assert.False(t, etags[o.ETag], "duplicate etag for %s", o.Name)
		etags[o.ETag] = true
	}
}

func TestGetObject_Idempotent(t *testing.T) {
	s := newGeneratedStore(t)
	ctx := context.Background()

	_, first, err := s.GetObject(ctx, "dbgen", "order_items.1.csv")
	require.NoError(t, err)
	_, second, err := s.GetObject(ctx, "dbgen", "order_items.1.csv")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// A separately built store over the same inputs serves the same bytes
	_, third, err := newGeneratedStore(t).GetObject(ctx, "dbgen", "order_items.1.csv")
	require.NoError(t, err)
	assert.Equal(t, first, third)
}

func TestGetObject_Concurrent(t *testing.T) {
	s := newGeneratedStore(t)
	ctx := context.Background()

	_, want, err := s.GetObject(ctx, "dbgen", "orders.2.csv")
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([][]byte, 16)
	errs := make([]error, 16)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, results[i], errs[i] = s.GetObject(ctx, "dbgen", "orders.2.csv")
		}()
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, want, results[i])
	}
}

func TestGetObject_CancelledCallerStillServed(t *testing.T) {
	s := newGeneratedStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, data, err := s.GetObject(ctx, "dbgen", "orders.0.csv")
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestGetObject_RecordsSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	s := NewCatalog("bucket", []Object{{Name: "x.csv", Size: 2, Content: DataContent{}}}, testTime,
		func(context.Context, DataContent) ([]byte, error) { return []byte("ok"), nil })
	_, _, err := s.GetObject(context.Background(), "bucket", "x.csv")
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "objstore.regenerate", spans[0].Name())
}
