package s3api

import (
	"context"
	"encoding/xml"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dbgen/internal/objstore"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestStore() *objstore.Store {
	objects := []objstore.Object{
		{Name: "a.csv", Size: 10, ETag: "etag-a", Content: objstore.StaticContent("0123456789")},
		{Name: "b.csv", Size: 1, ETag: "etag-b", Content: objstore.StaticContent("b")},
		{Name: "c.csv", Size: 1, ETag: "etag-c", Content: objstore.StaticContent("c")},
		{Name: "logs/x.csv", Size: 4, ETag: "etag-x", Content: objstore.DataContent{}},
		{Name: "broken.csv", Size: 1, ETag: "etag-broken", Content: objstore.DataContent{Table: 1}},
	}
	regen := func(_ context.Context, c objstore.DataContent) ([]byte, error) {
		if c.Table == 1 {
			return nil, errors.New("boom")
		}
		return []byte("xxxx"), nil
	}
	return objstore.NewCatalog("dbgen", objects, testTime, regen)
}

func do(t *testing.T, h http.Handler, method, target string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, xml.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func keysOf(entries []objectEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Key
	}
	return out
}

func TestListBuckets(t *testing.T) {
	h := New(newTestStore()).Handler()
	rec := do(t, h, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/xml", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), xml.Header))
	assert.Contains(t, rec.Body.String(), `xmlns="http://s3.amazonaws.com/doc/2006-03-01/"`)

	out := decode[listAllMyBucketsResult](t, rec)
	require.Len(t, out.Buckets, 1)
	assert.Equal(t, "dbgen", out.Buckets[0].Name)
	assert.Equal(t, "2024-06-01T12:00:00.000Z", out.Buckets[0].CreationDate)
}

func TestListObjectsV2_Pagination(t *testing.T) {
	h := New(newTestStore()).Handler()

	rec := do(t, h, http.MethodGet, "/dbgen?list-type=2&max-keys=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode[listBucketResultV2](t, rec)
	assert.Equal(t, []string{"a.csv", "b.csv"}, keysOf(out.Contents))
	assert.True(t, out.IsTruncated)
	assert.Equal(t, "b.csv", out.NextContinuationToken)
	assert.Equal(t, 2, out.KeyCount)
	assert.Equal(t, "STANDARD", out.Contents[0].StorageClass)
	assert.Equal(t, `"etag-a"`, out.Contents[0].ETag)
	assert.Equal(t, int64(10), out.Contents[0].Size)
	assert.Equal(t, "2024-06-01T12:00:00.000Z", out.Contents[0].LastModified)

	q := url.Values{"list-type": {"2"}, "max-keys": {"2"}, "continuation-token": {out.NextContinuationToken}}
	rec = do(t, h, http.MethodGet, "/dbgen?"+q.Encode(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out = decode[listBucketResultV2](t, rec)
	assert.Equal(t, []string{"broken.csv", "c.csv"}, keysOf(out.Contents))
	assert.True(t, out.IsTruncated)
	assert.Equal(t, "c.csv", out.NextContinuationToken)
}

func TestListObjects_V1(t *testing.T) {
	h := New(newTestStore()).Handler()

	rec := do(t, h, http.MethodGet, "/dbgen?delimiter=/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode[listBucketResult](t, rec)
	assert.Equal(t, []string{"a.csv", "b.csv", "broken.csv", "c.csv"}, keysOf(out.Contents))
	require.Len(t, out.CommonPrefixes, 1)
	assert.Equal(t, "logs/", out.CommonPrefixes[0].Prefix)
	assert.Equal(t, 1000, out.MaxKeys)

	rec = do(t, h, http.MethodGet, "/dbgen?prefix=b&max-keys=1", nil)
	out = decode[listBucketResult](t, rec)
	assert.Equal(t, []string{"b.csv"}, keysOf(out.Contents))
	assert.True(t, out.IsTruncated)
	assert.Equal(t, "b.csv", out.NextMarker)
}

func TestListObjects_InvalidMaxKeys(t *testing.T) {
	h := New(newTestStore()).Handler()
	for _, raw := range []string{"lots", "-1", "1.5"} {
		t.Run(raw, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, "/dbgen?max-keys="+url.QueryEscape(raw), nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "InvalidArgument", decode[errorResponse](t, rec).Code)
		})
	}
}

func TestListObjects_MaxKeys(t *testing.T) {
	h := New(newTestStore()).Handler()
	tests := []struct {
		name    string
		query   string
		maxKeys int
		keys    []string
	}{
		{name: "absent", query: "", maxKeys: 1000, keys: []string{"a.csv", "b.csv", "broken.csv", "c.csv"}},
		{name: "zero", query: "max-keys=0", maxKeys: 0, keys: []string{}},
		{name: "two", query: "max-keys=2", maxKeys: 2, keys: []string{"a.csv", "b.csv"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, "/dbgen?delimiter=/&"+tt.query, nil)
			require.Equal(t, http.StatusOK, rec.Code)
			v1 := decode[listBucketResult](t, rec)
			assert.Equal(t, tt.maxKeys, v1.MaxKeys)
			assert.Equal(t, tt.keys, keysOf(v1.Contents))

			rec = do(t, h, http.MethodGet, "/dbgen?list-type=2&delimiter=/&"+tt.query, nil)
			require.Equal(t, http.StatusOK, rec.Code)
			v2 := decode[listBucketResultV2](t, rec)
			assert.Equal(t, tt.maxKeys, v2.MaxKeys)
			assert.Equal(t, tt.keys, keysOf(v2.Contents))
		})
	}

	rec := do(t, h, http.MethodGet, "/dbgen?list-type=2&max-keys=0", nil)
	out := decode[listBucketResultV2](t, rec)
	assert.Zero(t, out.KeyCount)
	assert.False(t, out.IsTruncated)
	assert.Empty(t, out.NextContinuationToken)
}

func TestHeadBucket(t *testing.T) {
	h := New(newTestStore()).Handler()
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodHead, "/dbgen", nil).Code)

	rec := do(t, h, http.MethodHead, "/other", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestHeadObject(t *testing.T) {
	h := New(newTestStore()).Handler()
	rec := do(t, h, http.MethodHead, "/dbgen/a.csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "10", rec.Header().Get("Content-Length"))
	assert.Equal(t, `"etag-a"`, rec.Header().Get("ETag"))
	assert.Equal(t, "Sat, 01 Jun 2024 12:00:00 GMT", rec.Header().Get("Last-Modified"))
	assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("x-amz-request-id"))
	assert.Empty(t, rec.Body.String())
}

func TestGetObject(t *testing.T) {
	h := New(newTestStore()).Handler()

	rec := do(t, h, http.MethodGet, "/dbgen/a.csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0123456789", rec.Body.String())
	assert.Equal(t, `"etag-a"`, rec.Header().Get("ETag"))

	rec = do(t, h, http.MethodGet, "/dbgen/logs/x.csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "xxxx", rec.Body.String())
}

func TestGetObject_Range(t *testing.T) {
	h := New(newTestStore()).Handler()
	rec := do(t, h, http.MethodGet, "/dbgen/a.csv", map[string]string{"Range": "bytes=2-5"})
	require.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "2345", rec.Body.String())
	assert.Equal(t, "bytes 2-5/10", rec.Header().Get("Content-Range"))
}

func TestGetObject_Errors(t *testing.T) {
	h := New(newTestStore()).Handler()

	tests := []struct {
		name   string
		target string
		status int
		code   string
	}{
		{"missing key", "/dbgen/nope.csv", http.StatusNotFound, "NoSuchKey"},
		{"missing bucket", "/other/a.csv", http.StatusNotFound, "NoSuchBucket"},
		{"list missing bucket", "/other", http.StatusNotFound, "NoSuchBucket"},
		{"regeneration failure", "/dbgen/broken.csv", http.StatusInternalServerError, "InternalError"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, tt.target, nil)
			assert.Equal(t, tt.status, rec.Code)
			e := decode[errorResponse](t, rec)
			assert.Equal(t, tt.code, e.Code)
			assert.Equal(t, rec.Header().Get("x-amz-request-id"), e.RequestID)
			assert.NotContains(t, e.Message, "boom")
		})
	}
}

func TestMutationsNotSupported(t *testing.T) {
	h := New(newTestStore()).Handler()

	tests := []struct {
		method string
		target string
		header map[string]string
	}{
		{http.MethodPut, "/dbgen/a.csv", nil},
		{http.MethodPut, "/dbgen/new.csv", map[string]string{"x-amz-copy-source": "/dbgen/a.csv"}},
		{http.MethodDelete, "/dbgen/a.csv", nil},
		{http.MethodPut, "/newbucket", nil},
		{http.MethodDelete, "/dbgen", nil},
		{http.MethodPost, "/dbgen?delete", nil},
		{http.MethodPost, "/dbgen/a.csv?uploads", nil},
		{http.MethodPut, "/dbgen/a.csv?uploadId=1&partNumber=1", nil},
		{http.MethodPost, "/dbgen/a.csv?uploadId=1", nil},
		{http.MethodDelete, "/dbgen/a.csv?uploadId=1", nil},
		{http.MethodGet, "/dbgen?location", nil},
		{http.MethodPatch, "/", nil},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.target, tt.header)
			assert.Equal(t, http.StatusNotImplemented, rec.Code)
			assert.Equal(t, "NotSupported", decode[errorResponse](t, rec).Code)
		})
	}

	rec := do(t, h, http.MethodGet, "/dbgen/a.csv", nil)
	assert.Equal(t, "0123456789", rec.Body.String())
}

func TestRateLimit(t *testing.T) {
	h := New(newTestStore(), WithRateLimit(0.001, 1)).Handler()

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/", nil).Code)
	rec := do(t, h, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "SlowDown", decode[errorResponse](t, rec).Code)
}

func TestMetrics(t *testing.T) {
	h := New(newTestStore()).Handler()
	counter := requestsTotal.WithLabelValues(OpHeadObject, "404")
	before := testutil.ToFloat64(counter)

	do(t, h, http.MethodHead, "/dbgen/nope.csv", nil)
	assert.Equal(t, before+1, testutil.ToFloat64(counter))

	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "dbgen_s3_requests_total")
}

func TestOperation(t *testing.T) {
	tests := []struct {
		method string
		target string
		want   string
	}{
		{http.MethodGet, "/", OpListBuckets},
		{http.MethodHead, "/b", OpHeadBucket},
		{http.MethodGet, "/b", OpListObjects},
		{http.MethodGet, "/b/", OpListObjects},
		{http.MethodGet, "/b?list-type=2", OpListObjectsV2},
		{http.MethodGet, "/b?location", OpGetBucketLocation},
		{http.MethodGet, "/b/k/with/slashes", OpGetObject},
		{http.MethodHead, "/b/k", OpHeadObject},
		{http.MethodPost, "/b/k", OpUnknown},
		{http.MethodDelete, "/", OpUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			req := resolve(httptest.NewRequest(tt.method, tt.target, nil))
			assert.Equal(t, tt.want, req.op)
		})
	}

	req := resolve(httptest.NewRequest(http.MethodGet, "/b/k/with/slashes", nil))
	assert.Equal(t, "b", req.bucket)
	assert.Equal(t, "k/with/slashes", req.key)
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		errc <- ListenAndServe(ctx, "127.0.0.1:0", New(newTestStore()).Handler())
	}()
	cancel()

	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
