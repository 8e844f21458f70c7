package s3api

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"

	"github.com/roach88/dbgen/internal/objstore"
)

// Context keys set by the middleware.
const (
	keyRequest   = "s3.request"
	keyRequestID = "s3.request_id"
)

// Server is the S3 front end of a Store.
type Server struct {
	store   *objstore.Store
	limiter *rate.Limiter
	service string
	router  *gin.Engine
}

// Option configures a Server.
type Option func(*Server)

// WithRateLimit limits requests to perSecond with the given burst.
// Requests over the limit get SlowDown. A non-positive rate disables
// limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *Server) {
		if perSecond <= 0 {
			s.limiter = nil
			return
		}
		s.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
	}
}

// WithServiceName sets the service name reported on request spans.
func WithServiceName(name string) Option {
	return func(s *Server) {
		s.service = name
	}
}

// New creates a Server for store.
func New(store *objstore.Store, opts ...Option) *Server {
	s := &Server{store: store, service: "dbgen"}
	for _, opt := range opts {
		opt(s)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(s.service))
	router.Use(s.identify, s.observe)
	router.Any("/*path", s.dispatch)
	s.router = router
	return s
}

// Handler returns the HTTP handler serving the S3 protocol.
func (s *Server) Handler() http.Handler {
	return s.router
}

// MetricsHandler returns the Prometheus scrape handler.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// ListenAndServe serves h on addr until ctx is cancelled, then shuts the
// listener down gracefully.
func ListenAndServe(ctx context.Context, addr string, h http.Handler) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return Serve(ctx, ln, h)
}

// Serve is ListenAndServe on an existing listener.
func Serve(ctx context.Context, ln net.Listener, h http.Handler) error {
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(ln)
	}()
	slog.Info("listening", "addr", ln.Addr().String())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown %s: %w", ln.Addr(), err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// identify assigns the request id and resolves the operation.
func (s *Server) identify(c *gin.Context) {
	id := uuid.Must(uuid.NewV7()).String()
	c.Set(keyRequestID, id)
	c.Header("x-amz-request-id", id)
	c.Set(keyRequest, resolve(c.Request))
	c.Next()
}

// observe records metrics and a debug log line for every request.
func (s *Server) observe(c *gin.Context) {
	start := time.Now()
	c.Next()

	req := requestOf(c)
	status := c.Writer.Status()
	elapsed := time.Since(start)
	requestsTotal.WithLabelValues(req.op, strconv.Itoa(status)).Inc()
	requestDuration.WithLabelValues(req.op).Observe(elapsed.Seconds())
	slog.Debug("s3 request",
		"op", req.op,
		"bucket", req.bucket,
		"key", req.key,
		"status", status,
		"duration", elapsed,
		"request_id", c.GetString(keyRequestID),
	)
}

func requestOf(c *gin.Context) request {
	v, _ := c.Get(keyRequest)
	req, _ := v.(request)
	return req
}

func (s *Server) dispatch(c *gin.Context) {
	req := requestOf(c)
	if s.limiter != nil && !s.limiter.Allow() {
		s.fail(c, objstore.SlowDown())
		return
	}

	ctx := c.Request.Context()
	switch req.op {
	case OpListBuckets:
		s.listBuckets(c)
	case OpHeadBucket:
		if err := s.store.HeadBucket(ctx, req.bucket); err != nil {
			s.fail(c, err)
			return
		}
		c.Status(http.StatusOK)
		c.Writer.WriteHeaderNow()
	case OpListObjects:
		s.listObjects(c, req)
	case OpListObjectsV2:
		s.listObjectsV2(c, req)
	case OpHeadObject:
		s.headObject(c, req)
	case OpGetObject:
		s.getObject(c, req)
	default:
		s.fail(c, s.mutate(ctx, req))
	}
}

// mutate forwards a mutating request to the store, which refuses it.
func (s *Server) mutate(ctx context.Context, req request) error {
	switch req.op {
	case OpGetBucketLocation:
		return s.store.GetBucketLocation(ctx, req.bucket)
	case OpCreateBucket:
		return s.store.CreateBucket(ctx, req.bucket)
	case OpDeleteBucket:
		return s.store.DeleteBucket(ctx, req.bucket)
	case OpDeleteObjects:
		return s.store.DeleteObjects(ctx, req.bucket, nil)
	case OpPutObject:
		return s.store.PutObject(ctx, req.bucket, req.key)
	case OpCopyObject:
		return s.store.CopyObject(ctx, req.bucket, req.key, "")
	case OpDeleteObject:
		return s.store.DeleteObject(ctx, req.bucket, req.key)
	case OpCreateMultipartUpload:
		return s.store.CreateMultipartUpload(ctx, req.bucket, req.key)
	case OpUploadPart:
		return s.store.UploadPart(ctx, req.bucket, req.key, "", 0)
	case OpCompleteMultipartUpload:
		return s.store.CompleteMultipartUpload(ctx, req.bucket, req.key, "")
	case OpAbortMultipartUpload:
		return s.store.AbortMultipartUpload(ctx, req.bucket, req.key, "")
	default:
		return objstore.NotSupported(req.op)
	}
}

func (s *Server) listBuckets(c *gin.Context) {
	buckets, err := s.store.ListBuckets(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	out := listAllMyBucketsResult{Owner: owner{ID: ownerID, DisplayName: ownerID}}
	for _, b := range buckets {
		out.Buckets = append(out.Buckets, bucketEntry{Name: b.Name, CreationDate: formatTime(b.CreationDate)})
	}
	s.writeXML(c, http.StatusOK, out)
}

func (s *Server) listObjects(c *gin.Context, req request) {
	maxKeys, err := maxKeysParam(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	out, err := s.store.ListObjects(c.Request.Context(), req.bucket, objstore.ListObjectsInput{
		Prefix:    c.Query("prefix"),
		Marker:    c.Query("marker"),
		Delimiter: c.Query("delimiter"),
		MaxKeys:   maxKeys,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	s.writeXML(c, http.StatusOK, listBucketResult{
		Name:           out.Name,
		Prefix:         out.Prefix,
		Marker:         out.Marker,
		NextMarker:     out.NextMarker,
		MaxKeys:        out.MaxKeys,
		Delimiter:      out.Delimiter,
		IsTruncated:    out.IsTruncated,
		Contents:       objectEntries(out.Contents),
		CommonPrefixes: commonPrefixes(out.CommonPrefixes),
	})
}

func (s *Server) listObjectsV2(c *gin.Context, req request) {
	maxKeys, err := maxKeysParam(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	out, err := s.store.ListObjectsV2(c.Request.Context(), req.bucket, objstore.ListObjectsV2Input{
		Prefix:            c.Query("prefix"),
		StartAfter:        c.Query("start-after"),
		ContinuationToken: c.Query("continuation-token"),
		Delimiter:         c.Query("delimiter"),
		MaxKeys:           maxKeys,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	s.writeXML(c, http.StatusOK, listBucketResultV2{
		Name:                  out.Name,
		Prefix:                out.Prefix,
		StartAfter:            out.StartAfter,
		ContinuationToken:     out.ContinuationToken,
		NextContinuationToken: out.NextContinuationToken,
		KeyCount:              out.KeyCount,
		MaxKeys:               out.MaxKeys,
		Delimiter:             out.Delimiter,
		IsTruncated:           out.IsTruncated,
		Contents:              objectEntries(out.Contents),
		CommonPrefixes:        commonPrefixes(out.CommonPrefixes),
	})
}

// maxKeysParam parses max-keys. Absent is nil, the store default; an
// explicit 0 asks for an empty page.
func maxKeysParam(c *gin.Context) (*int, error) {
	raw, ok := c.GetQuery("max-keys")
	if !ok {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return nil, objstore.InvalidArgument("max-keys", raw)
	}
	return &n, nil
}

func setObjectHeaders(c *gin.Context, info objstore.ObjectInfo) {
	c.Header("ETag", quoteETag(info.ETag))
	c.Header("Content-Type", info.ContentType)
	c.Header("Last-Modified", info.LastModified.UTC().Format(http.TimeFormat))
	c.Header("Accept-Ranges", "bytes")
}

func (s *Server) headObject(c *gin.Context, req request) {
	info, err := s.store.HeadObject(c.Request.Context(), req.bucket, req.key)
	if err != nil {
		s.fail(c, err)
		return
	}
	setObjectHeaders(c, info)
	c.Header("Content-Length", strconv.FormatInt(info.Size, 10))
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
}

func (s *Server) getObject(c *gin.Context, req request) {
	info, data, err := s.store.GetObject(c.Request.Context(), req.bucket, req.key)
	if err != nil {
		s.fail(c, err)
		return
	}
	setObjectHeaders(c, info)
	// ServeContent handles Range and conditional requests
	http.ServeContent(c.Writer, c.Request, info.Key, info.LastModified, bytes.NewReader(data))
}

// fail writes err as an S3 error document. HEAD responses carry the
// status only.
func (s *Server) fail(c *gin.Context, err error) {
	e := objstore.AsError(err)
	if e.Code == objstore.ErrCodeInternal {
		slog.Error("request failed", "op", requestOf(c).op, "error", err, "request_id", c.GetString(keyRequestID))
	}
	if c.Request.Method == http.MethodHead {
		c.Status(e.Status())
		c.Writer.WriteHeaderNow()
		return
	}
	s.writeXML(c, e.Status(), errorResponse{
		Code:      string(e.Code),
		Message:   e.Message,
		Resource:  e.Resource,
		RequestID: c.GetString(keyRequestID),
	})
}

func (s *Server) writeXML(c *gin.Context, status int, v any) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	if err := xml.NewEncoder(&buf).Encode(v); err != nil {
		slog.Error("encoding response", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(status, "application/xml", buf.Bytes())
}
