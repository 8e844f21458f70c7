package s3api

import (
	"net/http"
	"net/url"
	"strings"
)

// Operation names, used as metric labels and in logs.
const (
	OpListBuckets             = "ListBuckets"
	OpHeadBucket              = "HeadBucket"
	OpListObjects             = "ListObjects"
	OpListObjectsV2           = "ListObjectsV2"
	OpHeadObject              = "HeadObject"
	OpGetObject               = "GetObject"
	OpGetBucketLocation       = "GetBucketLocation"
	OpCreateBucket            = "CreateBucket"
	OpDeleteBucket            = "DeleteBucket"
	OpDeleteObjects           = "DeleteObjects"
	OpPutObject               = "PutObject"
	OpCopyObject              = "CopyObject"
	OpDeleteObject            = "DeleteObject"
	OpCreateMultipartUpload   = "CreateMultipartUpload"
	OpUploadPart              = "UploadPart"
	OpCompleteMultipartUpload = "CompleteMultipartUpload"
	OpAbortMultipartUpload    = "AbortMultipartUpload"
	OpUnknown                 = "Unknown"
)

// request is a parsed path-style request.
type request struct {
	op     string
	bucket string
	key    string
}

// splitPath splits a path-style URL path into bucket and key.
func splitPath(path string) (bucket, key string) {
	path = strings.TrimPrefix(path, "/")
	bucket, key, _ = strings.Cut(path, "/")
	return bucket, key
}

// resolve maps a method, path and query onto an S3 operation.
func resolve(r *http.Request) request {
	bucket, key := splitPath(r.URL.Path)
	q := r.URL.Query()
	return request{op: operation(r.Method, bucket, key, q, r.Header), bucket: bucket, key: key}
}

func operation(method, bucket, key string, q url.Values, h http.Header) string {
	switch {
	case bucket == "":
		if method == http.MethodGet {
			return OpListBuckets
		}
	case key == "":
		switch method {
		case http.MethodHead:
			return OpHeadBucket
		case http.MethodGet:
			switch {
			case q.Has("location"):
				return OpGetBucketLocation
			case q.Get("list-type") == "2":
				return OpListObjectsV2
			default:
				return OpListObjects
			}
		case http.MethodPut:
			return OpCreateBucket
		case http.MethodDelete:
			return OpDeleteBucket
		case http.MethodPost:
			if q.Has("delete") {
				return OpDeleteObjects
			}
		}
	default:
		switch method {
		case http.MethodHead:
			return OpHeadObject
		case http.MethodGet:
			return OpGetObject
		case http.MethodPut:
			switch {
			case q.Has("uploadId"):
				return OpUploadPart
			case h.Get("x-amz-copy-source") != "":
				return OpCopyObject
			default:
				return OpPutObject
			}
		case http.MethodDelete:
			if q.Has("uploadId") {
				return OpAbortMultipartUpload
			}
			return OpDeleteObject
		case http.MethodPost:
			switch {
			case q.Has("uploads"):
				return OpCreateMultipartUpload
			case q.Has("uploadId"):
				return OpCompleteMultipartUpload
			}
		}
	}
	return OpUnknown
}
