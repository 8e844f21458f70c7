// Package s3api serves an objstore.Store over the S3 REST protocol.
//
// Only path-style addressing is supported: the first path segment is the
// bucket and the remainder is the key. Read operations are answered from
// the store; every mutating request gets a NotSupported error document.
//
// Responses are S3 XML. Each response carries an x-amz-request-id header,
// and request counts and latencies are exported as Prometheus metrics.
package s3api
