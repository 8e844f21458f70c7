package objstore

import (
	"context"
	"sort"
	"strings"
)

// DefaultMaxKeys is used when a list request leaves MaxKeys nil, and is
// the upper bound for any request.
const DefaultMaxKeys = 1000

// ListObjectsInput is a version 1 list request.
type ListObjectsInput struct {
	Prefix    string
	Marker    string // exclusive
	Delimiter string
	MaxKeys   *int // nil means DefaultMaxKeys
}

// ListObjectsOutput is a version 1 list response.
type ListObjectsOutput struct {
	Name           string
	Prefix         string
	Marker         string
	Delimiter      string
	MaxKeys        int
	Contents       []ObjectInfo
	CommonPrefixes []string
	IsTruncated    bool
	NextMarker     string // set when IsTruncated
}

// ListObjectsV2Input is a version 2 list request.
type ListObjectsV2Input struct {
	Prefix            string
	StartAfter        string // exclusive
	ContinuationToken string // exclusive; the NextContinuationToken of a previous page
	Delimiter         string
	MaxKeys           *int // nil means DefaultMaxKeys
}

// ListObjectsV2Output is a version 2 list response.
type ListObjectsV2Output struct {
	Name                  string
	Prefix                string
	StartAfter            string
	ContinuationToken     string
	Delimiter             string
	MaxKeys               int
	KeyCount              int
	Contents              []ObjectInfo
	CommonPrefixes        []string
	IsTruncated           bool
	NextContinuationToken string // set when IsTruncated
}

// ListObjects lists objects in name order.
func (s *Store) ListObjects(ctx context.Context, bucket string, in ListObjectsInput) (*ListObjectsOutput, error) {
	if err := s.checkBucket(bucket); err != nil {
		return nil, err
	}
	maxKeys := effectiveMaxKeys(in.MaxKeys)
	page := s.list(in.Prefix, in.Marker, in.Delimiter, maxKeys)

	out := &ListObjectsOutput{
		Name:           s.bucket,
		Prefix:         in.Prefix,
		Marker:         in.Marker,
		Delimiter:      in.Delimiter,
		MaxKeys:        maxKeys,
		Contents:       page.contents,
		CommonPrefixes: page.prefixes,
		IsTruncated:    page.truncated,
	}
	if page.truncated {
		out.NextMarker = page.last
	}
	return out, nil
}

// ListObjectsV2 lists objects in name order. The listing starts after the
// greater of StartAfter and ContinuationToken.
func (s *Store) ListObjectsV2(ctx context.Context, bucket string, in ListObjectsV2Input) (*ListObjectsV2Output, error) {
	if err := s.checkBucket(bucket); err != nil {
		return nil, err
	}
	maxKeys := effectiveMaxKeys(in.MaxKeys)
	after := max(in.StartAfter, in.ContinuationToken)
	page := s.list(in.Prefix, after, in.Delimiter, maxKeys)

	out := &ListObjectsV2Output{
		Name:              s.bucket,
		Prefix:            in.Prefix,
		StartAfter:        in.StartAfter,
		ContinuationToken: in.ContinuationToken,
		Delimiter:         in.Delimiter,
		MaxKeys:           maxKeys,
		KeyCount:          len(page.contents) + len(page.prefixes),
		Contents:          page.contents,
		CommonPrefixes:    page.prefixes,
		IsTruncated:       page.truncated,
	}
	if page.truncated {
		out.NextContinuationToken = page.last
	}
	return out, nil
}

func effectiveMaxKeys(n *int) int {
	if n == nil {
		return DefaultMaxKeys
	}
	return min(max(*n, 0), DefaultMaxKeys)
}

type listPage struct {
	contents  []ObjectInfo
	prefixes  []string
	truncated bool
	last      string // last key or common prefix returned
}

// list scans the sorted catalog from the first name after `after` that
// carries prefix. With a delimiter, keys sharing the segment up to the
// delimiter collapse into one common prefix, which counts as one entry.
//
// A zero maxKeys yields an empty page that is never truncated, since it
// has no last entry to continue from.
func (s *Store) list(prefix, after, delimiter string, maxKeys int) listPage {
	if maxKeys == 0 {
		return listPage{}
	}
	start := sort.Search(len(s.objects), func(i int) bool {
		name := s.objects[i].Name
		return name > after && name >= prefix
	})

	var page listPage
	count := 0
	for i := start; i < len(s.objects); i++ {
		o := &s.objects[i]
		if !strings.HasPrefix(o.Name, prefix) {
			// Sorted: once past the prefix range nothing else matches
			break
		}

		entry, isPrefix := o.Name, false
		if delimiter != "" {
			rest := o.Name[len(prefix):]
			if idx := strings.Index(rest, delimiter); idx >= 0 {
				entry, isPrefix = prefix+rest[:idx+len(delimiter)], true
				if entry == page.last || entry <= after {
					continue
				}
			}
		}

		if count == maxKeys {
			page.truncated = true
			break
		}
		count++
		page.last = entry
		if isPrefix {
			page.prefixes = append(page.prefixes, entry)
		} else {
			page.contents = append(page.contents, s.info(o))
		}
	}
	return page
}
