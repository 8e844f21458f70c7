package objstore

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/roach88/dbgen/internal/eval"
	"github.com/roach88/dbgen/internal/format"
	"github.com/roach88/dbgen/internal/gen"
	"github.com/roach88/dbgen/internal/ir"
)

// ContentType is reported for every object.
const ContentType = "application/octet-stream"

// Content is the payload source of an object: StaticContent or
// DataContent.
type Content interface {
	content() // Sealed
}

// StaticContent is a payload known at catalog time.
type StaticContent []byte

func (StaticContent) content() {}

// DataContent is regenerated on demand from one table of one file.
type DataContent struct {
	Ref   gen.FileRef
	Table int
}

func (DataContent) content() {}

// Object is a catalog entry.
type Object struct {
	Name    string
	Size    int64
	ETag    string
	Content Content
}

// Regenerator produces the bytes of a data object.
type Regenerator func(ctx context.Context, c DataContent) ([]byte, error)

// Store is the read-only virtual object store.
//
// Thread-safety: all methods are safe for concurrent use.
type Store struct {
	bucket      string
	objects     []Object // sorted by Name, immutable
	generatedAt time.Time
	regen       Regenerator
	flight      singleflight.Group
}

// Config configures New.
type Config struct {
	Bucket string
	Plan   *gen.Plan
	Format format.Format

	// TemplateDigest identifies the template in object ETags.
	TemplateDigest string
}

// New builds the catalog for tables. Every data object is generated once
// to measure its size.
func New(ctx context.Context, tables []*eval.Table, generatedAt time.Time, cfg Config) (*Store, error) {
	var objects []Object
	for _, t := range tables {
		schema := StaticContent(format.Schema(t.Schema(cfg.Plan.Qualified)))
		etag, err := ir.ObjectETag(map[string]any{
			"kind":     "schema",
			"table":    t.Name,
			"template": cfg.TemplateDigest,
		})
		if err != nil {
			return nil, err
		}
		objects = append(objects, Object{
			Name:    t.Name + "-schema.sql",
			Size:    int64(len(schema)),
			ETag:    etag,
			Content: schema,
		})
	}

	for _, ref := range cfg.Plan.Files {
		sizes, err := gen.MeasureFile(ctx, tables, cfg.Plan, ref, cfg.Format)
		if err != nil {
			return nil, fmt.Errorf("measuring file %d: %w", ref.Index, err)
		}
		for i, t := range tables {
			etag, err := dataETag(cfg, t.Name, ref)
			if err != nil {
				return nil, err
			}
			objects = append(objects, Object{
				Name:    cfg.Plan.FileName(t.Name, ref, cfg.Format.Extension()),
				Size:    sizes[i],
				ETag:    etag,
				Content: DataContent{Ref: ref, Table: i},
			})
		}
	}

	regen := func(ctx context.Context, c DataContent) ([]byte, error) {
		return gen.RenderTable(ctx, tables, cfg.Plan, c.Ref, cfg.Format, c.Table)
	}

	s := NewCatalog(cfg.Bucket, objects, generatedAt, regen)
	slog.Info("catalog built", "bucket", cfg.Bucket, "objects", len(objects), "files", len(cfg.Plan.Files))
	return s, nil
}

// dataETag derives the ETag of a data object from everything that
// determines its bytes.
func dataETag(cfg Config, table string, ref gen.FileRef) (string, error) {
	snap := cfg.Plan.Snapshot(ref)
	return ir.ObjectETag(map[string]any{
		"kind":      "data",
		"table":     table,
		"template":  cfg.TemplateDigest,
		"format":    cfg.Format.Extension(),
		"seed":      hex.EncodeToString(snap.Seed[:]),
		"row_start": ref.RowStart,
		"rows":      ref.Rows,
		"batch":     cfg.Plan.RowsPerBatch,
		"now":       snap.Now.UTC().Format(time.RFC3339Nano),
		"qualified": cfg.Plan.Qualified,
	})
}

// NewCatalog creates a store over explicit objects. The slice is copied
// and sorted by name.
func NewCatalog(bucket string, objects []Object, generatedAt time.Time, regen Regenerator) *Store {
	sorted := slices.Clone(objects)
	slices.SortFunc(sorted, func(a, b Object) int { return strings.Compare(a.Name, b.Name) })
	return &Store{
		bucket:      bucket,
		objects:     sorted,
		generatedAt: generatedAt.UTC(),
		regen:       regen,
	}
}

// Bucket returns the name of the single bucket.
func (s *Store) Bucket() string {
	return s.bucket
}

// GeneratedAt is the creation and modification time of everything in
// the store.
func (s *Store) GeneratedAt() time.Time {
	return s.generatedAt
}

// Objects returns the catalog in name order. The slice must not be
// modified.
func (s *Store) Objects() []Object {
	return s.objects
}

func (s *Store) checkBucket(bucket string) error {
	if bucket != s.bucket {
		return noSuchBucket(bucket)
	}
	return nil
}

// lookup finds key by binary search.
func (s *Store) lookup(key string) (*Object, bool) {
	i := sort.Search(len(s.objects), func(i int) bool { return s.objects[i].Name >= key })
	if i < len(s.objects) && s.objects[i].Name == key {
		return &s.objects[i], true
	}
	return nil, false
}
