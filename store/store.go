// Package store defines the durable registry of product tokens consumed by
// the recognition engine.
//
// # Built-in Implementations
//
//   - memstore: in-process store with Roaring bitmap bucket postings
//   - sqlite: durable store on modernc.org/sqlite
//   - objectstore: one compressed record per product in any
//     blobstore.BlobStore (local disk, S3, MinIO), with optional DynamoDB
//     conflict detection
//
// Implementations must be safe for concurrent use and must return copies:
// the engine holds read-only records for the lifetime of one operation.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/otic/vision/token"
)

var (
	// ErrNotFound is returned by ReadByID for unknown products.
	ErrNotFound = errors.New("product not found")

	// ErrConflict is returned by Write when the token checksum is already
	// registered to a different product.
	ErrConflict = errors.New("token checksum registered to another product")

	// ErrUnavailable marks infrastructure failures (connection refused,
	// closed database, throttling). Implementations wrap their driver errors
	// with it where they can tell.
	ErrUnavailable = errors.New("token store unavailable")
)

// ProductMatch is a registered product and its visual token.
type ProductMatch struct {
	ProductID   string
	BrandName   string
	ProductName string
	// Price in minor currency units.
	Price        int64
	Token        token.VisualToken
	RegisteredAt time.Time
}

// Clone returns a deep copy of m.
func (m ProductMatch) Clone() ProductMatch {
	m.Token.Descriptor = m.Token.Descriptor.Clone()
	return m
}

// Bucket returns the primary locality key of the product's token.
func (m ProductMatch) Bucket() int {
	return m.Token.Bucket()
}

// Buckets returns every locality bucket of the product's token: the distinct
// bins of its spatial signature, primary first.
func (m ProductMatch) Buckets() []int {
	return m.Token.Buckets()
}

// InBucket reports whether the product is filed under bucket.
func (m ProductMatch) InBucket(bucket int) bool {
	return m.Token.Descriptor.InBucket(bucket)
}

// TokenStore is the registry contract required by the engine.
type TokenStore interface {
	// ReadAll returns every registered product (full-scan fallback).
	ReadAll(ctx context.Context) ([]ProductMatch, error)
	// ReadByID returns one product or ErrNotFound.
	ReadByID(ctx context.Context, productID string) (ProductMatch, error)
	// Write registers or replaces a product. It fails with ErrConflict when
	// the token checksum belongs to a different product.
	Write(ctx context.Context, m ProductMatch) error
}

// BucketReader is implemented by stores that can narrow a read to the
// products of one locality bucket. ReadByBucket must return every product
// filed under bucket (see ProductMatch.InBucket), not only those whose
// primary bucket it is: the engine trusts a shortlist built from it.
type BucketReader interface {
	ReadByBucket(ctx context.Context, bucket int) ([]ProductMatch, error)
}

// ReadByBucket reads one bucket, filtering a full scan when s does not
// implement BucketReader.
func ReadByBucket(ctx context.Context, s TokenStore, bucket int) ([]ProductMatch, error) {
	if br, ok := s.(BucketReader); ok {
		return br.ReadByBucket(ctx, bucket)
	}
	all, err := s.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, m := range all {
		if m.InBucket(bucket) {
			out = append(out, m)
		}
	}
	return out, nil
}
