// Package objectstore provides a store.TokenStore on any blobstore.BlobStore
// (local disk, S3, MinIO).
//
// Each product is one blob under "products/", holding a codec-encoded record
// compressed with LZ4 (default) or ZSTD. Full scans list the prefix and
// fetch records in parallel.
//
// Blob stores cannot enforce unique checksums. A ChecksumRegistry does: the
// default MemoryRegistry is rebuilt from the records at Open and suits a
// single writer process; DynamoRegistry serves many.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/otic/vision/blobstore"
	"github.com/otic/vision/codec"
	"github.com/otic/vision/feature"
	"github.com/otic/vision/store"
	"github.com/otic/vision/token"
	"golang.org/x/sync/errgroup"
)

const (
	recordPrefix = "products/"
	recordSuffix = ".rec"
)

// Options configures a Store.
type Options struct {
	// Codec encodes records. Default: codec.Default.
	Codec codec.Codec
	// Compression of newly written records. Default: CompressionLZ4.
	Compression Compression
	// Registry enforces checksum uniqueness. Default: a MemoryRegistry
	// seeded from the existing records.
	Registry ChecksumRegistry
	// ReadConcurrency bounds parallel record fetches. Default: 16.
	ReadConcurrency int
}

// Option configures a Store.
type Option func(*Options)

// WithCodec sets the record codec.
func WithCodec(c codec.Codec) Option { return func(o *Options) { o.Codec = c } }

// WithCompression sets the record compression.
func WithCompression(c Compression) Option { return func(o *Options) { o.Compression = c } }

// WithRegistry sets the checksum registry.
func WithRegistry(r ChecksumRegistry) Option { return func(o *Options) { o.Registry = r } }

// WithReadConcurrency bounds parallel record fetches.
func WithReadConcurrency(n int) Option { return func(o *Options) { o.ReadConcurrency = n } }

// Store is a TokenStore on a BlobStore. It is safe for concurrent use.
type Store struct {
	blobs    blobstore.BlobStore
	records  recordCodec
	registry ChecksumRegistry
	workers  int

	// Serializes writers in this process; the registry covers the rest.
	writeMu sync.Mutex
}

var _ store.TokenStore = (*Store)(nil)

// Open creates a Store on blobs. Without WithRegistry it reads every
// record to seed a MemoryRegistry.
func Open(ctx context.Context, blobs blobstore.BlobStore, tokens *token.Codec, optFns ...Option) (*Store, error) {
	if blobs == nil || tokens == nil {
		return nil, fmt.Errorf("%w: nil blob store or token codec", feature.ErrInvalidInput)
	}

	opts := Options{
		Codec:           codec.Default,
		Compression:     CompressionLZ4,
		ReadConcurrency: 16,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Codec == nil {
		opts.Codec = codec.Default
	}
	if _, err := codec.ByName(opts.Codec.Name()); err != nil {
		return nil, fmt.Errorf("%w: %w", feature.ErrInvalidInput, err)
	}
	if opts.Compression > CompressionZSTD {
		return nil, fmt.Errorf("%w: unknown compression %s", feature.ErrInvalidInput, opts.Compression)
	}
	if opts.ReadConcurrency < 1 {
		opts.ReadConcurrency = 1
	}

	s := &Store{
		blobs: blobs,
		records: recordCodec{
			tokens:      tokens,
			codec:       opts.Codec,
			compression: opts.Compression,
		},
		registry: opts.Registry,
		workers:  opts.ReadConcurrency,
	}

	if s.registry == nil {
		reg := NewMemoryRegistry()
		all, err := s.ReadAll(ctx)
		if err != nil {
			return nil, fmt.Errorf("seed checksum registry: %w", err)
		}
		for _, m := range all {
			if err := reg.Claim(ctx, m.Token.Checksum, m.ProductID); err != nil {
				return nil, fmt.Errorf("seed checksum registry: %w", err)
			}
		}
		s.registry = reg
	}
	return s, nil
}

func recordName(productID string) string {
	return recordPrefix + url.PathEscape(productID) + recordSuffix
}

// ReadAll implements store.TokenStore. Records are returned in product ID
// order.
func (s *Store) ReadAll(ctx context.Context) ([]store.ProductMatch, error) {
	names, err := s.blobs.List(ctx, recordPrefix)
	if err != nil {
		return nil, s.wrap(ctx, "list", err)
	}

	var (
		mu  sync.Mutex
		out = make([]store.ProductMatch, 0, len(names))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, name := range names {
		if !strings.HasSuffix(name, recordSuffix) {
			continue
		}
		g.Go(func() error {
			m, err := s.read(gctx, name)
			if errors.Is(err, store.ErrNotFound) {
				// Deleted between List and read.
				return nil
			}
			if err != nil {
				return err
			}
			mu.Lock()
			out = append(out, m)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

// ReadByID implements store.TokenStore.
func (s *Store) ReadByID(ctx context.Context, productID string) (store.ProductMatch, error) {
	if productID == "" {
		return store.ProductMatch{}, fmt.Errorf("%w: %q", store.ErrNotFound, productID)
	}
	return s.read(ctx, recordName(productID))
}

func (s *Store) read(ctx context.Context, name string) (store.ProductMatch, error) {
	data, err := blobstore.ReadFile(ctx, s.blobs, name)
	if errors.Is(err, blobstore.ErrNotFound) {
		return store.ProductMatch{}, fmt.Errorf("%w: %s", store.ErrNotFound, name)
	}
	if err != nil {
		return store.ProductMatch{}, s.wrap(ctx, "read "+name, err)
	}

	m, err := s.records.decode(data)
	if err != nil {
		return store.ProductMatch{}, fmt.Errorf("%s: %w", name, err)
	}
	if recordName(m.ProductID) != name {
		return store.ProductMatch{}, fmt.Errorf("%s: %w: record holds product %q", name, token.ErrCorruptToken, m.ProductID)
	}
	return m, nil
}

// Write implements store.TokenStore.
func (s *Store) Write(ctx context.Context, m store.ProductMatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.ProductID == "" {
		return fmt.Errorf("%w: empty product id", feature.ErrInvalidInput)
	}
	if bins := s.records.tokens.BinsPerChannel(); m.Token.Descriptor.Bins != bins {
		return fmt.Errorf("%w: token has %d bins per channel, store expects %d",
			feature.ErrInvalidInput, m.Token.Descriptor.Bins, bins)
	}

	data, err := s.records.encode(m)
	if err != nil {
		return fmt.Errorf("encode %s: %w", m.ProductID, err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	old, err := s.ReadByID(ctx, m.ProductID)
	hasOld := err == nil
	if err != nil && !errors.Is(err, store.ErrNotFound) && !errors.Is(err, token.ErrCorruptToken) {
		return err
	}

	checksum := m.Token.Checksum
	if err := s.registry.Claim(ctx, checksum, m.ProductID); err != nil {
		return s.wrap(ctx, "claim checksum", err)
	}

	if err := s.blobs.Put(ctx, recordName(m.ProductID), data); err != nil {
		if !hasOld || old.Token.Checksum != checksum {
			_ = s.registry.Release(context.WithoutCancel(ctx), checksum, m.ProductID)
		}
		return s.wrap(ctx, "put", err)
	}

	if hasOld && old.Token.Checksum != checksum {
		if err := s.registry.Release(ctx, old.Token.Checksum, m.ProductID); err != nil {
			return s.wrap(ctx, "release old checksum", err)
		}
	}
	return nil
}

// Delete removes a product. Unknown ids are ignored.
func (s *Store) Delete(ctx context.Context, productID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	old, err := s.ReadByID(ctx, productID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	// A corrupt record is still deleted; its checksum is unknown.
	corrupt := errors.Is(err, token.ErrCorruptToken)
	if err != nil && !corrupt {
		return err
	}

	if err := s.blobs.Delete(ctx, recordName(productID)); err != nil {
		return s.wrap(ctx, "delete", err)
	}
	if corrupt {
		return nil
	}
	if err := s.registry.Release(ctx, old.Token.Checksum, productID); err != nil {
		return s.wrap(ctx, "release checksum", err)
	}
	return nil
}

// wrap marks infrastructure failures as store.ErrUnavailable. Conflicts,
// corrupt records and context errors pass through.
func (s *Store) wrap(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, store.ErrConflict) || errors.Is(err, token.ErrCorruptToken) ||
		errors.Is(err, store.ErrUnavailable) {
		return err
	}
	return fmt.Errorf("objectstore: %s: %w: %w", op, store.ErrUnavailable, err)
}
