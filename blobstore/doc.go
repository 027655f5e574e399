// Package blobstore abstracts the object storage behind store/objectstore.
//
// BlobStore reads and writes whole named blobs. Implementations must be safe
// for concurrent use.
//
// # Built-in Implementations
//
//   - MemoryStore: in-process map, for tests
//   - LocalStore: local filesystem with mmap reads and atomic rename writes
//   - s3.Store: Amazon S3 with range reads and checksummed uploads
//   - minio.Store: MinIO and other S3-compatible services
//
// # Custom Implementations
//
//	type BlobStore interface {
//	    Open(ctx, name) (Blob, error)
//	    Put(ctx, name, data) error
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error)
//	}
//
// Stores that can fetch a blob in one round trip should also implement
// Getter; ReadFile prefers it.
package blobstore
