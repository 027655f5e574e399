// Package s3 provides an Amazon S3 implementation of blobstore.BlobStore.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("products/"),
//	    s3.WithRegion("eu-central-1"),
//	)
//
// # Features
//
//   - Whole-object reads through the transfer manager, range reads per Blob
//   - CRC32C-checked single-part uploads, multipart above the part size
//   - Automatic pagination for listing
//   - Configurable prefix for multi-tenant isolation
package s3
