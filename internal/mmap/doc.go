// Package mmap maps record files read-only for blobstore.LocalStore.
//
//	m, err := mmap.Open("products/sku-1.rec")
//	if err != nil { ... }
//	defer m.Close()
//	data := m.Bytes()
//
// Unix uses mmap(2) and madvise(2); Windows uses MapViewOfFile and ignores
// access hints.
//
// A Mapping is safe for concurrent reads. Close is idempotent, but callers
// must not touch slices returned by Bytes after Close.
package mmap
