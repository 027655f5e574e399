// Package hash provides the checksums used by visual tokens.
//
// Token checksums are CRC32-Castagnoli (CRC32C) over the quantized descriptor,
// never over raw float64 bits, so a checksum survives any lossless
// serialization of the descriptor. Go's crc32 package uses SSE4.2 or the ARM
// CRC extension when available.
//
// For one-shot checksums:
//
//	checksum := hash.CRC32C(data)
//
// For descriptors:
//
//	checksum := hash.Descriptor(quantizedBins, spatial)
package hash
