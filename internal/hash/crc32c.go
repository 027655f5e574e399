package hash

import (
	"encoding/binary"
	"hash"
	"hash/crc32"
)

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// CRC32C computes the CRC32-Castagnoli checksum of data.
func CRC32C(data []byte) uint32 {
	return crc32.Checksum(data, crc32cTable)
}

// NewCRC32C returns a new CRC32-Castagnoli hash.Hash32.
func NewCRC32C() hash.Hash32 {
	return crc32.New(crc32cTable)
}

// Descriptor checksums quantized histogram bins followed by the spatial
// signature, both as big-endian uint16.
func Descriptor(bins []uint16, spatial []uint16) uint32 {
	buf := make([]byte, 2*(len(bins)+len(spatial)))
	off := 0
	for _, v := range bins {
		binary.BigEndian.PutUint16(buf[off:], v)
		off += 2
	}
	for _, v := range spatial {
		binary.BigEndian.PutUint16(buf[off:], v)
		off += 2
	}
	return CRC32C(buf)
}
