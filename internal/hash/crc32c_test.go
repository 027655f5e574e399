package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCRC32C(t *testing.T) {
	// RFC 3720 test vector: 32 bytes of zeros.
	assert.Equal(t, uint32(0x8a9136aa), CRC32C(make([]byte, 32)))

	h := NewCRC32C()
	_, _ = h.Write([]byte("visual"))
	_, _ = h.Write([]byte("token"))
	assert.Equal(t, CRC32C([]byte("visualtoken")), h.Sum32())
}

func TestDescriptor(t *testing.T) {
	a := Descriptor([]uint16{1, 2, 3}, []uint16{0, 1, 2, 0})
	assert.Equal(t, a, Descriptor([]uint16{1, 2, 3}, []uint16{0, 1, 2, 0}))
	assert.NotEqual(t, a, Descriptor([]uint16{1, 2, 4}, []uint16{0, 1, 2, 0}))
	assert.NotEqual(t, a, Descriptor([]uint16{1, 2, 3}, []uint16{0, 1, 2, 1}))
}
