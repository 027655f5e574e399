package objectstore

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressBlock(t *testing.T) {
	compressible := bytes.Repeat([]byte(`{"product_id":"sku","price":249}`), 64)
	random := make([]byte, 512)
	for i := range random {
		random[i] = byte(i*7919 + i*i*31)
	}

	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		t.Run(c.String(), func(t *testing.T) {
			for _, data := range [][]byte{nil, {1}, compressible, random} {
				block, err := compressBlock(data, c)
				require.NoError(t, err)

				got, err := decompressBlock(block, c)
				require.NoError(t, err)
				assert.Equal(t, len(data), len(got))
				assert.True(t, bytes.Equal(data, got))
			}

			block, err := compressBlock(compressible, c)
			require.NoError(t, err)
			if c == CompressionNone {
				assert.Len(t, block, blockHeaderSize+len(compressible))
			} else {
				assert.Less(t, len(block), len(compressible)/2)
			}
		})
	}
}

func TestDecompressBlock_Malformed(t *testing.T) {
	block, err := compressBlock(bytes.Repeat([]byte("abcd"), 100), CompressionLZ4)
	require.NoError(t, err)

	_, err = decompressBlock(block[:4], CompressionLZ4)
	assert.ErrorIs(t, err, errBlock)

	_, err = decompressBlock(block[:len(block)-1], CompressionLZ4)
	assert.ErrorIs(t, err, errBlock)

	// A compressed block claiming no compression.
	_, err = decompressBlock(block, CompressionNone)
	assert.ErrorIs(t, err, errBlock)

	_, err = compressBlock([]byte("x"), Compression(7))
	assert.Error(t, err)
	assert.Equal(t, "Compression(7)", Compression(7).String())
}
