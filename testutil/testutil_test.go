package testutil

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomDescriptor(t *testing.T) {
	rng := NewRNG(4711)

	for range 20 {
		d := RandomDescriptor(rng, 4)
		require.NoError(t, d.Validate())
		assert.Len(t, d.Histogram, 64)
	}

	rng.Reset()
	a := RandomDescriptor(rng, 4)
	rng.Reset()
	b := RandomDescriptor(rng, 4)
	assert.True(t, a.Equal(b))
}

func TestPatched(t *testing.T) {
	buf := Patched(8, 4, Red, Blue, image.Rect(6, 2, 20, 20))
	require.NoError(t, buf.Validate())

	at := func(x, y int) RGB {
		i := (y*8 + x) * 3
		return RGB{buf.Pix[i], buf.Pix[i+1], buf.Pix[i+2]}
	}
	assert.Equal(t, Red, at(0, 0))
	assert.Equal(t, Red, at(5, 3))
	assert.Equal(t, Blue, at(6, 2))
	assert.Equal(t, Blue, at(7, 3))
}

func TestPerturb(t *testing.T) {
	rng := NewRNG(1)
	buf := Solid(4, 4, RGB{250, 2, 100})

	out := rng.Perturb(buf, 10, 0)
	assert.Equal(t, []byte{255, 12, 110}, out.Pix[:3])
	assert.Equal(t, byte(250), buf.Pix[0], "source must not be modified")

	noisy := rng.Perturb(buf, 0, 3)
	for i, v := range noisy.Pix {
		assert.InDelta(t, float64(buf.Pix[i]), float64(v), 3)
	}
}
