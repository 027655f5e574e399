package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	ProductID string    `json:"product_id"`
	Price     int64     `json:"price"`
	Token     []byte    `json:"token"`
	Hist      []float64 `json:"hist,omitempty"`
}

type upperJSON struct{ JSON }

func (upperJSON) Name() string { return "json-upper" }

func TestByName(t *testing.T) {
	for _, name := range []string{"json", "go-json"} {
		c, err := ByName(name)
		require.NoError(t, err)
		assert.Equal(t, name, c.Name())
	}
	_, err := ByName("msgpack")
	assert.ErrorIs(t, err, ErrUnknownCodec)
}

func TestRegister(t *testing.T) {
	require.NoError(t, Register(upperJSON{}))

	c, err := ByName("json-upper")
	require.NoError(t, err)
	assert.Equal(t, "json-upper", c.Name())
	assert.Contains(t, Names(), "json-upper")
	assert.Subset(t, Names(), []string{"go-json", "json"})
}

func TestRegister_InvalidName(t *testing.T) {
	assert.Error(t, Register(nameless{}))
}

type nameless struct{ JSON }

func (nameless) Name() string { return "" }

func TestCodecsInteroperate(t *testing.T) {
	in := record{ProductID: "sku-1", Price: 249, Token: []byte{0x4f, 0x56, 0x54, 0x01}, Hist: []float64{0.25, 0.75}}

	for _, writer := range []Codec{JSON{}, GoJSON{}} {
		for _, reader := range []Codec{JSON{}, GoJSON{}} {
			t.Run(writer.Name()+"->"+reader.Name(), func(t *testing.T) {
				var out record
				require.NoError(t, reader.Unmarshal(MustMarshal(writer, in), &out))
				assert.Equal(t, in, out)
			})
		}
	}
}

func TestMustMarshal_Panics(t *testing.T) {
	assert.Panics(t, func() { MustMarshal(nil, make(chan int)) })
}
