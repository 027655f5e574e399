// Package token encodes color descriptors into immutable visual tokens and
// serializes them for durable token stores.
//
// Binary layout (little endian):
//
//	magic "OVT" | version u8 | bins u8 | createdAt i64 (unix nanos) |
//	checksum u32 | idLen u16 | id | histogram f64 × bins³ | spatial u16 × 4
//
// The checksum is computed over the quantized histogram, so it is stable
// across round-trips and can be used as a cheap equality pre-filter.
package token

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/otic/vision/feature"
	"github.com/otic/vision/internal/hash"
)

// ErrCorruptToken is returned when stored bytes do not decode into a token
// whose checksum matches its descriptor.
var ErrCorruptToken = errors.New("corrupt token")

const (
	formatVersion = 1
	headerSize    = 3 + 1 + 1 + 8 + 4 + 2
	maxIDLen      = math.MaxUint16
)

var magic = [3]byte{'O', 'V', 'T'}

// VisualToken is the fingerprint of one capture. Tokens are values; a new
// capture always yields a new token.
type VisualToken struct {
	// ID is empty until the token is registered.
	ID         string
	Descriptor feature.Descriptor
	Checksum   uint32
	CreatedAt  time.Time
}

// WithID returns a copy of t carrying id.
func (t VisualToken) WithID(id string) VisualToken {
	t.ID = id
	t.Descriptor = t.Descriptor.Clone()
	return t
}

// Registered reports whether the token has been assigned an ID.
func (t VisualToken) Registered() bool {
	return t.ID != ""
}

// Bucket returns the locality key of the token's descriptor.
func (t VisualToken) Bucket() int {
	return t.Descriptor.Bucket()
}

// Buckets returns every locality bucket the token is filed under, the
// primary bucket first.
func (t VisualToken) Buckets() []int {
	return t.Descriptor.Probes()
}

// Checksum computes the checksum of a descriptor.
func Checksum(d feature.Descriptor) uint32 {
	return hash.Descriptor(d.Quantize(), d.Spatial[:])
}

// Codec encodes descriptors for a fixed histogram resolution.
// It is safe for concurrent use.
type Codec struct {
	bins int
	now  func() time.Time
}

// CodecOptions configures a Codec.
type CodecOptions struct {
	// Now stamps CreatedAt; defaults to time.Now.
	Now func() time.Time
}

// NewCodec creates a codec for descriptors with binsPerChannel bins per channel.
func NewCodec(binsPerChannel int, optFns ...func(o *CodecOptions)) (*Codec, error) {
	if binsPerChannel < feature.MinBinsPerChannel || binsPerChannel > feature.MaxBinsPerChannel {
		return nil, fmt.Errorf("bins per channel %d out of range [%d,%d]",
			binsPerChannel, feature.MinBinsPerChannel, feature.MaxBinsPerChannel)
	}

	opts := CodecOptions{Now: time.Now}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Codec{bins: binsPerChannel, now: opts.Now}, nil
}

// BinsPerChannel returns the histogram resolution the codec accepts.
func (c *Codec) BinsPerChannel() int { return c.bins }

// Size returns the serialized size of a token with an id of idLen bytes.
func (c *Codec) Size(idLen int) int {
	return headerSize + idLen + feature.HistogramLen(c.bins)*8 + feature.Quadrants*2
}

// Encode wraps a descriptor into a new, unregistered token.
func (c *Codec) Encode(d feature.Descriptor) (VisualToken, error) {
	if d.Bins != c.bins {
		return VisualToken{}, fmt.Errorf("%w: descriptor has %d bins per channel, codec expects %d",
			feature.ErrInvalidInput, d.Bins, c.bins)
	}
	if err := d.Validate(); err != nil {
		return VisualToken{}, err
	}

	d = d.Clone()
	return VisualToken{
		Descriptor: d,
		Checksum:   Checksum(d),
		CreatedAt:  c.now().UTC(),
	}, nil
}

// Marshal serializes t. It panics if the token does not belong to this codec,
// which only happens for tokens that were not produced by Encode or Decode.
func (c *Codec) Marshal(t VisualToken) []byte {
	if t.Descriptor.Bins != c.bins || len(t.Descriptor.Histogram) != feature.HistogramLen(c.bins) {
		panic(fmt.Sprintf("token: descriptor with %d bins marshalled by %d-bin codec", t.Descriptor.Bins, c.bins))
	}
	if len(t.ID) > maxIDLen {
		panic("token: id too long")
	}

	buf := make([]byte, c.Size(len(t.ID)))
	copy(buf, magic[:])
	buf[3] = formatVersion
	buf[4] = byte(c.bins)
	binary.LittleEndian.PutUint64(buf[5:], uint64(t.CreatedAt.UnixNano()))
	binary.LittleEndian.PutUint32(buf[13:], t.Checksum)
	binary.LittleEndian.PutUint16(buf[17:], uint16(len(t.ID)))

	off := headerSize
	off += copy(buf[off:], t.ID)
	for _, v := range t.Descriptor.Histogram {
		binary.LittleEndian.PutUint64(buf[off:], math.Float64bits(v))
		off += 8
	}
	for _, v := range t.Descriptor.Spatial {
		binary.LittleEndian.PutUint16(buf[off:], v)
		off += 2
	}
	return buf
}

// Decode parses stored bytes and verifies the checksum.
func (c *Codec) Decode(b []byte) (VisualToken, error) {
	if len(b) < headerSize {
		return VisualToken{}, fmt.Errorf("%w: %d bytes is shorter than the header", ErrCorruptToken, len(b))
	}
	if [3]byte(b[:3]) != magic {
		return VisualToken{}, fmt.Errorf("%w: bad magic %q", ErrCorruptToken, b[:3])
	}
	if b[3] != formatVersion {
		return VisualToken{}, fmt.Errorf("%w: unsupported version %d", ErrCorruptToken, b[3])
	}
	if int(b[4]) != c.bins {
		return VisualToken{}, fmt.Errorf("%w: token has %d bins per channel, codec expects %d", ErrCorruptToken, b[4], c.bins)
	}

	idLen := int(binary.LittleEndian.Uint16(b[17:]))
	if want := c.Size(idLen); len(b) != want {
		return VisualToken{}, fmt.Errorf("%w: length %d, expected %d", ErrCorruptToken, len(b), want)
	}

	t := VisualToken{
		CreatedAt: time.Unix(0, int64(binary.LittleEndian.Uint64(b[5:]))).UTC(),
		Checksum:  binary.LittleEndian.Uint32(b[13:]),
	}

	off := headerSize
	t.ID = string(b[off : off+idLen])
	off += idLen

	hist := make([]float64, feature.HistogramLen(c.bins))
	for i := range hist {
		hist[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[off:]))
		off += 8
	}
	t.Descriptor = feature.Descriptor{Bins: c.bins, Histogram: hist}
	for q := range t.Descriptor.Spatial {
		t.Descriptor.Spatial[q] = binary.LittleEndian.Uint16(b[off:])
		off += 2
	}

	if err := t.Descriptor.Validate(); err != nil {
		return VisualToken{}, fmt.Errorf("%w: %w", ErrCorruptToken, err)
	}
	if sum := Checksum(t.Descriptor); sum != t.Checksum {
		return VisualToken{}, fmt.Errorf("%w: checksum %08x, descriptor hashes to %08x", ErrCorruptToken, t.Checksum, sum)
	}
	return t, nil
}
