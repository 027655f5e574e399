package objectstore

import (
	"errors"
	"fmt"
	"time"

	"github.com/otic/vision/codec"
	"github.com/otic/vision/store"
	"github.com/otic/vision/token"
)

// Frame layout:
//
//	magic "VPR" | version u8 | compression u8 | codec name len u8 | codec name | block
//
// The block holds the codec-encoded record, compressed as described in
// compression.go.
var frameMagic = [3]byte{'V', 'P', 'R'}

const (
	frameVersion    = 1
	frameHeaderSize = len(frameMagic) + 3
)

// record is the persisted form of a store.ProductMatch. The token is kept
// in its binary codec form so the checksum check runs on decode.
type record struct {
	ProductID    string    `json:"product_id"`
	BrandName    string    `json:"brand_name"`
	ProductName  string    `json:"product_name"`
	Price        int64     `json:"price"`
	RegisteredAt time.Time `json:"registered_at"`
	Token        []byte    `json:"token"`
}

type recordCodec struct {
	tokens      *token.Codec
	codec       codec.Codec
	compression Compression
}

func (rc *recordCodec) encode(m store.ProductMatch) ([]byte, error) {
	name := rc.codec.Name()
	if len(name) > 255 {
		return nil, fmt.Errorf("codec name %q too long", name)
	}

	payload, err := rc.codec.Marshal(record{
		ProductID:    m.ProductID,
		BrandName:    m.BrandName,
		ProductName:  m.ProductName,
		Price:        m.Price,
		RegisteredAt: m.RegisteredAt,
		Token:        rc.tokens.Marshal(m.Token),
	})
	if err != nil {
		return nil, err
	}

	block, err := compressBlock(payload, rc.compression)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, frameHeaderSize+len(name)+len(block))
	out = append(out, frameMagic[:]...)
	out = append(out, frameVersion, byte(rc.compression), byte(len(name)))
	out = append(out, name...)
	return append(out, block...), nil
}

// decode parses a frame written by any codec and compression. Every
// failure wraps token.ErrCorruptToken.
func (rc *recordCodec) decode(data []byte) (store.ProductMatch, error) {
	m, err := rc.decodeFrame(data)
	if err != nil {
		if errors.Is(err, token.ErrCorruptToken) {
			return store.ProductMatch{}, err
		}
		return store.ProductMatch{}, fmt.Errorf("%w: %v", token.ErrCorruptToken, err)
	}
	return m, nil
}

func (rc *recordCodec) decodeFrame(data []byte) (store.ProductMatch, error) {
	if len(data) < frameHeaderSize || [3]byte(data[:3]) != frameMagic {
		return store.ProductMatch{}, errors.New("bad record magic")
	}
	if data[3] != frameVersion {
		return store.ProductMatch{}, fmt.Errorf("unsupported record version %d", data[3])
	}
	compression := Compression(data[4])
	nameLen := int(data[5])
	if len(data) < frameHeaderSize+nameLen {
		return store.ProductMatch{}, errors.New("truncated codec name")
	}
	name := string(data[frameHeaderSize : frameHeaderSize+nameLen])
	c, err := codec.ByName(name)
	if err != nil {
		return store.ProductMatch{}, err
	}

	payload, err := decompressBlock(data[frameHeaderSize+nameLen:], compression)
	if err != nil {
		return store.ProductMatch{}, err
	}

	var r record
	if err := c.Unmarshal(payload, &r); err != nil {
		return store.ProductMatch{}, fmt.Errorf("unmarshal record: %w", err)
	}

	tok, err := rc.tokens.Decode(r.Token)
	if err != nil {
		return store.ProductMatch{}, fmt.Errorf("product %s: %w", r.ProductID, err)
	}

	return store.ProductMatch{
		ProductID:    r.ProductID,
		BrandName:    r.BrandName,
		ProductName:  r.ProductName,
		Price:        r.Price,
		Token:        tok,
		RegisteredAt: r.RegisteredAt,
	}, nil
}
