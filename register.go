package vision

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/otic/vision/feature"
	"github.com/otic/vision/store"
)

// ProductMetadata describes a product being registered.
type ProductMetadata struct {
	// ProductID is generated when empty. Registering an existing ID replaces
	// that product's token and metadata.
	ProductID   string
	BrandName   string
	ProductName string
	// Price in minor currency units.
	Price int64
}

// Validate checks the metadata.
func (m ProductMetadata) Validate() error {
	switch {
	case strings.TrimSpace(m.BrandName) == "":
		return fmt.Errorf("%w: empty brand name", ErrInvalidInput)
	case strings.TrimSpace(m.ProductName) == "":
		return fmt.Errorf("%w: empty product name", ErrInvalidInput)
	case m.Price < 0:
		return fmt.Errorf("%w: negative price %d", ErrInvalidInput, m.Price)
	}
	return nil
}

// RegisterToken encodes d, writes the product to the token store and caches
// it in the candidate index. Registration is a caller decision, typically
// after a human confirms an Unregistered verdict; the engine never registers
// on its own.
//
// A token whose checksum is already registered to a different product fails
// with ErrRegistrationConflict.
func (o *Orchestrator) RegisterToken(ctx context.Context, d feature.Descriptor, meta ProductMetadata) (store.ProductMatch, error) {
	start := time.Now()
	m, err := o.register(ctx, d, meta)
	o.metrics.RecordRegister(time.Since(start), err)
	o.logger.LogRegister(ctx, m.ProductID, m.Token.Checksum, err)
	if err != nil {
		return store.ProductMatch{}, newEngineError(OpRegister, err)
	}
	return m.Clone(), nil
}

func (o *Orchestrator) register(ctx context.Context, d feature.Descriptor, meta ProductMetadata) (store.ProductMatch, error) {
	if err := o.checkOpen(); err != nil {
		return store.ProductMatch{}, err
	}
	if err := ctx.Err(); err != nil {
		return store.ProductMatch{}, err
	}
	if err := meta.Validate(); err != nil {
		return store.ProductMatch{}, err
	}

	tok, err := o.codec.Encode(d)
	if err != nil {
		return store.ProductMatch{}, err
	}

	productID := meta.ProductID
	if productID == "" {
		productID = o.newID()
	}

	m := store.ProductMatch{
		ProductID:    productID,
		BrandName:    meta.BrandName,
		ProductName:  meta.ProductName,
		Price:        meta.Price,
		Token:        tok.WithID(o.newID()),
		RegisteredAt: o.now().UTC(),
	}

	writeCtx, cancel := context.WithTimeout(ctx, o.cfg.ScanTimeout)
	defer cancel()

	_, err = storeCall(writeCtx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, o.store.Write(ctx, m)
	})
	if err != nil {
		// The write may have landed: the stale copy goes and the buckets of
		// both versions stop being trusted.
		if o.index != nil && !isConflict(err) {
			o.index.Remove(productID, m.Buckets()...)
		}
		return m, err
	}

	if o.index != nil {
		o.index.Insert(m)
	}
	return m, nil
}

func isConflict(err error) bool {
	return KindOf(err) == KindRegistrationConflict
}
