package vision

import (
	"context"
	"errors"
	"fmt"

	"github.com/otic/vision/feature"
	"github.com/otic/vision/store"
	"github.com/otic/vision/token"
)

var (
	// ErrInvalidInput is returned for malformed frames, descriptors or metadata.
	ErrInvalidInput = feature.ErrInvalidInput

	// ErrCorruptToken is returned when a stored token fails its checksum.
	ErrCorruptToken = token.ErrCorruptToken

	// ErrStoreUnavailable is returned when the token store cannot be reached.
	ErrStoreUnavailable = errors.New("token store unavailable")

	// ErrTimeout is returned when a store call exceeds Config.ScanTimeout.
	ErrTimeout = errors.New("token store timeout")

	// ErrRegistrationConflict is returned when a token checksum is already
	// registered to a different product.
	ErrRegistrationConflict = errors.New("registration conflict")

	// ErrClosed is returned when the orchestrator has been closed.
	ErrClosed = errors.New("orchestrator closed")
)

// Kind classifies an EngineError.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidInput
	KindCorruptToken
	KindStoreUnavailable
	KindTimeout
	KindRegistrationConflict
	KindCanceled
	KindClosed
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "InvalidInput"
	case KindCorruptToken:
		return "CorruptToken"
	case KindStoreUnavailable:
		return "StoreUnavailable"
	case KindTimeout:
		return "Timeout"
	case KindRegistrationConflict:
		return "RegistrationConflict"
	case KindCanceled:
		return "Canceled"
	case KindClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Operation names carried by EngineError.
const (
	OpRecognize = "recognize"
	OpExtract   = "extract"
	OpRegister  = "register"
	OpWarm      = "warm"
)

// EngineError describes a failed operation.
//
// The original error can be accessed via errors.Unwrap, so errors.Is works
// against both the package sentinels (ErrTimeout, ...) and the underlying
// package-level errors (store.ErrUnavailable, context.Canceled, ...).
type EngineError struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("vision: %s: %v", e.Op, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

// KindOf returns the Kind of err, or KindUnknown.
func KindOf(err error) Kind {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return classify(err)
}

func newEngineError(op string, err error) error {
	if err == nil {
		return nil
	}
	var ee *EngineError
	if errors.As(err, &ee) {
		return err
	}
	return &EngineError{Op: op, Kind: classify(err), Err: err}
}

func classify(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrClosed):
		return KindClosed
	case errors.Is(err, ErrRegistrationConflict):
		return KindRegistrationConflict
	// Corrupt tokens may wrap a descriptor validation error.
	case errors.Is(err, ErrCorruptToken):
		return KindCorruptToken
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrStoreUnavailable):
		return KindStoreUnavailable
	default:
		return KindUnknown
	}
}

// translateError maps an error returned by a token store call made under ctx
// onto the public taxonomy. Cancellation of ctx by the caller wins over
// everything else.
func translateError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}

	if ctxErr := ctx.Err(); errors.Is(ctxErr, context.Canceled) {
		return ctxErr
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}

	// Local-decodable errors surface unchanged.
	if errors.Is(err, token.ErrCorruptToken) || errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrClosed) {
		return err
	}
	if errors.Is(err, store.ErrConflict) {
		return fmt.Errorf("%w: %w", ErrRegistrationConflict, err)
	}

	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
