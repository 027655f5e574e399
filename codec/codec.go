// Package codec encodes the product records persisted by store/objectstore.
//
// Every record frame carries the name of the codec that wrote it, so a
// registry can be reopened, or rewritten, with a different Default.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	gojson "github.com/goccy/go-json"
)

// ErrUnknownCodec is returned by ByName for unregistered names.
var ErrUnknownCodec = errors.New("codec: unknown codec")

// Codec encodes/decodes values.
// Implementations must be safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	// Name is persisted with every record and must not exceed 255 bytes.
	Name() string
}

// JSON is the standard-library JSON codec.
type JSON struct{}

func (JSON) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (JSON) Name() string                       { return "json" }

// GoJSON is a JSON codec backed by github.com/goccy/go-json. Its output is
// readable by JSON and the other way round.
type GoJSON struct{}

func (GoJSON) Marshal(v any) ([]byte, error)      { return gojson.Marshal(v) }
func (GoJSON) Unmarshal(data []byte, v any) error { return gojson.Unmarshal(data, v) }
func (GoJSON) Name() string                       { return "go-json" }

// Default is the codec used for newly written records.
var Default Codec = GoJSON{}

var (
	mu       sync.RWMutex
	registry = map[string]Codec{
		JSON{}.Name():   JSON{},
		GoJSON{}.Name(): GoJSON{},
	}
)

// Register makes c resolvable by name when reading records. Registering a
// name twice replaces the earlier codec.
func Register(c Codec) error {
	name := c.Name()
	if name == "" || len(name) > 255 {
		return fmt.Errorf("codec: invalid name %q", name)
	}
	mu.Lock()
	registry[name] = c
	mu.Unlock()
	return nil
}

// ByName returns the codec registered under name.
func ByName(name string) (Codec, error) {
	mu.RLock()
	c, ok := registry[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownCodec, name)
	}
	return c, nil
}

// Names returns the registered codec names in sorted order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// MustMarshal marshals v with c (Default when nil) and panics on failure.
func MustMarshal(c Codec, v any) []byte {
	if c == nil {
		c = Default
	}
	b, err := c.Marshal(v)
	if err != nil {
		panic(fmt.Errorf("codec %s marshal failed: %w", c.Name(), err))
	}
	return b
}
