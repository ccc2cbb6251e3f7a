package registry

import (
	"sort"
	"sync"

	"go.dedis.ch/certkv/serde"
	"golang.org/x/xerrors"
)

// SimpleRegistry is a registry backed by a map. It can be used concurrently,
// which the tests rely on when they register fake formats.
//
// - implements registry.Registry
type SimpleRegistry struct {
	sync.RWMutex

	engines map[serde.Format]serde.FormatEngine
}

// NewSimpleRegistry returns a new empty registry.
func NewSimpleRegistry() *SimpleRegistry {
	return &SimpleRegistry{
		engines: make(map[serde.Format]serde.FormatEngine),
	}
}

// Register implements registry.Registry.
func (r *SimpleRegistry) Register(format serde.Format, engine serde.FormatEngine) {
	r.Lock()
	r.engines[format] = engine
	r.Unlock()
}

// Get implements registry.Registry. An unknown format returns an engine that
// always fails.
func (r *SimpleRegistry) Get(format serde.Format) serde.FormatEngine {
	r.RLock()
	engine, found := r.engines[format]
	r.RUnlock()

	if !found || engine == nil {
		return unknownFormat(format)
	}

	return engine
}

// Formats returns the sorted list of the registered formats.
func (r *SimpleRegistry) Formats() []serde.Format {
	r.RLock()
	defer r.RUnlock()

	formats := make([]serde.Format, 0, len(r.engines))
	for format := range r.engines {
		formats = append(formats, format)
	}

	sort.Slice(formats, func(i, j int) bool { return formats[i] < formats[j] })

	return formats
}

// unknownFormat is the engine of a format that is not registered.
//
// - implements serde.FormatEngine
type unknownFormat serde.Format

// Encode implements serde.FormatEngine. It always returns an error.
func (f unknownFormat) Encode(serde.Context, serde.Message) ([]byte, error) {
	return nil, xerrors.Errorf("format '%s' is not implemented", string(f))
}

// Decode implements serde.FormatEngine. It always returns an error.
func (f unknownFormat) Decode(serde.Context, []byte) (serde.Message, error) {
	return nil, xerrors.Errorf("format '%s' is not implemented", string(f))
}
