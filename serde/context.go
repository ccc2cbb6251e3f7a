package serde

// ContextEngine holds the marshaling library of a format.
type ContextEngine interface {
	// GetFormat returns the name of the format for this context.
	GetFormat() Format

	// Marshal returns the bytes of the value in the format of the engine.
	Marshal(value interface{}) ([]byte, error)

	// Unmarshal populates the value with the data in the format of the engine.
	Unmarshal(data []byte, value interface{}) error
}

// Context is passed to the serialization and deserialization requests so that
// the format engines encode with the library of the format.
type Context struct {
	ContextEngine
}

// NewContext returns a context using the engine.
func NewContext(engine ContextEngine) Context {
	return Context{ContextEngine: engine}
}
