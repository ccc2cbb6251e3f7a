// Package loader defines how the private key of the authority is kept on
// disk. A key is read when it exists, otherwise a new one is generated and
// stored for the next start of the node.
package loader

// Generator creates the marshaled form of a new key.
type Generator interface {
	Generate() ([]byte, error)
}

// Loader loads a key from a storage.
type Loader interface {
	// LoadOrCreate returns the stored key, or generates and stores a new one
	// when the storage is empty.
	LoadOrCreate(Generator) ([]byte, error)

	// Load returns the stored key or an error if it does not exist.
	Load() ([]byte, error)
}
