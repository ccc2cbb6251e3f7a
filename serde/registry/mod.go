// Package registry maps the formats to the engines of the messages of a
// package. Each package that defines messages keeps a registry and the format
// packages register their engine in it at initialization.
//
// A lookup never returns nil: an unknown format resolves to an engine that
// fails with an explicit error, so that the callers don't check for it.
package registry

import (
	"go.dedis.ch/certkv/serde"
)

// Registry is an interface to register and get format engines for a specific
// format.
type Registry interface {
	// Register sets the engine of the format, replacing any previous one.
	Register(serde.Format, serde.FormatEngine)

	// Get returns the engine associated with the format.
	Get(serde.Format) serde.FormatEngine
}
