// Package proxy defines the HTTP server that exposes the services of a node to
// the clients.
package proxy

import (
	"net"
	"net/http"
)

// Proxy defines the primitives of a server that handles the requests of the
// clients.
type Proxy interface {
	// Listen starts the server. The call is blocking until the server is
	// stopped.
	Listen()

	// Stop stops the server.
	Stop()

	// GetAddr returns the address the server listens on, or nil if it is not
	// listening yet.
	GetAddr() net.Addr

	// RegisterHandler registers a new handler.
	RegisterHandler(path string, handler func(http.ResponseWriter, *http.Request))
}
