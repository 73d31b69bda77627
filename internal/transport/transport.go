// Package transport provides descriptor-level connection establishment.
// Transports hand back raw, non-blocking IPv4 stream sockets; what
// travels over them is the compression layer's concern.
package transport

import "context"

// Dialer opens outbound stream descriptors.
type Dialer interface {
	// Dial resolves host and connects to the first address that
	// accepts, returning a non-blocking descriptor.
	Dial(ctx context.Context, host string, port int) (int, error)

	// Close releases any long-lived resources held by the dialer.
	// Stateless dialers return nil.
	Close() error
}
