// Package meshlink adapts the core protocol engines to the underlying mesh
// radio. The radio itself is out of scope for this repository; only the
// Radio collaborator interface and the reconnect/retry envelope around it
// live here.
package meshlink

import "context"

// Radio is the minimal surface the mesh protocol needs from a radio link.
// A real implementation talks to a Bluetooth-attached mesh radio; tests use
// an in-memory fake.
type Radio interface {
	// Open establishes the link. Open on an already-open Radio is a no-op.
	Open(ctx context.Context) error
	// Close tears down the link.
	Close() error
	// SendText transmits a single short text payload.
	SendText(ctx context.Context, text string) error
	// Subscribe registers a callback invoked once per received text payload,
	// with the sending node's announced id (may be empty if unknown).
	Subscribe(handler func(fromNodeID, text string))
}
