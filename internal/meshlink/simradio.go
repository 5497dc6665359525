package meshlink

import (
	"context"
	"errors"
	"sync"
)

// SimRadio is an in-memory Radio used in tests. Two SimRadios wired together
// with Link deliver each other's SendText calls to the subscribed handler.
type SimRadio struct {
	nodeID string

	mu      sync.Mutex
	open    bool
	peer    *SimRadio
	handler func(fromNodeID, text string)

	// FailOpenCount, when positive, makes the next FailOpenCount Open calls fail.
	FailOpenCount int
	// FailSend, when set, makes every SendText call fail.
	FailSend bool
}

// NewSimRadio creates an unopened, unlinked fake radio identified by nodeID.
func NewSimRadio(nodeID string) *SimRadio {
	return &SimRadio{nodeID: nodeID}
}

// Link wires a and b together so each one's sends reach the other's handler.
func Link(a, b *SimRadio) {
	a.mu.Lock()
	a.peer = b
	a.mu.Unlock()
	b.mu.Lock()
	b.peer = a
	b.mu.Unlock()
}

func (r *SimRadio) Open(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailOpenCount > 0 {
		r.FailOpenCount--
		return errors.New("simradio: open failed")
	}
	r.open = true
	return nil
}

func (r *SimRadio) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.open = false
	return nil
}

func (r *SimRadio) Subscribe(handler func(fromNodeID, text string)) {
	r.mu.Lock()
	r.handler = handler
	r.mu.Unlock()
}

func (r *SimRadio) SendText(ctx context.Context, text string) error {
	r.mu.Lock()
	open, fail, peer, from := r.open, r.FailSend, r.peer, r.nodeID
	r.mu.Unlock()

	if !open {
		return errors.New("simradio: not open")
	}
	if fail {
		return errors.New("simradio: send failed")
	}
	if peer == nil {
		return nil
	}

	peer.mu.Lock()
	h := peer.handler
	peer.mu.Unlock()
	if h != nil {
		h(from, text)
	}
	return nil
}
