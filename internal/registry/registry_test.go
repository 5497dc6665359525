package registry

import (
	"testing"

	"github.com/meshxfer/meshxfer/internal/wire"
)

func TestHandleAnnounceRecordsPeer(t *testing.T) {
	r := New("self")
	r.HandleAnnounce(wire.Frame{Type: wire.TypeAnnounce, NodeID: "peer-1", Role: "receiver"})

	p, ok := r.Get("peer-1")
	if !ok {
		t.Fatal("expected peer-1 to be recorded")
	}
	if p.Role != "receiver" {
		t.Fatalf("expected role receiver, got %q", p.Role)
	}
}

func TestHandleAnnounceIgnoresSelf(t *testing.T) {
	r := New("self")
	r.HandleAnnounce(wire.Frame{Type: wire.TypeAnnounce, NodeID: "self", Role: "sender"})

	if _, ok := r.Get("self"); ok {
		t.Fatal("self-announce should not be recorded as a peer")
	}
}

func TestHandleDiscoverIgnoresSelfAndRecordsOthers(t *testing.T) {
	r := New("self")

	if r.HandleDiscover(wire.Frame{Type: wire.TypeDiscover, NodeID: "self"}) {
		t.Fatal("self-discover should not trigger a response")
	}

	if !r.HandleDiscover(wire.Frame{Type: wire.TypeDiscover, NodeID: "peer-2"}) {
		t.Fatal("a discover from another node should trigger a response")
	}
	if _, ok := r.Get("peer-2"); !ok {
		t.Fatal("expected peer-2 to be recorded from its discover frame")
	}
}

func TestListAndFormatKnownNodes(t *testing.T) {
	r := New("self")
	r.HandleAnnounce(wire.Frame{Type: wire.TypeAnnounce, NodeID: "peer-1", Role: "receiver"})

	if len(r.List()) != 1 {
		t.Fatalf("expected one peer, got %d", len(r.List()))
	}

	lines := r.FormatKnownNodes()
	if len(lines) != 1 {
		t.Fatalf("expected one formatted line, got %d", len(lines))
	}
}
