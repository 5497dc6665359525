package session

import "testing"

func TestSparseBufferAcceptInOrder(t *testing.T) {
	b := NewSparseBuffer(4, 3)
	if err := b.Accept(0, []byte("abcd")); err != nil {
		t.Fatalf("Accept(0): %v", err)
	}
	if err := b.Accept(1, []byte("efgh")); err != nil {
		t.Fatalf("Accept(1): %v", err)
	}
	if err := b.Accept(2, []byte("ij")); err != nil {
		t.Fatalf("Accept(2): %v", err)
	}

	if !b.IsComplete() {
		t.Fatal("expected buffer to be complete")
	}
	if got := string(b.Bytes()); got != "abcdefghij" {
		t.Fatalf("unexpected reassembled content: %q", got)
	}
}

func TestSparseBufferAcceptOutOfOrderZeroFills(t *testing.T) {
	b := NewSparseBuffer(4, 3)
	if err := b.Accept(2, []byte("ij")); err != nil {
		t.Fatalf("Accept(2): %v", err)
	}

	want := []byte{0, 0, 0, 0, 0, 0, 0, 0, 'i', 'j'}
	got := b.Bytes()
	if len(got) != len(want) {
		t.Fatalf("expected buffer length %d, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d: want %d, got %d", i, want[i], got[i])
		}
	}

	if err := b.Accept(0, []byte("abcd")); err != nil {
		t.Fatalf("Accept(0): %v", err)
	}
	if err := b.Accept(1, []byte("efgh")); err != nil {
		t.Fatalf("Accept(1): %v", err)
	}
	if string(b.Bytes()) != "abcdefghij" {
		t.Fatalf("unexpected reassembled content: %q", string(b.Bytes()))
	}
}

func TestSparseBufferDuplicateAcceptIsIdempotent(t *testing.T) {
	b := NewSparseBuffer(4, 2)
	if err := b.Accept(0, []byte("abcd")); err != nil {
		t.Fatalf("Accept(0): %v", err)
	}
	before := b.AcceptedCount()

	if err := b.Accept(0, []byte("XXXX")); err != nil {
		t.Fatalf("duplicate Accept(0): %v", err)
	}
	if b.AcceptedCount() != before {
		t.Fatalf("duplicate accept changed accepted count: before %d, after %d", before, b.AcceptedCount())
	}
	if string(b.Bytes()[:4]) != "abcd" {
		t.Fatal("duplicate accept must not overwrite already-accepted data")
	}
}

func TestSparseBufferMissing(t *testing.T) {
	b := NewSparseBuffer(4, 3)
	_ = b.Accept(1, []byte("efgh"))

	missing := b.Missing()
	if len(missing) != 2 || missing[0] != 0 || missing[1] != 2 {
		t.Fatalf("unexpected missing set: %v", missing)
	}
}
