package session

import "testing"

func TestOutgoingTransferRecordAckIsMonotonic(t *testing.T) {
	tr := NewOutgoingTransfer("file.bin", "node-2", 100, 10, "abc")
	if tr.LastAckedBatch() != -1 {
		t.Fatalf("expected no acked batch initially, got %d", tr.LastAckedBatch())
	}

	tr.RecordAck(3)
	if tr.LastAckedBatch() != 3 {
		t.Fatalf("expected latch at 3, got %d", tr.LastAckedBatch())
	}

	tr.RecordAck(1)
	if tr.LastAckedBatch() != 3 {
		t.Fatalf("an older ack must not move the latch backward, got %d", tr.LastAckedBatch())
	}

	tr.RecordAck(5)
	if tr.LastAckedBatch() != 5 {
		t.Fatalf("expected latch to advance to 5, got %d", tr.LastAckedBatch())
	}
}

func TestOutgoingTransferTotalChunksRoundsUp(t *testing.T) {
	tr := NewOutgoingTransfer("file.bin", "", 101, 10, "")
	if tr.TotalChunks != 11 {
		t.Fatalf("expected 11 chunks for 101 bytes at size 10, got %d", tr.TotalChunks)
	}
}

func TestTransitionToRejectsInvalidMoves(t *testing.T) {
	tr := NewOutgoingTransfer("file.bin", "", 10, 10, "")
	if err := tr.TransitionTo(StateCompleted, ""); err != nil {
		t.Fatalf("active -> completed should be allowed: %v", err)
	}
	if err := tr.TransitionTo(StateFailed, "too late"); err != ErrInvalidStateTransition {
		t.Fatalf("completed -> failed should be rejected, got %v", err)
	}
}

func TestIncomingTransferAbandonedCanResume(t *testing.T) {
	tr := NewIncomingTransfer("file.bin", "node-1", 40, 10, 4, "")
	if err := tr.TransitionTo(StateAbandoned, "idle timeout"); err != nil {
		t.Fatalf("active -> abandoned should be allowed: %v", err)
	}
	if err := tr.TransitionTo(StateActive, ""); err != nil {
		t.Fatalf("abandoned -> active should be allowed once a chunk arrives again: %v", err)
	}
	if tr.State() != StateActive {
		t.Fatalf("expected state active, got %v", tr.State())
	}
}
