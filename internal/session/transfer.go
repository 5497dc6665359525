package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle of a single transfer, sender or receiver side.
type State int

const (
	StateActive State = iota + 1
	StateCompleted
	StateFailed
	// StateAbandoned marks a receiver-side transfer that was checkpointed
	// to disk after the peer went quiet, but is still held in memory in
	// case more chunks arrive later.
	StateAbandoned
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "ACTIVE"
	case StateCompleted:
		return "COMPLETED"
	case StateFailed:
		return "FAILED"
	case StateAbandoned:
		return "ABANDONED"
	default:
		return "UNKNOWN"
	}
}

// ErrInvalidStateTransition is returned by TransitionTo for a disallowed
// state change.
var ErrInvalidStateTransition = errors.New("session: invalid state transition")

var validTransitions = map[State][]State{
	StateActive:    {StateCompleted, StateFailed, StateAbandoned},
	StateAbandoned: {StateActive, StateCompleted, StateFailed},
	StateCompleted: {},
	StateFailed:    {},
}

// OutgoingTransfer tracks a file this node is sending.
type OutgoingTransfer struct {
	TraceID     uuid.UUID
	Filename    string
	TargetNode  string
	FileSize    int64
	ChunkSize   int
	TotalChunks int
	Checksum    string

	mu               sync.RWMutex
	state            State
	chunksAcked      int
	lastAckedBatch   int
	startedAt        time.Time
	updatedAt        time.Time
	errorMessage     string
}

// NewOutgoingTransfer builds a send-side transfer record for a file of the
// given size, chunked at chunkSize bytes.
func NewOutgoingTransfer(filename, targetNode string, fileSize int64, chunkSize int, checksum string) *OutgoingTransfer {
	total := int(fileSize) / chunkSize
	if int(fileSize)%chunkSize != 0 {
		total++
	}
	if total == 0 {
		total = 1
	}
	now := time.Now()
	return &OutgoingTransfer{
		TraceID:        uuid.New(),
		Filename:       filename,
		TargetNode:     targetNode,
		FileSize:       fileSize,
		ChunkSize:      chunkSize,
		TotalChunks:    total,
		Checksum:       checksum,
		state:          StateActive,
		lastAckedBatch: -1,
		startedAt:      now,
		updatedAt:      now,
	}
}

// RecordAck advances the ack latch to batchNumber if it is newer than what
// is already recorded, matching the monotonic last_acked_batch invariant.
func (t *OutgoingTransfer) RecordAck(batchNumber int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if batchNumber > t.lastAckedBatch {
		t.lastAckedBatch = batchNumber
		t.chunksAcked++
		t.updatedAt = time.Now()
	}
}

// LastAckedBatch returns the highest chunk number acknowledged so far, or
// -1 if none has been.
func (t *OutgoingTransfer) LastAckedBatch() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastAckedBatch
}

// State returns the current lifecycle state.
func (t *OutgoingTransfer) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// TransitionTo validates and applies a state change.
func (t *OutgoingTransfer) TransitionTo(newState State, errMsg string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	allowed := validTransitions[t.state]
	ok := false
	for _, s := range allowed {
		if s == newState {
			ok = true
			break
		}
	}
	if !ok {
		return ErrInvalidStateTransition
	}
	t.state = newState
	t.updatedAt = time.Now()
	if errMsg != "" {
		t.errorMessage = errMsg
	}
	return nil
}

// IncomingTransfer tracks a file this node is receiving.
type IncomingTransfer struct {
	TraceID     uuid.UUID
	Filename    string
	SenderID    string
	FileSize    int64
	ChunkSize   int
	TotalChunks int
	Checksum    string

	Buffer *SparseBuffer

	mu                     sync.RWMutex
	state                  State
	retransmissionAttempts int
	startedAt              time.Time
	updatedAt              time.Time
	errorMessage           string
}

// NewIncomingTransfer builds a receive-side transfer record from the fields
// carried on a file_start frame.
func NewIncomingTransfer(filename, senderID string, fileSize int64, chunkSize, totalChunks int, checksum string) *IncomingTransfer {
	now := time.Now()
	return &IncomingTransfer{
		TraceID:     uuid.New(),
		Filename:    filename,
		SenderID:    senderID,
		FileSize:    fileSize,
		ChunkSize:   chunkSize,
		TotalChunks: totalChunks,
		Checksum:    checksum,
		Buffer:      NewSparseBuffer(chunkSize, totalChunks),
		state:       StateActive,
		startedAt:   now,
		updatedAt:   now,
	}
}

// State returns the current lifecycle state.
func (t *IncomingTransfer) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// TransitionTo validates and applies a state change.
func (t *IncomingTransfer) TransitionTo(newState State, errMsg string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	allowed := validTransitions[t.state]
	ok := false
	for _, s := range allowed {
		if s == newState {
			ok = true
			break
		}
	}
	if !ok {
		return ErrInvalidStateTransition
	}
	t.state = newState
	t.updatedAt = time.Now()
	if errMsg != "" {
		t.errorMessage = errMsg
	}
	return nil
}

// Touch refreshes the last-activity timestamp, used by the reliability
// supervisor's chunk-idle timeout watch.
func (t *IncomingTransfer) Touch() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.updatedAt = time.Now()
}

// IdleSince reports how long it has been since the last accepted chunk or
// other activity on this transfer.
func (t *IncomingTransfer) IdleSince() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return time.Since(t.updatedAt)
}

// IncrementRetransmissionAttempts bumps the counter kept for forward
// compatibility with a future NACK-driven retransmission path; the current
// protocol never reads it back to drive behavior.
func (t *IncomingTransfer) IncrementRetransmissionAttempts() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.retransmissionAttempts++
}
