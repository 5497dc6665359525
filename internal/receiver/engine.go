// Package receiver implements the receiving half of the file transfer
// protocol: accepting chunks into a sparse reassembly buffer, checkpointing
// partial progress to disk, and verifying the whole-file MD5 on completion.
package receiver

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/meshxfer/meshxfer/internal/chunker"
	"github.com/meshxfer/meshxfer/internal/config"
	"github.com/meshxfer/meshxfer/internal/events"
	"github.com/meshxfer/meshxfer/internal/meshlink"
	"github.com/meshxfer/meshxfer/internal/observability"
	"github.com/meshxfer/meshxfer/internal/registry"
	"github.com/meshxfer/meshxfer/internal/session"
	"github.com/meshxfer/meshxfer/internal/wire"
)

// Engine dispatches inbound frames addressed to this node and drives
// receive-side transfer state.
type Engine struct {
	nodeID  string
	cfg     *config.Config
	adapter *meshlink.Adapter
	reg     *registry.Registry
	logger  *observability.Logger
	metrics *observability.Metrics
	events  *events.Publisher

	mu        sync.Mutex
	transfers map[string]*session.IncomingTransfer
	// newSinceCheckpoint counts chunks accepted since the last checkpoint
	// write, per filename, so a checkpoint fires every N newly accepted
	// chunks rather than every N wire messages (acked duplicates don't count).
	newSinceCheckpoint map[string]int
}

// New builds a receiver engine. reg may be nil if peer discovery is not
// wired in (the announce/discover frames are then simply dropped).
func New(nodeID string, cfg *config.Config, adapter *meshlink.Adapter, reg *registry.Registry, logger *observability.Logger, metrics *observability.Metrics, pub *events.Publisher) *Engine {
	return &Engine{
		nodeID:             nodeID,
		cfg:                cfg,
		adapter:            adapter,
		reg:                reg,
		logger:             logger,
		metrics:            metrics,
		events:             pub,
		transfers:          make(map[string]*session.IncomingTransfer),
		newSinceCheckpoint: make(map[string]int),
	}
}

// Dispatch handles one decoded inbound frame from fromNodeID. Frames
// addressed to a node other than us or "" (broadcast) are dropped before
// any type dispatch happens, per the protocol's target-filtering rule.
func (e *Engine) Dispatch(f wire.Frame, fromNodeID string) {
	if f.To != "" && f.To != e.nodeID {
		return
	}

	switch f.Type {
	case wire.TypeAnnounce:
		if e.reg != nil {
			e.reg.HandleAnnounce(f)
		}
	case wire.TypeDiscover:
		if e.reg != nil && e.reg.HandleDiscover(f) {
			e.respondAnnounce(fromNodeID)
		}
	case wire.TypeFileStart:
		e.handleFileStart(fromNodeID, f)
	case wire.TypeFileChunk:
		e.handleFileChunk(fromNodeID, f)
	case wire.TypeFileCompletion:
		e.handleFileCompletion(fromNodeID, f)
	}
}

func (e *Engine) respondAnnounce(toNodeID string) {
	frame := wire.Frame{
		Type:   wire.TypeAnnounce,
		NodeID: e.nodeID,
		Role:   e.cfg.Role,
		From:   e.nodeID,
		To:     toNodeID,
	}
	text, err := wire.Encode(frame)
	if err != nil {
		return
	}
	_ = e.adapter.SendWithRetry(context.Background(), text)
}

func (e *Engine) handleFileStart(fromNodeID string, f wire.Frame) {
	e.mu.Lock()
	transfer := session.NewIncomingTransfer(f.Filename, fromNodeID, f.FileSize, e.cfg.ChunkSize, f.TotalChunks, f.Checksum)
	e.transfers[f.Filename] = transfer
	e.newSinceCheckpoint[f.Filename] = 0
	e.mu.Unlock()

	log := e.logger.WithPeer(fromNodeID).WithFile(f.Filename, f.FileSize)
	log.TransferStarted(f.Filename, f.FileSize, f.TotalChunks)
	if e.events != nil {
		e.events.PublishStarted(f.Filename, f.FileSize)
	}
	if e.metrics != nil {
		e.metrics.RecordTransferStart()
	}
}

func (e *Engine) handleFileChunk(fromNodeID string, f wire.Frame) {
	e.mu.Lock()
	transfer, ok := e.transfers[f.Filename]
	e.mu.Unlock()
	if !ok {
		return
	}

	wasNew := !transfer.Buffer.HasChunk(f.ChunkNumber)
	if err := transfer.Buffer.Accept(f.ChunkNumber, f.Data); err != nil {
		e.logger.Error(err, "failed to accept chunk")
		return
	}
	transfer.Touch()
	if transfer.State() == session.StateAbandoned {
		_ = transfer.TransitionTo(session.StateActive, "")
	}

	if wasNew {
		if e.metrics != nil {
			e.metrics.RecordChunkReceived(len(f.Data))
			e.metrics.RecordChunkFingerprinted()
		}
		if e.events != nil {
			e.events.PublishChunkAccepted(f.Filename, f.ChunkNumber)
		}
		e.logger.ChunkAccepted(f.Filename, f.ChunkNumber, transfer.Buffer.AcceptedCount(), transfer.TotalChunks)
		e.logger.ChunkFingerprinted(f.Filename, f.ChunkNumber, chunker.Fingerprint(f.Data))
		e.maybeCheckpoint(transfer)
		// A freshly accepted chunk settles before being acked. A duplicate
		// delivery skips the wait and is acked immediately, since the sender
		// is already retrying and waiting on it.
		time.Sleep(e.cfg.AckDelay)
	}

	// Acking is idempotent: a duplicate chunk gets the same ack as the
	// first delivery, which is what lets the sender's stop-and-wait retry
	// recover from an ack that was lost in transit rather than a chunk.
	e.sendAck(fromNodeID, f.Filename, f.ChunkNumber)
}

func (e *Engine) sendAck(toNodeID, filename string, chunkNumber int) {
	frame := wire.Frame{
		Type:        wire.TypeBatchAck,
		Filename:    filename,
		ChunkNumber: chunkNumber,
		From:        e.nodeID,
		To:          toNodeID,
	}
	text, err := wire.Encode(frame)
	if err != nil {
		return
	}
	_ = e.adapter.SendWithRetry(context.Background(), text)
}

func (e *Engine) maybeCheckpoint(transfer *session.IncomingTransfer) {
	e.mu.Lock()
	e.newSinceCheckpoint[transfer.Filename]++
	due := e.cfg.CheckpointEveryNChunks > 0 && e.newSinceCheckpoint[transfer.Filename] >= e.cfg.CheckpointEveryNChunks
	if due {
		e.newSinceCheckpoint[transfer.Filename] = 0
	}
	e.mu.Unlock()

	if !due {
		return
	}

	path := filepath.Join(e.cfg.OutputDirectory, "partial_"+transfer.Filename)
	if err := e.writeFile(path, transfer.Buffer.Bytes()); err != nil {
		e.logger.Error(err, "checkpoint write failed")
	}
}

func (e *Engine) handleFileCompletion(fromNodeID string, f wire.Frame) {
	e.mu.Lock()
	transfer, ok := e.transfers[f.Filename]
	e.mu.Unlock()
	if !ok {
		return
	}

	log := e.logger.WithPeer(fromNodeID).WithFile(f.Filename, transfer.FileSize)

	// A sparse buffer still gets its checksum attempted: the gaps are
	// zero-filled, so the MD5 comparison below simply fails on its own
	// rather than needing a separate fail-fast path for incompleteness.
	if missing := transfer.Buffer.Missing(); len(missing) > 0 {
		log.ChunksMissingAtCompletion(f.Filename, missing)
	}

	data := transfer.Buffer.Bytes()
	if transfer.FileSize > 0 && int64(len(data)) > transfer.FileSize {
		data = data[:transfer.FileSize]
	}
	sum := md5.Sum(data)
	actual := hex.EncodeToString(sum[:])

	if actual != f.Checksum {
		err := fmt.Errorf("Checksum verification failed")
		transfer.TransitionTo(session.StateFailed, err.Error())
		log.TransferFailed(f.Filename, err)
		if e.metrics != nil {
			e.metrics.RecordChecksumMismatch()
		}
		e.sendError(fromNodeID, f.Filename, err.Error())
		e.finishFailure(log, f.Filename)
		return
	}

	path := filepath.Join(e.cfg.OutputDirectory, "received_"+f.Filename)
	if err := e.writeFile(path, data); err != nil {
		transfer.TransitionTo(session.StateFailed, err.Error())
		log.TransferFailed(f.Filename, err)
		e.finishFailure(log, f.Filename)
		return
	}

	transfer.TransitionTo(session.StateCompleted, "")
	log.TransferCompleted(f.Filename, transfer.FileSize, transfer.IdleSince())
	if e.events != nil {
		e.events.PublishCompleted(f.Filename, transfer.IdleSince())
	}
	if e.metrics != nil {
		e.metrics.RecordTransferComplete(true, 0)
	}
}

func (e *Engine) finishFailure(log *observability.Logger, filename string) {
	if e.events != nil {
		e.events.PublishFailed(filename, "transfer failed verification")
	}
	if e.metrics != nil {
		e.metrics.RecordTransferComplete(false, 0)
	}
}

func (e *Engine) sendError(toNodeID, filename, message string) {
	frame := wire.Frame{
		Type:     wire.TypeTransferError,
		Filename: filename,
		Message:  message,
		From:     e.nodeID,
		To:       toNodeID,
	}
	text, err := wire.Encode(frame)
	if err != nil {
		return
	}
	_ = e.adapter.SendWithRetry(context.Background(), text)
}

func (e *Engine) writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("receiver: mkdir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("receiver: write: %w", err)
	}
	return nil
}

// Transfers returns a snapshot of the filenames currently tracked, for the
// reliability supervisor's idle-timeout sweep and graceful-shutdown flush.
func (e *Engine) Transfers() map[string]*session.IncomingTransfer {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]*session.IncomingTransfer, len(e.transfers))
	for k, v := range e.transfers {
		out[k] = v
	}
	return out
}

// FlushPartial writes the named transfer's current buffer to disk as a
// partial_ file. The reliability supervisor calls it for idle transfers and,
// once per tracked transfer, on a graceful shutdown that wants to preserve
// whatever has arrived so far.
func (e *Engine) FlushPartial(filename string) error {
	e.mu.Lock()
	transfer, ok := e.transfers[filename]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("receiver: no such transfer %q", filename)
	}
	path := filepath.Join(e.cfg.OutputDirectory, "partial_"+filename)
	return e.writeFile(path, transfer.Buffer.Bytes())
}
