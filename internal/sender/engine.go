// Package sender implements the sending half of the stop-and-wait file
// transfer protocol: one outstanding chunk at a time, acknowledged before
// the next is sent, with bounded per-chunk retry and reconnection.
package sender

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/meshxfer/meshxfer/internal/chunker"
	"github.com/meshxfer/meshxfer/internal/config"
	"github.com/meshxfer/meshxfer/internal/events"
	"github.com/meshxfer/meshxfer/internal/meshlink"
	"github.com/meshxfer/meshxfer/internal/observability"
	"github.com/meshxfer/meshxfer/internal/session"
	"github.com/meshxfer/meshxfer/internal/wire"
)

// Engine drives outbound file transfers over an Adapter.
type Engine struct {
	nodeID  string
	cfg     *config.Config
	adapter *meshlink.Adapter
	logger  *observability.Logger
	metrics *observability.Metrics
	events  *events.Publisher
	pacer   *rate.Limiter

	ackMu          sync.Mutex
	ackWake        chan struct{}
	lastAckedBatch int
	ackedFilename  string
}

// New builds a sender engine bound to nodeID, sending over adapter.
func New(nodeID string, cfg *config.Config, adapter *meshlink.Adapter, logger *observability.Logger, metrics *observability.Metrics, pub *events.Publisher) *Engine {
	interval := cfg.BatchDelay
	if interval <= 0 {
		interval = time.Second
	}
	return &Engine{
		nodeID:         nodeID,
		cfg:            cfg,
		adapter:        adapter,
		logger:         logger,
		metrics:        metrics,
		events:         pub,
		pacer:          rate.NewLimiter(rate.Every(interval), 1),
		ackWake:        make(chan struct{}, 1),
		lastAckedBatch: -1,
	}
}

// HandleAck feeds an incoming batch_ack frame to whichever SendFile call is
// currently waiting on it. Acks for a different filename than the transfer
// in flight are ignored; this engine only ever drives one transfer at a
// time, matching the stop-and-wait single-in-flight invariant.
func (e *Engine) HandleAck(f wire.Frame) {
	if f.Type != wire.TypeBatchAck {
		return
	}
	e.ackMu.Lock()
	if f.Filename == e.ackedFilename && f.ChunkNumber > e.lastAckedBatch {
		e.lastAckedBatch = f.ChunkNumber
	}
	e.ackMu.Unlock()

	select {
	case e.ackWake <- struct{}{}:
	default:
	}
}

// SendFile transmits path to targetNode (a specific node id, or "" to
// broadcast), chunk by chunk, waiting for each chunk's ack before sending
// the next.
func (e *Engine) SendFile(ctx context.Context, path, targetNode string) error {
	info, err := chunker.Inspect(path, e.cfg.ChunkSize)
	if err != nil {
		return fmt.Errorf("sender: inspect: %w", err)
	}

	transfer := session.NewOutgoingTransfer(info.Name, targetNode, info.Size, e.cfg.ChunkSize, info.Checksum)

	e.ackMu.Lock()
	e.ackedFilename = info.Name
	e.lastAckedBatch = -1
	e.ackMu.Unlock()

	log := e.logger.WithFile(info.Name, info.Size)
	log.TransferStarted(info.Name, info.Size, info.TotalChunks)
	if e.events != nil {
		e.events.PublishStarted(info.Name, info.Size)
	}
	if e.metrics != nil {
		e.metrics.RecordTransferStart()
	}
	started := time.Now()

	startFrame := wire.Frame{
		Type:        wire.TypeFileStart,
		Filename:    info.Name,
		TotalChunks: info.TotalChunks,
		FileSize:    info.Size,
		Checksum:    info.Checksum,
		BatchSize:   1,
		From:        e.nodeID,
		To:          targetNode,
	}
	if err := e.sendFrame(ctx, startFrame); err != nil {
		transfer.TransitionTo(session.StateFailed, err.Error())
		e.finishFailure(log, info.Name, started, err)
		return err
	}
	time.Sleep(e.cfg.StartSettleDelay)

	for i := 0; i < info.TotalChunks; i++ {
		data, err := chunker.ReadChunk(path, i, e.cfg.ChunkSize)
		if err != nil {
			transfer.TransitionTo(session.StateFailed, err.Error())
			e.finishFailure(log, info.Name, started, err)
			return fmt.Errorf("sender: read chunk %d: %w", i, err)
		}

		if err := e.sendChunkWithRetry(ctx, info.Name, targetNode, i, data, log); err != nil {
			transfer.TransitionTo(session.StateFailed, err.Error())
			e.finishFailure(log, info.Name, started, err)
			return err
		}

		transfer.RecordAck(i)
		if e.metrics != nil {
			e.metrics.RecordChunkSent(len(data))
		}
		if e.events != nil {
			e.events.PublishChunkSent(info.Name, i)
			e.events.PublishProgress(info.Name, float64(i+1)/float64(info.TotalChunks)*100)
		}

		// Batch pacing: the pacer (burst 1, one token per BatchDelay) keeps
		// successive passes of this loop at least BatchDelay apart. It is not
		// a fixed pause after each ack: the first chunk is not delayed, and
		// when a send/ack round already took longer than BatchDelay the
		// next chunk follows without any wait.
		_ = e.pacer.Wait(ctx)
	}

	completionFrame := wire.Frame{
		Type:     wire.TypeFileCompletion,
		Filename: info.Name,
		Checksum: info.Checksum,
		From:     e.nodeID,
		To:       targetNode,
	}
	if err := e.sendFrame(ctx, completionFrame); err != nil {
		transfer.TransitionTo(session.StateFailed, err.Error())
		e.finishFailure(log, info.Name, started, err)
		return err
	}

	transfer.TransitionTo(session.StateCompleted, "")
	log.TransferCompleted(info.Name, info.Size, time.Since(started))
	if e.events != nil {
		e.events.PublishCompleted(info.Name, time.Since(started))
	}
	if e.metrics != nil {
		e.metrics.RecordTransferComplete(true, time.Since(started).Seconds())
	}
	return nil
}

func (e *Engine) finishFailure(log *observability.Logger, filename string, started time.Time, err error) {
	log.TransferFailed(filename, err)
	if e.events != nil {
		e.events.PublishFailed(filename, err.Error())
	}
	if e.metrics != nil {
		e.metrics.RecordTransferComplete(false, time.Since(started).Seconds())
	}
}

func (e *Engine) sendFrame(ctx context.Context, f wire.Frame) error {
	text, err := wire.Encode(f)
	if err != nil {
		return fmt.Errorf("sender: encode: %w", err)
	}
	return e.adapter.SendWithRetry(ctx, text)
}

// sendChunkWithRetry sends one chunk and waits for its ack, retrying up to
// cfg.SendRetries times with a reconnect attempt between tries if the ack
// never arrives within cfg.AckTimeout.
func (e *Engine) sendChunkWithRetry(ctx context.Context, filename, target string, chunkNumber int, data []byte, log *observability.Logger) error {
	maxAttempts := e.cfg.SendRetries
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		frame := wire.Frame{
			Type:        wire.TypeFileChunk,
			Filename:    filename,
			ChunkNumber: chunkNumber,
			Data:        data,
			From:        e.nodeID,
			To:          target,
		}
		if err := e.sendFrame(ctx, frame); err != nil {
			if attempt == maxAttempts {
				return fmt.Errorf("sender: chunk %d send exhausted: %w", chunkNumber, err)
			}
			continue
		}

		// Per-chunk send delay: let the radio settle before expecting an
		// ack. Applied after each successful send; a failed send goes
		// straight to the next attempt.
		time.Sleep(e.cfg.InterChunkDelay)

		if e.waitForAck(chunkNumber, e.cfg.AckTimeout) {
			return nil
		}

		if e.metrics != nil {
			e.metrics.RecordChunkRetransmit("ack_timeout")
		}
		log.ChunkRetransmitted(filename, chunkNumber, attempt)

		if attempt < maxAttempts {
			_ = e.adapter.Reconnect(ctx)
		}
	}

	return fmt.Errorf("sender: chunk %d never acknowledged after %d attempts", chunkNumber, maxAttempts)
}

// waitForAck blocks until lastAckedBatch reaches at least chunkNumber or
// timeout elapses. It re-checks the latch on every wake (including spurious
// ones) rather than trusting the wake alone, since a wake for an older ack
// can race with a timer tick.
func (e *Engine) waitForAck(chunkNumber int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		e.ackMu.Lock()
		reached := e.lastAckedBatch >= chunkNumber
		e.ackMu.Unlock()
		if reached {
			return true
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		wait := remaining
		if wait > time.Second {
			wait = time.Second
		}

		select {
		case <-e.ackWake:
		case <-time.After(wait):
		}
	}
}
