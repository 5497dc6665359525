// Package observability carries the ambient logging, metrics, tracing and
// health-check surface shared by the sender and receiver consoles.
package observability

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog for structured logging.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates a new structured logger bound to a node id and role.
func NewLogger(nodeID, role string, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}

	zerolog.TimeFieldFormat = time.RFC3339

	logger := zerolog.New(output).With().
		Timestamp().
		Str("node_id", nodeID).
		Str("role", role).
		Str("host", getHostname()).
		Logger()

	return &Logger{logger: logger}
}

// WithPeer adds peer_id context to the logger.
func (l *Logger) WithPeer(peerID string) *Logger {
	return &Logger{logger: l.logger.With().Str("peer_id", peerID).Logger()}
}

// WithFile adds file context to the logger.
func (l *Logger) WithFile(filename string, fileSize int64) *Logger {
	return &Logger{
		logger: l.logger.With().
			Str("filename", filename).
			Int64("file_size", fileSize).
			Logger(),
	}
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string) { l.logger.Debug().Msg(msg) }

// Info logs an info message.
func (l *Logger) Info(msg string) { l.logger.Info().Msg(msg) }

// Warn logs a warning message.
func (l *Logger) Warn(msg string) { l.logger.Warn().Msg(msg) }

// Error logs an error message.
func (l *Logger) Error(err error, msg string) { l.logger.Error().Err(err).Msg(msg) }

// TransferStarted logs transfer start.
func (l *Logger) TransferStarted(filename string, fileSize int64, totalChunks int) {
	l.logger.Info().
		Str("filename", filename).
		Int64("file_size", fileSize).
		Int("total_chunks", totalChunks).
		Msg("transfer started")
}

// ChunkAcked logs a chunk acknowledgment observed by the sender.
func (l *Logger) ChunkAcked(filename string, chunkNumber int) {
	l.logger.Debug().
		Str("filename", filename).
		Int("chunk_number", chunkNumber).
		Msg("chunk acknowledged")
}

// ChunkRetransmitted logs a chunk retry.
func (l *Logger) ChunkRetransmitted(filename string, chunkNumber, attempt int) {
	l.logger.Warn().
		Str("filename", filename).
		Int("chunk_number", chunkNumber).
		Int("attempt", attempt).
		Msg("retransmitting chunk")
}

// ChunkAccepted logs a chunk accepted by the receiver.
func (l *Logger) ChunkAccepted(filename string, chunkNumber, received, total int) {
	l.logger.Debug().
		Str("filename", filename).
		Int("chunk_number", chunkNumber).
		Int("received", received).
		Int("total_chunks", total).
		Msg("chunk accepted")
}

// ChunkFingerprinted logs a chunk's diagnostic BLAKE3 fingerprint at debug
// level, alongside the chunk it was computed from. This is a non-authoritative
// corruption signal; the protocol's acceptance criterion stays the whole-file
// MD5 checksum.
func (l *Logger) ChunkFingerprinted(filename string, chunkNumber int, fingerprint string) {
	l.logger.Debug().
		Str("filename", filename).
		Int("chunk_number", chunkNumber).
		Str("fingerprint", fingerprint).
		Msg("chunk fingerprinted")
}

// TransferCompleted logs a verified, completed transfer.
func (l *Logger) TransferCompleted(filename string, fileSize int64, duration time.Duration) {
	l.logger.Info().
		Str("filename", filename).
		Int64("file_size", fileSize).
		Float64("duration_seconds", duration.Seconds()).
		Msg("transfer completed")
}

// TransferFailed logs a transfer failure.
func (l *Logger) TransferFailed(filename string, err error) {
	l.logger.Error().
		Str("filename", filename).
		Err(err).
		Msg("transfer failed")
}

// ChunksMissingAtCompletion logs that a file_completion frame arrived while
// chunks were still missing from the reassembly buffer.
func (l *Logger) ChunksMissingAtCompletion(filename string, missing []int) {
	l.logger.Warn().
		Str("filename", filename).
		Ints("missing_chunks", missing).
		Msg("file_completion received with chunks still missing")
}

// ReconnectAttempted logs a reconnect attempt by the transport adapter.
func (l *Logger) ReconnectAttempted(attempt, maxAttempts int) {
	l.logger.Warn().
		Int("attempt", attempt).
		Int("max_attempts", maxAttempts).
		Msg("attempting reconnect")
}

func getHostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}
