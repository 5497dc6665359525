// Package config holds the per-node tunables for a sender or receiver
// process.
package config

import (
	"time"
)

// Config holds the tunables a mesh node starts with.
type Config struct {
	NodeID string
	Role   string // "sender" or "receiver"

	ChunkSize              int
	AckTimeout             time.Duration
	AckDelay               time.Duration
	ChunkIdleTimeout       time.Duration
	ReconnectCooldown      time.Duration
	MaxReconnectAttempts   int
	ReconnectPause         time.Duration
	SendRetries            int
	InterChunkDelay        time.Duration
	BatchDelay             time.Duration
	StartSettleDelay       time.Duration
	CheckpointEveryNChunks int

	OutputDirectory string
	DatabasePath    string

	ObservAddress string
}

// DefaultConfig returns the literal timings and defaults the protocol was
// specified against.
func DefaultConfig() *Config {
	return &Config{
		Role: "receiver",

		ChunkSize:              100,
		AckTimeout:             30 * time.Second,
		AckDelay:               2 * time.Second,
		ChunkIdleTimeout:       60 * time.Second,
		ReconnectCooldown:      5 * time.Second,
		MaxReconnectAttempts:   3,
		ReconnectPause:         3 * time.Second,
		SendRetries:            3,
		InterChunkDelay:        2 * time.Second,
		BatchDelay:             3 * time.Second,
		StartSettleDelay:       4 * time.Second,
		CheckpointEveryNChunks: 10,

		OutputDirectory: "received_files",
		DatabasePath:    "",
	}
}
