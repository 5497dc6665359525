// Package chunker slices a file into fixed-size chunks for transmission and
// computes the whole-file MD5 digest the protocol uses for end-to-end
// integrity verification.
package chunker

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"
)

// FileInfo describes a file as sliced for transfer.
type FileInfo struct {
	Path        string
	Name        string
	Size        int64
	ChunkSize   int
	TotalChunks int
	Checksum    string // MD5 hex digest, the wire-level integrity check
}

// Inspect opens filePath, computes its MD5 digest and chunk count at
// chunkSize, and returns the resulting FileInfo.
func Inspect(filePath string, chunkSize int) (*FileInfo, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunker: chunk size must be positive")
	}

	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("chunker: open: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("chunker: stat: %w", err)
	}

	hasher := md5.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return nil, fmt.Errorf("chunker: hash: %w", err)
	}

	size := stat.Size()
	totalChunks := int(size) / chunkSize
	if int(size)%chunkSize != 0 {
		totalChunks++
	}
	if totalChunks == 0 {
		totalChunks = 1
	}

	return &FileInfo{
		Path:        filePath,
		Name:        filepath.Base(filePath),
		Size:        size,
		ChunkSize:   chunkSize,
		TotalChunks: totalChunks,
		Checksum:    hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// ReadChunk reads the chunkIndex'th chunk of chunkSize bytes from filePath.
// The final chunk may be shorter than chunkSize.
func ReadChunk(filePath string, chunkIndex, chunkSize int) ([]byte, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("chunker: open: %w", err)
	}
	defer f.Close()

	offset := int64(chunkIndex) * int64(chunkSize)
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("chunker: seek to %d: %w", offset, err)
	}

	buf := make([]byte, chunkSize)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, fmt.Errorf("chunker: read chunk %d: %w", chunkIndex, err)
	}
	return buf[:n], nil
}

// Fingerprint returns a non-authoritative BLAKE3 digest of a chunk's bytes.
// It is used only as an early, diagnostic corruption signal logged by the
// receiver; the protocol's acceptance criterion remains the whole-file MD5
// checksum carried on the file_start/file_completion frames.
func Fingerprint(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
