package chunker

import (
	"os"
	"path/filepath"
	"testing"
)

func TestInspectSmallFile(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "small.bin")

	testData := []byte("hello mesh")
	if err := os.WriteFile(testFile, testData, 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	info, err := Inspect(testFile, 100)
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}

	if info.TotalChunks != 1 {
		t.Errorf("expected 1 chunk, got %d", info.TotalChunks)
	}
	if info.Size != int64(len(testData)) {
		t.Errorf("expected size %d, got %d", len(testData), info.Size)
	}
	if info.Name != "small.bin" {
		t.Errorf("expected name small.bin, got %s", info.Name)
	}
	if info.Checksum == "" || len(info.Checksum) != 32 {
		t.Errorf("expected a 32-char MD5 hex digest, got %q", info.Checksum)
	}
}

func TestInspectMultipleChunks(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "multi.bin")

	chunkSize := 100
	testData := make([]byte, chunkSize*2+chunkSize/2)
	for i := range testData {
		testData[i] = byte(i % 256)
	}
	if err := os.WriteFile(testFile, testData, 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	info, err := Inspect(testFile, chunkSize)
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}

	if info.TotalChunks != 3 {
		t.Errorf("expected 3 chunks, got %d", info.TotalChunks)
	}
}

func TestInspectDeterministic(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "deterministic.bin")

	if err := os.WriteFile(testFile, []byte("deterministic test data"), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	info1, err := Inspect(testFile, 100)
	if err != nil {
		t.Fatalf("first Inspect failed: %v", err)
	}
	info2, err := Inspect(testFile, 100)
	if err != nil {
		t.Fatalf("second Inspect failed: %v", err)
	}

	if info1.Checksum != info2.Checksum {
		t.Error("checksums should be identical for the same file")
	}
}

func TestReadChunk(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "chunks.bin")

	chunkSize := 100
	testData := make([]byte, chunkSize*3)
	for i := range testData {
		testData[i] = byte(i % 256)
	}
	if err := os.WriteFile(testFile, testData, 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	chunk0, err := ReadChunk(testFile, 0, chunkSize)
	if err != nil {
		t.Fatalf("ReadChunk(0) failed: %v", err)
	}
	if len(chunk0) != chunkSize {
		t.Errorf("expected chunk size %d, got %d", chunkSize, len(chunk0))
	}

	chunk1, err := ReadChunk(testFile, 1, chunkSize)
	if err != nil {
		t.Fatalf("ReadChunk(1) failed: %v", err)
	}

	for i := 0; i < chunkSize; i++ {
		if chunk0[i] != testData[i] {
			t.Errorf("chunk 0 byte %d mismatch", i)
			break
		}
		if chunk1[i] != testData[chunkSize+i] {
			t.Errorf("chunk 1 byte %d mismatch", i)
			break
		}
	}
}

func TestInspectEmptyFile(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "empty.bin")

	if err := os.WriteFile(testFile, []byte{}, 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	info, err := Inspect(testFile, 100)
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}

	if info.Size != 0 {
		t.Errorf("expected size 0, got %d", info.Size)
	}
	if info.TotalChunks != 1 {
		t.Errorf("expected 1 chunk for empty file, got %d", info.TotalChunks)
	}
}

func TestInspectFileNotFound(t *testing.T) {
	if _, err := Inspect("/nonexistent/file.bin", 100); err == nil {
		t.Error("expected error for non-existent file")
	}
}

func TestFingerprintIsStableForSameBytes(t *testing.T) {
	a := Fingerprint([]byte("chunk data"))
	b := Fingerprint([]byte("chunk data"))
	if a != b {
		t.Error("fingerprint should be stable for identical input")
	}
	c := Fingerprint([]byte("different data"))
	if a == c {
		t.Error("fingerprint should differ for different input")
	}
}
