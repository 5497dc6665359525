package receiver

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/meshxfer/meshxfer/internal/config"
	"github.com/meshxfer/meshxfer/internal/events"
	"github.com/meshxfer/meshxfer/internal/meshlink"
	"github.com/meshxfer/meshxfer/internal/observability"
	"github.com/meshxfer/meshxfer/internal/registry"
	"github.com/meshxfer/meshxfer/internal/wire"
)

func testEngine(t *testing.T) (*Engine, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.OutputDirectory = dir
	cfg.CheckpointEveryNChunks = 2
	cfg.AckDelay = time.Millisecond

	radio := meshlink.NewSimRadio("receiver-1")
	_ = radio.Open(context.Background())
	adapter := meshlink.NewAdapter(radio, meshlink.DefaultAdapterConfig(), nil)
	logger := observability.NewLogger("receiver-1", "receiver", os.Stderr)

	e := New("receiver-1", cfg, adapter, registry.New("receiver-1"), logger, observability.NewMetrics(), events.NewPublisher(8))
	return e, dir
}

func TestDispatchDropsMistargetedFrames(t *testing.T) {
	e, _ := testEngine(t)
	e.Dispatch(wire.Frame{
		Type:     wire.TypeFileStart,
		Filename: "x.bin",
		To:       "someone-else",
	}, "sender-1")
	if len(e.Transfers()) != 0 {
		t.Fatal("expected a frame addressed to another node to be dropped")
	}
}

func TestReceiveSmallFileEndToEnd(t *testing.T) {
	e, dir := testEngine(t)

	data := []byte("hello mesh world, this is a small test payload")
	sum := md5.Sum(data)
	checksum := hex.EncodeToString(sum[:])

	e.Dispatch(wire.Frame{
		Type:        wire.TypeFileStart,
		Filename:    "greeting.txt",
		TotalChunks: 1,
		FileSize:    int64(len(data)),
		Checksum:    checksum,
		From:        "sender-1",
		To:          "receiver-1",
	}, "sender-1")

	e.Dispatch(wire.Frame{
		Type:        wire.TypeFileChunk,
		Filename:    "greeting.txt",
		ChunkNumber: 0,
		Data:        data,
		From:        "sender-1",
		To:          "receiver-1",
	}, "sender-1")

	e.Dispatch(wire.Frame{
		Type:     wire.TypeFileCompletion,
		Filename: "greeting.txt",
		Checksum: checksum,
		From:     "sender-1",
		To:       "receiver-1",
	}, "sender-1")

	out, err := os.ReadFile(filepath.Join(dir, "received_greeting.txt"))
	if err != nil {
		t.Fatalf("expected output file to exist: %v", err)
	}
	if string(out) != string(data) {
		t.Fatalf("received content mismatch: got %q", out)
	}
}

func TestReceiveDuplicateChunkIsIdempotent(t *testing.T) {
	e, _ := testEngine(t)

	data := make([]byte, e.cfg.ChunkSize)
	for i := range data {
		data[i] = byte(i)
	}

	e.Dispatch(wire.Frame{
		Type: wire.TypeFileStart, Filename: "f.bin", TotalChunks: 2,
		FileSize: int64(e.cfg.ChunkSize * 2), From: "sender-1", To: "receiver-1",
	}, "sender-1")
	chunk := wire.Frame{Type: wire.TypeFileChunk, Filename: "f.bin", ChunkNumber: 0, Data: data, From: "sender-1", To: "receiver-1"}
	e.Dispatch(chunk, "sender-1")
	e.Dispatch(chunk, "sender-1")
	e.Dispatch(chunk, "sender-1")

	transfer, ok := e.Transfers()["f.bin"]
	if !ok {
		t.Fatal("expected transfer to be tracked")
	}
	if transfer.Buffer.AcceptedCount() != 1 {
		t.Fatalf("expected exactly one accepted chunk despite duplicates, got %d", transfer.Buffer.AcceptedCount())
	}
}

func TestChecksumMismatchDoesNotWriteFinalFile(t *testing.T) {
	e, dir := testEngine(t)
	data := []byte("actual content")

	e.Dispatch(wire.Frame{
		Type: wire.TypeFileStart, Filename: "bad.bin", TotalChunks: 1,
		FileSize: int64(len(data)), Checksum: "0000000000000000000000000000000", From: "sender-1", To: "receiver-1",
	}, "sender-1")
	e.Dispatch(wire.Frame{
		Type: wire.TypeFileChunk, Filename: "bad.bin", ChunkNumber: 0, Data: data, From: "sender-1", To: "receiver-1",
	}, "sender-1")
	e.Dispatch(wire.Frame{
		Type: wire.TypeFileCompletion, Filename: "bad.bin", Checksum: "0000000000000000000000000000000", From: "sender-1", To: "receiver-1",
	}, "sender-1")

	if _, err := os.Stat(filepath.Join(dir, "received_bad.bin")); err == nil {
		t.Fatal("did not expect a final file to be written on checksum mismatch")
	}
}

func TestCheckpointWritesPartialFile(t *testing.T) {
	e, dir := testEngine(t)
	chunkSize := e.cfg.ChunkSize

	e.Dispatch(wire.Frame{
		Type: wire.TypeFileStart, Filename: "big.bin", TotalChunks: 4,
		FileSize: int64(chunkSize * 4), From: "sender-1", To: "receiver-1",
	}, "sender-1")
	for i := 0; i < 2; i++ {
		e.Dispatch(wire.Frame{
			Type: wire.TypeFileChunk, Filename: "big.bin", ChunkNumber: i,
			Data: make([]byte, chunkSize), From: "sender-1", To: "receiver-1",
		}, "sender-1")
	}

	if _, err := os.Stat(filepath.Join(dir, "partial_big.bin")); err != nil {
		t.Fatalf("expected a checkpoint file after %d chunks: %v", e.cfg.CheckpointEveryNChunks, err)
	}
}

func TestHandleDiscoverRegistersPeer(t *testing.T) {
	e, _ := testEngine(t)
	e.Dispatch(wire.Frame{Type: wire.TypeDiscover, NodeID: "sender-1", From: "sender-1", To: "receiver-1"}, "sender-1")

	if _, ok := e.reg.Get("sender-1"); !ok {
		t.Fatal("expected discover to register the peer")
	}
}

func TestIncompleteCompletionMarksTransferFailed(t *testing.T) {
	e, _ := testEngine(t)
	e.Dispatch(wire.Frame{
		Type: wire.TypeFileStart, Filename: "partial-only.bin", TotalChunks: 3,
		FileSize: int64(e.cfg.ChunkSize * 3), From: "sender-1", To: "receiver-1",
	}, "sender-1")
	e.Dispatch(wire.Frame{
		Type: wire.TypeFileChunk, Filename: "partial-only.bin", ChunkNumber: 0,
		Data: make([]byte, e.cfg.ChunkSize), From: "sender-1", To: "receiver-1",
	}, "sender-1")
	e.Dispatch(wire.Frame{
		Type: wire.TypeFileCompletion, Filename: "partial-only.bin", Checksum: "deadbeef", From: "sender-1", To: "receiver-1",
	}, "sender-1")

	transfer := e.Transfers()["partial-only.bin"]
	if transfer.State().String() != "FAILED" {
		t.Fatalf("expected transfer to be marked FAILED, got %s", transfer.State())
	}
}
