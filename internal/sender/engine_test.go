package sender

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/meshxfer/meshxfer/internal/config"
	"github.com/meshxfer/meshxfer/internal/meshlink"
	"github.com/meshxfer/meshxfer/internal/observability"
	"github.com/meshxfer/meshxfer/internal/receiver"
	"github.com/meshxfer/meshxfer/internal/registry"
	"github.com/meshxfer/meshxfer/internal/wire"
)

// wireSendToReceiver links a sender Engine to a receiver Engine over a pair
// of SimRadios, routing batch_ack frames from the receiver back into the
// sender's HandleAck and every other inbound frame into the receiver's
// Dispatch. This mirrors how cmd/sender and cmd/receiver route decoded
// frames in production.
func wireSendToReceiver(t *testing.T, cfg *config.Config) (*Engine, *receiver.Engine, string) {
	t.Helper()
	outDir := t.TempDir()
	rcfg := *cfg
	rcfg.OutputDirectory = outDir

	senderRadio := meshlink.NewSimRadio("sender-1")
	receiverRadio := meshlink.NewSimRadio("receiver-1")
	meshlink.Link(senderRadio, receiverRadio)

	ctx := context.Background()
	if err := senderRadio.Open(ctx); err != nil {
		t.Fatalf("open sender radio: %v", err)
	}
	if err := receiverRadio.Open(ctx); err != nil {
		t.Fatalf("open receiver radio: %v", err)
	}

	senderAdapter := meshlink.NewAdapter(senderRadio, meshlink.DefaultAdapterConfig(), nil)
	receiverAdapter := meshlink.NewAdapter(receiverRadio, meshlink.DefaultAdapterConfig(), nil)

	logger := observability.NewLogger("sender-1", "sender", os.Stderr)
	rlogger := observability.NewLogger("receiver-1", "receiver", os.Stderr)

	senderEngine := New("sender-1", cfg, senderAdapter, logger, observability.NewMetrics(), nil)
	receiverEngine := receiver.New("receiver-1", &rcfg, receiverAdapter, registry.New("receiver-1"), rlogger, observability.NewMetrics(), nil)

	receiverRadio.Subscribe(func(from, text string) {
		f, err := wire.Decode(text)
		if err != nil {
			return
		}
		receiverEngine.Dispatch(f, from)
	})
	senderRadio.Subscribe(func(from, text string) {
		f, err := wire.Decode(text)
		if err != nil {
			return
		}
		senderEngine.HandleAck(f)
	})

	return senderEngine, receiverEngine, outDir
}

func fastTestConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.StartSettleDelay = time.Millisecond
	cfg.InterChunkDelay = time.Millisecond
	cfg.BatchDelay = time.Millisecond
	cfg.AckTimeout = 2 * time.Second
	cfg.ChunkSize = 8
	cfg.AckDelay = time.Millisecond
	return cfg
}

func TestSendFileDeliversWholeFile(t *testing.T) {
	cfg := fastTestConfig()
	senderEngine, _, outDir := wireSendToReceiver(t, cfg)

	srcDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "payload.txt")
	content := []byte("the quick brown fox jumps over the lazy dog, twice over")
	if err := os.WriteFile(srcPath, content, 0o644); err != nil {
		t.Fatalf("write source file: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := senderEngine.SendFile(ctx, srcPath, "receiver-1"); err != nil {
		t.Fatalf("SendFile failed: %v", err)
	}

	out, err := os.ReadFile(filepath.Join(outDir, "received_payload.txt"))
	if err != nil {
		t.Fatalf("expected receiver to have written the file: %v", err)
	}
	if string(out) != string(content) {
		t.Fatalf("content mismatch: got %q want %q", out, content)
	}
}

func TestSendFileSingleByteFile(t *testing.T) {
	cfg := fastTestConfig()
	senderEngine, _, outDir := wireSendToReceiver(t, cfg)

	srcDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "tiny.bin")
	if err := os.WriteFile(srcPath, []byte("X"), 0o644); err != nil {
		t.Fatalf("write source file: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := senderEngine.SendFile(ctx, srcPath, "receiver-1"); err != nil {
		t.Fatalf("SendFile failed: %v", err)
	}

	out, err := os.ReadFile(filepath.Join(outDir, "received_tiny.bin"))
	if err != nil {
		t.Fatalf("expected receiver to have written the file: %v", err)
	}
	if string(out) != "X" {
		t.Fatalf("content mismatch: got %q", out)
	}
}

func TestWaitForAckTimesOutWithoutAck(t *testing.T) {
	cfg := fastTestConfig()
	cfg.AckTimeout = 50 * time.Millisecond

	radio := meshlink.NewSimRadio("sender-1")
	_ = radio.Open(context.Background())
	adapter := meshlink.NewAdapter(radio, meshlink.DefaultAdapterConfig(), nil)
	logger := observability.NewLogger("sender-1", "sender", os.Stderr)
	e := New("sender-1", cfg, adapter, logger, observability.NewMetrics(), nil)

	if e.waitForAck(0, 50*time.Millisecond) {
		t.Fatal("expected waitForAck to time out when no ack arrives")
	}
}

func TestHandleAckIgnoresOtherFilenames(t *testing.T) {
	cfg := fastTestConfig()
	radio := meshlink.NewSimRadio("sender-1")
	adapter := meshlink.NewAdapter(radio, meshlink.DefaultAdapterConfig(), nil)
	logger := observability.NewLogger("sender-1", "sender", os.Stderr)
	e := New("sender-1", cfg, adapter, logger, observability.NewMetrics(), nil)
	e.ackedFilename = "expected.bin"

	e.HandleAck(wire.Frame{Type: wire.TypeBatchAck, Filename: "other.bin", ChunkNumber: 5})
	if e.waitForAck(5, 10*time.Millisecond) {
		t.Fatal("ack for a different filename should not satisfy waitForAck")
	}

	e.HandleAck(wire.Frame{Type: wire.TypeBatchAck, Filename: "expected.bin", ChunkNumber: 5})
	if !e.waitForAck(5, time.Second) {
		t.Fatal("ack for the in-flight filename should satisfy waitForAck")
	}
}
