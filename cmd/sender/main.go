// Command sender runs the mesh file-transfer sender console: a thin REPL
// over the sender engine, connecting to a radio and driving file transfers
// on operator command.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/meshxfer/meshxfer/internal/config"
	"github.com/meshxfer/meshxfer/internal/events"
	"github.com/meshxfer/meshxfer/internal/meshlink"
	"github.com/meshxfer/meshxfer/internal/observability"
	"github.com/meshxfer/meshxfer/internal/persistence"
	"github.com/meshxfer/meshxfer/internal/registry"
	"github.com/meshxfer/meshxfer/internal/sender"
	"github.com/meshxfer/meshxfer/internal/validation"
	"github.com/meshxfer/meshxfer/internal/wire"
)

func main() {
	nodeID := flag.String("node-id", "", "this node's identifier (required)")
	dbPath := flag.String("db", "", "optional sqlite path for transfer/peer history")
	observAddr := flag.String("observ-addr", "", "optional loopback address to serve /metrics and /healthz")
	flag.Parse()

	if *nodeID == "" {
		fmt.Fprintln(os.Stderr, "sender: -node-id is required")
		os.Exit(1)
	}

	cfg := config.DefaultConfig()
	cfg.NodeID = *nodeID
	cfg.Role = "sender"
	cfg.ObservAddress = *observAddr
	if *dbPath != "" {
		cfg.DatabasePath = *dbPath
	}

	logger := observability.NewLogger(cfg.NodeID, cfg.Role, os.Stdout)
	metrics := observability.NewMetrics()
	pub := events.NewPublisher(32)
	reg := registry.New(cfg.NodeID)

	var store *persistence.Store
	if cfg.DatabasePath != "" {
		var err error
		store, err = persistence.Open(cfg.DatabasePath)
		if err != nil {
			logger.Error(err, "failed to open persistence store, continuing without history")
		} else {
			defer store.Close()
		}
	}

	shutdownTracing, err := observability.InitTracing(context.Background(), "meshxfer-sender")
	if err != nil {
		logger.Error(err, "tracing init failed, continuing without it")
	} else {
		defer shutdownTracing(context.Background())
	}

	radio := meshlink.NewSimRadio(cfg.NodeID)
	adapter := meshlink.NewAdapter(radio, meshlink.DefaultAdapterConfig(), logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := adapter.Open(ctx); err != nil {
		logger.Error(err, "failed to open radio link")
		os.Exit(1)
	}
	defer adapter.Close()

	senderEngine := sender.New(cfg.NodeID, cfg, adapter, logger, metrics, pub)

	adapter.Subscribe(func(fromNodeID, text string) {
		handleInbound(senderEngine, reg, cfg, fromNodeID, text)
	})

	if *observAddr != "" {
		if err := validation.ValidateAddr(*observAddr); err != nil {
			logger.Error(err, "invalid -observ-addr, skipping observability server")
		} else {
			go serveObservability(*observAddr, metrics, adapter, store)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nInterrupt received, exiting...")
		cancel()
		os.Exit(0)
	}()

	runConsole(ctx, senderEngine, reg, adapter, cfg.NodeID)
}

// handleInbound decodes and routes one inbound frame: batch_acks feed the
// sender engine's ack latch, announce/discover feed the peer registry.
// Malformed frames are dropped silently, matching the wire codec's contract.
func handleInbound(senderEngine *sender.Engine, reg *registry.Registry, cfg *config.Config, fromNodeID, text string) {
	f, err := wire.Decode(text)
	if err != nil {
		return
	}
	switch f.Type {
	case wire.TypeBatchAck:
		senderEngine.HandleAck(f)
	case wire.TypeAnnounce:
		reg.HandleAnnounce(f)
	case wire.TypeDiscover:
		reg.HandleDiscover(f)
	}
}

func runConsole(ctx context.Context, senderEngine *sender.Engine, reg *registry.Registry, adapter *meshlink.Adapter, nodeID string) {
	printHelp()
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\nEnter command: ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "/send":
			if len(fields) != 2 {
				fmt.Println("Invalid format. Use: /send <filepath>")
				continue
			}
			if err := senderEngine.SendFile(ctx, fields[1], ""); err != nil {
				fmt.Printf("send failed: %v\n", err)
			}
		case "/sendto":
			if len(fields) != 3 {
				fmt.Println("Invalid format. Use: /sendto <filepath> <node_id>")
				continue
			}
			if err := senderEngine.SendFile(ctx, fields[1], fields[2]); err != nil {
				fmt.Printf("send failed: %v\n", err)
			}
		case "/discover":
			sendDiscover(ctx, adapter, nodeID)
			fmt.Println("Sent discovery request, waiting for responses...")
		case "/nodes":
			nodes := reg.FormatKnownNodes()
			if len(nodes) == 0 {
				fmt.Println("\nNo nodes discovered yet. Try running /discover first.")
				continue
			}
			fmt.Println("\nKnown nodes:")
			for _, n := range nodes {
				fmt.Println("  " + n)
			}
		case "/announce":
			sendAnnounce(ctx, adapter, nodeID, "sender")
		case "/quit":
			fmt.Println("\nExiting...")
			return
		default:
			fmt.Println("Invalid command. Available commands:")
			printHelp()
		}
	}
}

func sendDiscover(ctx context.Context, adapter *meshlink.Adapter, nodeID string) {
	text, err := wire.Encode(wire.Frame{Type: wire.TypeDiscover, NodeID: nodeID, From: nodeID})
	if err != nil {
		return
	}
	if err := adapter.SendWithRetry(ctx, text); err != nil {
		fmt.Println("Failed to send discovery request")
	}
}

func sendAnnounce(ctx context.Context, adapter *meshlink.Adapter, nodeID, role string) {
	text, err := wire.Encode(wire.Frame{
		Type:   wire.TypeAnnounce,
		NodeID: nodeID,
		Role:   role,
		Time:   time.Now().Unix(),
		From:   nodeID,
	})
	if err != nil {
		return
	}
	if err := adapter.SendWithRetry(ctx, text); err != nil {
		fmt.Println("Failed to announce presence")
	}
}

func printHelp() {
	fmt.Println("\nFile Transfer Commands:")
	fmt.Println("  /send <filepath>              - Send file to all nodes")
	fmt.Println("  /sendto <filepath> <node_id>  - Send file to specific node")
	fmt.Println("  /discover                     - Discover other nodes")
	fmt.Println("  /nodes                        - List known nodes")
	fmt.Println("  /announce                     - Announce presence")
	fmt.Println("  /quit                         - Exit")
}

func serveObservability(addr string, metrics *observability.Metrics, adapter *meshlink.Adapter, store *persistence.Store) {
	hc := observability.NewHealthChecker("meshxfer-sender")
	hc.RegisterCheck("link", observability.LinkCheck(func() bool { return true }))
	if store != nil {
		hc.RegisterCheck("database", observability.DatabaseCheck(store.Ping))
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", hc.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	_ = srv.ListenAndServe()
}
