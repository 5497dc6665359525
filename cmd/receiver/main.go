// Command receiver runs the mesh file-transfer receiver console: it opens a
// radio link, dispatches inbound frames to the receiver engine, and runs the
// reliability supervisor in the background for idle-timeout detection and a
// graceful, partial-save shutdown.
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
	"github.com/meshxfer/meshxfer/internal/receiver"
	"github.com/meshxfer/meshxfer/internal/registry"
	"github.com/meshxfer/meshxfer/internal/reliability"
	"github.com/meshxfer/meshxfer/internal/validation"
	"github.com/meshxfer/meshxfer/internal/wire"
)

func main() {
	nodeID := flag.String("node-id", "", "this node's identifier (required)")
	outputDir := flag.String("output-dir", "", "directory received files are written to")
	dbPath := flag.String("db", "", "optional sqlite path for transfer/peer history")
	observAddr := flag.String("observ-addr", "", "optional loopback address to serve /metrics and /healthz")
	flag.Parse()

	if *nodeID == "" {
		fmt.Fprintln(os.Stderr, "receiver: -node-id is required")
		os.Exit(1)
	}

	cfg := config.DefaultConfig()
	cfg.NodeID = *nodeID
	cfg.Role = "receiver"
	cfg.ObservAddress = *observAddr
	if *outputDir != "" {
		cfg.OutputDirectory = *outputDir
	}
	if *dbPath != "" {
		cfg.DatabasePath = *dbPath
	}
	if err := os.MkdirAll(cfg.OutputDirectory, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "receiver: cannot create output directory: %v\n", err)
		os.Exit(1)
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

	shutdownTracing, err := observability.InitTracing(context.Background(), "meshxfer-receiver")
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

	recvEngine := receiver.New(cfg.NodeID, cfg, adapter, reg, logger, metrics, pub)

	adapter.Subscribe(func(fromNodeID, text string) {
		f, err := wire.Decode(text)
		if err != nil {
			return
		}
		recvEngine.Dispatch(f, fromNodeID)
	})

	supervisor := reliability.New(cfg, adapter, recvEngine, logger, metrics)
	go supervisor.Run(ctx)

	if *observAddr != "" {
		if err := validation.ValidateAddr(*observAddr); err != nil {
			logger.Error(err, "invalid -observ-addr, skipping observability server")
		} else {
			go serveObservability(*observAddr, metrics, recvEngine, store)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nInterrupt received, saving partial files...")
		supervisor.Shutdown()
		fmt.Println("Exiting...")
		cancel()
		os.Exit(0)
	}()

	runConsole(ctx, adapter, reg, cfg.NodeID)
}

func runConsole(ctx context.Context, adapter *meshlink.Adapter, reg *registry.Registry, nodeID string) {
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
		case "/nodes":
			nodes := reg.FormatKnownNodes()
			if len(nodes) == 0 {
				fmt.Println("\nNo nodes discovered yet.")
				continue
			}
			fmt.Println("\nKnown nodes:")
			for _, n := range nodes {
				fmt.Println("  " + n)
			}
		case "/announce":
			sendAnnounce(ctx, adapter, nodeID, "receiver")
		case "/quit":
			fmt.Println("\nExiting...")
			return
		default:
			fmt.Println("Invalid command. Available commands:")
			printHelp()
		}
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
	fmt.Println("\nReceiver Commands:")
	fmt.Println("  /nodes     - List known nodes")
	fmt.Println("  /announce  - Announce presence")
	fmt.Println("  /quit      - Exit")
}

func serveObservability(addr string, metrics *observability.Metrics, recvEngine *receiver.Engine, store *persistence.Store) {
	hc := observability.NewHealthChecker("meshxfer-receiver")
	hc.RegisterCheck("link", observability.LinkCheck(func() bool { return true }))
	hc.RegisterCheck("active_transfers", observability.ActiveTransfersCheck(func() int { return len(recvEngine.Transfers()) }, 10))
	if store != nil {
		hc.RegisterCheck("database", observability.DatabaseCheck(store.Ping))
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", hc.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	_ = srv.ListenAndServe()
}
