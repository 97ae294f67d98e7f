package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oxidb/oxidb/pkg/auth"
	"github.com/oxidb/oxidb/pkg/blob"
	"github.com/oxidb/oxidb/pkg/collection"
	"github.com/oxidb/oxidb/pkg/consensus"
	"github.com/oxidb/oxidb/pkg/dispatcher"
	"github.com/oxidb/oxidb/pkg/health"
	"github.com/oxidb/oxidb/pkg/log"
	"github.com/oxidb/oxidb/pkg/metrics"
	"github.com/oxidb/oxidb/pkg/transport"
)

var (
	// Version information (set via ldflags during build)
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "oxidb",
	Short:   "OxiDB - an embeddable, document-oriented database with an optional networked server mode",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("oxidb version %s\nCommit: %s\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	serveCmd.Flags().String("data-dir", "./data", "Directory holding collections, indexes, and the user store")
	serveCmd.Flags().String("addr", "127.0.0.1:7700", "Address the wire-protocol server listens on")
	serveCmd.Flags().String("io-model", "parallel", "Server I/O backend: parallel (goroutine-per-connection) or cooperative (errgroup-coordinated)")
	serveCmd.Flags().String("tls-cert", "", "TLS certificate file (enables TLS when set with --tls-key)")
	serveCmd.Flags().String("tls-key", "", "TLS private key file")
	serveCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address the metrics/health HTTP server listens on")
	serveCmd.Flags().Bool("cluster", false, "Bootstrap a single-node Raft cluster and route mutating commands through it")
	serveCmd.Flags().String("node-id", "node-1", "Raft node ID (only used with --cluster)")
	serveCmd.Flags().String("raft-addr", "127.0.0.1:7800", "Raft transport bind address (only used with --cluster)")
	rootCmd.AddCommand(serveCmd)

	createUserCmd.Flags().String("data-dir", "./data", "Directory holding the user store")
	createUserCmd.Flags().String("username", "", "Username to create")
	createUserCmd.Flags().String("password", "", "Password for the new user")
	createUserCmd.Flags().String("role", "read", "Role for the new user: admin, read_write, or read")
	_ = createUserCmd.MarkFlagRequired("username")
	_ = createUserCmd.MarkFlagRequired("password")
	rootCmd.AddCommand(createUserCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the OxiDB wire-protocol server",
	Long: `serve starts the OxiDB engine (storage, indexes, collections, blobs)
behind the length-prefixed JSON wire protocol, with SCRAM-SHA-256
authentication and RBAC gating every command. With --cluster it bootstraps
a single-node Raft cluster and routes every mutating command through the
consensus adapter instead of applying it directly.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	addr, _ := cmd.Flags().GetString("addr")
	ioModel, _ := cmd.Flags().GetString("io-model")
	tlsCert, _ := cmd.Flags().GetString("tls-cert")
	tlsKey, _ := cmd.Flags().GetString("tls-key")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	clustered, _ := cmd.Flags().GetBool("cluster")
	nodeID, _ := cmd.Flags().GetString("node-id")
	raftAddr, _ := cmd.Flags().GetString("raft-addr")

	fmt.Println("Starting OxiDB...")
	fmt.Printf("  Data directory: %s\n", dataDir)
	fmt.Printf("  Listen address: %s\n", addr)
	fmt.Printf("  I/O model:      %s\n", ioModel)

	manager := collection.NewManager(dataDir)
	defer manager.CloseAll()

	blobs := blob.NewStore(dataDir)

	users, err := auth.OpenStore(dataDir)
	if err != nil {
		return fmt.Errorf("open user store: %w", err)
	}

	var node *consensus.Node
	if clustered {
		raftDir := dataDir + "/_raft"
		if err := os.MkdirAll(raftDir, 0o755); err != nil {
			return fmt.Errorf("create raft data directory: %w", err)
		}
		node, err = consensus.Bootstrap(consensus.Config{
			NodeID:   nodeID,
			BindAddr: raftAddr,
			DataDir:  raftDir,
		}, manager, blobs)
		if err != nil {
			return fmt.Errorf("bootstrap raft cluster: %w", err)
		}
		fmt.Printf("  Cluster:        single-node (node %s, raft on %s)\n", nodeID, raftAddr)
	} else {
		fmt.Println("  Cluster:        standalone (no consensus)")
	}

	d := dispatcher.New(manager, blobs, users, node)

	var tlsConfig *tls.Config
	if tlsCert != "" && tlsKey != "" {
		cert, err := tls.LoadX509KeyPair(tlsCert, tlsKey)
		if err != nil {
			return fmt.Errorf("load TLS key pair: %w", err)
		}
		tlsConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
		fmt.Println("  TLS:            enabled")
	} else {
		fmt.Println("  TLS:            disabled")
	}

	serverCfg := transport.ServerConfig{Addr: addr, TLSConfig: tlsConfig}
	handle := newConnHandler(d)

	var srv interface {
		Serve(ctx context.Context) error
	}
	switch ioModel {
	case "cooperative":
		srv = transport.NewCooperativeServer(serverCfg, handle)
	case "parallel", "":
		srv = transport.NewParallelServer(serverCfg, handle)
	default:
		return fmt.Errorf("unknown --io-model %q (want parallel or cooperative)", ioModel)
	}

	collector := metrics.NewCollector(manager, blobs, node)
	collector.Start()
	defer collector.Stop()

	metrics.SetVersion(Version)
	metrics.RegisterComponent("storage", true, "ready")
	metrics.RegisterComponent("transport", false, "starting")

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metrics.Handler())
	metricsMux.Handle("/health", metrics.HealthHandler())
	metricsMux.Handle("/ready", metrics.ReadyHandler())
	metricsMux.Handle("/live", metrics.LivenessHandler())
	metricsSrv := &http.Server{Addr: metricsAddr, Handler: metricsMux}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Logger.Error().Err(err).Msg("metrics server error")
		}
	}()
	fmt.Printf("  Metrics:        http://%s/metrics\n", metricsAddr)
	fmt.Printf("  Health:         http://%s/health\n", metricsAddr)
	fmt.Printf("  Readiness:      http://%s/ready\n", metricsAddr)

	errCh := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := srv.Serve(ctx); err != nil {
			errCh <- err
		}
	}()

	if err := health.WaitForServer(ctx, addr, 5*time.Second); err != nil {
		return fmt.Errorf("server did not come up: %w", err)
	}
	metrics.RegisterComponent("transport", true, "ready")
	fmt.Println()
	fmt.Println("OxiDB is running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		fmt.Println("\nShutting down...")
	case err := <-errCh:
		fmt.Fprintf(os.Stderr, "\nserver error: %v\n", err)
	}

	cancel()
	_ = metricsSrv.Close()
	fmt.Println("Shutdown complete.")
	return nil
}

var createUserCmd = &cobra.Command{
	Use:   "create-user",
	Short: "Create a user credential in a data directory's user store",
	Long: `create-user seeds an admin (or other role) credential into the
SCRAM user store before the server has ever been started, since the wire
protocol has no command for creating the first user.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir, _ := cmd.Flags().GetString("data-dir")
		username, _ := cmd.Flags().GetString("username")
		password, _ := cmd.Flags().GetString("password")
		roleFlag, _ := cmd.Flags().GetString("role")

		var role auth.Role
		switch roleFlag {
		case "admin":
			role = auth.RoleAdmin
		case "read_write":
			role = auth.RoleReadWrite
		case "read":
			role = auth.RoleRead
		default:
			return fmt.Errorf("unknown --role %q (want admin, read_write, or read)", roleFlag)
		}

		users, err := auth.OpenStore(dataDir)
		if err != nil {
			return fmt.Errorf("open user store: %w", err)
		}
		if err := users.CreateUser(username, password, role); err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		fmt.Printf("Created user %q with role %q in %s\n", username, roleFlag, dataDir)
		return nil
	},
}
