// Command kvnode runs a single node of the replicated key-value store,
// as either a leader or a follower depending on -role / NODE_TYPE. Both
// roles are served by this same binary (spec.md §2).
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/isparth/kvnode/internal/httpapi"
	"github.com/isparth/kvnode/internal/logging"
	"github.com/isparth/kvnode/internal/metrics"
	"github.com/isparth/kvnode/internal/nodeconfig"
	"github.com/isparth/kvnode/internal/replication"
	"github.com/isparth/kvnode/internal/store"
	"github.com/isparth/kvnode/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var f nodeconfig.Flags
	flag.StringVar(&f.NodeType, "role", "", "node role: leader or follower (env NODE_TYPE)")
	flag.IntVar(&f.Port, "port", 0, "listen port (env PORT)")
	flag.IntVar(&f.WriteQuorum, "quorum", 0, "write quorum W (env WRITE_QUORUM, leader only)")
	flag.Float64Var(&f.MinDelayMs, "min-delay-ms", 0, "minimum simulated replication delay, ms")
	flag.Float64Var(&f.MaxDelayMs, "max-delay-ms", 0, "maximum simulated replication delay, ms")
	flag.StringVar(&f.Followers, "peers", "", "comma-separated follower base URLs (env FOLLOWERS, leader only)")
	flag.StringVar(&f.ConfigFile, "config", "", "optional YAML config file (env CONFIG_FILE)")
	flag.IntVar(&f.ReplicateTimeoutMs, "replicate-timeout-ms", 0, "per-peer replication deadline, ms")
	flag.StringVar(&f.LogLevel, "log-level", "", "debug|info|warn|error (env LOG_LEVEL)")
	flag.Parse()

	cfg, err := nodeconfig.Resolve(f)
	if err != nil {
		return fmt.Errorf("resolve config: %w", err)
	}

	logger := logging.Init(cfg.LogLevel)
	logger.Info("starting node", "role", cfg.Role.String(), "listen_addr", cfg.ListenAddr,
		"peers", cfg.Peers, "write_quorum", cfg.WriteQuorum)

	m := metrics.New()

	node := &httpapi.Node{
		Role:        cfg.Role,
		Store:       store.New(),
		WriteQuorum: cfg.WriteQuorum,
		Metrics:     m,
		Logger:      logger,
	}

	if cfg.Role == types.RoleLeader {
		node.Replicator = replication.New(replication.Config{
			Peers:            cfg.Peers,
			WriteQuorum:      cfg.WriteQuorum,
			MinDelay:         cfg.MinDelay,
			MaxDelay:         cfg.MaxDelay,
			ReplicateTimeout: cfg.ReplicateTimeout,
		}, m, logger)
	}

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: httpapi.NewRouter(node),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
