package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wahahalyy/blockchain-simulator/pkg/cli"
	"github.com/wahahalyy/blockchain-simulator/pkg/config"
	"github.com/wahahalyy/blockchain-simulator/pkg/logger"
	"github.com/wahahalyy/blockchain-simulator/pkg/node"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "blockchain-node",
		Short: "blockchain-node - a peer-to-peer proof-of-work blockchain node",
		Long: `blockchain-node runs a single participant in a peer-to-peer
proof-of-work blockchain network: it serves the node's HTTP API,
gossips transactions and blocks, resolves forks against its peers,
and optionally mines.`,
		RunE: runNode,
	}

	config.RegisterFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runNode(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.NewLogger(logger.DefaultConfig())
	defer log.Close()

	n, err := node.New(cfg, log)
	if err != nil {
		return fmt.Errorf("create node: %w", err)
	}

	log.Info("starting node on %s:%d (self=%s)", cfg.Host, cfg.Port, cfg.SelfAddress())
	if err := n.Start(); err != nil {
		return fmt.Errorf("start node: %w", err)
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	menuDone := make(chan struct{})
	go func() {
		cli.New(n, os.Stdin, os.Stdout).Run()
		close(menuDone)
	}()

	select {
	case <-shutdown:
		log.Info("received shutdown signal")
	case <-menuDone:
		log.Info("operator quit the console")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return n.Shutdown(ctx)
}
