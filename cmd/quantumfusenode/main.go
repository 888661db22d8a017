package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/quantumfuse-labs/quantumfuse/config"
	"github.com/quantumfuse-labs/quantumfuse/node"
	"github.com/quantumfuse-labs/quantumfuse/store"
)

func main() {
	envPath := flag.String("env", ".env", "path to the .env file")
	configPath := flag.String("config", "config.json", "path to the JSON configuration file")
	flag.Parse()

	if err := config.LoadEnv(*envPath); err != nil {
		log.Fatalf("Error loading .env file from %s: %v", *envPath, err)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Error loading configuration from %s: %v", *configPath, err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("Failed to create data directory %s: %v", cfg.DataDir, err)
	}

	db, err := store.NewDatabase(cfg.DataDir)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	st, err := store.New(db)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Printf("Failed to close store: %v", err)
		}
	}()

	n, err := node.New(cfg, st)
	if err != nil {
		log.Fatalf("Failed to initialize node: %v", err)
	}
	if err := n.RestorePendingSets(); err != nil {
		log.Printf("Failed to restore pending transactions: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go n.Run(ctx)
	log.Printf("node started: %d shards, data dir %s", cfg.ShardCount, cfg.DataDir)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("shutting down")
	cancel()
	<-n.Stopped()
}
