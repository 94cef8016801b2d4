package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	internalhttp "kipdb/internal/http"
	"kipdb/pkg/store"
	"kipdb/pkg/wal"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	configPath := "config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := initConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	initLogger(&cfg)

	journal, err := wal.New(cfg.Persistence.RootPath)
	if err != nil {
		slog.Error("failed to open WAL", "error", err)
		os.Exit(1)
	}

	db, err := store.New(&cfg, journal)
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}

	server := internalhttp.NewServer(db, fmt.Sprint(cfg.Server.Port))
	if err := server.Start(); err != nil {
		slog.Error("failed to start server", "error", err)
		os.Exit(1)
	}
	slog.Info("kipdb started", "data_dir", cfg.Persistence.RootPath)

	<-ctx.Done()

	if err := server.Stop(); err != nil {
		slog.Error("failed to stop server", "error", err)
	}
	if err := db.Close(); err != nil {
		slog.Error("failed to close store", "error", err)
	}
	slog.Info("kipdb stopped")
}
