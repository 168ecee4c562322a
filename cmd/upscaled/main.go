package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/marchcraft/upscaled/internal/api"
	"github.com/marchcraft/upscaled/internal/backend"
	"github.com/marchcraft/upscaled/internal/backend/classical"
	"github.com/marchcraft/upscaled/internal/backend/esrgan"
	"github.com/marchcraft/upscaled/internal/backend/ncnn"
	"github.com/marchcraft/upscaled/internal/config"
	"github.com/marchcraft/upscaled/internal/engine"
	"github.com/marchcraft/upscaled/internal/store"
)

// probeTimeout bounds startup backend probing as a whole.
const probeTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "upscaled: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Optional .env for local development; missing file is fine.
	_ = godotenv.Load()

	cfg := config.Load()
	logger := config.NewLogger(os.Stdout, cfg)

	st, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	reg, err := backend.NewRegistry(ctx, logger, []backend.Probe{
		esrgan.Probe(esrgan.Config{BaseURL: cfg.ESRGANURL}),
		ncnn.Probe(ncnn.Config{BinaryPath: cfg.NCNNBinary, ModelsDir: cfg.NCNNModelsDir}),
		classical.Probe(),
	})
	if err != nil {
		return fmt.Errorf("probe backends: %w", err)
	}

	for _, e := range reg.Entries() {
		logger.Info("backend probed",
			"backend", e.Profile.ID,
			"quality", e.Profile.Quality,
			"available", e.Available,
		)
	}

	eng := engine.New(reg, st, logger, engine.Options{
		MaxImageBytes:  cfg.MaxBodyBytes,
		MemoryBudgetMB: cfg.MemoryBudgetMB,
		HostMemoryMB:   cfg.HostMemoryMB,
		AttemptTimeout: cfg.AttemptTimeout,
	})

	srv := api.NewServer(cfg.ListenAddr, reg, eng, st, cfg.MaxBodyBytes, logger)
	return srv.Run()
}
