package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/antscale/antscale/internal/config"
	"github.com/antscale/antscale/internal/core/compute"
	"github.com/antscale/antscale/internal/core/lod"
	"github.com/antscale/antscale/internal/core/observability/log"
	"github.com/antscale/antscale/internal/core/scaling"
	"github.com/antscale/antscale/internal/core/sim"
	"github.com/antscale/antscale/internal/server"
)

func main() {
	cfgPath := flag.String("config", "", "path to an optional YAML config file")
	ants := flag.Int("ants", 2500, "population of the built-in demo colony")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lg := log.New(log.LevelInfo)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error loading config:", err)
		os.Exit(1)
	}
	tiers, err := cfg.TierSet()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error building tier set:", err)
		os.Exit(1)
	}

	engine := lod.NewEngine(tiers, lod.EngineConfig{
		TargetFPS:   cfg.Engine.TargetFPS,
		FrameWindow: cfg.Engine.FrameWindow,
	}, lg)
	factors := lod.NewFactorController(lod.ControllerConfig{}, lg)
	materializer := lod.NewMaterializer(lod.MaterializerConfig{})

	caps := compute.Detect(compute.ProbeOptions{
		Accelerator:   cfg.Coordinator.Accelerator,
		NativeModule:  cfg.Coordinator.NativeModule,
		MaxConcurrent: cfg.Coordinator.MaxConcurrent,
	})
	coordinator := compute.NewCoordinator(ctx, caps, compute.CoordinatorConfig{
		SizeThreshold: cfg.Coordinator.SizeThreshold,
	}, lg)

	scaler, err := scaling.NewAutoScaler(scaling.Config{
		MinFPS:         cfg.Scaler.MinFPS,
		TrendWindow:    cfg.Scaler.TrendWindow,
		TrendThreshold: cfg.Scaler.TrendThreshold,
		Cooldown:       time.Duration(cfg.Scaler.Cooldown),
		Predictive:     cfg.Scaler.Predictive,
	}, nil, scaling.PresetName(cfg.Scaler.InitialPreset), engine, coordinator, nil, lg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error building scaler:", err)
		os.Exit(1)
	}

	world := newDemoColony(*ants)
	runner := sim.NewRunner(sim.RunnerConfig{}, world, factors, engine, scaler, coordinator, materializer, demoKernels(), lg)

	srv := server.NewStatusServer(scaler, coordinator, engine, lg)
	runner.OnSnapshot = srv.Broadcast
	if err := srv.Start(ctx, cfg.Server.Addr); err != nil {
		fmt.Fprintln(os.Stderr, "Error starting status server:", err)
		os.Exit(1)
	}

	go func() {
		if err := runner.Run(ctx); err != nil && err != context.Canceled {
			lg.Error("runner stopped", log.Error(err))
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	<-stopCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		fmt.Fprintln(os.Stderr, "Error stopping status server:", err)
	}
	if err := coordinator.Close(); err != nil {
		fmt.Fprintln(os.Stderr, "Error closing coordinator:", err)
	}
}
