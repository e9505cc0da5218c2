package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"blastrace/internal/api"
	"blastrace/internal/config"
	"blastrace/internal/game"
	"blastrace/internal/match"
	"blastrace/internal/phys"
	"blastrace/internal/server"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment variables only")
	}

	cfg := config.Load()
	log.Printf("blastrace server: %d Hz tick, port %d", cfg.Sim.TickHz, cfg.Server.Port)

	events := game.NewEventLog()
	eventLogPath := os.Getenv("EVENT_LOG_PATH")
	if eventLogPath == "" {
		eventLogPath = "events.jsonl"
	}
	if err := events.Start(eventLogPath); err != nil {
		log.Printf("event log disabled: %v", err)
	} else {
		log.Printf("event log: %s", eventLogPath)
	}

	world := phys.NewMemWorld(cfg.Sim.Gravity)
	engine := game.NewEngine(world, events, game.EngineConfig{
		TickHz:        cfg.Sim.TickHz,
		TargetRespawn: cfg.Match.TargetRespawn,
		SpawnPoints: []phys.Vec3{
			{X: 0, Y: game.PlayerRadius, Z: 0},
			{X: 3, Y: game.PlayerRadius, Z: 0},
			{X: -3, Y: game.PlayerRadius, Z: 0},
			{X: 0, Y: game.PlayerRadius, Z: 3},
		},
		TargetSpawns: map[string]phys.Vec3{
			"dummy-1": {X: 10, Y: game.TargetRadius, Z: 0},
			"dummy-2": {X: -10, Y: game.TargetRadius, Z: 5},
		},
	})

	hub := server.New(server.Config{
		TickHz:        cfg.Sim.TickHz,
		MaxConns:      cfg.Server.MaxConns,
		MaxConnsPerIP: cfg.Server.MaxConnsPerIP,
	}, engine, match.Config{
		StartCooldown: cfg.Match.StartCooldown,
		VoteTimeout:   cfg.Match.VoteTimeout,
	}, events)

	if os.Getenv("DISABLE_DEBUG_SERVER") != "true" {
		if err := api.StartDebugServer(api.DefaultObservabilityConfig()); err != nil {
			log.Printf("debug server disabled: %v", err)
		}
	}

	router := api.NewRouter(api.RouterConfig{
		Hub:              hub,
		WebSocketHandler: hub.HandleWebSocket,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}
	go func() {
		log.Printf("listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("shutting down...")

	// A crashed or wedged shutdown cannot safely keep serving; force-exit
	// if graceful teardown stalls.
	forceExit := time.AfterFunc(10*time.Second, func() {
		log.Println("forced exit: graceful shutdown timed out")
		os.Exit(1)
	})
	defer forceExit.Stop()

	hub.Shutdown()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}

	events.Stop()
	log.Println("bye")
}
