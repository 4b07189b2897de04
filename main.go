package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"typeracego/internal/config"
	"typeracego/internal/http/http_server"
	"typeracego/internal/room"
	"typeracego/internal/services/match"
	"typeracego/internal/texts"
	"typeracego/internal/ws"
)

var (
	Log, _ = zap.NewDevelopment()
)

func main() {
	defer Log.Sync()
	zap.ReplaceGlobals(Log)

	// 1. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		Log.Fatal("Failed to load configuration", zap.Error(err))
	}
	Log.Debug("Configuration loaded successfully", zap.Any("config", cfg))

	// 2. Context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	// 3. In-memory room authority + challenge text pool
	clock := clockwork.NewRealClock()
	store := room.NewStore(clock)
	textProvider := texts.NewProvider(cfg.TextWordCount)

	// 4. WebSockets hub + connection registry
	hub := ws.NewHub()
	registry := ws.NewRegistry()

	// 5. Match service (matchmaking, progress relay, outcome arbitration)
	matchSvc := match.NewMatchService(store, textProvider, hub, registry, clock, match.Options{
		MatchDuration: cfg.MatchDuration(),
		SweepInterval: cfg.SweepInterval(),
		RoomRetention: cfg.RoomRetention(),
		RoomIdleTTL:   cfg.RoomIdleTTL(),
	})

	// 6. Background: expired-room sweeper
	go matchSvc.RunSweeper(ctx)

	// 7. Initialize the WS server
	wsSrv := ws.NewWsServer(hub, registry, matchSvc)

	// 8. HTTP + WS server
	httpServer := http_server.NewHttpServer(ctx, cfg.HttpServerPort, wsSrv, matchSvc)
	if err := httpServer.Start(); err != nil {
		Log.Fatal("Failed to start HTTP server", zap.Error(err))
	}
}
