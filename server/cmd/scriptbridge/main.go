package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/asynkron/protoactor-go/actor"

	"github.com/phuhao00/scriptbridge/server/configs"
	"github.com/phuhao00/scriptbridge/server/internal/api"
	"github.com/phuhao00/scriptbridge/server/internal/command"
	"github.com/phuhao00/scriptbridge/server/internal/game"
	"github.com/phuhao00/scriptbridge/server/internal/metrics"
	"github.com/phuhao00/scriptbridge/server/internal/network"
	"github.com/phuhao00/scriptbridge/server/internal/player"
	"github.com/phuhao00/scriptbridge/server/internal/script"
	"github.com/phuhao00/scriptbridge/server/internal/script/loader"
	"github.com/phuhao00/scriptbridge/server/internal/utils"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the JSON configuration file")
	flag.Parse()

	// --- Configuration Loading ---
	configs.CreateExampleConfigFile(*configPath)
	cfg, err := configs.LoadConfig(*configPath)
	if err != nil {
		utils.LogFatalf("Failed to load configuration: %v", err)
	}

	utils.SetLogLevel(cfg.Server.LogLevel)
	utils.LogInfo("Starting script bridge server...")
	utils.LogInfof("Configuration loaded. TCP: %s, scripts: %s, tick rate: %d/s, ask timeout: %s",
		cfg.Address(), cfg.Scripts.Directory, cfg.Scripts.TickRate, cfg.AskTimeout())

	// --- Actor System ---
	actorSystem := actor.NewActorSystem(actor.WithLoggerFactory(func(*actor.ActorSystem) *slog.Logger {
		return utils.Logger().With("lib", "protoactor")
	}))
	utils.LogInfo("Actor system initialized.")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := metrics.Serve(ctx, cfg.Server.MetricsAddr); err != nil {
			utils.LogErrorf("Metrics server failed: %v", err)
		}
	}()

	// --- Shared services ---
	clients := player.NewDirectory()
	commands := command.NewRegistry()
	tcpServer := network.NewTCPServer(cfg.Address(), actorSystem)
	services := api.NewServices(tcpServer, clients, commands)
	resources := script.NewRegistry()

	dispatcher := game.NewCommandDispatcher(cfg.Chat.CommandPrefix, commands, services,
		cfg.Chat.CommandsPerSecond, cfg.Chat.CommandBurst)
	if err := dispatcher.RegisterHelp(); err != nil {
		utils.LogWarnf("Failed to register the help command: %v", err)
	}
	tcpServer.SetHandler(game.NewHandler(clients, resources, services, dispatcher))

	// --- Scripts ---
	opts := script.Options{
		TickRate:   cfg.Scripts.TickRate,
		AskTimeout: cfg.AskTimeout(),
		Shutdown:   script.Shutdown,
	}
	if _, err := loader.StartAll(cfg.Scripts.Directory, services, resources, opts); err != nil {
		utils.LogWarnf("No scripts loaded: %v", err)
	}

	// --- Network ---
	if err := tcpServer.Start(); err != nil {
		utils.LogFatalf("Failed to start TCP server: %v", err)
	}
	utils.LogInfo("Script bridge server running. Press Ctrl+C to shut down.")

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	utils.LogInfo("Shutting down script bridge server...")
	tcpServer.Stop()

	script.Shutdown.Trigger()
	waitCtx, waitCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := resources.StopAll(waitCtx); err != nil {
		utils.LogWarnf("Resources did not stop cleanly: %v", err)
	}
	waitCancel()

	cancel()
	actorSystem.Shutdown()
	utils.LogInfo("Script bridge server shut down gracefully.")
}
