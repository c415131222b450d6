package cmd

import (
	"context"
	"fmt"
	"log"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"
	"github.com/spf13/cobra"

	"github.com/example/realtime-chat/config"
	"github.com/example/realtime-chat/modules/aibot"
	"github.com/example/realtime-chat/modules/api"
	"github.com/example/realtime-chat/modules/broadcast"
	"github.com/example/realtime-chat/modules/chat"
	"github.com/example/realtime-chat/modules/history"
	"github.com/example/realtime-chat/modules/lifecycle"
	"github.com/example/realtime-chat/modules/presence"
	"github.com/example/realtime-chat/modules/privatemsg"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log.Println("=== Realtime Chat Server ===")
	log.Printf("Listen: %s", cfg.Addr())
	log.Printf("Private store: %s", cfg.DBPath)
	log.Printf("Snapshot: %s (audit copies in %s)", cfg.SnapshotPath, cfg.SnapshotDir)

	roster, err := aibot.ParseRoster(cfg.AIBots)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", config.KeyAIBots, err)
	}

	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(cfg.ShutdownGrace),
		mono.WithLogLevel(mono.LogLevelInfo),
		mono.WithLogFormat(mono.LogFormatText),
	)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	logger := app.Logger()

	// Shared in-memory state
	registry := presence.NewRegistry()
	tracker := presence.NewTracker()
	cache := history.NewCache()
	hub := broadcast.NewHub(logger.WithModule("broadcast"))

	// Modules
	broadcastModule := broadcast.NewModule(hub, logger.WithModule("broadcast"))
	privateModule := privatemsg.NewModule(privatemsg.Config{
		DBPath:    cfg.DBPath,
		Workers:   cfg.TaskWorkers,
		QueueSize: cfg.TaskQueue,
	}, registry, hub, logger.WithModule("privatemsg"))
	botModule := aibot.NewModule(roster, logger.WithModule("aibot"))
	dispatcher := chat.NewDispatcher(
		registry,
		tracker,
		cache,
		hub,
		botModule,
		privateModule.Relay(),
		chat.Config{AdminName: cfg.AdminName},
		logger.WithModule("chat"),
	)
	botModule.SetReplySink(dispatcher)
	manager := lifecycle.NewManager(cache, lifecycle.Config{
		Path:     cfg.SnapshotPath,
		AuditDir: cfg.SnapshotDir,
		Interval: cfg.SnapshotInterval,
	}, logger.WithModule("lifecycle"))
	apiModule := api.NewModule(api.Config{
		Addr:        cfg.Addr(),
		AdminToken:  cfg.AdminToken,
		CORSOrigins: cfg.CORSOrigins,
		RateLimit:   cfg.RateLimit,
		RateBurst:   cfg.RateBurst,
	}, hub, dispatcher, logger.WithModule("api"))

	// Order: state owners first, then the dispatcher, then the transport
	for _, m := range []mono.Module{
		manager,         // restores history before anything reads it
		broadcastModule, // fan-out hub
		privateModule,   // SQLite store + relay services
		botModule,       // AI collaborator bridge
		dispatcher,      // room protocol
		apiModule,       // Fiber HTTP/WebSocket, depends on privatemsg and lifecycle
	} {
		if err := app.Register(m); err != nil {
			return fmt.Errorf("failed to register module %s: %w", m.Name(), err)
		}
	}

	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("failed to start application: %w", err)
	}
	printStartupInfo(cfg, roster)

	// Snapshot first, then release the store, then stop every module.
	registerShutdownSteps(manager, privateModule.Close, app.Stop)

	relayCtx, stopRelay := context.WithCancel(context.Background())
	defer stopRelay()
	watchRepeatedSignals(relayCtx, manager.Shutdown)

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownGrace,
		map[string]gfshutdown.Operation{
			"chat-server": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				return manager.Shutdown(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	stopRelay()
	os.Exit(exitCode)
	return nil
}

func printStartupInfo(cfg *config.Config, roster *aibot.Roster) {
	log.Println("Application started successfully!")
	log.Println("Endpoints:")
	log.Printf("  - ws://localhost%s/ws", cfg.Addr())
	log.Printf("  - http://localhost%s/health", cfg.Addr())
	log.Printf("  - http://localhost%s/api/v1/rooms", cfg.Addr())
	if cfg.AdminToken != "" {
		log.Printf("  - POST http://localhost%s/admin/snapshot", cfg.Addr())
	}
	for _, bot := range roster.All() {
		log.Printf("AI bot %s serves room %s", bot.Name, bot.Room)
	}
	log.Println("Press Ctrl+C to snapshot history and shut down")
}
