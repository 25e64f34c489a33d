// Command server is the entry point for the gatekeeper chat-gating service.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gatekeeper/internal/cache"
	"gatekeeper/internal/challenge"
	"gatekeeper/internal/classifier"
	"gatekeeper/internal/config"
	"gatekeeper/internal/database"
	"gatekeeper/internal/dispatch"
	"gatekeeper/internal/flags"
	"gatekeeper/internal/modqueue"
	"gatekeeper/internal/pending"
	"gatekeeper/internal/platform"
	"gatekeeper/internal/poller"
	"gatekeeper/internal/server"
	"gatekeeper/internal/trust"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}

	// The shared store carries challenge and case state; without it the
	// core cannot uphold its exactly-once guarantees.
	rdb, err := cache.Connect(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect redis: %v", err)
	}

	client := platform.NewTelegramClient(cfg.PlatformAPIURL, cfg.BotToken)

	store := pending.NewStore(rdb)
	registry := challenge.NewRegistry()
	flagMgr := flags.NewManager(rdb, cfg.CaptchaEnabled)

	// The queue notifies whichever admins the router currently knows;
	// the router is created right after, so close over the variable.
	var router *dispatch.Router
	queue := modqueue.NewQueue(rdb, client, cfg.ChatID, func() []int64 {
		return router.AdminIDs()
	})

	tracker := trust.NewTracker(db, client, classifier.NewKeyword(nil), queue, cfg.ChatID, cfg.TrustThreshold)
	challenges := challenge.NewService(store, registry, client, tracker, cfg.CaptchaTimeoutDuration())
	router = dispatch.NewRouter(client, challenges, tracker, queue, flagMgr, cfg.ChatID, cfg.ChatName, cfg.BotID(), cfg.AdminIDList())

	srv := server.New(cfg, router, rdb, db)
	app := srv.SetupApp()

	rootCtx, stop := context.WithCancel(context.Background())

	// Inbound updates: webhook when a secret is configured, long-poll
	// otherwise.
	if cfg.WebhookSecret == "" {
		p := poller.New(client, router, cfg.PollTimeout)
		go func() {
			if err := p.Run(rootCtx); err != nil && rootCtx.Err() == nil {
				log.Printf("Poller stopped: %v", err)
			}
		}()
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		stop()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(ctx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}

		// Outstanding eviction timers are process-local wakeups; the Redis
		// open markers survive, so a restarted instance can still resolve.
		registry.Drain()
	}()

	log.Printf("Server starting on port %s...", cfg.Port)
	log.Fatal(app.Listen(":" + cfg.Port))
}
