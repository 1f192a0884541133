package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/fusioneventsak/Songrequest-DEVServer/internal/config"
	"github.com/fusioneventsak/Songrequest-DEVServer/internal/cron"
	"github.com/fusioneventsak/Songrequest-DEVServer/internal/feed"
	"github.com/fusioneventsak/Songrequest-DEVServer/internal/handler"
	"github.com/fusioneventsak/Songrequest-DEVServer/internal/notify"
	"github.com/fusioneventsak/Songrequest-DEVServer/internal/overlay"
	"github.com/fusioneventsak/Songrequest-DEVServer/internal/service"
	"github.com/fusioneventsak/Songrequest-DEVServer/internal/storage"
	"github.com/fusioneventsak/Songrequest-DEVServer/internal/storage/memstore"
	"github.com/fusioneventsak/Songrequest-DEVServer/internal/storage/postgres"
	"github.com/fusioneventsak/Songrequest-DEVServer/internal/ws"
	"github.com/fusioneventsak/Songrequest-DEVServer/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		Output:     os.Stdout,
		TimeFormat: logger.DefaultConfig().TimeFormat,
	})
	log = log.WithFields(logger.F("instance_id", cfg.InstanceID))
	log.Info("starting songrequest")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Change-notification transport: redis pub/sub when configured, else
	// in-process. The feed consumer probes the notifier at startup and falls
	// back to polling if it is unreachable.
	var notifier notify.Notifier
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn("redis unreachable at startup, continuing", logger.Err(err))
		}
		notifier = notify.NewRedisNotifier(redisClient, cfg.InstanceID, log)
	} else {
		notifier = notify.NewLocalNotifier()
		log.Info("no redis configured, using in-process notifications")
	}

	// Request store: postgres when a DSN is configured, in-memory otherwise.
	var store storage.Store
	if cfg.Postgres.DSN != "" {
		pool, err := postgres.Connect(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns)
		if err != nil {
			log.Fatal("connect postgres", logger.Err(err))
		}
		pgStore := postgres.New(pool, notifier, log)
		if err := pgStore.Migrate(); err != nil {
			log.Fatal("run migrations", logger.Err(err))
		}
		store = pgStore
		log.Info("connected to postgres")
	} else {
		store = memstore.New(notifier)
		log.Info("no postgres configured, using in-memory store")
	}

	consumer := feed.New(store, notifier, feed.Config{
		PollInterval: cfg.Queue.PollInterval,
		Backoff:      feed.DefaultBackoff(),
	}, log)
	ov := overlay.New(cfg.Queue.GraceWindow)

	retry := service.DefaultSubmitRetry()
	retry.MaxAttempts = cfg.Queue.SubmitMaxAttempts
	svc := service.New(store, consumer, ov, retry, log)

	hub := ws.NewHub(cfg.Queue.MaxWSConnections, log)
	svc.OnSnapshot(func(snapshot feed.Snapshot) {
		hub.Publish(snapshot)
	})

	go hub.Start(ctx)
	go svc.Start(ctx)

	cronManager := cron.NewManager(store, cfg.Queue.PurgeCron, cfg.Queue.PurgeRetentionDays, log)
	if err := cronManager.Start(); err != nil {
		log.Fatal("start cron manager", logger.Err(err))
	}

	gin.SetMode(gin.ReleaseMode)
	router := handler.NewRouter(handler.RouterConfig{
		JWTSecret:    cfg.Auth.JWTSecret,
		SubmitPerSec: cfg.Queue.SubmitPerSec,
		SubmitBurst:  cfg.Queue.SubmitBurst,
		VotePerSec:   cfg.Queue.VotePerSec,
		VoteBurst:    cfg.Queue.VoteBurst,
		InstanceID:   cfg.InstanceID,
	},
		handler.NewRequestHandler(svc, log),
		handler.NewWSHandler(hub, log),
		log,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("http server listening", logger.F("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server failed", logger.Err(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	cancel()
	cronManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", logger.Err(err))
	}

	if err := notifier.Close(); err != nil {
		log.Error("close notifier", logger.Err(err))
	}
	if err := store.Close(); err != nil {
		log.Error("close store", logger.Err(err))
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.Error("close redis", logger.Err(err))
		}
	}

	log.Info("songrequest stopped")
}
