package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront-sync/config"
	"storefront-sync/internal/database"
	"storefront-sync/internal/kvstore"
	"storefront-sync/internal/kvstore/memory"
	"storefront-sync/internal/kvstore/redisstore"
	"storefront-sync/internal/kvstore/sqlstore"
	"storefront-sync/internal/logger"
	"storefront-sync/internal/migrate"
	"storefront-sync/internal/notify"
	"storefront-sync/internal/realtime"
	"storefront-sync/internal/realtime/redistransport"
	"storefront-sync/internal/realtime/wstransport"
	"storefront-sync/internal/restapi"
	"storefront-sync/internal/router"
	"storefront-sync/internal/session"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	isDev := os.Getenv("ENV") == "development"
	if err := logger.Init(isDev); err != nil {
		panic(err)
	}

	defer logger.Sync()

	log := logger.L()

	cfg := config.Load(log)

	viewer, err := session.ViewerFromToken(cfg.API.AccessToken, time.Now())
	if err != nil {
		log.Fatal("cannot derive viewer from access token", zap.Error(err))
	}

	var rdb *redis.Client
	if cfg.Store.Driver == "redis" || cfg.Realtime.Transport == "redis" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
	}

	backend, closeBackend := openBackend(cfg, rdb, log)
	defer closeBackend()

	store, err := kvstore.New(backend, log.Named("kvstore"))
	if err != nil {
		log.Fatal("kv store init failed", zap.Error(err))
	}
	defer store.Close()

	var dialer realtime.Dialer
	switch cfg.Realtime.Transport {
	case "redis":
		dialer = redistransport.NewDialer(rdb, cfg.Realtime.Prefix, log.Named("redis-rt"))
	default:
		if cfg.Realtime.URL == "" {
			log.Fatal("REALTIME_URL is required for the websocket transport")
		}
		dialer = wstransport.NewDialer(cfg.Realtime.URL, cfg.API.AccessToken, log.Named("ws"))
	}

	deps := session.Deps{
		Viewer:          viewer,
		Store:           store,
		Dialer:          dialer,
		API:             restapi.New(cfg.API.BaseURL, cfg.API.AccessToken, cfg.API.Timeout, log.Named("restapi")),
		PollInterval:    cfg.Orders.PollInterval,
		NotificationCap: cfg.Notifications.Cap,
	}
	if len(cfg.Kafka.Brokers) > 0 {
		fwd := notify.NewKafkaForwarder(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Recipient, log.Named("kafka"))
		defer fwd.Close()
		deps.Forwarder = fwd
	}

	sess, err := session.New(deps, log)
	if err != nil {
		log.Fatal("session init failed", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sess.Start(ctx); err != nil {
		log.Fatal("session start failed", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              cfg.Port,
		Handler:           router.Router(sess, cfg.LocalToken, log),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("local api listening", zap.String("addr", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("failed to run http server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutdown signal received")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", zap.Error(err))
	}
	cancel()
	sess.Dispose()
}

// openBackend выбирает хранилище профиля по STORE_DRIVER
func openBackend(cfg *config.Config, rdb *redis.Client, log *zap.Logger) (kvstore.Backend, func()) {
	switch cfg.Store.Driver {
	case "memory":
		return memory.NewProfile().Open(), func() {}
	case "redis":
		return redisstore.New(rdb, cfg.Store.Prefix, log.Named("redisstore")), func() {}
	case "sqlite", "postgres":
		db := database.ConnectDB(&cfg.Store.DB, log)
		if err := migrate.MigrateStoreDB(context.Background(), db, log, migrate.DefaultMigrateOptions()); err != nil {
			log.Fatal("store migration failed", zap.Error(err))
		}
		return sqlstore.New(db, log.Named("sqlstore"), sqlstore.WithPollInterval(cfg.Store.PollInterval)), func() {
			database.CloseDB(db, log)
		}
	}
	log.Fatal("unknown STORE_DRIVER", zap.String("driver", cfg.Store.Driver))
	return nil, nil
}
