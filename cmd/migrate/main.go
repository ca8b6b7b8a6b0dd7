package main

import (
	"context"
	"os"

	"storefront-sync/config"
	"storefront-sync/internal/database"
	"storefront-sync/internal/logger"
	"storefront-sync/internal/migrate"

	"github.com/joho/godotenv"
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
	if cfg.Store.Driver != "sqlite" && cfg.Store.Driver != "postgres" {
		log.Info("Миграция не нужна для этого драйвера", zap.String("driver", cfg.Store.Driver))
		return
	}

	db := database.ConnectDB(&cfg.Store.DB, log)
	defer database.CloseDB(db, log)

	if err := migrate.MigrateStoreDB(context.Background(), db, log, migrate.DefaultMigrateOptions()); err != nil {
		log.Fatal("Ошибка при выполнении миграции", zap.Error(err))
	}

	log.Info("Миграция успешно завершена")
}
