package migrate

import (
	"context"

	"storefront-sync/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type MigrateOptions struct {
	CreateIndexes bool // индекс по (rev, origin) для watcher'а
	SeedRevision  bool // строка-счётчик в kv_revisions
}

func DefaultMigrateOptions() MigrateOptions {
	return MigrateOptions{
		CreateIndexes: true,
		SeedRevision:  true,
	}
}

func MigrateStoreDB(ctx context.Context, db *gorm.DB, log *zap.Logger, opt MigrateOptions) error {
	log.Info("Начало миграции локального хранилища")
	db = db.WithContext(ctx)

	log.Info("Создание таблиц kv_entries и kv_revisions")
	if err := db.AutoMigrate(&models.KVEntry{}, &models.KVRevision{}); err != nil {
		log.Error("Не удалось создать таблицы", zap.Error(err))
		return err
	}
	log.Info("Таблицы успешно созданы")

	if opt.SeedRevision {
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.KVRevision{ID: 1, Rev: 0}).Error; err != nil {
			log.Error("Не удалось создать счётчик ревизий", zap.Error(err))
			return err
		}
	}

	if opt.CreateIndexes {
		log.Info("Создание индексов")
		if err := db.Exec(`
CREATE INDEX IF NOT EXISTS ix_kv_entries_rev_origin
ON kv_entries (rev, origin);
`).Error; err != nil {
			log.Error("Не удалось создать индекс ix_kv_entries_rev_origin", zap.Error(err))
			return err
		}
		log.Info("Индексы успешно созданы")
	}

	log.Info("Миграция локального хранилища завершена")
	return nil
}
