package sqlstore_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"storefront-sync/internal/database"
	"storefront-sync/internal/kvstore"
	"storefront-sync/internal/kvstore/sqlstore"
	"storefront-sync/internal/migrate"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	cfg := &database.Config{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "kv.db")}
	db, err := database.Open(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { database.CloseDB(db, zap.NewNop()) })

	// Запускаем миграцию явно в тесте
	require.NoError(t, migrate.MigrateStoreDB(context.Background(), db, zap.NewNop(), migrate.DefaultMigrateOptions()))
	return db
}

func TestStore_LoadSaveDelete(t *testing.T) {
	db := setupDB(t)
	s := sqlstore.New(db, zap.NewNop())
	ctx := context.Background()

	_, err := s.Load(ctx, "missing")
	assert.ErrorIs(t, err, kvstore.ErrNotFound)

	require.NoError(t, s.Save(ctx, "k", []byte(`"v1"`)))
	require.NoError(t, s.Save(ctx, "k", []byte(`"v2"`)))
	got, err := s.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte(`"v2"`), got)

	require.NoError(t, s.Delete(ctx, "k"))
	_, err = s.Load(ctx, "k")
	assert.ErrorIs(t, err, kvstore.ErrNotFound)
}

func TestStore_PollDeliversForeignWritesOnly(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	tabA := sqlstore.New(db, zap.NewNop(), sqlstore.WithPollInterval(time.Hour))
	tabB := sqlstore.New(db, zap.NewNop(), sqlstore.WithPollInterval(time.Hour))
	t.Cleanup(func() { _ = tabA.Close(); _ = tabB.Close() })

	var seenA, seenB []kvstore.Change
	require.NoError(t, tabA.Watch(func(c kvstore.Change) { seenA = append(seenA, c) }))
	require.NoError(t, tabB.Watch(func(c kvstore.Change) { seenB = append(seenB, c) }))

	require.NoError(t, tabA.Save(ctx, "cart", []byte(`[1]`)))
	require.NoError(t, tabA.Delete(ctx, "cart"))

	noop := func(kvstore.Change) {}
	require.NoError(t, tabA.PollOnce(ctx, func(c kvstore.Change) { seenA = append(seenA, c) }))
	require.NoError(t, tabB.PollOnce(ctx, func(c kvstore.Change) { seenB = append(seenB, c) }))
	// Повторный опрос ничего не доставляет
	require.NoError(t, tabB.PollOnce(ctx, noop))

	assert.Empty(t, seenA)
	// Строка одна: после удаления остаётся tombstone последней ревизии
	require.Len(t, seenB, 1)
	assert.Equal(t, "cart", seenB[0].Key)
	assert.True(t, seenB[0].Removed)
}

func TestStore_AdapterCrossContext(t *testing.T) {
	db := setupDB(t)
	tabA, err := kvstore.New(sqlstore.New(db, zap.NewNop(), sqlstore.WithPollInterval(10*time.Millisecond)), zap.NewNop())
	require.NoError(t, err)
	tabB, err := kvstore.New(sqlstore.New(db, zap.NewNop(), sqlstore.WithPollInterval(10*time.Millisecond)), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = tabA.Close(); _ = tabB.Close() })

	got := make(chan []byte, 1)
	tabB.OnExternalChange("vendor", func(raw []byte) { got <- raw })

	require.NoError(t, tabA.Set("vendor", "V1"))

	select {
	case raw := <-got:
		assert.Equal(t, []byte(`"V1"`), raw)
	case <-time.After(2 * time.Second):
		t.Fatal("external change not delivered")
	}

	var vendor string
	require.True(t, tabB.Get("vendor", &vendor))
	assert.Equal(t, "V1", vendor)
}
