// Package sqlstore is a kvstore backend on a SQL database through gorm.
// Other contexts' writes are discovered by polling the global revision.
package sqlstore

import (
	"context"
	"errors"
	"sync"
	"time"

	"storefront-sync/internal/kvstore"
	"storefront-sync/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultPollInterval = 500 * time.Millisecond

type Store struct {
	db       *gorm.DB
	origin   string
	interval time.Duration
	log      *zap.Logger
	now      func() time.Time

	mu      sync.Mutex
	lastRev int64
	stopCh  chan struct{}
	doneCh  chan struct{}
	closed  bool
}

type Option func(*Store)

func WithPollInterval(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithOrigin pins the context id; by default every Store is a new context.
func WithOrigin(origin string) Option {
	return func(s *Store) { s.origin = origin }
}

// New expects a database migrated with migrate.MigrateStoreDB.
func New(db *gorm.DB, log *zap.Logger, opts ...Option) *Store {
	s := &Store{
		db:       db,
		origin:   uuid.NewString(),
		interval: defaultPollInterval,
		log:      log,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) Origin() string { return s.origin }

func (s *Store) Load(ctx context.Context, key string) ([]byte, error) {
	var e models.KVEntry
	err := s.db.WithContext(ctx).First(&e, "kv_key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && e.Deleted) {
		return nil, kvstore.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return e.Value, nil
}

func (s *Store) Save(ctx context.Context, key string, value []byte) error {
	return s.write(ctx, key, value, false)
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.write(ctx, key, nil, true)
}

func (s *Store) write(ctx context.Context, key string, value []byte, deleted bool) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// UPDATE берёт блокировку строки счётчика до конца транзакции,
		// поэтому ревизии коммитятся строго по возрастанию.
		if err := tx.Model(&models.KVRevision{}).Where("id = ?", 1).
			Update("rev", gorm.Expr("rev + 1")).Error; err != nil {
			return err
		}
		var counter models.KVRevision
		if err := tx.First(&counter, "id = ?", 1).Error; err != nil {
			return err
		}

		e := models.KVEntry{
			Key:       key,
			Value:     value,
			Origin:    s.origin,
			Rev:       counter.Rev,
			Deleted:   deleted,
			UpdatedAt: s.now(),
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "kv_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "origin", "rev", "deleted", "updated_at"}),
		}).Create(&e).Error
	})
}

// Watch starts the revision poller. Existing rows are not replayed.
func (s *Store) Watch(fn func(kvstore.Change)) error {
	var counter models.KVRevision
	if err := s.db.First(&counter, "id = ?", 1).Error; err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return kvstore.ErrClosed
	}
	if s.stopCh != nil {
		return errors.New("sqlstore: already watching")
	}
	s.lastRev = counter.Rev
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go s.poll(fn, s.stopCh, s.doneCh)
	return nil
}

func (s *Store) poll(fn func(kvstore.Change), stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.PollOnce(context.Background(), fn); err != nil {
				s.log.Warn("kv change poll failed", zap.Error(err))
			}
		case <-stopCh:
			return
		}
	}
}

// PollOnce delivers every foreign write committed since the last poll.
func (s *Store) PollOnce(ctx context.Context, fn func(kvstore.Change)) error {
	s.mu.Lock()
	last := s.lastRev
	s.mu.Unlock()

	var entries []models.KVEntry
	if err := s.db.WithContext(ctx).
		Where("rev > ?", last).
		Order("rev ASC").
		Find(&entries).Error; err != nil {
		return err
	}

	for _, e := range entries {
		if e.Rev > last {
			last = e.Rev
		}
		if e.Origin == s.origin {
			continue
		}
		fn(kvstore.Change{Key: e.Key, Value: e.Value, Removed: e.Deleted})
	}

	s.mu.Lock()
	if last > s.lastRev {
		s.lastRev = last
	}
	s.mu.Unlock()
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-doneCh
	}
	return nil
}
