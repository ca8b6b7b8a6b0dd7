// Package redisstore is a kvstore backend on Redis. Values live in plain
// keys under a profile prefix; every write is announced on the profile's
// change channel so other contexts can pick it up.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"storefront-sync/internal/kvstore"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type changeMessage struct {
	Key     string `json:"key"`
	Origin  string `json:"origin"`
	Value   []byte `json:"value,omitempty"`
	Removed bool   `json:"removed,omitempty"`
}

type Store struct {
	client *redis.Client
	prefix string
	origin string
	log    *zap.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
	done   chan struct{}
	closed bool
}

func New(client *redis.Client, prefix string, log *zap.Logger) *Store {
	return &Store{
		client: client,
		prefix: prefix,
		origin: uuid.NewString(),
		log:    log,
	}
}

func (s *Store) Origin() string { return s.origin }

func (s *Store) key(k string) string { return fmt.Sprintf("%s:kv:%s", s.prefix, k) }

func (s *Store) changes() string { return s.prefix + ":changes" }

func (s *Store) Load(ctx context.Context, key string) ([]byte, error) {
	b, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, kvstore.ErrNotFound
	}
	return b, err
}

func (s *Store) Save(ctx context.Context, key string, value []byte) error {
	msg, err := json.Marshal(changeMessage{Key: key, Origin: s.origin, Value: value})
	if err != nil {
		return err
	}
	_, err = s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.key(key), value, 0)
		p.Publish(ctx, s.changes(), msg)
		return nil
	})
	return err
}

func (s *Store) Delete(ctx context.Context, key string) error {
	msg, err := json.Marshal(changeMessage{Key: key, Origin: s.origin, Removed: true})
	if err != nil {
		return err
	}
	_, err = s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, s.key(key))
		p.Publish(ctx, s.changes(), msg)
		return nil
	})
	return err
}

// Watch subscribes to the change channel and returns once the subscription
// is confirmed.
func (s *Store) Watch(fn func(kvstore.Change)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return kvstore.ErrClosed
	}
	if s.pubsub != nil {
		return errors.New("redisstore: already watching")
	}

	ctx := context.Background()
	ps := s.client.Subscribe(ctx, s.changes())
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("subscribe %s: %w", s.changes(), err)
	}
	s.pubsub = ps
	s.done = make(chan struct{})
	go s.listen(ps.Channel(), fn, s.done)
	return nil
}

func (s *Store) listen(ch <-chan *redis.Message, fn func(kvstore.Change), done chan struct{}) {
	defer close(done)
	for m := range ch {
		var c changeMessage
		if err := json.Unmarshal([]byte(m.Payload), &c); err != nil {
			s.log.Warn("malformed kv change message", zap.String("channel", m.Channel), zap.Error(err))
			continue
		}
		if c.Origin == s.origin {
			continue
		}
		fn(kvstore.Change{Key: c.Key, Value: c.Value, Removed: c.Removed})
	}
}

func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	ps, done := s.pubsub, s.done
	s.mu.Unlock()

	if ps == nil {
		return nil
	}
	err := ps.Close()
	<-done
	return err
}
