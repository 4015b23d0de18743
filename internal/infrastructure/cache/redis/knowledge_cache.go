// Package redis caches generated general-knowledge answers.
package redis

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kirillkom/source-aware-retrieval/internal/core/ports"
)

const (
	defaultPrefix = "sar:knowledge"
	defaultTTL    = 24 * time.Hour
	// noAnswer caches a negative lookup so a topic without guidance is not regenerated on every miss.
	noAnswer = "\x00"
)

type store interface {
	get(ctx context.Context, key string) (string, bool, error)
	set(ctx context.Context, key, value string, ttl time.Duration) error
}

// KnowledgeCache decorates a KnowledgeSource; cache failures fall through to the source.
type KnowledgeCache struct {
	next   ports.KnowledgeSource
	store  store
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

type Option func(*KnowledgeCache)

func WithPrefix(prefix string) Option {
	return func(c *KnowledgeCache) {
		if prefix != "" {
			c.prefix = prefix
		}
	}
}

func WithTTL(ttl time.Duration) Option {
	return func(c *KnowledgeCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *KnowledgeCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewClient(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func NewKnowledgeCache(client *goredis.Client, next ports.KnowledgeSource, opts ...Option) *KnowledgeCache {
	return newKnowledgeCache(&clientStore{client: client}, next, opts...)
}

func newKnowledgeCache(s store, next ports.KnowledgeSource, opts ...Option) *KnowledgeCache {
	c := &KnowledgeCache{
		next:   next,
		store:  s,
		prefix: defaultPrefix,
		ttl:    defaultTTL,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *KnowledgeCache) Lookup(ctx context.Context, topic, category string) (string, error) {
	key := c.key(topic, category)

	cached, ok, err := c.store.get(ctx, key)
	switch {
	case err != nil:
		c.logger.Warn("knowledge_cache_get_failed", "key", key, "error", err)
	case ok && cached == noAnswer:
		return "", nil
	case ok:
		return cached, nil
	}

	answer, err := c.next.Lookup(ctx, topic, category)
	if err != nil {
		return "", err
	}

	value := answer
	if value == "" {
		value = noAnswer
	}
	if err := c.store.set(ctx, key, value, c.ttl); err != nil {
		c.logger.Warn("knowledge_cache_set_failed", "key", key, "error", err)
	}
	return answer, nil
}

func (c *KnowledgeCache) key(topic, category string) string {
	sum := sha1.Sum([]byte(strings.ToLower(strings.TrimSpace(category)) + "\x1f" + strings.ToLower(strings.TrimSpace(topic))))
	return c.prefix + ":" + hex.EncodeToString(sum[:])
}

type clientStore struct {
	client *goredis.Client
}

func (s *clientStore) get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *clientStore) set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}
