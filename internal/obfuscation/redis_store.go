package obfuscation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/raaihank/termswap/internal/errs"
)

// RedisConfig contains Redis configuration for the map store.
type RedisConfig struct {
	RedisURL       string `yaml:"redis_url" mapstructure:"redis_url"`
	MaxConnections int    `yaml:"max_connections" mapstructure:"max_connections"`
	MinIdleConns   int    `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	KeyPrefix      string `yaml:"key_prefix" mapstructure:"key_prefix"`
	// Workspace scopes the key so several working texts can share one server.
	Workspace string `yaml:"workspace" mapstructure:"workspace"`
}

// RedisStore keeps the outstanding map under one Redis key. SETNX makes the
// single-outstanding check and the write one atomic step.
type RedisStore struct {
	client *redis.Client
	key    string
	logger *zap.Logger
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(config *RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if config.MaxConnections > 0 {
		opts.PoolSize = config.MaxConnections
	}
	opts.MinIdleConns = config.MinIdleConns

	client := redis.NewClient(opts)
	store := &RedisStore{
		client: client,
		key:    mapKey(config.KeyPrefix, config.Workspace),
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis map store initialized",
		zap.String("redis_url", maskRedisURL(config.RedisURL)),
		zap.String("key", store.key))

	return store, nil
}

func mapKey(prefix, workspace string) string {
	if prefix == "" {
		prefix = "termswap"
	}
	if workspace == "" {
		workspace = "default"
	}
	return fmt.Sprintf("%s:varmap:%s", prefix, workspace)
}

func (s *RedisStore) Load(ctx context.Context) (*Map, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("no obfuscation map under %s: %w", s.key, errs.ErrNotFound)
	}
	if err != nil {
		return nil, errs.IO("failed to read obfuscation map", err)
	}

	mapping := &Map{}
	if err := mapping.UnmarshalJSON(data); err != nil {
		return nil, errs.Config(fmt.Sprintf("obfuscation map %s is malformed", s.key), err)
	}
	return mapping, nil
}

func (s *RedisStore) Save(ctx context.Context, m *Map) error {
	data, err := m.MarshalJSON()
	if err != nil {
		return errs.IO("failed to encode obfuscation map", err)
	}

	ok, err := s.client.SetNX(ctx, s.key, data, 0).Result()
	if err != nil {
		return errs.IO("failed to store obfuscation map", err)
	}
	if !ok {
		return fmt.Errorf("obfuscation map %s already exists: %w", s.key, errs.ErrConflict)
	}

	s.logger.Debug("Obfuscation map stored", zap.String("key", s.key), zap.Int("entries", m.Len()))
	return nil
}

func (s *RedisStore) Delete(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}

func (s *RedisStore) Exists(ctx context.Context) (bool, error) {
	n, err := s.client.Exists(ctx, s.key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// maskRedisURL masks the password in a Redis URL for logging
func maskRedisURL(url string) string {
	at := strings.LastIndex(url, "@")
	if at < 0 {
		return url
	}
	userPart := url[:at]
	colon := strings.LastIndex(userPart, ":")
	if colon < 0 || strings.HasPrefix(userPart[colon+1:], "//") {
		return url
	}
	return userPart[:colon+1] + "***" + url[at:]
}
