package menu

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each menu as a list under <prefix>:menu:<version> and the
// set of known versions under <prefix>:menus.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "triggergate"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) menuKey(version string) string {
	return s.prefix + ":menu:" + version
}

func (s *RedisStore) versionsKey() string {
	return s.prefix + ":menus"
}

func (s *RedisStore) Names(ctx context.Context, version string) ([]string, error) {
	names, err := s.client.LRange(ctx, s.menuKey(version), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("fetch menu %s: %w", version, err)
	}
	if len(names) > 0 {
		return names, nil
	}
	// Redis drops empty lists; an empty menu only exists in the version set.
	known, err := s.client.SIsMember(ctx, s.versionsKey(), version).Result()
	if err != nil {
		return nil, fmt.Errorf("fetch menu %s: %w", version, err)
	}
	if !known {
		return nil, ErrUnknownMenu
	}
	return []string{}, nil
}

// Put stores a menu atomically.
func (s *RedisStore) Put(ctx context.Context, version string, names []string) error {
	key := s.menuKey(version)
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(names) > 0 {
		args := make([]interface{}, len(names))
		for i, n := range names {
			args[i] = n
		}
		pipe.RPush(ctx, key, args...)
	}
	pipe.SAdd(ctx, s.versionsKey(), version)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store menu %s: %w", version, err)
	}
	return nil
}

// Versions lists every stored menu version.
func (s *RedisStore) Versions(ctx context.Context) ([]string, error) {
	versions, err := s.client.SMembers(ctx, s.versionsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list menus: %w", err)
	}
	return versions, nil
}

// Publish stores a menu and announces it on channel.
func (s *RedisStore) Publish(ctx context.Context, channel string, a Announcement) error {
	if err := s.Put(ctx, a.Version, a.Names); err != nil {
		return err
	}
	payload, err := json.Marshal(a)
	if err != nil {
		return err
	}
	if err := s.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("announce menu %s: %w", a.Version, err)
	}
	return nil
}
