package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"triggergate/pkg/menu"
)

// Watcher mirrors the menus published in Redis into the local menu cache
// that the trigger filters read from.
type Watcher struct {
	redisClient *redis.Client
	store       *menu.RedisStore
	cache       *menu.MemoryStore
	channel     string
	logger      *slog.Logger
}

func NewWatcher(client *redis.Client, store *menu.RedisStore, cache *menu.MemoryStore, channel string, logger *slog.Logger) *Watcher {
	return &Watcher{
		redisClient: client,
		store:       store,
		cache:       cache,
		channel:     channel,
		logger:      logger.With("component", "menu-watcher"),
	}
}

// Run loads every stored menu, then applies announcements until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("starting menu watcher", "channel", w.channel)

	// Subscribe before the initial load so no announcement falls in between.
	pubsub := w.redisClient.Subscribe(ctx, w.channel)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", w.channel, err)
	}

	if err := w.reload(ctx); err != nil {
		w.logger.Error("initial menu load failed", "error", err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("menu announcement channel closed")
			}
			w.handle(msg.Payload)
		}
	}
}

func (w *Watcher) reload(ctx context.Context) error {
	versions, err := w.store.Versions(ctx)
	if err != nil {
		return err
	}
	for _, v := range versions {
		names, err := w.store.Names(ctx, v)
		if err != nil {
			w.logger.Warn("skipping menu", "menu_version", v, "error", err)
			continue
		}
		w.cache.Put(v, names)
	}
	w.logger.Info("menus loaded", "count", len(versions))
	return nil
}

func (w *Watcher) handle(payload string) {
	var a menu.Announcement
	if err := json.Unmarshal([]byte(payload), &a); err != nil {
		w.logger.Warn("invalid menu announcement", "error", err)
		return
	}
	if a.Version == "" {
		w.logger.Warn("menu announcement without version")
		return
	}
	w.cache.Put(a.Version, a.Names)
	w.logger.Info("menu announced", "menu_version", a.Version, "names", len(a.Names))
}
