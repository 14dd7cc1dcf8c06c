package control

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triggergate/pkg/menu"
)

func TestWatcher_Handle(t *testing.T) {
	cache := menu.NewMemoryStore()
	w := &Watcher{cache: cache, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	w.handle(`{"version":"v7","names":["HLT_Mu_v1","HLT_Bad_v2"]}`)
	w.handle(`not json`)
	w.handle(`{"names":["HLT_Ele_v1"]}`)

	assert.Equal(t, 1, cache.Len())
	names, err := cache.Names(context.Background(), "v7")
	require.NoError(t, err)
	assert.Equal(t, []string{"HLT_Mu_v1", "HLT_Bad_v2"}, names)
}

func TestWatcher_Integration(t *testing.T) {
	addr := os.Getenv("TRIGGERGATE_TEST_REDIS")
	if addr == "" {
		t.Skip("TRIGGERGATE_TEST_REDIS not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	prefix := "triggergate-watcher-test"
	channel := prefix + "_menus"
	store := menu.NewRedisStore(client, prefix)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer client.Del(context.Background(), prefix+":menus", prefix+":menu:stored", prefix+":menu:announced")

	require.NoError(t, store.Put(ctx, "stored", []string{"HLT_Mu_v1"}))

	cache := menu.NewMemoryStore()
	w := NewWatcher(client, store, cache, channel, slog.New(slog.NewTextHandler(io.Discard, nil)))
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, err := cache.Names(ctx, "stored")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, store.Publish(ctx, channel, menu.Announcement{Version: "announced", Names: []string{"HLT_Ele_v1"}}))
	require.Eventually(t, func() bool {
		_, err := cache.Names(ctx, "announced")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
