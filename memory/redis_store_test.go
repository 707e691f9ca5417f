package memory

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisStoreWithClient(client, ttl), mr
}

func TestRedisStore_RoundTrip(t *testing.T) {
	store, mr := newTestRedisStore(t, 0)
	ctx := context.Background()

	conv := &Conversation{ID: "s1", ContextTicketID: "T1", TicketContextVersion: 3, UpdatedAt: time.Now().UTC()}
	conv.SetTicketContext("digest", 3)
	conv.AddUserMessage("printer is offline")
	require.NoError(t, store.Save(ctx, conv))

	assert.True(t, mr.Exists("session:s1"))

	loaded, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "T1", loaded.ContextTicketID)
	assert.Equal(t, conv.Messages, loaded.Messages)
	assert.True(t, loaded.HasTicketContext(3))

	require.NoError(t, store.Delete(ctx, "s1"))
	_, err = store.Load(ctx, "s1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisStore_TTL(t *testing.T) {
	store, mr := newTestRedisStore(t, time.Hour)
	require.NoError(t, store.Save(context.Background(), &Conversation{ID: "s1"}))

	assert.Equal(t, time.Hour, mr.TTL("session:s1"))
}

func TestRedisStore_IdleSince(t *testing.T) {
	store, _ := newTestRedisStore(t, 0)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Save(ctx, &Conversation{ID: "old", UpdatedAt: base}))
	require.NoError(t, store.Save(ctx, &Conversation{ID: "new", UpdatedAt: base.Add(time.Hour)}))

	ids, err := store.IdleSince(ctx, base.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, ids)
}

func TestRedisStore_List(t *testing.T) {
	store, mr := newTestRedisStore(t, 0)
	ctx := context.Background()

	for _, id := range []string{"s2", "s1", "s3"} {
		require.NoError(t, store.Save(ctx, &Conversation{ID: id}))
	}
	require.NoError(t, mr.Set("unrelated", "x"))

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2", "s3"}, ids)
}

func TestConversationManager_WithRedisStore(t *testing.T) {
	store, _ := newTestRedisStore(t, 0)
	cm := NewConversationManager(store, 0)
	ctx := context.Background()

	require.NoError(t, cm.SetContextTicket(ctx, "s1", "T9"))

	id, err := cm.ContextTicket(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "T9", id)
}
