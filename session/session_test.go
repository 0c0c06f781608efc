package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doccat/server/broker"
)

func setupTestBroker(t *testing.T) broker.Broker {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return broker.NewRedisBroker(client)
}

func TestCreateAndLoad_RoundTrips(t *testing.T) {
	br := setupTestBroker(t)
	mgr, err := New(br, "test-secret", "app-password", time.Hour, time.Minute)
	require.NoError(t, err)

	uid := "user-1"
	id, err := mgr.Create(context.Background(), Payload{UserID: &uid, Auth: true})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	loaded, err := mgr.Load(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.True(t, loaded.Auth)
	require.NotNil(t, loaded.UserID)
	assert.Equal(t, uid, *loaded.UserID)
	assert.False(t, mgr.InFallback())
}

func TestLoad_UnknownSession_ReturnsNotFound(t *testing.T) {
	br := setupTestBroker(t)
	mgr, err := New(br, "secret", "pw", time.Hour, time.Minute)
	require.NoError(t, err)

	_, err = mgr.Load(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDestroy_RemovesSession(t *testing.T) {
	br := setupTestBroker(t)
	mgr, err := New(br, "secret", "pw", time.Hour, time.Minute)
	require.NoError(t, err)

	id, err := mgr.Create(context.Background(), Payload{Auth: true})
	require.NoError(t, err)

	require.NoError(t, mgr.Destroy(context.Background(), id))
	_, err = mgr.Load(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdate_PreservesTTLUnlessExtended(t *testing.T) {
	br := setupTestBroker(t)
	mgr, err := New(br, "secret", "pw", time.Hour, time.Minute)
	require.NoError(t, err)

	id, err := mgr.Create(context.Background(), Payload{Auth: false})
	require.NoError(t, err)

	require.NoError(t, mgr.Update(context.Background(), id, Payload{Auth: true}, false))
	loaded, err := mgr.Load(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, loaded.Auth)
}

func TestVerifyPassword_ConstantTime(t *testing.T) {
	br := setupTestBroker(t)
	mgr, err := New(br, "secret", "correct-password", time.Hour, time.Minute)
	require.NoError(t, err)

	assert.True(t, mgr.VerifyPassword("correct-password"))
	assert.False(t, mgr.VerifyPassword("wrong"))
	assert.False(t, mgr.VerifyPassword(""))
}

func TestFallback_WhenBrokerUnreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	br := broker.NewRedisBroker(client)

	mgr, err := New(br, "secret", "pw", time.Hour, time.Minute)
	require.NoError(t, err)

	mr.Close() // simulate backend outage

	id, err := mgr.Create(context.Background(), Payload{Auth: true})
	require.NoError(t, err)
	assert.True(t, mgr.InFallback())

	loaded, err := mgr.Load(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, loaded.Auth)

	client.Close()
}
