package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redislib "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	redisclient "github.com/angelmondragon/checkout-engine/pkg/redis"
)

func newManager(t *testing.T) (*Manager, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	raw := redislib.NewClient(&redislib.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	mgr, err := NewManager(redisclient.NewFromClient(raw), 15*time.Minute)
	require.NoError(t, err)
	return mgr, srv
}

func TestManagerLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mgr, _ := newManager(t)

	live, err := mgr.HasSession(ctx, "jti-1")
	require.NoError(t, err)
	require.False(t, live)

	require.NoError(t, mgr.Register(ctx, "jti-1", "user-1"))
	live, err = mgr.HasSession(ctx, "jti-1")
	require.NoError(t, err)
	require.True(t, live)

	require.NoError(t, mgr.Revoke(ctx, "jti-1"))
	live, err = mgr.HasSession(ctx, "jti-1")
	require.NoError(t, err)
	require.False(t, live)
}

func TestManagerSessionsExpire(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mgr, srv := newManager(t)

	require.NoError(t, mgr.Register(ctx, "jti-2", "user-2"))
	srv.FastForward(16 * time.Minute)

	live, err := mgr.HasSession(ctx, "jti-2")
	require.NoError(t, err)
	require.False(t, live)
}

func TestManagerValidation(t *testing.T) {
	t.Parallel()
	_, err := NewManager(nil, time.Minute)
	require.Error(t, err)

	mgr, _ := newManager(t)
	_, err = NewManager(mgr.store, 0)
	require.Error(t, err)
	require.Error(t, mgr.Register(context.Background(), " ", "user"))
	_, err = mgr.HasSession(context.Background(), "")
	require.ErrorIs(t, err, errMissingAccessID)
	require.ErrorIs(t, mgr.Revoke(context.Background(), "\t"), errMissingAccessID)
}

func TestManagerStoresOwnerUnderNamespacedKey(t *testing.T) {
	t.Parallel()
	mgr, srv := newManager(t)

	require.NoError(t, mgr.Register(context.Background(), " jti-3 ", "user-3"))
	got, err := srv.Get("checkout:session:access:jti-3")
	require.NoError(t, err)
	require.Equal(t, "user-3", got)
	require.Equal(t, 15*time.Minute, srv.TTL("checkout:session:access:jti-3"))
}
