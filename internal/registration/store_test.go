package registration_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/augmentos-org/cloud-core/internal/registration"
)

// testDSN returns the integration-test database DSN from the environment,
// or skips the test if it is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("AUGMENTOS_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("AUGMENTOS_TEST_POSTGRES_DSN not set — skipping PostgreSQL integration tests")
	}
	return dsn
}

func newTestStore(t *testing.T) *registration.Store {
	t.Helper()
	store, err := registration.NewStore(context.Background(), testDSN(t))
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

func TestStore_UpsertIsIdempotentPerPackageAndWebhook(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	id1, err := store.Upsert(ctx, "com.x", "https://x.example/webhook", []string{"https://x.example"}, "hash1")
	require.NoError(t, err)

	id2, err := store.Upsert(ctx, "com.x", "https://x.example/webhook", []string{"https://x.example/v2"}, "hash2")
	require.NoError(t, err)
	require.Equal(t, id1, id2)

	reg, err := store.Get(ctx, id1)
	require.NoError(t, err)
	require.Equal(t, "hash2", reg.APIKeyHash)
}

func TestStore_HeartbeatUnknownID(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	err := store.Heartbeat(context.Background(), "nonexistent")
	require.Error(t, err)
}

func TestStore_RunningAppMembership(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddRunningApp(ctx, "user-1", "com.x"))
	users, err := store.UsersRunning(ctx, "com.x")
	require.NoError(t, err)
	require.Contains(t, users, "user-1")

	require.NoError(t, store.RemoveRunningApp(ctx, "user-1", "com.x"))
	users, err = store.UsersRunning(ctx, "com.x")
	require.NoError(t, err)
	require.NotContains(t, users, "user-1")
}
