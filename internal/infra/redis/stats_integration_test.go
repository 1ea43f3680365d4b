//go:build integration

package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestStatsStore_Integration(t *testing.T) {
	ctx := context.Background()

	container, err := tcredis.Run(ctx,
		"redis:7-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client, err := NewClient(Config{URL: fmt.Sprintf("redis://%s:%s/0", host, port.Port())})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store := NewStatsStore(client)
	require.NoError(t, store.Reset(ctx))

	at := time.Unix(1700000000, 0)
	require.NoError(t, store.RecordSweep(ctx, 3, at))
	require.NoError(t, store.RecordSweep(ctx, 2, at.Add(time.Minute)))
	require.NoError(t, store.RecordVerdicts(ctx, 1, 4))

	st, err := store.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), st.Published)
	assert.Equal(t, int64(2), st.Batches)
	assert.Equal(t, int64(1), st.Compliant)
	assert.Equal(t, int64(4), st.NonCompliant)
	assert.Equal(t, int64(2), st.LastSweepSize)
	assert.True(t, st.LastSweep.Equal(at.Add(time.Minute)))

	require.NoError(t, store.Reset(ctx))
	st, err = store.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, st)
}
