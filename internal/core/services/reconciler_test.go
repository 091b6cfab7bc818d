package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconciler_PassRemovesDuplicates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	seedChunks(t, env, "alpha", "/data/alpha/sources/a.md",
		[]string{"one", "two"}, [][]float32{{1}, {2}})
	// Second run of the same source duplicates both indices.
	seedChunks(t, env, "alpha", "/data/alpha/sources/a.md",
		[]string{"one", "two"}, [][]float32{{1}, {2}})
	seedChunks(t, env, "beta", "/data/beta/sources/b.md",
		[]string{"solo"}, [][]float32{{3}})

	removed := NewReconciler(env.registry, 0).Pass(ctx)
	assert.Equal(t, 2, removed)

	alpha, err := env.store(t, "alpha").AllChunks(ctx)
	require.NoError(t, err)
	assert.Len(t, alpha, 2)

	beta, err := env.store(t, "beta").AllChunks(ctx)
	require.NoError(t, err)
	assert.Len(t, beta, 1)

	assert.True(t, env.hasAction("alpha", "dedup"))
	// Nothing removed, nothing logged.
	assert.False(t, env.hasAction("beta", "dedup"))
}

func TestReconciler_BusyStoreIsSkipped(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	seedChunks(t, env, "alpha", "/data/alpha/sources/a.md",
		[]string{"one"}, [][]float32{{1}})
	seedChunks(t, env, "alpha", "/data/alpha/sources/a.md",
		[]string{"one"}, [][]float32{{1}})
	seedChunks(t, env, "beta", "/data/beta/sources/b.md",
		[]string{"one"}, [][]float32{{1}})
	seedChunks(t, env, "beta", "/data/beta/sources/b.md",
		[]string{"one"}, [][]float32{{1}})

	env.store(t, "alpha").busy = true

	// The busy collection is skipped; the other still reconciles.
	removed := NewReconciler(env.registry, 0).Pass(ctx)
	assert.Equal(t, 1, removed)

	// Once the lock clears, the next cycle picks it up.
	env.store(t, "alpha").busy = false
	assert.Equal(t, 1, NewReconciler(env.registry, 0).Pass(ctx))
}

func TestReconciler_RunStopsOnCancel(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewReconciler(env.registry, time.Hour).Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("reconciler did not stop on cancel")
	}
}

func TestReconciler_RunWithoutTimer(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewReconciler(env.registry, 0).Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("reconciler did not stop on cancel")
	}
}
