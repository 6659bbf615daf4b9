package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nounverb/nounverb/pkg/verrors"
)

func TestMemoryBackendNounLifecycle(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()

	require.NoError(t, b.SaveNoun(ctx, "n1", "Person", []byte("alice")))
	data, ok, err := b.GetNoun(ctx, "n1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("alice"), data)

	byKind, err := b.GetNounsByKind(ctx, "Person")
	require.NoError(t, err)
	assert.Len(t, byKind, 1)

	require.NoError(t, b.DeleteNoun(ctx, "n1"))
	_, ok, err = b.GetNoun(ctx, "n1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryBackendGetMissingIsNotError(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	data, ok, err := b.GetNoun(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, data)
}

func TestMemoryBackendVerbIndices(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()

	require.NoError(t, b.SaveVerb(ctx, "v1", "a", "b", "Owns", []byte("edge")))

	bySource, err := b.GetVerbsBySource(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, bySource, 1)

	byTarget, err := b.GetVerbsByTarget(ctx, "b")
	require.NoError(t, err)
	assert.Len(t, byTarget, 1)

	byKind, err := b.GetVerbsByKind(ctx, "Owns")
	require.NoError(t, err)
	assert.Len(t, byKind, 1)

	require.NoError(t, b.DeleteVerb(ctx, "v1"))
	bySource, err = b.GetVerbsBySource(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, bySource, 0)
}

func TestMemoryBackendClear(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	require.NoError(t, b.SaveNoun(ctx, "n1", "Thing", []byte("x")))
	require.NoError(t, b.Clear(ctx))

	_, ok, err := b.GetNoun(ctx, "n1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryBackendChangeLog(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	require.NoError(t, b.AppendChange(ctx, ChangeRecord{Timestamp: 1, Op: "add", ID: "n1"}))
	require.NoError(t, b.AppendChange(ctx, ChangeRecord{Timestamp: 2, Op: "add", ID: "n2"}))

	changes, err := b.GetChangesSince(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "n2", changes[0].ID)
}

func TestWithRetryRetriesOnlyTransientErrors(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}

	attempts := 0
	err := WithRetry(context.Background(), cfg, func() error {
		attempts++
		return verrors.StorageTransient(errors.New("flaky"))
	})
	assert.Error(t, err)
	assert.Equal(t, 3, attempts) // initial + 2 retries
}

func TestWithRetryDoesNotRetryPermanentErrors(t *testing.T) {
	cfg := DefaultRetryConfig()
	attempts := 0
	err := WithRetry(context.Background(), cfg, func() error {
		attempts++
		return verrors.StoragePermanent(errors.New("bad data"))
	})
	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestWithRetrySucceedsAfterTransientFailures(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
	attempts := 0
	err := WithRetry(context.Background(), cfg, func() error {
		attempts++
		if attempts < 3 {
			return verrors.StorageTransient(errors.New("flaky"))
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}
