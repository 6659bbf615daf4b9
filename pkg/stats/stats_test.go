package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIncrementSumsAcrossCreators(t *testing.T) {
	tr := NewTracker(nil)
	tr.Increment(NounKind, "svc-a", 3)
	tr.Increment(NounKind, "svc-b", 2)

	assert.Equal(t, int64(5), tr.Sum(NounKind))
}

func TestHNSWIndexSizeTracksNounsOnly(t *testing.T) {
	tr := NewTracker(nil)
	tr.Increment(NounKind, "svc", 4)
	tr.Increment(VerbKind, "svc", 10)

	snap := tr.Snapshot()
	assert.Equal(t, int64(4), snap.HNSWIndexSize)
}

func TestFlushCallsFlusherOnlyWhenDirty(t *testing.T) {
	calls := 0
	tr := NewTracker(func(Snapshot) error {
		calls++
		return nil
	})

	require.NoError(t, tr.Flush())
	assert.Equal(t, 0, calls, "flush with nothing changed should not call the flusher")

	tr.Increment(NounKind, "svc", 1)
	require.NoError(t, tr.Flush())
	assert.Equal(t, 1, calls)

	require.NoError(t, tr.Flush())
	assert.Equal(t, 1, calls, "second consecutive flush with no new writes is a no-op")
}

func TestAppendEnforcesMonotonicTimestamps(t *testing.T) {
	tr := NewTracker(nil)
	e1 := tr.Append(100, OpAdd, NounKind, "n1", []byte("a"))
	e2 := tr.Append(100, OpAdd, NounKind, "n2", []byte("b")) // same ts as e1

	assert.Greater(t, e2.Timestamp, e1.Timestamp)
}

func TestDeleteEntriesCarryNoAfterImage(t *testing.T) {
	tr := NewTracker(nil)
	e := tr.Append(1, OpDelete, NounKind, "n1", []byte("should be dropped"))
	assert.Nil(t, e.AfterImage)
}

func TestChangesSinceReturnsOnlyNewerEntries(t *testing.T) {
	tr := NewTracker(nil)
	tr.Append(1, OpAdd, NounKind, "n1", nil)
	tr.Append(2, OpAdd, NounKind, "n2", nil)
	tr.Append(3, OpAdd, NounKind, "n3", nil)

	changes := tr.ChangesSince(1, 0)
	require.Len(t, changes, 2)
	assert.Equal(t, "n2", changes[0].ID)
	assert.Equal(t, "n3", changes[1].ID)
}

func TestChangesSinceRespectsLimit(t *testing.T) {
	tr := NewTracker(nil)
	tr.Append(1, OpAdd, NounKind, "n1", nil)
	tr.Append(2, OpAdd, NounKind, "n2", nil)
	tr.Append(3, OpAdd, NounKind, "n3", nil)

	changes := tr.ChangesSince(0, 1)
	require.Len(t, changes, 1)
	assert.Equal(t, "n1", changes[0].ID)
}
