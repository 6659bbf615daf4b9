package vectordb

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nounverb/nounverb/pkg/config"
	"github.com/nounverb/nounverb/pkg/storage"
	"github.com/nounverb/nounverb/pkg/verrors"
)

// fakeEmbed deterministically maps a string payload to a small vector so
// tests don't need a real embedding model: every character's byte value
// becomes one dimension, padded/truncated to dims.
func fakeEmbed(dims int) EmbedFunc {
	return func(ctx context.Context, payload interface{}) ([]float32, error) {
		s, ok := payload.(string)
		if !ok {
			return nil, fmt.Errorf("fakeEmbed only accepts strings, got %T", payload)
		}
		vec := make([]float32, dims)
		for i := 0; i < dims; i++ {
			if i < len(s) {
				vec[i] = float32(s[i])
			}
		}
		return vec, nil
	}
}

func newTestDB(t *testing.T) *DB {
	t.Helper()
	cfg := config.Default()
	cfg.HNSW.Dimensions = 8
	db, err := New(cfg, storage.NewMemoryBackend(), fakeEmbed(8), "test-service")
	require.NoError(t, err)
	require.NoError(t, db.Init(context.Background()))
	return db
}

func TestAddAndGetRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	id, err := db.Add(ctx, nil, "hello", Metadata{"lang": "en"}, AddOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	rec, err := db.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "en", rec.Metadata["lang"])
	assert.Len(t, rec.Vector, 8)
}

func TestAddRejectsDimensionMismatch(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.Add(ctx, make([]float32, 4), nil, nil, AddOptions{})
	require.Error(t, err)
	var dm *verrors.DimensionMismatchError
	assert.ErrorAs(t, err, &dm)
}

func TestDeleteRemovesNounAndCascadesVerbs(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	a, err := db.Add(ctx, nil, "alpha", nil, AddOptions{})
	require.NoError(t, err)
	b, err := db.Add(ctx, nil, "beta", nil, AddOptions{})
	require.NoError(t, err)

	vID, err := db.Relate(ctx, a, b, "likes")
	require.NoError(t, err)

	require.NoError(t, db.Delete(ctx, a, DeleteOptions{}))

	rec, err := db.Get(ctx, a)
	require.NoError(t, err)
	assert.Nil(t, rec)

	v, err := db.GetVerb(vID)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestSearchReturnsNearestFirst(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.Add(ctx, nil, "aaaaaaaa", nil, AddOptions{})
	require.NoError(t, err)
	_, err = db.Add(ctx, nil, "zzzzzzzz", nil, AddOptions{})
	require.NoError(t, err)

	results, err := db.SearchText(ctx, "aaaaaaab", 2, SearchOptions{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.LessOrEqual(t, results[0].Score, results[1].Score)
}

func TestSearchRejectsRemoteMode(t *testing.T) {
	db := newTestDB(t)
	_, err := db.Search(context.Background(), make([]float32, 8), 1, SearchOptions{SearchMode: Remote})
	require.Error(t, err)
	var ii *verrors.InvalidInputError
	assert.ErrorAs(t, err, &ii)
}

func TestReadOnlyModeRejectsWrites(t *testing.T) {
	cfg := config.Default()
	cfg.HNSW.Dimensions = 8
	cfg.Modes.ReadOnly = true
	db, err := New(cfg, storage.NewMemoryBackend(), fakeEmbed(8), "svc")
	require.NoError(t, err)
	require.NoError(t, db.Init(context.Background()))

	_, err = db.Add(context.Background(), nil, "hello", nil, AddOptions{})
	assert.ErrorIs(t, err, verrors.ErrReadOnly)
}

func TestWriteOnlyModeRejectsReads(t *testing.T) {
	cfg := config.Default()
	cfg.HNSW.Dimensions = 8
	cfg.Modes.WriteOnly = true
	db, err := New(cfg, storage.NewMemoryBackend(), fakeEmbed(8), "svc")
	require.NoError(t, err)
	require.NoError(t, db.Init(context.Background()))

	id, err := db.Add(context.Background(), nil, "hello", nil, AddOptions{})
	require.NoError(t, err)

	_, err = db.Get(context.Background(), id)
	assert.ErrorIs(t, err, verrors.ErrWriteOnly)
}

func TestAddVerbAutoCreatesMissingNouns(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	id, err := db.AddVerb(ctx, "ghost-src", "ghost-tgt", nil, nil, AddVerbOptions{
		Kind:                   "mentions",
		AutoCreateMissingNouns: true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	src, err := db.Get(ctx, "ghost-src")
	require.NoError(t, err)
	require.NotNil(t, src)
	assert.Empty(t, src.Vector)
}

func TestBackupRestoreRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	ids, err := db.Generate(ctx, GenerateOptions{NounCount: 20, VerbCount: 15, Dimensions: 8})
	require.NoError(t, err)
	require.Len(t, ids, 20)

	backup, err := db.Backup(ctx)
	require.NoError(t, err)
	assert.Len(t, backup.Nouns, 20)

	fresh := newTestDB(t)
	require.NoError(t, fresh.Restore(ctx, backup, RestoreOptions{ClearExisting: true}))

	stats := fresh.GetStatistics()
	restoredBackup, err := fresh.Backup(ctx)
	require.NoError(t, err)
	assert.Len(t, restoredBackup.Nouns, len(backup.Nouns))
	assert.Len(t, restoredBackup.Verbs, len(backup.Verbs))
	_ = stats
}

func TestClearEmptiesEverything(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.Generate(ctx, GenerateOptions{NounCount: 5, VerbCount: 3, Dimensions: 8})
	require.NoError(t, err)

	require.NoError(t, db.Clear(ctx))

	backup, err := db.Backup(ctx)
	require.NoError(t, err)
	assert.Empty(t, backup.Nouns)
	assert.Empty(t, backup.Verbs)
}

func TestStatisticsSumMatchesPerServiceBreakdown(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.Add(ctx, nil, "one", nil, AddOptions{CreatorService: "svc-a"})
	require.NoError(t, err)
	_, err = db.Add(ctx, nil, "two", nil, AddOptions{CreatorService: "svc-b"})
	require.NoError(t, err)

	stats := db.GetStatistics()
	var sum int64
	for _, sc := range stats.PerService {
		sum += sc.Nouns
	}
	assert.Equal(t, stats.NounCount, sum)
}

func TestUpdateMetadataOnMissingIDIsNoop(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	err := db.UpdateMetadata(ctx, "does-not-exist", Metadata{"k": "v"})
	assert.NoError(t, err)
}

func TestDeleteOnMissingIDIsNoop(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	err := db.Delete(ctx, "does-not-exist", DeleteOptions{})
	assert.NoError(t, err)
}

func TestCheckForUpdatesNowTailsAppendOnlyLog(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	id, err := db.Add(ctx, nil, "tracked", nil, AddOptions{})
	require.NoError(t, err)

	db.CheckForUpdatesNow(ctx, RealtimeConfig{UpdateIndex: true, UpdateStats: true})

	rec, err := db.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, rec)
}
