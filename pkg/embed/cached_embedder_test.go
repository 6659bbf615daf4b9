package embed

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEmbedder counts calls and returns a deterministic embedding derived
// from text length, so tests can assert on call counts without a real
// provider.
type stubEmbedder struct {
	calls     int64
	batchSize int
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	atomic.AddInt64(&s.calls, 1)
	return []float32{float32(len(text)), 0.5, 0.5}, nil
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	atomic.AddInt64(&s.calls, int64(len(texts)))
	s.batchSize = len(texts)
	results := make([][]float32, len(texts))
	for i, text := range texts {
		results[i] = []float32{float32(len(text)), 0.5, 0.5}
	}
	return results, nil
}

func (s *stubEmbedder) Model() string    { return "stub" }
func (s *stubEmbedder) Dimensions() int  { return 3 }
func (s *stubEmbedder) CallCount() int64 { return atomic.LoadInt64(&s.calls) }

func TestCachedEmbedderCacheHit(t *testing.T) {
	stub := &stubEmbedder{}
	cached := NewCachedEmbedder(stub, 100)
	ctx := context.Background()

	_, err := cached.Embed(ctx, "hello world")
	require.NoError(t, err)
	assert.EqualValues(t, 1, stub.CallCount())

	_, err = cached.Embed(ctx, "hello world")
	require.NoError(t, err)
	assert.EqualValues(t, 1, stub.CallCount(), "second call with same text should hit the cache")

	_, err = cached.Embed(ctx, "different text")
	require.NoError(t, err)
	assert.EqualValues(t, 2, stub.CallCount())

	stats := cached.Stats()
	assert.EqualValues(t, 1, stats.Hits)
	assert.EqualValues(t, 2, stats.Misses)
	assert.Equal(t, 2, stats.Size)
}

func TestCachedEmbedderBatchCaching(t *testing.T) {
	stub := &stubEmbedder{}
	cached := NewCachedEmbedder(stub, 100)
	ctx := context.Background()

	_, err := cached.Embed(ctx, "cached")
	require.NoError(t, err)

	texts := []string{"cached", "new1", "new2"}
	_, err = cached.EmbedBatch(ctx, texts)
	require.NoError(t, err)

	assert.EqualValues(t, 3, stub.CallCount(), "1 pre-cache + 2 batch misses")
	assert.Equal(t, 2, stub.batchSize, "only misses should reach the base embedder")

	stats := cached.Stats()
	assert.EqualValues(t, 1, stats.Hits)
}

func TestCachedEmbedderLRUEviction(t *testing.T) {
	stub := &stubEmbedder{}
	cached := NewCachedEmbedder(stub, 3)
	ctx := context.Background()

	for _, text := range []string{"a", "b", "c"} {
		_, err := cached.Embed(ctx, text)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, cached.Stats().Size)

	_, err := cached.Embed(ctx, "d")
	require.NoError(t, err)
	assert.Equal(t, 3, cached.Stats().Size, "size stays bounded after eviction")

	callsBefore := stub.CallCount()
	_, err = cached.Embed(ctx, "a")
	require.NoError(t, err)
	assert.Greater(t, stub.CallCount(), callsBefore, "evicted entry should miss again")
}

func TestCachedEmbedderConcurrentAccess(t *testing.T) {
	stub := &stubEmbedder{}
	cached := NewCachedEmbedder(stub, 1000)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			text := "text"
			if i%2 == 0 {
				text = "other"
			}
			_, err := cached.Embed(ctx, text)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	stats := cached.Stats()
	assert.Equal(t, 2, stats.Size, "only 2 distinct texts across all goroutines")
	assert.Greater(t, stats.HitRate, 90.0)
}

func BenchmarkCachedEmbedderCacheHit(b *testing.B) {
	stub := &stubEmbedder{}
	cached := NewCachedEmbedder(stub, 1000)
	ctx := context.Background()
	_, _ = cached.Embed(ctx, "benchmark text")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = cached.Embed(ctx, "benchmark text")
	}
}

func BenchmarkCachedEmbedderCacheMiss(b *testing.B) {
	stub := &stubEmbedder{}
	cached := NewCachedEmbedder(stub, b.N+1)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		text := string(rune('a' + i%26))
		_, _ = cached.Embed(ctx, text)
	}
}
