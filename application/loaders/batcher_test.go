package loaders

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func makeKeys(n int) []string {
	keys := make([]string, n)
	for i := range keys {
		keys[i] = fmt.Sprintf("/books/OL%dM", i+1)
	}
	return keys
}

func TestBatcher_IssuesCeilingOfNOverCChunks(t *testing.T) {
	tests := []struct {
		keys      int
		chunkSize int
		want      int
	}{
		{keys: 250, chunkSize: 100, want: 3},
		{keys: 100, chunkSize: 100, want: 1},
		{keys: 1, chunkSize: 100, want: 1},
		{keys: 101, chunkSize: 100, want: 2},
		{keys: 7, chunkSize: 3, want: 3},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_keys_chunk_%d", tt.keys, tt.chunkSize), func(t *testing.T) {
			batcher := NewBatcher[string](tt.chunkSize, zap.NewNop())
			var chunks [][]string

			err := batcher.Run(context.Background(), makeKeys(tt.keys), func(ctx context.Context, chunk []string) error {
				chunks = append(chunks, chunk)
				return nil
			})

			require.NoError(t, err)
			assert.Len(t, chunks, tt.want)
			for _, chunk := range chunks {
				assert.LessOrEqual(t, len(chunk), tt.chunkSize)
			}
		})
	}
}

func TestBatcher_UnionOfChunksEqualsInput(t *testing.T) {
	keys := makeKeys(42)
	batcher := NewBatcher[string](10, zap.NewNop())

	seen := make(map[string]int)
	err := batcher.Run(context.Background(), keys, func(ctx context.Context, chunk []string) error {
		for _, key := range chunk {
			seen[key]++
		}
		return nil
	})

	require.NoError(t, err)
	require.Len(t, seen, len(keys))
	for _, key := range keys {
		assert.Equal(t, 1, seen[key], "key %s must be sent exactly once", key)
	}
}

func TestBatcher_MergesAfterEachChunkNotAtEnd(t *testing.T) {
	// The second chunk's function must observe the first chunk's merge.
	target := make(map[string]bool)
	batcher := NewBatcher[string](2, zap.NewNop())
	keys := []string{"a", "b", "c"}

	var sawFirstChunkMerged bool
	call := 0
	err := batcher.Run(context.Background(), keys, func(ctx context.Context, chunk []string) error {
		call++
		if call == 2 {
			sawFirstChunkMerged = target["a"] && target["b"]
		}
		for _, key := range chunk {
			target[key] = true
		}
		return nil
	})

	require.NoError(t, err)
	assert.True(t, sawFirstChunkMerged)
}

func TestBatcher_ChunkFailurePropagatesAndKeepsEarlierMerges(t *testing.T) {
	target := make(map[string]bool)
	batcher := NewBatcher[string](2, zap.NewNop())
	boom := errors.New("backing store down")

	err := batcher.Run(context.Background(), []string{"a", "b", "c", "d"}, func(ctx context.Context, chunk []string) error {
		if chunk[0] == "c" {
			return boom
		}
		for _, key := range chunk {
			target[key] = true
		}
		return nil
	})

	assert.ErrorIs(t, err, boom)
	assert.True(t, target["a"])
	assert.True(t, target["b"])
	assert.False(t, target["c"])
}

func TestBatcher_EmptyInputIssuesNoCalls(t *testing.T) {
	batcher := NewBatcher[string](100, zap.NewNop())
	calls := 0

	err := batcher.Run(context.Background(), nil, func(ctx context.Context, chunk []string) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Zero(t, calls)
}

func TestBatcher_Metrics(t *testing.T) {
	batcher := NewBatcher[string](10, zap.NewNop())

	err := batcher.Run(context.Background(), makeKeys(25), func(ctx context.Context, chunk []string) error {
		return nil
	})
	require.NoError(t, err)

	metrics := batcher.GetMetrics()
	assert.Equal(t, int64(3), metrics.TotalBatches)
	assert.Equal(t, int64(25), metrics.TotalKeys)
	assert.InDelta(t, 25.0/3.0, metrics.AvgBatchSize, 0.001)
}

func TestNewBatcher_DefaultsChunkSize(t *testing.T) {
	batcher := NewBatcher[string](0, nil)
	var sizes []int

	err := batcher.Run(context.Background(), makeKeys(150), func(ctx context.Context, chunk []string) error {
		sizes = append(sizes, len(chunk))
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []int{DefaultChunkSize, 50}, sizes)
}
