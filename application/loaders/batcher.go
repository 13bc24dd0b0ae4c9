// Package loaders provides the batching layer used by every preload path.
package loaders

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DefaultChunkSize bounds how many keys go into one backing-store call
const DefaultChunkSize = 100

// ChunkFunction is the backing call issued once per chunk. It merges its own
// results into the target cache; the batcher never sees the values.
type ChunkFunction[K comparable] func(context.Context, []K) error

// Batcher partitions an arbitrary-size key set into bounded chunks and issues
// one blocking backing call per chunk, sequentially — no concurrent-chunk
// fan-out. Retry policy belongs to the backing collaborator, not this layer.
type Batcher[K comparable] struct {
	chunkSize int

	// Metrics
	totalBatches int64
	totalKeys    int64

	logger *zap.Logger
}

// NewBatcher creates a new batcher with the given chunk size
func NewBatcher[K comparable](chunkSize int, logger *zap.Logger) *Batcher[K] {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Batcher[K]{
		chunkSize: chunkSize,
		logger:    logger,
	}
}

// Run invokes fn once per chunk, in key order. Each chunk's results are
// merged by fn immediately after that chunk completes, not after all chunks.
// A chunk failure propagates to the caller unchanged; chunks already merged
// stay merged.
func (b *Batcher[K]) Run(ctx context.Context, keys []K, fn ChunkFunction[K]) error {
	if len(keys) == 0 {
		return nil
	}

	chunks := b.divideIntoChunks(keys)

	for i, chunk := range chunks {
		startTime := time.Now()
		if err := fn(ctx, chunk); err != nil {
			b.logger.Debug("Batch chunk failed",
				zap.Int("chunk_number", i+1),
				zap.Int("total_chunks", len(chunks)),
				zap.Int("chunk_size", len(chunk)),
				zap.Error(err))
			return err
		}

		b.totalBatches++
		b.totalKeys += int64(len(chunk))

		b.logger.Debug("Batch chunk executed",
			zap.Int("chunk_number", i+1),
			zap.Int("total_chunks", len(chunks)),
			zap.Int("chunk_size", len(chunk)),
			zap.Duration("duration", time.Since(startTime)))
	}

	return nil
}

// divideIntoChunks splits keys into ordered chunks of at most chunkSize
func (b *Batcher[K]) divideIntoChunks(keys []K) [][]K {
	chunks := make([][]K, 0, (len(keys)+b.chunkSize-1)/b.chunkSize)
	for start := 0; start < len(keys); start += b.chunkSize {
		end := start + b.chunkSize
		if end > len(keys) {
			end = len(keys)
		}
		chunks = append(chunks, keys[start:end])
	}
	return chunks
}

// GetMetrics returns batching metrics
func (b *Batcher[K]) GetMetrics() BatcherMetrics {
	avgBatchSize := float64(0)
	if b.totalBatches > 0 {
		avgBatchSize = float64(b.totalKeys) / float64(b.totalBatches)
	}

	return BatcherMetrics{
		TotalBatches: b.totalBatches,
		TotalKeys:    b.totalKeys,
		AvgBatchSize: avgBatchSize,
	}
}

// BatcherMetrics holds metrics for the batcher
type BatcherMetrics struct {
	TotalBatches int64
	TotalKeys    int64
	AvgBatchSize float64
}
