package rag

import (
	"context"
	"time"
)

const (
	defaultEmbedBatchSize     = 5
	defaultEmbedBatchInterval = 500 * time.Millisecond
)

// Embedder batches chunk texts through the Model Client, so ingestion's
// bulk embedding volume serializes through the same FIFO queue and rate
// limiter every other Model Client caller uses. The Model Client remains
// the only component that ever talks to the embedding provider directly;
// Embedder only adds the inter-batch pacing that keeps one document's
// ingestion from monopolizing the queue.
type Embedder struct {
	client        *ModelClient
	batchSize     int
	batchInterval time.Duration
}

// EmbedderOption configures an Embedder via the functional options
// pattern.
type EmbedderOption func(*Embedder)

// WithEmbedBatchSize overrides how many chunks are submitted to the Model
// Client per batch before pausing.
func WithEmbedBatchSize(n int) EmbedderOption {
	return func(e *Embedder) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithEmbedBatchInterval overrides the pause between batches.
func WithEmbedBatchInterval(d time.Duration) EmbedderOption {
	return func(e *Embedder) {
		if d > 0 {
			e.batchInterval = d
		}
	}
}

// NewEmbedder wraps client, batching embedding requests through it.
func NewEmbedder(client *ModelClient, opts ...EmbedderOption) *Embedder {
	e := &Embedder{
		client:        client,
		batchSize:     defaultEmbedBatchSize,
		batchInterval: defaultEmbedBatchInterval,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Dimension returns the fixed vector size the Model Client's embedding
// provider produces. Two vectors of different dimensions must never be
// compared.
func (e *Embedder) Dimension() int {
	return e.client.Dimension()
}

// EmbedResult pairs an input index with either a vector or an error, so
// callers can tell which chunks failed without losing ordering.
type EmbedResult struct {
	Index     int
	Embedding []float64
	Err       error
}

// EmbedTexts embeds every text in batches of batchSize, routing each batch
// through the Model Client's EmbedBatch and sleeping batchInterval between
// batches. A per-item failure is recorded in that item's EmbedResult.Err
// without aborting the remaining items; the Model Client's own queue is
// the sole point that bounds how much embedding work is in flight at once.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) []EmbedResult {
	results := make([]EmbedResult, len(texts))

	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch := e.client.EmbedBatch(ctx, texts[start:end])
		for i, r := range batch {
			idx := start + i
			if r.Err != nil {
				GlobalLogger.Error("embedding failed", "index", idx, "error", r.Err)
			}
			results[idx] = EmbedResult{Index: idx, Embedding: r.Embedding, Err: r.Err}
		}

		if end < len(texts) {
			select {
			case <-ctx.Done():
				for i := end; i < len(texts); i++ {
					results[i] = EmbedResult{Index: i, Err: ctx.Err()}
				}
				return results
			case <-time.After(e.batchInterval):
			}
		}
	}

	succeeded := 0
	for _, r := range results {
		if r.Err == nil {
			succeeded++
		}
	}
	if succeeded < len(texts) {
		GlobalLogger.Warn("embedding batch had partial failures", "succeeded", succeeded, "total", len(texts))
	}

	return results
}
