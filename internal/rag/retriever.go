package rag

import (
	"context"
	"math"
	"sort"
)

const (
	defaultTopK     = 5
	defaultMinScore = 0.3
)

// VectorIndexBackend selects how the Retriever finds nearest neighbors.
type VectorIndexBackend string

const (
	// VectorIndexScan does an in-process cosine similarity scan over every
	// embedded chunk the Store streams back. This is the default and the
	// only backend the retrieval contract requires.
	VectorIndexScan VectorIndexBackend = "scan"
	// VectorIndexMilvus delegates nearest-neighbor search to a Milvus
	// collection, for corpora where an in-process scan no longer scales
	// (see VectorIndex).
	VectorIndexMilvus VectorIndexBackend = "milvus"
)

// Retriever answers a query by embedding it, scanning embedded chunks for
// cosine similarity, and returning the topK most relevant as Retrieval
// Sources.
type Retriever struct {
	store       Store
	client      *ModelClient
	backend     VectorIndexBackend
	vectorIndex *VectorIndex

	defaultTopK     int
	defaultMinScore float64
}

// RetrieverOption configures a Retriever via the functional options
// pattern.
type RetrieverOption func(*Retriever)

// WithVectorIndexBackend selects scan (default) or milvus.
func WithVectorIndexBackend(backend VectorIndexBackend, index *VectorIndex) RetrieverOption {
	return func(r *Retriever) {
		r.backend = backend
		r.vectorIndex = index
	}
}

// WithDefaultTopK overrides the topK used when a caller passes 0.
func WithDefaultTopK(k int) RetrieverOption {
	return func(r *Retriever) { r.defaultTopK = k }
}

// WithDefaultMinScore overrides the minScore used when a caller passes a
// negative value (0 is a valid, deliberately permissive threshold).
func WithDefaultMinScore(s float64) RetrieverOption {
	return func(r *Retriever) { r.defaultMinScore = s }
}

// NewRetriever creates a Retriever over store using client to embed
// queries.
func NewRetriever(store Store, client *ModelClient, opts ...RetrieverOption) *Retriever {
	r := &Retriever{
		store:           store,
		client:          client,
		backend:         VectorIndexScan,
		defaultTopK:     defaultTopK,
		defaultMinScore: defaultMinScore,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve embeds query, scores every embedded chunk by cosine similarity,
// discards candidates below minScore, and returns the topK highest-scoring
// results in deterministic order.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int, minScore float64) ([]RetrievalSource, error) {
	if topK <= 0 {
		topK = r.defaultTopK
	}
	if minScore < 0 {
		minScore = r.defaultMinScore
	}

	queryVec, err := r.client.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	if r.backend == VectorIndexMilvus && r.vectorIndex != nil {
		return r.vectorIndex.Search(ctx, queryVec, topK, minScore)
	}

	var candidates []RetrievalSource
	err = r.store.GetAllChunksWithEmbeddings(ctx, func(c Chunk) error {
		score := cosineSimilarity(queryVec, c.Embedding)
		if score < minScore {
			return nil
		}
		candidates = append(candidates, RetrievalSource{
			ChunkID:        c.ID,
			DocumentID:     c.DocumentID,
			DocumentTitle:  c.Metadata.DocumentTitle,
			ChunkIndex:     c.Index,
			ChunkText:      c.Text,
			RelevanceScore: score,
			Metadata:       c.Metadata,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(candidates) == 0 {
		return []RetrievalSource{}, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].RelevanceScore != candidates[j].RelevanceScore {
			return candidates[i].RelevanceScore > candidates[j].RelevanceScore
		}
		if candidates[i].DocumentID != candidates[j].DocumentID {
			return candidates[i].DocumentID < candidates[j].DocumentID
		}
		return candidates[i].ChunkIndex < candidates[j].ChunkIndex
	})

	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates, nil
}

// cosineSimilarity computes dot(a,b) / (||a|| * ||b||), treating a
// zero-norm denominator as similarity 0 rather than NaN or infinity.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}
