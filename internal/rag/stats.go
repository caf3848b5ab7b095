package rag

import (
	"context"
	"sort"
)

// KnowledgeBaseStats aggregates the corpus-level view over the Store used
// by the admin-facing dashboard.
type KnowledgeBaseStats struct {
	TotalDocuments          int
	TotalChunks             int
	TotalWords              int
	DocumentsWithEmbeddings int
	AverageChunksPerDoc     float64
	DocumentTypeCounts      map[string]int
	RecentUploads           []Document
	IsReady                 bool
}

// Stats computes a KnowledgeBaseStats snapshot.
type Stats struct {
	store Store
}

// NewStats creates a Stats reader over store.
func NewStats(store Store) *Stats {
	return &Stats{store: store}
}

// Compute aggregates totals, embedding readiness, document type
// distribution, and the five most recent uploads.
func (s *Stats) Compute(ctx context.Context) (*KnowledgeBaseStats, error) {
	docs, err := s.store.ListDocumentsWithStats(ctx)
	if err != nil {
		return nil, err
	}

	out := &KnowledgeBaseStats{
		DocumentTypeCounts: make(map[string]int),
	}
	out.TotalDocuments = len(docs)

	for _, d := range docs {
		out.TotalChunks += d.ChunkCount
		out.TotalWords += d.WordCount
		if d.HasEmbeddings {
			out.DocumentsWithEmbeddings++
		}
		out.DocumentTypeCounts[d.Metadata.DocumentType]++
	}

	if out.TotalDocuments > 0 {
		out.AverageChunksPerDoc = float64(out.TotalChunks) / float64(out.TotalDocuments)
	}
	out.IsReady = out.DocumentsWithEmbeddings > 0

	sorted := make([]DocumentStats, len(docs))
	copy(sorted, docs)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].UploadedAt.After(sorted[j].UploadedAt)
	})
	limit := 5
	if len(sorted) < limit {
		limit = len(sorted)
	}
	for i := 0; i < limit; i++ {
		out.RecentUploads = append(out.RecentUploads, sorted[i].Document)
	}

	return out, nil
}
