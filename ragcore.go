// Package ragcore implements a Retrieval-Augmented Generation service over a
// corpus of onboarding PDFs. Documents are extracted, split into overlapping
// token-budgeted chunks, embedded, and persisted; questions are answered by
// retrieving the most relevant chunks and grounding a generated response in
// them, with citations back to the source documents.
//
// The package is organized the way a larger system exposes a documented
// public facade over an internal implementation package: Service here wires
// together the internal/rag components (Store, Extractor, Chunker, Embedder,
// Model Client, Ingestor, Retriever, Answerer, Stats) and exposes the
// operations a caller needs without requiring them to import internal/rag
// directly.
package ragcore

import (
	"context"
	"fmt"
	"time"

	"github.com/onboardrag/core/config"
	"github.com/onboardrag/core/internal/rag"
	"github.com/onboardrag/core/internal/rag/providers"
)

// Service is the top-level entry point: it owns the Store, Model Client,
// and every component built on top of them, and exposes the ingestion and
// query operations a caller needs.
type Service struct {
	store       rag.Store
	modelClient *rag.ModelClient
	ingestor    *rag.Ingestor
	retriever   *rag.Retriever
	answerer    *rag.Answerer
	stats       *rag.Stats
	vectorIndex *rag.VectorIndex
}

// New builds a Service from cfg, connecting to Postgres and constructing
// every collaborator. Callers own the returned Service's lifetime and
// should call Close when done.
func New(ctx context.Context, cfg *config.Config) (*Service, error) {
	var level rag.LogLevel
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	rag.SetGlobalLogLevel(level)

	store, err := rag.NewPostgresStore(ctx, cfg.DatabaseURL, 10)
	if err != nil {
		return nil, fmt.Errorf("build store: %w", err)
	}

	embedderFactory, err := providers.GetEmbedderFactory(cfg.EmbedProvider)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("resolve embedder provider: %w", err)
	}
	embedProvider, err := embedderFactory(map[string]interface{}{
		"api_key": cfg.EmbedAPIKey,
		"model":   cfg.EmbedModel,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("build embedder provider: %w", err)
	}

	generatorFactory, err := providers.GetGeneratorFactory(cfg.GenerateProvider)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("resolve generator provider: %w", err)
	}
	generateProvider, err := generatorFactory(map[string]interface{}{
		"api_key":     cfg.GenerateAPIKey,
		"model":       cfg.GenerateModel,
		"temperature": cfg.GenTemperature,
		"max_tokens":  cfg.GenMaxOutputTokens,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("build generator provider: %w", err)
	}

	modelClient := rag.NewModelClient(embedProvider, generateProvider,
		rag.WithRequestSpacing(cfg.ModelClientMinInterval),
		rag.WithQueueCapacity(cfg.ModelClientQueueCapacity),
		rag.WithMaxGenerateTokens(cfg.GenMaxOutputTokens),
		rag.WithGenTemperature(cfg.GenTemperature),
		rag.WithRequestTimeout(cfg.ModelClientRequestTimeout),
	)

	extractor := rag.NewExtractor()
	chunker := rag.NewTextChunker(
		rag.WithChunkSize(cfg.ChunkTokens),
		rag.WithChunkOverlap(cfg.ChunkOverlapTokens),
		rag.WithTokenCounter(rag.NewTiktokenCounter("cl100k_base")),
	)
	embedder := rag.NewEmbedder(modelClient,
		rag.WithEmbedBatchSize(cfg.EmbedBatchSize),
		rag.WithEmbedBatchInterval(cfg.EmbedBatchDelay),
	)

	var vectorIndex *rag.VectorIndex
	retrieverOpts := []rag.RetrieverOption{
		rag.WithDefaultTopK(cfg.RAGTopK),
		rag.WithDefaultMinScore(cfg.MinRelevanceScore),
	}
	ingestorOpts := []rag.IngestorOption{rag.WithChunker(chunker)}
	if cfg.VectorIndexBackend == string(rag.VectorIndexMilvus) {
		vectorIndex, err = rag.NewVectorIndex(ctx, cfg.MilvusAddress, "onboarding_chunks", embedder.Dimension())
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("build vector index: %w", err)
		}
		retrieverOpts = append(retrieverOpts, rag.WithVectorIndexBackend(rag.VectorIndexMilvus, vectorIndex))
		ingestorOpts = append(ingestorOpts, rag.WithVectorIndex(vectorIndex))
	}

	ingestor := rag.NewIngestor(store, extractor, embedder, ingestorOpts...)
	retriever := rag.NewRetriever(store, modelClient, retrieverOpts...)
	answerer := rag.NewAnswerer(retriever, modelClient)
	stats := rag.NewStats(store)

	return &Service{
		store:       store,
		modelClient: modelClient,
		ingestor:    ingestor,
		retriever:   retriever,
		answerer:    answerer,
		stats:       stats,
		vectorIndex: vectorIndex,
	}, nil
}

// Close releases every collaborator's resources.
func (s *Service) Close() {
	s.modelClient.Close()
	if s.vectorIndex != nil {
		s.vectorIndex.Close()
	}
	s.store.Close()
}

// maxUploadBytes bounds a single PDF upload at 50 MiB.
const maxUploadBytes = 50 << 20

// IngestResult is the ingestion response: the persisted document's
// metadata plus processing statistics.
type IngestResult struct {
	Document          *rag.Document
	ProcessingSeconds float64
	Pages             int
	Words             int
}

// IngestDocument runs the full ingestion pipeline over pdfBytes and returns
// the persisted document's metadata with processing statistics.
func (s *Service) IngestDocument(ctx context.Context, pdfBytes []byte, title, tagID, filename string) (*IngestResult, error) {
	if len(title) == 0 && len(filename) == 0 {
		return nil, rag.NewValidationError("a title or filename is required")
	}
	if len(pdfBytes) == 0 {
		return nil, rag.NewValidationError("pdf payload is empty")
	}
	if len(pdfBytes) > maxUploadBytes {
		return nil, rag.NewValidationError("pdf exceeds the 50 MiB upload limit")
	}

	start := time.Now()
	doc, err := s.ingestor.ProcessDocument(ctx, pdfBytes, title, tagID, filename)
	if err != nil {
		return nil, err
	}
	return &IngestResult{
		Document:          doc,
		ProcessingSeconds: time.Since(start).Seconds(),
		Pages:             doc.PageCount,
		Words:             doc.WordCount,
	}, nil
}

// ReprocessDocument re-chunks and re-embeds documentID from its stored text.
func (s *Service) ReprocessDocument(ctx context.Context, documentID string) error {
	return s.ingestor.ReprocessDocument(ctx, documentID)
}

// ReprocessAllDocuments reprocesses every document in the corpus, isolating
// per-document failures.
func (s *Service) ReprocessAllDocuments(ctx context.Context) (*rag.BatchResult, error) {
	return s.ingestor.ReprocessAllDocuments(ctx)
}

// DeleteDocument removes a document and its chunks.
func (s *Service) DeleteDocument(ctx context.Context, documentID string) error {
	return s.ingestor.DeleteDocument(ctx, documentID)
}

// Ask answers question using the current corpus, optionally attributing the
// query to userID for logging purposes.
func (s *Service) Ask(ctx context.Context, question, userID string) (*rag.Answer, error) {
	if question == "" {
		return nil, rag.NewValidationError("question must not be empty")
	}
	rag.GlobalLogger.Debug("answering question", "userID", userID)
	return s.answerer.Answer(ctx, question, 0, -1)
}

// Stats computes a fresh Knowledge-Base Stats snapshot.
func (s *Service) Stats(ctx context.Context) (*rag.KnowledgeBaseStats, error) {
	return s.stats.Compute(ctx)
}

// Health reports whether the Store is reachable and the corpus has at
// least one answerable document, for an external transport's readiness
// probe to expose.
func (s *Service) Health(ctx context.Context) (bool, error) {
	stats, err := s.stats.Compute(ctx)
	if err != nil {
		return false, err
	}
	return stats.IsReady, nil
}

// QuerySource is the caller-facing projection of a RetrievalSource: an
// excerpt rather than the full chunk text, and only the metadata fields the
// external interface exposes.
type QuerySource struct {
	ChunkID        string
	DocumentID     string
	DocumentTitle  string
	ChunkIndex     int
	RelevanceScore float64
	Excerpt        string
	Author         string
	DocumentType   string
}

// QueryResult is the external query response shape.
type QueryResult struct {
	Answer              string
	Confidence          float64
	ResponseTimeSeconds float64
	Sources             []QuerySource
	SourceCount         int
	AvgRelevanceScore   float64
	TopRelevanceScore   float64
}

// Query answers question and projects the result into the external
// interface shape, including per-source excerpts and aggregate relevance
// metadata.
func (s *Service) Query(ctx context.Context, question, userID string) (*QueryResult, error) {
	answer, err := s.Ask(ctx, question, userID)
	if err != nil {
		return nil, err
	}

	result := &QueryResult{
		Answer:              answer.Text,
		Confidence:          answer.Confidence,
		ResponseTimeSeconds: answer.ResponseTimeSeconds,
		SourceCount:         len(answer.Sources),
	}

	var sum, top float64
	for _, src := range answer.Sources {
		result.Sources = append(result.Sources, QuerySource{
			ChunkID:        src.ChunkID,
			DocumentID:     src.DocumentID,
			DocumentTitle:  src.DocumentTitle,
			ChunkIndex:     src.ChunkIndex,
			RelevanceScore: src.RelevanceScore,
			Excerpt:        rag.Excerpt(src),
			Author:         src.Metadata.Author,
			DocumentType:   src.Metadata.DocumentType,
		})
		sum += src.RelevanceScore
		if src.RelevanceScore > top {
			top = src.RelevanceScore
		}
	}
	if len(answer.Sources) > 0 {
		result.AvgRelevanceScore = sum / float64(len(answer.Sources))
		result.TopRelevanceScore = top
	}

	return result, nil
}
