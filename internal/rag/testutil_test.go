package rag

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/onboardrag/core/internal/rag/providers"
)

// fakeStore is an in-memory Store used across the package's tests so
// Ingestor/Retriever/Stats behavior can be exercised without a real
// Postgres connection.
type fakeStore struct {
	mu        sync.Mutex
	documents map[string]*Document
	chunks    map[string][]Chunk // documentID -> chunks, insertion order
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		documents: make(map[string]*Document),
		chunks:    make(map[string][]Chunk),
	}
}

func (s *fakeStore) InsertDocument(ctx context.Context, doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	cp := *doc
	s.documents[doc.ID] = &cp
	return nil
}

func (s *fakeStore) BulkInsertChunks(ctx context.Context, documentID string, chunks []Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[documentID]; !ok {
		return NewNotFound("document not found")
	}
	stored := make([]Chunk, len(chunks))
	for i, c := range chunks {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		c.DocumentID = documentID
		stored[i] = c
	}
	s.chunks[documentID] = append(s.chunks[documentID], stored...)
	return nil
}

func (s *fakeStore) ReplaceChunks(ctx context.Context, documentID string, chunks []Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]Chunk, len(chunks))
	for i, c := range chunks {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		c.DocumentID = documentID
		stored[i] = c
	}
	s.chunks[documentID] = stored
	return nil
}

func (s *fakeStore) DeleteDocument(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[documentID]; !ok {
		return NewNotFound("document not found")
	}
	delete(s.documents, documentID)
	delete(s.chunks, documentID)
	return nil
}

func (s *fakeStore) GetDocument(ctx context.Context, documentID string) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[documentID]
	if !ok {
		return nil, NewNotFound(fmt.Sprintf("document %s not found", documentID))
	}
	cp := *doc
	return &cp, nil
}

func (s *fakeStore) ListDocumentsWithStats(ctx context.Context) ([]DocumentStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []DocumentStats
	for id, doc := range s.documents {
		chunks := s.chunks[id]
		hasEmbeddings := false
		for _, c := range chunks {
			if c.Embedding != nil {
				hasEmbeddings = true
				break
			}
		}
		out = append(out, DocumentStats{
			Document:      *doc,
			ChunkCount:    len(chunks),
			HasEmbeddings: hasEmbeddings,
		})
	}
	return out, nil
}

func (s *fakeStore) GetAllChunksWithEmbeddings(ctx context.Context, fn func(Chunk) error) error {
	s.mu.Lock()
	var all []Chunk
	for _, chunks := range s.chunks {
		for _, c := range chunks {
			if c.Embedding != nil {
				all = append(all, c)
			}
		}
	}
	s.mu.Unlock()

	for _, c := range all {
		if err := fn(c); err != nil {
			return err
		}
	}
	return nil
}

func (s *fakeStore) Close() {}

// fakeEmbedder is a deterministic providers.Embedder: the vector is derived
// from the text so identical text always yields identical (and trivially
// self-similar) embeddings, without ever calling a network provider.
type fakeEmbedder struct {
	dimension int
	failOn    map[string]bool
	calls     []string
	mu        sync.Mutex
}

func newFakeEmbedder(dimension int) *fakeEmbedder {
	return &fakeEmbedder{dimension: dimension, failOn: make(map[string]bool)}
}

func (e *fakeEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	e.mu.Lock()
	e.calls = append(e.calls, text)
	fail := e.failOn[text]
	e.mu.Unlock()

	if fail {
		return nil, fmt.Errorf("simulated embedding failure")
	}
	return deterministicVector(text, e.dimension), nil
}

func (e *fakeEmbedder) Dimension() int { return e.dimension }

// deterministicVector hashes text into a fixed-dimension vector so the same
// text always embeds to the same point, and distinct texts embed to
// different points.
func deterministicVector(text string, dim int) []float64 {
	vec := make([]float64, dim)
	seed := 0
	for _, r := range text {
		seed = seed*31 + int(r)
	}
	for i := range vec {
		v := (seed + i*7919) % 1000
		vec[i] = float64(v) / 1000.0
	}
	return vec
}

// fakeGenerator is a providers.Generator stub returning a fixed response,
// recording the prompts and generation options it was called with.
type fakeGenerator struct {
	response string
	err      error
	calls    []string
	opts     []providers.GenOptions
	mu       sync.Mutex
}

func (g *fakeGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string, opts providers.GenOptions) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, userPrompt)
	g.opts = append(g.opts, opts)
	g.mu.Unlock()
	if g.err != nil {
		return "", g.err
	}
	return g.response, nil
}
