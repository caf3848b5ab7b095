package rag

import (
	"context"
)

// DocumentError pairs a document id with the error encountered while
// reprocessing it, so a batch failure is reported per-document rather
// than aborting the whole run.
type DocumentError struct {
	DocumentID string
	Err        error
}

// BatchResult reports how many documents were reprocessed and which, if
// any, failed.
type BatchResult struct {
	Processed int
	Errors    []DocumentError
}

// Ingestor owns the full ingestion pipeline: extraction, metadata merging,
// chunking, embedding, and persistence.
type Ingestor struct {
	store       Store
	extractor   *Extractor
	chunker     *TextChunker
	embedder    *Embedder
	vectorIndex *VectorIndex
}

// IngestorOption configures an Ingestor.
type IngestorOption func(*Ingestor)

// WithChunker overrides the default chunker.
func WithChunker(chunker *TextChunker) IngestorOption {
	return func(i *Ingestor) { i.chunker = chunker }
}

// WithVectorIndex wires a Milvus-backed VectorIndex as a write-through
// target: every chunk set persisted to the Store is also upserted into the
// index, and removed from it alongside the Store, so the Retriever's
// Milvus backend stays in sync with the Store.
func WithVectorIndex(vectorIndex *VectorIndex) IngestorOption {
	return func(i *Ingestor) { i.vectorIndex = vectorIndex }
}

// NewIngestor creates an Ingestor wiring store, extractor, and embedder.
func NewIngestor(store Store, extractor *Extractor, embedder *Embedder, opts ...IngestorOption) *Ingestor {
	ing := &Ingestor{
		store:     store,
		extractor: extractor,
		chunker:   NewTextChunker(),
		embedder:  embedder,
	}
	for _, opt := range opts {
		opt(ing)
	}
	return ing
}

// ProcessDocument runs the full pipeline on pdfBytes and returns the
// persisted Document's metadata.
func (i *Ingestor) ProcessDocument(ctx context.Context, pdfBytes []byte, title, tagID, filename string) (*Document, error) {
	extracted, err := i.extractor.Extract(pdfBytes, filename)
	if err != nil {
		return nil, err
	}

	finalTitle := title
	if finalTitle == "" {
		finalTitle = extracted.Title
	}
	if finalTitle == "" && filename != "" {
		finalTitle = deriveTitleFromFilename(filename)
	}
	if finalTitle == "" {
		finalTitle = "Untitled Document"
	}

	doc := &Document{
		Title:      finalTitle,
		Author:     extracted.Author,
		TagID:      tagID,
		Content:    extracted.Text,
		PageCount:  extracted.PageCount,
		WordCount:  extracted.WordCount,
		Metadata:   extracted.Metadata,
	}

	if err := i.store.InsertDocument(ctx, doc); err != nil {
		return nil, err
	}

	if err := i.chunkEmbedAndStore(ctx, doc, extracted.Sections); err != nil {
		GlobalLogger.Error("post-insert pipeline failed; document persisted without chunks", "document", doc.ID, "error", err)
		return doc, nil
	}

	return doc, nil
}

// chunkEmbedAndStore runs chunking, embedding, and bulk insert for an
// already-persisted document. Chunks whose embedding failed are dropped;
// the surviving chunks are renumbered contiguously before insert so chunk
// indices stay contiguous regardless of which ones failed.
func (i *Ingestor) chunkEmbedAndStore(ctx context.Context, doc *Document, sections []Section) error {
	chunks := i.chunker.Chunk(doc.Content)
	if len(chunks) == 0 {
		return nil
	}
	attachSectionTitles(chunks, sections)
	for idx := range chunks {
		chunks[idx].DocumentID = doc.ID
		chunks[idx].Metadata.DocumentTitle = doc.Title
		chunks[idx].Metadata.DocumentType = doc.Metadata.DocumentType
		chunks[idx].Metadata.Author = doc.Author
	}

	texts := make([]string, len(chunks))
	for idx, c := range chunks {
		texts[idx] = c.Text
	}

	results := i.embedder.EmbedTexts(ctx, texts)

	var succeeded []Chunk
	for idx, r := range results {
		if r.Err != nil {
			continue
		}
		c := chunks[idx]
		c.Embedding = r.Embedding
		succeeded = append(succeeded, c)
	}

	if len(succeeded) == 0 {
		return NewEmbeddingPartial("no chunks embedded successfully")
	}
	for idx := range succeeded {
		succeeded[idx].Index = idx
	}

	if err := i.store.BulkInsertChunks(ctx, doc.ID, succeeded); err != nil {
		return err
	}
	if i.vectorIndex != nil {
		if err := i.vectorIndex.Upsert(ctx, succeeded); err != nil {
			return err
		}
	}

	if len(succeeded) < len(chunks) {
		GlobalLogger.Warn("partial embedding failure", "document", doc.ID, "succeeded", len(succeeded), "total", len(chunks))
	}
	return nil
}

// attachSectionTitles assigns each chunk a section title by mapping chunk
// position proportionally onto section position, when sections were
// extracted.
func attachSectionTitles(chunks []Chunk, sections []Section) {
	if len(sections) == 0 {
		return
	}
	for idx := range chunks {
		// Sections carry no char offsets of their own; a best-effort
		// assignment uses the section order versus chunk order rather
		// than a precise offset lookup.
		sectionIdx := idx * len(sections) / max(len(chunks), 1)
		if sectionIdx < len(sections) {
			chunks[idx].Metadata.SectionTitle = sections[sectionIdx].Title
		}
	}
}

// ReprocessDocument loads documentID's stored text, re-chunks, re-embeds,
// and atomically replaces its chunk set.
// Safe to call repeatedly: each call yields a consistent chunk set.
func (i *Ingestor) ReprocessDocument(ctx context.Context, documentID string) error {
	doc, err := i.store.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}

	chunks := i.chunker.Chunk(doc.Content)
	for idx := range chunks {
		chunks[idx].DocumentID = doc.ID
		chunks[idx].Metadata.DocumentTitle = doc.Title
		chunks[idx].Metadata.DocumentType = doc.Metadata.DocumentType
		chunks[idx].Metadata.Author = doc.Author
	}

	texts := make([]string, len(chunks))
	for idx, c := range chunks {
		texts[idx] = c.Text
	}
	results := i.embedder.EmbedTexts(ctx, texts)

	var succeeded []Chunk
	for idx, r := range results {
		if r.Err != nil {
			continue
		}
		c := chunks[idx]
		c.Embedding = r.Embedding
		succeeded = append(succeeded, c)
	}
	if len(chunks) > 0 && len(succeeded) == 0 {
		return NewEmbeddingPartial("no chunks embedded successfully")
	}
	for idx := range succeeded {
		succeeded[idx].Index = idx
	}

	if err := i.store.ReplaceChunks(ctx, documentID, succeeded); err != nil {
		return err
	}
	if i.vectorIndex != nil {
		if err := i.vectorIndex.DeleteDocument(ctx, documentID); err != nil {
			return err
		}
		if err := i.vectorIndex.Upsert(ctx, succeeded); err != nil {
			return err
		}
	}
	return nil
}

// ReprocessAllDocuments reprocesses every document in the store, isolating
// per-document failures so one bad document cannot abort the batch.
func (i *Ingestor) ReprocessAllDocuments(ctx context.Context) (*BatchResult, error) {
	docs, err := i.store.ListDocumentsWithStats(ctx)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{}
	for _, d := range docs {
		if err := i.ReprocessDocument(ctx, d.ID); err != nil {
			result.Errors = append(result.Errors, DocumentError{DocumentID: d.ID, Err: err})
			continue
		}
		result.Processed++
	}
	return result, nil
}

// DeleteDocument removes a document and its chunks from the store, and
// from the vector index when one is wired.
func (i *Ingestor) DeleteDocument(ctx context.Context, documentID string) error {
	if err := i.store.DeleteDocument(ctx, documentID); err != nil {
		return err
	}
	if i.vectorIndex != nil {
		return i.vectorIndex.DeleteDocument(ctx, documentID)
	}
	return nil
}
