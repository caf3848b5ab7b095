package rag

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testIngestor wires an Ingestor over a fakeStore/fakeEmbedder pair,
// bypassing the Extractor so tests exercise chunking/embedding/persistence
// directly against known text. The embedder is routed through a
// ModelClient, same as production wiring, with spacing tightened so the
// tests run fast.
func testIngestor(t *testing.T, store *fakeStore, embedder *fakeEmbedder, chunker *TextChunker) *Ingestor {
	t.Helper()
	if chunker == nil {
		chunker = NewTextChunker()
	}
	client := NewModelClient(embedder, &fakeGenerator{}, WithRequestSpacing(1*time.Millisecond))
	t.Cleanup(client.Close)
	return NewIngestor(store, NewExtractor(), NewEmbedder(client), WithChunker(chunker))
}

func TestIngestor_ChunkEmbedAndStore_AllSucceed(t *testing.T) {
	store := newFakeStore()
	embedder := newFakeEmbedder(8)
	ing := testIngestor(t, store, embedder, nil)

	doc := &Document{Title: "Holidays Policy"}
	require.NoError(t, store.InsertDocument(context.Background(), doc))

	doc.Content = "Company holidays include New Year's Day.\n\nAll full-time employees get these days off."
	err := ing.chunkEmbedAndStore(context.Background(), doc, nil)
	require.NoError(t, err)

	stored := store.chunks[doc.ID]
	require.Len(t, stored, 1)
	assert.Equal(t, 0, stored[0].Index)
	assert.NotNil(t, stored[0].Embedding)
	assert.Equal(t, "Holidays Policy", stored[0].Metadata.DocumentTitle)
}

// Partial embedding failure still persists the chunks that succeeded,
// renumbered contiguously.
func TestIngestor_PartialEmbeddingFailurePersistsSucceededChunks(t *testing.T) {
	store := newFakeStore()
	embedder := newFakeEmbedder(8)

	text := "Paragraph Alpha with enough distinct words to fill a chunk on its own merits here.\n\n" +
		"Paragraph Beta which will fail to embed in this particular test run right now.\n\n" +
		"Paragraph Gamma that succeeds again after the failure to prove persistence continues.\n\n" +
		"Paragraph Delta rounding out the set of four independent paragraphs for this case."
	embedder.failOn["Paragraph Beta which will fail to embed in this particular test run right now."] = true

	chunker := NewTextChunker(WithChunkSize(25), WithChunkOverlap(0)) // maxChars=100, forces one paragraph per chunk, no overlap bleed
	ing := testIngestor(t, store, embedder, chunker)

	doc := &Document{Title: "Four Paragraphs"}
	require.NoError(t, store.InsertDocument(context.Background(), doc))
	doc.Content = text

	err := ing.chunkEmbedAndStore(context.Background(), doc, nil)
	require.NoError(t, err)

	stored := store.chunks[doc.ID]
	require.Len(t, stored, 3) // one of four failed
	for i, c := range stored {
		assert.Equal(t, i, c.Index) // contiguous after renumbering
		assert.NotContains(t, c.Text, "Beta")
	}
}

func TestIngestor_AllEmbeddingsFailReturnsEmbeddingPartial(t *testing.T) {
	store := newFakeStore()
	embedder := newFakeEmbedder(8)

	doc := &Document{Title: "Doc"}
	require.NoError(t, store.InsertDocument(context.Background(), doc))
	doc.Content = "Only one paragraph here."
	embedder.failOn["Only one paragraph here."] = true

	ing := testIngestor(t, store, embedder, nil)
	err := ing.chunkEmbedAndStore(context.Background(), doc, nil)
	require.Error(t, err)
	assert.Equal(t, KindEmbeddingPartial, KindOf(err))
	assert.Empty(t, store.chunks[doc.ID])
}

// Reprocessing from identical stored text yields a stable chunk
// count and identical chunk texts.
func TestIngestor_ReprocessIsStable(t *testing.T) {
	store := newFakeStore()
	embedder := newFakeEmbedder(8)
	ing := testIngestor(t, store, embedder, nil)

	ctx := context.Background()
	doc := &Document{Title: "Stable Doc", Content: "Paragraph one.\n\nParagraph two.\n\nParagraph three."}
	require.NoError(t, store.InsertDocument(ctx, doc))
	require.NoError(t, ing.ReprocessDocument(ctx, doc.ID))

	first := append([]Chunk(nil), store.chunks[doc.ID]...)
	require.NoError(t, ing.ReprocessDocument(ctx, doc.ID))
	second := store.chunks[doc.ID]

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Text, second[i].Text)
		assert.Equal(t, first[i].Index, second[i].Index)
	}
}

func TestIngestor_ReprocessAllDocumentsIsolatesFailures(t *testing.T) {
	store := newFakeStore()
	embedder := newFakeEmbedder(8)
	ing := testIngestor(t, store, embedder, nil)

	ctx := context.Background()
	good := &Document{Title: "Good Doc", Content: "Some fine paragraph content here."}
	bad := &Document{Title: "Bad Doc", Content: "This paragraph will not embed at all."}
	require.NoError(t, store.InsertDocument(ctx, good))
	require.NoError(t, store.InsertDocument(ctx, bad))
	embedder.failOn["This paragraph will not embed at all."] = true

	result, err := ing.ReprocessAllDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, bad.ID, result.Errors[0].DocumentID)
}

func TestIngestor_DeleteDocument(t *testing.T) {
	store := newFakeStore()
	embedder := newFakeEmbedder(8)
	ing := testIngestor(t, store, embedder, nil)

	ctx := context.Background()
	doc := &Document{Title: "To Delete"}
	require.NoError(t, store.InsertDocument(ctx, doc))

	require.NoError(t, ing.DeleteDocument(ctx, doc.ID))
	_, err := store.GetDocument(ctx, doc.ID)
	assert.Equal(t, KindNotFound, KindOf(err))
}
