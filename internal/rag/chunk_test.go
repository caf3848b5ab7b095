package rag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApproxTokenCounter(t *testing.T) {
	c := ApproxTokenCounter{}
	assert.Equal(t, 0, c.Count(""))
	assert.Equal(t, 1, c.Count("abcd"))
	assert.Equal(t, 2, c.Count("abcde"))
	assert.Equal(t, 3, c.Count("12345678"+"x"))
}

// Empty text yields no chunks.
func TestChunk_EmptyText(t *testing.T) {
	tc := NewTextChunker()
	chunks := tc.Chunk("")
	assert.Empty(t, chunks)
}

// A short, two-paragraph document under the chunk budget is emitted as
// exactly one chunk with contiguous indexing.
func TestChunk_SingleChunkUnderBudget(t *testing.T) {
	text := "Company holidays include New Year's Day, Memorial Day, and Independence Day.\n\n" +
		"All full-time employees are entitled to these paid holidays."
	tc := NewTextChunker()
	chunks := tc.Chunk(text)

	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
	assert.NotEmpty(t, chunks[0].Text)
	assert.True(t, strings.Contains(chunks[0].Text, "Independence Day"))
}

// A single paragraph longer than chunkSize*4 with no sentence boundary to
// split on is hard-split at the budget, with indices staying monotone.
func TestChunk_OversizeParagraphNoSentenceBoundary(t *testing.T) {
	tc := NewTextChunker(WithChunkSize(10), WithChunkOverlap(2)) // maxChars = 40
	para := strings.Repeat("a", 200)                             // no '.', '!', '?'

	chunks := tc.Chunk(para)
	require.Len(t, chunks, 5)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, 40, len(c.Text))
	}
}

// An oversize paragraph WITH sentence
// boundaries is split into multiple pieces, each within budget, with
// monotone indices.
func TestChunk_OversizeParagraphWithSentences(t *testing.T) {
	tc := NewTextChunker(WithChunkSize(10), WithChunkOverlap(2)) // maxChars = 40
	sentence := "This is sentence number X right here. "
	var b strings.Builder
	for i := 0; i < 10; i++ {
		b.WriteString(strings.Replace(sentence, "X", string(rune('0'+i)), 1))
	}
	para := strings.TrimSpace(b.String())

	chunks := tc.Chunk(para)
	require.True(t, len(chunks) > 1, "expected the oversize paragraph to be split")
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.NotEmpty(t, c.Text)
	}
}

// An oversize paragraph that follows a normal one must still be routed
// through the split fallback: the chunk in progress is closed out first,
// never glued to the oversize paragraph.
func TestChunk_OversizeParagraphAfterNormalParagraph(t *testing.T) {
	tc := NewTextChunker(WithChunkSize(10), WithChunkOverlap(2)) // maxChars = 40
	text := "short para\n\n" + strings.Repeat("a", 200)

	chunks := tc.Chunk(text)
	require.True(t, len(chunks) > 1, "expected the oversize paragraph to be split off")
	assert.Equal(t, "short para", chunks[0].Text)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		if i > 0 {
			assert.LessOrEqual(t, len(c.Text), 40)
		}
	}
}

// A two-paragraph document whose concatenation exceeds the budget
// produces exactly two chunks, the second seeded with an overlap prefix
// that is a suffix of the first, bounded by overlapSize*4.
func TestChunk_TwoChunksWithOverlap(t *testing.T) {
	paraA := strings.Repeat("Alpha sentence content. ", 75) // ~1800 chars
	paraB := strings.Repeat("Beta sentence content. ", 75)  // ~1800 chars
	text := strings.TrimSpace(paraA) + "\n\n" + strings.TrimSpace(paraB)

	tc := NewTextChunker(WithChunkSize(512), WithChunkOverlap(50)) // maxChars=2048, overlapChars=200
	chunks := tc.Chunk(text)

	require.Len(t, chunks, 2)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, 1, chunks[1].Index)

	// Chunk 1 is the overlap prefix, then "\n\n", then paragraph B.
	sep := strings.Index(chunks[1].Text, "\n\n")
	require.True(t, sep > 0, "expected chunk 1 to begin with an overlap prefix")
	overlapPrefix := chunks[1].Text[:sep]
	assert.True(t, strings.HasSuffix(chunks[0].Text, overlapPrefix))
	// The overlap prefix of chunk 1 must not exceed overlapSize*4 characters.
	assert.LessOrEqual(t, len(overlapPrefix), 200)
}

// Chunk indices are 0,1,2,... and every chunk's trimmed text is
// non-empty.
func TestChunk_ManyParagraphsMonotoneIndices(t *testing.T) {
	var paras []string
	for i := 0; i < 30; i++ {
		paras = append(paras, strings.Repeat("word ", 40))
	}
	text := strings.Join(paras, "\n\n")

	tc := NewTextChunker(WithChunkSize(50), WithChunkOverlap(10))
	chunks := tc.Chunk(text)

	require.True(t, len(chunks) > 1)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.NotEmpty(t, strings.TrimSpace(c.Text))
	}
}

// fixedTokenCounter reports the same count for any text, so its count is
// distinguishable from the char-based approximation.
type fixedTokenCounter struct{ n int }

func (f fixedTokenCounter) Count(string) int { return f.n }

func TestChunk_CustomTokenCounterAffectsReportedCountOnly(t *testing.T) {
	text := "One paragraph of modest length that stays under any reasonable budget."
	approx := NewTextChunker()
	withCounter := NewTextChunker(WithTokenCounter(fixedTokenCounter{n: 7}))

	a := approx.Chunk(text)
	b := withCounter.Chunk(text)

	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.Equal(t, a[0].Text, b[0].Text)
	assert.Equal(t, ApproxTokenCounter{}.Count(text), a[0].TokenCount)
	assert.Equal(t, 7, b[0].TokenCount)
}
