package rag

import (
	"regexp"
	"strings"
)

// TokenCounter approximates the number of tokens in a string. The RAG core
// never calls a real tokenizer for chunk sizing; all downstream
// components accept the approximation it returns.
type TokenCounter interface {
	Count(text string) int
}

// ApproxTokenCounter implements a ceil(len(text)/4) approximation.
type ApproxTokenCounter struct{}

// Count returns ceil(len(text)/4).
func (ApproxTokenCounter) Count(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + 3) / 4
}

// TextChunker splits document text into overlapping, token-budgeted chunks
// that respect paragraph and sentence boundaries.
type TextChunker struct {
	// ChunkSize is the target chunk size in tokens.
	ChunkSize int
	// ChunkOverlap is the overlap budget in tokens.
	ChunkOverlap int
	// TokenCounter approximates token counts; defaults to ApproxTokenCounter.
	TokenCounter TokenCounter
}

// TextChunkerOption configures a TextChunker via the functional options
// pattern.
type TextChunkerOption func(*TextChunker)

// WithChunkSize sets the target chunk size in tokens.
func WithChunkSize(size int) TextChunkerOption {
	return func(tc *TextChunker) { tc.ChunkSize = size }
}

// WithChunkOverlap sets the overlap budget in tokens.
func WithChunkOverlap(overlap int) TextChunkerOption {
	return func(tc *TextChunker) { tc.ChunkOverlap = overlap }
}

// WithTokenCounter overrides the token-counting strategy (e.g. a
// tiktoken-backed exact counter) used only for reporting TokenCount on the
// emitted chunks; chunk boundaries always follow the char-based
// approximation so behavior stays deterministic across counters.
func WithTokenCounter(counter TokenCounter) TextChunkerOption {
	return func(tc *TextChunker) { tc.TokenCounter = counter }
}

// NewTextChunker creates a TextChunker with the default 512-token chunks
// with 50-token overlap.
func NewTextChunker(opts ...TextChunkerOption) *TextChunker {
	tc := &TextChunker{
		ChunkSize:    512,
		ChunkOverlap: 50,
		TokenCounter: ApproxTokenCounter{},
	}
	for _, opt := range opts {
		opt(tc)
	}
	return tc
}

var paragraphSplit = regexp.MustCompile(`\n\s*\n+`)

// sentenceBreak matches '.', '!' or '?' followed by whitespace and a
// capital letter -- the boundary the overlap rule looks for.
var sentenceBreak = regexp.MustCompile(`[.!?]\s+[A-Z]`)

// oversizeSentenceSplit is used only as the fallback for a single paragraph
// that exceeds the chunk budget.
var oversizeSentenceSplit = regexp.MustCompile(`[.!?]\s+`)

// Chunk splits text into an ordered sequence of token-budgeted, overlapping
// chunks.
func (tc *TextChunker) Chunk(text string) []Chunk {
	maxChars := tc.ChunkSize * 4
	overlapChars := tc.ChunkOverlap * 4

	paragraphs := splitParagraphs(text)
	if len(paragraphs) == 0 {
		return nil
	}

	var chunks []Chunk
	var current strings.Builder
	currentStart := 0
	// pos tracks the offset of the paragraph we are about to append,
	// within the original (paragraph-joined) text reconstruction.
	pos := 0

	emit := func(endPos int) {
		raw := current.String()
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			return
		}
		start := currentStart
		chunks = append(chunks, Chunk{
			Index:      len(chunks),
			Text:       trimmed,
			TokenCount: tc.TokenCounter.Count(trimmed),
			Metadata: ChunkMetadata{
				StartChar: start,
				EndChar:   endPos,
			},
		})
	}

	for _, para := range paragraphs {
		if len(para) > maxChars {
			// Oversize single paragraph: close out any chunk in progress,
			// then sentence-split the paragraph into its own run of chunks,
			// preserving monotone indexing. Gluing it onto a chunk already
			// under way would emit a combined chunk far past budget.
			if current.Len() > 0 {
				endPos := currentStart + current.Len()
				emit(endPos)
				current.Reset()
				pos = endPos
			}
			for _, piece := range splitOversizeParagraph(para, maxChars) {
				chunks = append(chunks, Chunk{
					Index:      len(chunks),
					Text:       piece,
					TokenCount: tc.TokenCounter.Count(piece),
					Metadata: ChunkMetadata{
						StartChar: pos,
						EndChar:   pos + len(piece),
					},
				})
				pos += len(piece)
			}
			continue
		}

		if current.Len() == 0 {
			current.WriteString(para)
			currentStart = pos
			pos += len(para)
			continue
		}

		// Would adding this paragraph push the current chunk past budget?
		projected := current.Len() + len("\n\n") + len(para)
		if projected > maxChars {
			endPos := currentStart + current.Len()
			emit(endPos)

			overlap := overlapSuffix(current.String(), overlapChars)
			current.Reset()
			current.WriteString(overlap)
			currentStart = endPos - len(overlap)

			current.WriteString("\n\n")
			current.WriteString(para)
			pos += len(para)
			continue
		}

		current.WriteString("\n\n")
		current.WriteString(para)
		pos += len(para)
	}

	if current.Len() > 0 {
		emit(currentStart + current.Len())
	}

	return chunks
}

// splitParagraphs splits text into paragraphs on one-or-more blank lines,
// trimming and discarding empty entries.
func splitParagraphs(text string) []string {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	parts := paragraphSplit.Split(normalized, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// overlapSuffix implements the overlap rule: from the
// tail overlapChars characters of the emitted chunk, find the last
// sentence-break pattern and begin the overlap after it; otherwise use the
// last overlapChars characters verbatim.
func overlapSuffix(chunkText string, overlapChars int) string {
	if overlapChars <= 0 || chunkText == "" {
		return ""
	}
	tailStart := len(chunkText) - overlapChars
	if tailStart < 0 {
		tailStart = 0
	}
	tail := chunkText[tailStart:]

	locs := sentenceBreak.FindAllStringIndex(tail, -1)
	if len(locs) > 0 {
		last := locs[len(locs)-1]
		// Begin overlap at the character after the punctuation, i.e. the
		// start of the capital letter the pattern matched.
		start := last[1] - 1
		return strings.TrimLeft(tail[start:], " ")
	}
	return tail
}

// splitOversizeParagraph breaks a single paragraph that exceeds maxChars
// into sentence-bounded pieces, never splitting mid-sentence where a
// boundary exists. If no sentence boundary is found within a piece, the
// text is cut verbatim at maxChars.
func splitOversizeParagraph(para string, maxChars int) []string {
	sentences := oversizeSentenceSplit.Split(para, -1)
	if len(sentences) <= 1 {
		return hardSplit(para, maxChars)
	}

	var pieces []string
	var current strings.Builder
	for _, s := range sentences {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if current.Len() > 0 && current.Len()+1+len(s) > maxChars {
			pieces = append(pieces, strings.TrimSpace(current.String()))
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		if len(s) > maxChars {
			if current.Len() > 0 {
				pieces = append(pieces, strings.TrimSpace(current.String()))
				current.Reset()
			}
			pieces = append(pieces, hardSplit(s, maxChars)...)
			continue
		}
		current.WriteString(s)
	}
	if current.Len() > 0 {
		pieces = append(pieces, strings.TrimSpace(current.String()))
	}
	return pieces
}

// hardSplit cuts text into maxChars-sized pieces with no regard for word
// boundaries; used only as a last resort for a single sentence longer than
// the chunk budget.
func hardSplit(text string, maxChars int) []string {
	var pieces []string
	runes := []rune(text)
	for i := 0; i < len(runes); i += maxChars {
		end := i + maxChars
		if end > len(runes) {
			end = len(runes)
		}
		piece := strings.TrimSpace(string(runes[i:end]))
		if piece != "" {
			pieces = append(pieces, piece)
		}
	}
	return pieces
}
