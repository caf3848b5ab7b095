package rag

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TiktokenCounter reports exact token counts using a tiktoken encoding,
// for callers that need TokenCount on a Chunk to reflect what the
// generation provider will actually bill rather than the char-based
// approximation used for chunk boundaries. Encoding lookups are cached;
// BPE merges are immutable once loaded, so sharing one encoding across
// goroutines is safe.
type TiktokenCounter struct {
	mu       sync.Mutex
	encoding *tiktoken.Tiktoken
}

// NewTiktokenCounter loads the named encoding (e.g. "cl100k_base"). If the
// encoding cannot be loaded, Count falls back to the char-based
// approximation rather than failing chunking outright.
func NewTiktokenCounter(encodingName string) *TiktokenCounter {
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		GlobalLogger.Warn("tiktoken encoding unavailable, falling back to approximation", "encoding", encodingName, "error", err)
		return &TiktokenCounter{}
	}
	return &TiktokenCounter{encoding: enc}
}

// Count returns the exact BPE token count, or the char-based approximation
// if no encoding loaded successfully.
func (t *TiktokenCounter) Count(text string) int {
	t.mu.Lock()
	enc := t.encoding
	t.mu.Unlock()

	if enc == nil {
		return ApproxTokenCounter{}.Count(text)
	}
	return len(enc.Encode(text, nil, nil))
}
