package rag

import "time"

// DocumentMetadata is the tagged product backing a Document's free-form
// metadata blob. Fixed fields come from extraction heuristics; Extra holds
// provider-specific or future fields so the JSON boundary stays open
// without the in-memory type becoming an untyped map.
type DocumentMetadata struct {
	DocumentType  string            `json:"documentType"`
	Language      string            `json:"language"`
	ExtractedTags []string          `json:"extractedTags,omitempty"`
	SectionCount  int               `json:"sectionCount"`
	Subject       string            `json:"subject,omitempty"`
	Creator       string            `json:"creator,omitempty"`
	Producer      string            `json:"producer,omitempty"`
	CreationDate  string            `json:"creationDate,omitempty"`
	ModDate       string            `json:"modDate,omitempty"`
	Extra         map[string]string `json:"extra,omitempty"`
}

// Section is a heading-delimited span of a document's extracted text.
type Section struct {
	Title string `json:"title"`
	Level int    `json:"level"`
	Text  string `json:"text"`
}

// Document is the persisted record for a single ingested PDF.
type Document struct {
	ID         string
	Title      string
	Author     string
	TagID      string
	Content    string
	PageCount  int
	WordCount  int
	Metadata   DocumentMetadata
	UploadedAt time.Time
}

// ChunkMetadata is the denormalization cache carried on every Chunk so the
// Retriever can build a RetrievalSource without a second round-trip to the
// Store.
type ChunkMetadata struct {
	StartChar     int    `json:"startChar"`
	EndChar       int    `json:"endChar"`
	SectionTitle  string `json:"sectionTitle,omitempty"`
	DocumentTitle string `json:"documentTitle"`
	DocumentType  string `json:"documentType"`
	Author        string `json:"author,omitempty"`
}

// Chunk is a persisted, token-budgeted slice of a Document's text. Embedding is nil until the Embedder has produced a vector for it.
type Chunk struct {
	ID         string
	DocumentID string
	Index      int
	Text       string
	TokenCount int
	Embedding  []float64
	Metadata   ChunkMetadata
	CreatedAt  time.Time
}

// RetrievalSource is the transient record produced per query by the
// Retriever. It is never persisted.
type RetrievalSource struct {
	ChunkID        string
	DocumentID     string
	DocumentTitle  string
	ChunkIndex     int
	ChunkText      string
	RelevanceScore float64
	Metadata       ChunkMetadata
}

// Answer is the transient, caller-owned result of the query path.
type Answer struct {
	Text                string
	Sources             []RetrievalSource
	Confidence          float64
	ResponseTimeSeconds float64
}
