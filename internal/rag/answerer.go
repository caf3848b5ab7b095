package rag

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	retrievalEmptyMessage   = "I couldn't find any relevant information in the uploaded onboarding documents to answer your question. Please ensure the relevant materials have been uploaded in the Admin section, or try rephrasing your question."
	groundingRefusalMessage = "This information is not available in the current onboarding materials. Please contact HR or your manager for clarification."
	missingCitationNote     = "(Note: This answer is based on the uploaded onboarding documents.)"

	systemInstructions = `You are an onboarding assistant. Answer only using the information in the
provided SOURCE blocks; never use outside knowledge. Cite the sources you
rely on inline using the exact form [SOURCE i], where i is the source's
number. If the provided sources do not contain the answer, reply with
exactly: "` + groundingRefusalMessage + `"`
)

var citationPattern = regexp.MustCompile(`\[SOURCE\s+\d+\]`)

// Answerer synthesizes a grounded answer from retrieved sources, enforcing
// citation discipline and a conservative confidence estimate.
type Answerer struct {
	retriever *Retriever
	client    *ModelClient
}

// NewAnswerer creates an Answerer over retriever using client to generate.
func NewAnswerer(retriever *Retriever, client *ModelClient) *Answerer {
	return &Answerer{retriever: retriever, client: client}
}

// Answer retrieves sources for question, composes a grounded prompt, and
// returns the generated Answer with its confidence and timing.
func (a *Answerer) Answer(ctx context.Context, question string, topK int, minScore float64) (*Answer, error) {
	start := time.Now()

	sources, err := a.retriever.Retrieve(ctx, question, topK, minScore)
	if err != nil {
		return nil, err
	}

	if len(sources) == 0 {
		return &Answer{
			Text:                retrievalEmptyMessage,
			Sources:             []RetrievalSource{},
			Confidence:          0,
			ResponseTimeSeconds: time.Since(start).Seconds(),
		}, nil
	}

	contextBlock := buildContextBlock(sources)
	userPrompt := contextBlock + "\n\n---\n\nQuestion: " + question

	// Zero values defer to the client's configured temperature and output
	// ceiling, which the client clamps to its determinism contract anyway.
	text, err := a.client.Generate(ctx, systemInstructions, userPrompt, GenConfig{})
	if err != nil {
		return nil, err
	}

	hasCitations := citationPattern.MatchString(text)
	if !hasCitations {
		text = text + "\n\n" + missingCitationNote
	}

	confidence := computeConfidence(sources, hasCitations)

	return &Answer{
		Text:                text,
		Sources:             sources,
		Confidence:          confidence,
		ResponseTimeSeconds: time.Since(start).Seconds(),
	}, nil
}

// buildContextBlock renders each source as a "[SOURCE i: ...]" header
// followed by its chunk text, separated by "\n\n---\n\n".
func buildContextBlock(sources []RetrievalSource) string {
	blocks := make([]string, len(sources))
	for i, s := range sources {
		header := sourceHeader(i+1, s)
		blocks[i] = header + "\n" + s.ChunkText
	}
	return strings.Join(blocks, "\n\n---\n\n")
}

func sourceHeader(ordinal int, s RetrievalSource) string {
	authorSuffix := ""
	if s.Metadata.Author != "" {
		authorSuffix = " by " + s.Metadata.Author
	}
	typeSuffix := ""
	if s.Metadata.DocumentType != "" {
		typeSuffix = fmt.Sprintf(" [%s]", s.Metadata.DocumentType)
	}
	percent := s.RelevanceScore * 100
	return fmt.Sprintf("[SOURCE %d: %q%s%s - Section %d (Relevance: %.1f%%)]",
		ordinal, s.DocumentTitle, authorSuffix, typeSuffix, s.ChunkIndex+1, percent)
}

// computeConfidence implements 0.5*avg + 0.5*top, boosted 1.1x when
// citations were detected, clamped to [0,1].
func computeConfidence(sources []RetrievalSource, hasCitations bool) float64 {
	if len(sources) == 0 {
		return 0
	}

	var sum, top float64
	for _, s := range sources {
		sum += s.RelevanceScore
		if s.RelevanceScore > top {
			top = s.RelevanceScore
		}
	}
	avg := sum / float64(len(sources))

	confidence := 0.5*avg + 0.5*top
	if hasCitations {
		confidence *= 1.1
	}
	if confidence > 1 {
		confidence = 1
	}
	if confidence < 0 {
		confidence = 0
	}
	return confidence
}

// Excerpt returns the first 200 characters of the source's chunk text,
// suffixed with an ellipsis when truncated.
func Excerpt(s RetrievalSource) string {
	if len(s.ChunkText) <= 200 {
		return s.ChunkText
	}
	return s.ChunkText[:200] + "…"
}
