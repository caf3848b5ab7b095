package rag

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
)

// englishStopwords is the fixed set inspected by the language heuristic.
var englishStopwords = []string{"the", "and", "is", "in", "to", "of", "a", "for"}

// documentTypeMarkers is checked in priority order; the first substring
// match wins.
var documentTypeMarkers = []struct {
	marker string
	kind   string
}{
	{"onboarding", "onboarding"},
	{"policy", "policy"},
	{"policies", "policy"},
	{"training", "training"},
	{"tutorial", "training"},
	{"handbook", "handbook"},
	{"manual", "handbook"},
	{"guide", "guide"},
	{"procedure", "procedure"},
	{"process", "procedure"},
}

var (
	crlfPattern         = regexp.MustCompile(`\r\n`)
	multiNewlinePattern = regexp.MustCompile(`\n{3,}`)
	spaceRunPattern     = regexp.MustCompile(`[ \t]+`)
	nulPattern          = regexp.MustCompile("\x00")
	wordRunPattern      = regexp.MustCompile(`\S+`)

	numberedHeadingPattern  = regexp.MustCompile(`^\d+(\.|\))\s+[A-Z]`)
	titleLineHeadingPattern = regexp.MustCompile(`^[A-Z][^.!?]*$`)
	level1Pattern           = regexp.MustCompile(`^\d+\.\s+`)
	level2Pattern           = regexp.MustCompile(`^\d+\.\d+\s+`)
	level3Pattern           = regexp.MustCompile(`^\d+\.\d+\.\d+\s+`)
)

// ExtractedDocument is the Extractor's output: normalized text plus the
// heuristic metadata used to populate a Document.
type ExtractedDocument struct {
	Text      string
	PageCount int
	WordCount int
	Sections  []Section
	Metadata  DocumentMetadata
	Title     string
	Author    string
}

// Extractor turns a PDF byte stream into normalized text and metadata.
type Extractor struct{}

// NewExtractor creates an Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract parses pdfBytes and derives title/author/type/language/sections.
// filename, if non-empty, is used to derive a title when the PDF carries
// none.
func (e *Extractor) Extract(pdfBytes []byte, filename string) (*ExtractedDocument, error) {
	reader := strings.NewReader(string(pdfBytes))
	pdfReader, err := pdf.NewReader(reader, int64(len(pdfBytes)))
	if err != nil {
		return nil, NewExtractFailed("failed to open PDF", err)
	}

	rawText, pageCount, err := extractPages(pdfReader)
	if err != nil {
		return nil, NewExtractFailed("failed to extract PDF pages", err)
	}

	text := NormalizeText(rawText)
	if text == "" {
		return nil, NewExtractFailed("PDF yielded no extractable text", nil)
	}

	info := extractInfoDict(pdfReader)

	title := info["Title"]
	author := info["Author"]
	if title == "" && filename != "" {
		title = deriveTitleFromFilename(filename)
	}

	tags := extractTags(info["Keywords"], info["Subject"])
	language := detectLanguage(text)
	docType := detectDocumentType(text, title)
	sections := extractSections(text)

	GlobalLogger.Debug("extracted PDF", "filename", filename, "pages", pageCount, "chars", len(text))

	return &ExtractedDocument{
		Text:      text,
		PageCount: pageCount,
		WordCount: countWords(text),
		Sections:  sections,
		Title:     title,
		Author:    author,
		Metadata: DocumentMetadata{
			DocumentType:  docType,
			Language:      language,
			ExtractedTags: tags,
			SectionCount:  len(sections),
			Subject:       info["Subject"],
			Creator:       info["Creator"],
			Producer:      info["Producer"],
			CreationDate:  info["CreationDate"],
			ModDate:       info["ModDate"],
		},
	}, nil
}

// extractPages concatenates the plain text of every page, separated by a
// blank line, and reports the numeric page count.
func extractPages(r *pdf.Reader) (string, int, error) {
	numPages := r.NumPage()
	var b strings.Builder
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", numPages, fmt.Errorf("failed to extract text from page %d: %w", i, err)
		}
		b.WriteString(content)
		b.WriteString("\n\n")
	}
	return b.String(), numPages, nil
}

// extractInfoDict reads the PDF's Info dictionary (Title, Author, Subject,
// Keywords, Creator, Producer, CreationDate, ModDate) from the document
// trailer. Missing fields are reported as empty strings.
func extractInfoDict(r *pdf.Reader) map[string]string {
	fields := []string{"Title", "Author", "Subject", "Keywords", "Creator", "Producer", "CreationDate", "ModDate"}
	out := make(map[string]string, len(fields))

	defer func() {
		// The info dictionary is optional; a malformed trailer must not
		// fail the whole extraction (text already succeeded).
		_ = recover()
	}()

	trailer := r.Trailer()
	info := trailer.Key("Info")
	for _, f := range fields {
		v := info.Key(f)
		out[f] = v.Text()
	}
	return out
}

// NormalizeText applies the standard text normalization: CRLF to LF,
// collapse 3+ newlines to exactly two, collapse space/tab runs to one
// space, strip NUL bytes, trim. Idempotent.
func NormalizeText(text string) string {
	t := crlfPattern.ReplaceAllString(text, "\n")
	t = nulPattern.ReplaceAllString(t, "")
	t = multiNewlinePattern.ReplaceAllString(t, "\n\n")
	t = spaceRunPattern.ReplaceAllString(t, " ")
	return strings.TrimSpace(t)
}

// countWords counts maximal runs of non-whitespace.
func countWords(text string) int {
	return len(wordRunPattern.FindAllString(text, -1))
}

// extractTags splits Keywords on ',', ';', '|', appends Subject if present,
// trims each entry, and discards empties.
func extractTags(keywords, subject string) []string {
	var raw []string
	if keywords != "" {
		raw = append(raw, splitAny(keywords, ",;|")...)
	}
	if subject != "" {
		raw = append(raw, subject)
	}
	var tags []string
	for _, r := range raw {
		trimmed := strings.TrimSpace(r)
		if trimmed != "" {
			tags = append(tags, trimmed)
		}
	}
	return tags
}

func splitAny(s, seps string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return strings.ContainsRune(seps, r)
	})
}

// detectLanguage inspects the first 1000 chars lowercased and counts whole-
// word hits of the fixed English stopword set; >=4/8 labels "en".
func detectLanguage(text string) string {
	window := text
	if len(window) > 1000 {
		window = window[:1000]
	}
	lower := " " + strings.ToLower(window) + " "

	hits := 0
	for _, w := range englishStopwords {
		if strings.Contains(lower, " "+w+" ") {
			hits++
		}
	}
	if hits >= 4 {
		return "en"
	}
	return "unknown"
}

// detectDocumentType searches the first 2000 chars (lowercased) and the
// lowercased title for marker substrings in priority order.
func detectDocumentType(text, title string) string {
	window := text
	if len(window) > 2000 {
		window = window[:2000]
	}
	haystack := strings.ToLower(window) + " " + strings.ToLower(title)

	for _, m := range documentTypeMarkers {
		if strings.Contains(haystack, m.marker) {
			return m.kind
		}
	}
	return "general"
}

// extractSections walks trimmed lines, recognizing headings with
// headingLevel, and groups the lines between headings into Sections.
func extractSections(text string) []Section {
	lines := strings.Split(text, "\n")

	var sections []Section
	var current *Section
	var body strings.Builder

	closeCurrent := func() {
		if current != nil {
			current.Text = strings.TrimSpace(body.String())
			sections = append(sections, *current)
		}
		body.Reset()
	}

	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			if current != nil {
				body.WriteString("\n")
			}
			continue
		}

		if level, ok := headingLevel(line); ok {
			if current != nil && strings.TrimSpace(body.String()) != "" {
				closeCurrent()
			} else if current != nil {
				body.Reset()
			}
			current = &Section{Title: line, Level: level}
			continue
		}

		if current == nil {
			current = &Section{Title: "", Level: 2}
		}
		body.WriteString(line)
		body.WriteString("\n")
	}
	closeCurrent()

	return sections
}

// headingLevel reports whether line is a heading and, if so, its level.
func headingLevel(line string) (int, bool) {
	switch {
	case level3Pattern.MatchString(line):
		return 3, true
	case level2Pattern.MatchString(line):
		return 2, true
	case level1Pattern.MatchString(line):
		return 1, true
	}

	if numberedHeadingPattern.MatchString(line) {
		return 1, true
	}

	if isAllCapsHeading(line) {
		return 1, true
	}

	if len(line) < 80 && titleLineHeadingPattern.MatchString(line) {
		return 2, true
	}

	return 0, false
}

// isAllCapsHeading implements rule (a): non-empty, length < 100, equals its
// upper-cased form, at most 10 whitespace-separated tokens.
func isAllCapsHeading(line string) bool {
	if line == "" || len(line) >= 100 {
		return false
	}
	if line != strings.ToUpper(line) {
		return false
	}
	if !hasLetter(line) {
		return false
	}
	if len(strings.Fields(line)) > 10 {
		return false
	}
	return true
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

// deriveTitleFromFilename strips the extension, replaces '-'/'_' with
// spaces, and title-cases the result.
func deriveTitleFromFilename(filename string) string {
	base := filepath.Base(filename)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	name = strings.ReplaceAll(name, "-", " ")
	name = strings.ReplaceAll(name, "_", " ")
	return titleCase(name)
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		if w == "" {
			continue
		}
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		for j := 1; j < len(r); j++ {
			r[j] = unicode.ToLower(r[j])
		}
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
