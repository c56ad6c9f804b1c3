// Package chunking splits paginated text into page-tagged retrieval units.
package chunking

import (
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/bull/clinical-rag/internal/markdown"
	"github.com/bull/clinical-rag/internal/pages"
)

// DefaultMinLength is the trimmed length a paragraph must exceed to become a chunk.
const DefaultMinLength = 100

// paragraphBreak separates candidate segments within a page.
const paragraphBreak = "\n\n"

// Chunk is a retrievable paragraph with its page citation.
type Chunk struct {
	Text    string // Trimmed paragraph text
	Page    int    // 1-based source page
	Section string // Header path of the enclosing heading, if any
}

// Chunker splits pages at paragraph breaks and drops short segments.
type Chunker struct {
	minLength int
	outliner  *markdown.Outliner
	logger    *slog.Logger
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithMinLength sets the minimum-length threshold. Non-positive values keep the default.
func WithMinLength(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.minLength = n
		}
	}
}

// WithOutliner tags chunks with the heading they fall under.
func WithOutliner(o *markdown.Outliner) Option {
	return func(c *Chunker) { c.outliner = o }
}

// WithLogger sets the logger used to report outline failures.
func WithLogger(l *slog.Logger) Option {
	return func(c *Chunker) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewChunker creates a chunker with DefaultMinLength and no section tagging.
func NewChunker(opts ...Option) *Chunker {
	c := &Chunker{
		minLength: DefaultMinLength,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MinLength returns the configured threshold.
func (c *Chunker) MinLength() int {
	return c.minLength
}

// Split turns pages into chunks in page order, then paragraph order.
// Pages with empty text contribute nothing.
func (c *Chunker) Split(src []pages.Page) []Chunk {
	var chunks []Chunk
	for _, page := range src {
		chunks = append(chunks, c.splitPage(page)...)
	}
	return chunks
}

func (c *Chunker) splitPage(page pages.Page) []Chunk {
	if strings.TrimSpace(page.Text) == "" {
		return nil
	}

	var headings []markdown.Heading
	if c.outliner != nil {
		var err error
		headings, err = c.outliner.Outline([]byte(page.Text))
		if err != nil {
			// Sections are optional; the paragraphs are still usable.
			c.logger.Warn("Outline failed, chunks left without section", "page", page.Number, "error", err)
			headings = nil
		}
	}

	var chunks []Chunk
	offset := 0
	for _, segment := range strings.Split(page.Text, paragraphBreak) {
		start := offset
		offset += len(segment) + len(paragraphBreak)

		trimmed := strings.TrimSpace(segment)
		if utf8.RuneCountInString(trimmed) <= c.minLength {
			continue
		}
		chunks = append(chunks, Chunk{
			Text:    trimmed,
			Page:    page.Number,
			Section: markdown.SectionAt(headings, start),
		})
	}
	return chunks
}
