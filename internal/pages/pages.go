// Package pages loads the paginated text of the reference document.
//
// Page text is produced by an external conversion step. This package accepts
// its two JSON shapes and can also pull plain text straight out of a PDF.
package pages

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Page is the text of one page of the source document.
type Page struct {
	Number int    // 1-based page number
	Text   string // Raw page text (markdown or plain)
}

// rawPage covers both JSON shapes emitted by the conversion step:
// structured output ({"page": 3, "content": ...}, already 1-based) and the
// converter's native output ({"text": ..., "metadata": {"page": 2}}, 0-based).
type rawPage struct {
	Page     *int    `json:"page"`
	Content  string  `json:"content"`
	Text     string  `json:"text"`
	Metadata *struct {
		Page *int `json:"page"`
	} `json:"metadata"`
}

// FromZeroBased converts a 0-based source page index to a 1-based page number.
func FromZeroBased(index int) int {
	return index + 1
}

// Load reads pages from path, choosing the reader by extension: ".pdf" files
// are extracted directly, anything else is parsed as pages JSON.
func Load(path string) ([]Page, error) {
	if IsPDF(path) {
		return ExtractPDF(path)
	}
	return LoadJSON(path)
}

// Parse decodes page data named name, by the same rule as Load.
func Parse(name string, data []byte) ([]Page, error) {
	if IsPDF(name) {
		return ParsePDF(data)
	}
	return ParseJSON(data)
}

// IsPDF reports whether name has a ".pdf" extension.
func IsPDF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}

// LoadJSON reads pages from a JSON file.
func LoadJSON(path string) ([]Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pages file: %w", err)
	}
	return ParseJSON(data)
}

// ParseJSON decodes a JSON array of pages. Entries carrying a top-level "page"
// are taken as 1-based; entries carrying "metadata.page" are 0-based and get
// normalized. Page order follows the array order.
func ParseJSON(data []byte) ([]Page, error) {
	var raw []rawPage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode pages: %w", err)
	}

	out := make([]Page, 0, len(raw))
	for i, r := range raw {
		switch {
		case r.Page != nil:
			if *r.Page < 1 {
				return nil, fmt.Errorf("entry %d: page number %d is not 1-based", i, *r.Page)
			}
			out = append(out, Page{Number: *r.Page, Text: r.Content})
		case r.Metadata != nil && r.Metadata.Page != nil:
			if *r.Metadata.Page < 0 {
				return nil, fmt.Errorf("entry %d: negative source page %d", i, *r.Metadata.Page)
			}
			out = append(out, Page{Number: FromZeroBased(*r.Metadata.Page), Text: r.Text})
		default:
			return nil, fmt.Errorf("entry %d: missing page number", i)
		}
	}
	return out, nil
}
