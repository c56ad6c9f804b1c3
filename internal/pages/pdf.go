package pages

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// ExtractPDF reads the plain text of every page of a PDF file.
// Pages without a content stream yield an empty Text but keep their number.
func ExtractPDF(path string) ([]Page, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()
	return readPDF(r)
}

// ParsePDF reads the plain text of every page of an in-memory PDF.
func ParsePDF(data []byte) ([]Page, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	return readPDF(r)
}

func readPDF(r *pdf.Reader) ([]Page, error) {
	total := r.NumPage()
	out := make([]Page, 0, total)
	for i := 0; i < total; i++ {
		// The reader addresses pages 1..N.
		p := r.Page(i + 1)
		page := Page{Number: FromZeroBased(i)}
		if p.V.IsNull() || p.V.Key("Contents").IsNull() {
			out = append(out, page)
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page.Number, err)
		}
		page.Text = text
		out = append(out, page)
	}
	return out, nil
}
