package loader

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFLoader extracts text page by page. Each page is a natural chunk
// boundary; oversized pages are split further by the shared splitter.
type PDFLoader struct {
	Splitter *Splitter
}

func (l *PDFLoader) Load(path string) ([]string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	var chunks []string
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// A single unextractable page should not sink the document.
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if len(text) > l.Splitter.ChunkSize {
			chunks = append(chunks, l.Splitter.SplitPlain(text)...)
		} else {
			chunks = append(chunks, text)
		}
	}
	return chunks, nil
}
