package extract

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// pdfInfo carries the document-info fields worth keeping as metadata.
type pdfInfo struct {
	pages  int
	title  string
	author string
}

// extractPDF returns the concatenated plain text of all pages plus the
// document info. Pages that fail to parse individually fail the whole
// extraction; a half-extracted document would index misleading content.
func extractPDF(content []byte) (string, pdfInfo, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", pdfInfo{}, fmt.Errorf("open PDF: %w", err)
	}

	info := pdfInfo{pages: r.NumPage()}
	if dict := r.Trailer().Key("Info"); !dict.IsNull() {
		info.title = dict.Key("Title").Text()
		info.author = dict.Key("Author").Text()
	}

	var buf bytes.Buffer
	for i := 1; i <= info.pages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", pdfInfo{}, fmt.Errorf("extract page %d: %w", i, err)
		}
		buf.WriteString(text)
		if i < info.pages {
			buf.WriteByte('\n')
		}
	}
	return buf.String(), info, nil
}
