package render

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// CountPages reads the page count from a PDF's page tree without rasterizing.
func CountPages(data []byte) (n int, err error) {
	defer func() {
		// the reader panics on some malformed xref tables
		if r := recover(); r != nil {
			n, err = 0, fmt.Errorf("failed to read page tree: %v", r)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("failed to open pdf: %w", err)
	}
	return reader.NumPage(), nil
}
