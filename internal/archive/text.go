package archive

import (
	"io"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// NewTextReader returns a reader that strips a byte order mark and converts
// UTF-16 documents (detected by their BOM) to UTF-8. Documents without BOM
// are passed through as UTF-8.
func NewTextReader(rd io.Reader) io.Reader {
	return transform.NewReader(rd, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
}
