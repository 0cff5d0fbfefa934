package pdf

import (
	"strings"
	"unicode/utf8"

	lpdf "github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

// DefaultTextLimit caps the characters handed to the classifier.
const DefaultTextLimit = 3000

// TextExtractor implements harvest.TextExtractor.
type TextExtractor struct {
	limit  int
	logger *zap.Logger
}

// NewTextExtractor builds a TextExtractor that keeps at most limit characters.
func NewTextExtractor(limit int, logger *zap.Logger) *TextExtractor {
	if limit <= 0 {
		limit = DefaultTextLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TextExtractor{limit: limit, logger: logger.Named("pdf_text")}
}

// Extract returns the plain text of the PDF at path, pages joined by a single
// space and truncated to the limit. Any failure yields "".
func (e *TextExtractor) Extract(path string) (text string) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("pdf parser panicked", zap.String("path", path), zap.Any("panic", r))
			text = ""
		}
	}()

	f, reader, err := lpdf.Open(path)
	if err != nil {
		e.logger.Warn("open pdf failed", zap.String("path", path), zap.Error(err))
		return ""
	}
	defer func() {
		_ = f.Close()
	}()

	var (
		parts []string
		size  int
	)
	for i := 1; i <= reader.NumPage() && size < e.limit; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			e.logger.Warn("extract page text failed", zap.String("path", path), zap.Int("page", i), zap.Error(err))
			return ""
		}
		if pageText == "" {
			continue
		}
		parts = append(parts, pageText)
		size += utf8.RuneCountInString(pageText) + 1
	}
	return truncateRunes(strings.Join(parts, " "), e.limit)
}

func truncateRunes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}
