package ingest

import (
	"context"
	"strings"
	"unicode/utf8"
)

// PlainTextNormalizer extracts text from raw bytes that are already plain
// text. Form feed characters mark page boundaries, which is how text
// renditions of paginated documents usually arrive.
type PlainTextNormalizer struct{}

// Extract returns the normalized text together with the rune offset at which
// each page starts. Page boundaries come from form feed characters; a
// document without any form feeds is a single page starting at offset 0.
//
// Normalization collapses carriage returns and trims trailing whitespace
// from each page so that byte-identical uploads produce identical chunk
// contents.
func (PlainTextNormalizer) Extract(_ context.Context, raw []byte) (Normalized, error) {
	text := strings.ReplaceAll(string(raw), "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	pages := strings.Split(text, "\f")

	var b strings.Builder
	offsets := make([]int, 0, len(pages))
	pos := 0
	for i, page := range pages {
		page = strings.TrimRight(page, " \t\n")
		if i > 0 {
			b.WriteString("\n\n")
			pos += 2
		}
		offsets = append(offsets, pos)
		b.WriteString(page)
		pos += utf8.RuneCountInString(page)
	}

	out := b.String()
	if strings.TrimSpace(out) == "" {
		return Normalized{}, nil
	}
	return Normalized{Text: out, PageOffsets: offsets}, nil
}
