// Package chunker splits normalized document text into overlapping segments
// for embedding and retrieval.
//
// Splitting is a pure function of the input: the same text and parameters
// always produce the same segments. Each segment records its character
// offsets into the original text, which downstream code uses for exact
// page attribution and re-assembly.
//
// The splitter prefers natural boundaries, trying separators from coarsest
// to finest: paragraph break, line break, sentence end, word break. When no
// boundary exists in the window it cuts mid-word. Adjacent segments share
// the configured overlap so context is not lost at boundaries.
package chunker

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSize indicates a non-positive target segment size.
	ErrInvalidSize = errors.New("segment size must be positive")

	// ErrInvalidOverlap indicates an overlap that is negative or would
	// prevent the splitter from making progress.
	ErrInvalidOverlap = errors.New("overlap must be in [0, size)")
)

// Segment is one bounded span of the source text.
// Start and End are rune offsets into the original text; Text is always
// exactly the source runes in [Start, End).
type Segment struct {
	Text  string
	Start int
	End   int
}

// Splitter segments text into overlapping runs of at most Size runes.
// Safe for concurrent use; it holds no mutable state.
type Splitter struct {
	size    int
	overlap int
}

// New creates a Splitter with the given target size and overlap, both in
// runes. Overlap must be smaller than size so every step advances.
func New(size, overlap int) (*Splitter, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSize, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: got overlap %d for size %d", ErrInvalidOverlap, overlap, size)
	}
	return &Splitter{size: size, overlap: overlap}, nil
}

// Split segments text into ordered, overlapping segments.
//
// Empty text yields nil (a no-op for the caller, not an error). Text at or
// under the target size yields exactly one segment. Otherwise every segment
// except possibly the last has between size/2 and size runes, and each
// segment starts exactly overlap runes before the previous one ended.
func (s *Splitter) Split(text string) []Segment {
	if text == "" {
		return nil
	}

	runes := []rune(text)
	if len(runes) <= s.size {
		return []Segment{{Text: text, Start: 0, End: len(runes)}}
	}

	var segments []Segment
	start := 0
	for {
		end := start + s.size
		if end >= len(runes) {
			segments = append(segments, Segment{
				Text:  string(runes[start:]),
				Start: start,
				End:   len(runes),
			})
			return segments
		}

		cut := s.findBreak(runes, start, end)
		segments = append(segments, Segment{
			Text:  string(runes[start:cut]),
			Start: start,
			End:   cut,
		})
		start = cut - s.overlap
	}
}

// findBreak picks the cut position in (lo, end], trying separators from
// coarsest to finest. lo guarantees forward progress even with overlap
// applied, and keeps segments from degenerating below half the target size.
func (s *Splitter) findBreak(runes []rune, start, end int) int {
	lo := start + s.size/2
	if min := start + s.overlap + 1; lo < min {
		lo = min
	}

	// Paragraph break: cut after "\n\n".
	for i := end; i >= lo+2; i-- {
		if runes[i-1] == '\n' && runes[i-2] == '\n' {
			return i
		}
	}
	// Line break: cut after "\n".
	for i := end; i >= lo+1; i-- {
		if runes[i-1] == '\n' {
			return i
		}
	}
	// Sentence end: cut after ". ", "! " or "? ".
	for i := end; i >= lo+2; i-- {
		if runes[i-1] == ' ' && isSentenceEnd(runes[i-2]) {
			return i
		}
	}
	// Word break: cut after a space.
	for i := end; i >= lo+1; i-- {
		if runes[i-1] == ' ' {
			return i
		}
	}
	// No separator in the window: hard cut mid-word.
	return end
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
