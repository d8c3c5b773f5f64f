package chat

import "github.com/hpungsan/parley/internal/locale"

// Segment is one (boundary, body) slice of a raw export, before field extraction.
type Segment struct {
	// Offset is the byte offset of the boundary in the input.
	Offset int

	// Boundary is the full matched boundary, including any leading mark and the brackets.
	Boundary string

	// RawTimestamp is the date-time text captured inside the brackets.
	RawTimestamp string

	// RawBody is everything after the boundary up to the next boundary or end of input.
	RawBody string
}

// Segments splits text at every boundary recognised by p, in input order.
// Text before the first boundary is preamble and is dropped. No boundary at all
// yields a nil slice, which callers treat as an export without messages.
func Segments(text string, p *locale.Profile) []Segment {
	matches := p.Matcher().FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}

	segments := make([]Segment, len(matches))
	for i, m := range matches {
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		segments[i] = Segment{
			Offset:       m[0],
			Boundary:     text[m[0]:m[1]],
			RawTimestamp: text[m[2]:m[3]],
			RawBody:      text[m[1]:end],
		}
	}
	return segments
}
