package chat

import (
	"strings"
	"time"

	"github.com/hpungsan/parley/internal/locale"
)

// TimestampLayout is how naive timestamps are written out: ISO-8601 without an offset.
const TimestampLayout = "2006-01-02T15:04:05"

// ParseTimestamp parses boundary text with the profile's date layout.
//
// Surrounding brackets are tolerated so callers may pass either the captured text
// or the whole boundary. The result is a naive wall-clock reading: exports carry no
// zone, so the returned Location is a placeholder and must not be read as UTC.
func ParseTimestamp(raw string, p *locale.Profile) (time.Time, error) {
	s := strings.TrimFunc(raw, isSpaceOrMark)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	s = strings.ReplaceAll(s, "\u202f", " ")

	// time.Parse rejects any unconsumed trailing text.
	return time.Parse(p.DateLayout(), s)
}

// FormatTimestamp renders a parsed timestamp without zone information.
func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// ParseStoredTimestamp reads back a value written by FormatTimestamp.
func ParseStoredTimestamp(s string) (time.Time, error) {
	return time.Parse(TimestampLayout, s)
}
