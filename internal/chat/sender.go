package chat

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// NotificationSender is the sender recorded for system messages (joins, leaves,
// subject changes) that carry no "Name: text" prefix.
const NotificationSender = "group_notification"

// SplitSender separates a segment body into author and text.
//
// The scan runs in two phases. Phase one finds the first colon in the body.
// Phase two accepts it as the separator only if whitespace follows it and the
// prefix before it, stripped of whitespace and bidi marks, is non-empty. The
// prefix therefore never contains a colon, so "https://host" style content at
// the start of a body is not split inside the scheme.
//
// Known limitation: a body that begins with a colon-bearing phrase such as
// "Note: call me" and has no real author is still split, yielding sender "Note".
// Real exports always prefix messages with the author, so this only bites
// hand-edited files.
//
// When no separator is accepted, ok is false, sender is NotificationSender and
// text is the trimmed body.
func SplitSender(body string) (sender, text string, ok bool) {
	body = strings.TrimLeftFunc(body, isSpaceOrMark)
	trimmed := strings.TrimRightFunc(body, unicode.IsSpace)

	// The separator is looked up before the right trim so "Dana: " keeps it.
	idx := strings.IndexByte(body, ':')
	if idx < 0 {
		return NotificationSender, trimmed, false
	}

	next, size := utf8.DecodeRuneInString(body[idx+1:])
	if size == 0 || !unicode.IsSpace(next) {
		return NotificationSender, trimmed, false
	}

	sender = strings.TrimFunc(body[:idx], isSpaceOrMark)
	if sender == "" {
		return NotificationSender, trimmed, false
	}

	return sender, strings.TrimRightFunc(body[idx+1+size:], unicode.IsSpace), true
}

// JoinLines collapses embedded line breaks into single spaces.
func JoinLines(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	parts := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, " ")
}

// isSpaceOrMark reports whitespace and the invisible direction marks clients
// put around names and tags.
func isSpaceOrMark(r rune) bool {
	switch r {
	case '\u200e', '\u200f', '\u202a', '\u202b', '\u202c', '\u2066', '\u2067', '\u2068', '\u2069', '\ufeff':
		return true
	}
	return unicode.IsSpace(r)
}
