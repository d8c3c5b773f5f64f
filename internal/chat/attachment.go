package chat

import (
	"strings"

	"github.com/hpungsan/parley/internal/locale"
)

// ExtractAttachment finds the first "<marker: file name>" tag of profile p in
// text and returns the trimmed file name. It never touches the file system.
func ExtractAttachment(text string, p *locale.Profile) (string, bool) {
	m := p.AttachmentPattern().FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	name := strings.TrimFunc(m[1], isSpaceOrMark)
	if name == "" {
		return "", false
	}
	return name, true
}
