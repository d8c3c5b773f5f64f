// Package render writes parsed messages out as CSV, JSONL, HTML or a text table.
package render

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hpungsan/parley/internal/chat"
	"github.com/hpungsan/parley/internal/errors"
	"github.com/hpungsan/parley/internal/media"
)

// Format names an output format.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatJSONL Format = "jsonl"
	FormatHTML  Format = "html"
	FormatTable Format = "table"
)

// Formats lists the formats in display order.
var Formats = []Format{FormatCSV, FormatJSONL, FormatHTML, FormatTable}

// Export is everything a renderer needs for one chat.
type Export struct {
	Name       string
	Locale     string
	Source     string
	ExportedAt time.Time
	Messages   []chat.Message

	// Attachments holds resolved files keyed by attachment name (optional).
	Attachments map[string]*media.Attachment

	// Decompose adds date/year/month_num/month/day/day_name/hour/minute CSV columns.
	Decompose bool
}

// ParseFormat validates a format name. Empty means CSV.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if f == "" {
		return FormatCSV, nil
	}
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", errors.NewInvalidRequest(fmt.Sprintf("unknown format %q (want csv, jsonl, html or table)", s))
}

// Extension returns the file extension (with dot) for a format.
func Extension(f Format) string {
	switch f {
	case FormatJSONL:
		return ".jsonl"
	case FormatHTML:
		return ".html"
	case FormatTable:
		return ".txt"
	default:
		return ".csv"
	}
}

// Write renders exp to w in the given format.
func Write(w io.Writer, f Format, exp *Export) error {
	switch f {
	case FormatCSV, "":
		return WriteCSV(w, exp)
	case FormatJSONL:
		return WriteJSONL(w, exp)
	case FormatHTML:
		return WriteHTML(w, exp)
	case FormatTable:
		return WriteTable(w, exp)
	}
	return errors.NewInvalidRequest(fmt.Sprintf("unknown format %q", f))
}

func (e *Export) attachment(m chat.Message) *media.Attachment {
	if m.Attachment == nil || e.Attachments == nil {
		return nil
	}
	return e.Attachments[*m.Attachment]
}
