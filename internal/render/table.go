package render

import (
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/hpungsan/parley/internal/chat"
)

const tableTextWidth = 80

// WriteTable writes a borderless, left-aligned table for terminals.
// Long texts are cut and line breaks shown as spaces.
func WriteTable(w io.Writer, exp *Export) error {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Seq", "Timestamp", "Sender", "Text", "Attachment"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	for _, m := range exp.Messages {
		table.Append([]string{
			strconv.Itoa(m.Seq),
			chat.FormatTimestamp(m.Timestamp),
			m.Sender,
			truncate(chat.JoinLines(m.Text), tableTextWidth),
			m.AttachmentName(),
		})
	}

	table.Render()
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n-3])) + "..."
}
