package render

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/hpungsan/parley/internal/chat"
)

var (
	csvColumns       = []string{"timestamp", "sender", "text", "attachment"}
	decomposeColumns = []string{"date", "year", "month_num", "month", "day", "day_name", "hour", "minute"}
)

// WriteCSV writes a header row then one row per message. Line breaks inside
// text are kept; encoding/csv quotes them.
func WriteCSV(w io.Writer, exp *Export) error {
	cw := csv.NewWriter(w)

	header := csvColumns
	if exp.Decompose {
		header = append(append([]string{}, csvColumns...), decomposeColumns...)
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, m := range exp.Messages {
		if err := cw.Write(csvRow(m, exp.Decompose)); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func csvRow(m chat.Message, decompose bool) []string {
	row := []string{
		chat.FormatTimestamp(m.Timestamp),
		m.Sender,
		m.Text,
		m.AttachmentName(),
	}
	if !decompose {
		return row
	}
	ts := m.Timestamp
	return append(row,
		ts.Format("2006-01-02"),
		strconv.Itoa(ts.Year()),
		strconv.Itoa(int(ts.Month())),
		ts.Month().String(),
		strconv.Itoa(ts.Day()),
		ts.Weekday().String(),
		strconv.Itoa(ts.Hour()),
		strconv.Itoa(ts.Minute()),
	)
}
